package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// MilestoneRepository описывает переходы состояния этапа в хранилище.
// Все защиты (заморозка, порядок, допустимость перехода) проверяются
// внутри транзакции репозитория.
type MilestoneRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	Start(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, error)
	Submit(ctx context.Context, milestoneID, freelancerID uuid.UUID, note string, attachmentID *uuid.UUID) (*models.Milestone, error)
	ApproveSubmission(ctx context.Context, milestoneID, clientID uuid.UUID) (*models.Milestone, error)
	RequestChanges(ctx context.Context, milestoneID, clientID uuid.UUID, reason string) (*models.Milestone, error)
	History(ctx context.Context, milestoneID uuid.UUID) ([]models.MilestoneSubmission, error)
}

// MilestoneService управляет жизненным циклом отдельного этапа от начала
// работы до приёмки.
type MilestoneService struct {
	milestones MilestoneRepository
	projects   ProjectRepository
	hub        WSNotifier
}

// NewMilestoneService создаёт сервис этапов.
func NewMilestoneService(milestones MilestoneRepository, projects ProjectRepository) *MilestoneService {
	return &MilestoneService{milestones: milestones, projects: projects}
}

// SetHub устанавливает WebSocket hub для уведомлений.
func (s *MilestoneService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// Start переводит этап в работу.
func (s *MilestoneService) Start(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, error) {
	m, err := s.milestones.Start(ctx, milestoneID, freelancerID)
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, m, "milestone.started")
	return m, nil
}

// Submit фиксирует сдачу работы по этапу.
func (s *MilestoneService) Submit(ctx context.Context, milestoneID, freelancerID uuid.UUID, note string, attachmentID *uuid.UUID) (*models.Milestone, error) {
	if note == "" && attachmentID == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "сдача должна содержать комментарий или вложение")
	}

	m, err := s.milestones.Submit(ctx, milestoneID, freelancerID, note, attachmentID)
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, m, "milestone.submitted")
	return m, nil
}

// Approve принимает сданную работу, после чего возможна выплата.
func (s *MilestoneService) Approve(ctx context.Context, milestoneID, clientID uuid.UUID) (*models.Milestone, error) {
	m, err := s.milestones.ApproveSubmission(ctx, milestoneID, clientID)
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, m, "milestone.approved")
	return m, nil
}

// RequestChanges возвращает сданный этап на доработку. Причина обязательна:
// история сдач — единственный аудиторский след для будущего арбитра, и
// система никогда не отклоняет сдачу без записанного обоснования.
func (s *MilestoneService) RequestChanges(ctx context.Context, milestoneID, clientID uuid.UUID, reason string) (*models.Milestone, error) {
	if err := validation.ValidateRejectReason(reason); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	m, err := s.milestones.RequestChanges(ctx, milestoneID, clientID, reason)
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, m, "milestone.changes_requested")
	return m, nil
}

// Get возвращает этап с проверкой доступа.
func (s *MilestoneService) Get(ctx context.Context, milestoneID, userID uuid.UUID, role string) (*models.Milestone, error) {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return m, nil
}

// History возвращает историю сдач этапа.
func (s *MilestoneService) History(ctx context.Context, milestoneID, userID uuid.UUID, role string) ([]models.MilestoneSubmission, error) {
	if _, err := s.Get(ctx, milestoneID, userID, role); err != nil {
		return nil, err
	}
	return s.milestones.History(ctx, milestoneID)
}

func (s *MilestoneService) notifyTransition(ctx context.Context, m *models.Milestone, event string) {
	if s.hub == nil {
		return
	}
	project, err := s.projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return
	}
	data := map[string]interface{}{
		"project_id":   m.ProjectID,
		"milestone_id": m.ID,
		"seq":          m.Seq,
		"status":       m.Status,
		"revision":     m.Revision,
	}
	_ = s.hub.BroadcastToUser(project.ClientID, event, data)
	_ = s.hub.BroadcastToUser(project.FreelancerID, event, data)
}
