package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// MilestoneLedger описывает взаимодействие сервиса согласования с хранилищем этапов.
type MilestoneLedger interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Milestone, error)
	Replace(ctx context.Context, projectID uuid.UUID, drafts []models.MilestoneDraft) ([]models.Milestone, error)
	Approve(ctx context.Context, projectID uuid.UUID, role string) (*models.ApprovalState, error)
}

// WSNotifier интерфейс для отправки WebSocket уведомлений сторонам проекта.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// NegotiationService реализует протокол двустороннего согласования набора
// этапов: правки любой стороны сбрасывают оба флага, блокировка наступает
// атомарно при втором согласии.
type NegotiationService struct {
	projects ProjectRepository
	ledger   MilestoneLedger
	hub      WSNotifier
}

// NewNegotiationService создаёт сервис согласования.
func NewNegotiationService(projects ProjectRepository, ledger MilestoneLedger) *NegotiationService {
	return &NegotiationService{projects: projects, ledger: ledger}
}

// SetHub устанавливает WebSocket hub для уведомлений.
func (s *NegotiationService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// ListMilestones возвращает текущий набор этапов проекта.
func (s *NegotiationService) ListMilestones(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Milestone, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return s.ledger.ListByProject(ctx, projectID)
}

// ProposeEdit заменяет набор этапов целиком. Набор пересеквенируется в
// плотный порядок 1..N; любая из сторон может править до блокировки.
func (s *NegotiationService) ProposeEdit(ctx context.Context, projectID, actorID uuid.UUID, drafts []models.MilestoneDraft) ([]models.Milestone, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(actorID) {
		return nil, apperror.ErrForbidden
	}
	if err := validation.ValidateMilestoneSet(drafts, time.Now()); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	milestones, err := s.ledger.Replace(ctx, projectID, drafts)
	if err != nil {
		return nil, err
	}

	s.notify(project, "milestones.replaced", map[string]interface{}{"project_id": projectID, "count": len(milestones)})
	return milestones, nil
}

// Approve выставляет согласие стороны. Если обе стороны согласны, набор
// блокируется и проект переходит в работу.
func (s *NegotiationService) Approve(ctx context.Context, projectID, actorID uuid.UUID) (*models.ApprovalState, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	role := project.RoleOf(actorID)
	if role == "" {
		return nil, apperror.ErrForbidden
	}

	state, err := s.ledger.Approve(ctx, projectID, role)
	if err != nil {
		return nil, err
	}

	if state.Locked {
		logger.WithProject(projectID.String()).Info("Набор этапов заблокирован, проект переходит в работу")
		s.notify(project, "milestones.locked", map[string]interface{}{"project_id": projectID, "locked_at": state.LockedAt})
	} else {
		s.notify(project, "milestones.approved_by", map[string]interface{}{"project_id": projectID, "role": role})
	}
	return state, nil
}

// State возвращает текущее состояние согласования.
func (s *NegotiationService) State(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.ApprovalState, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return s.projects.GetApprovalState(ctx, projectID)
}

// notify рассылает событие обеим сторонам проекта, ошибки не прерывают
// основную операцию.
func (s *NegotiationService) notify(project *models.Project, event string, data interface{}) {
	if s.hub == nil {
		return
	}
	_ = s.hub.BroadcastToUser(project.ClientID, event, data)
	_ = s.hub.BroadcastToUser(project.FreelancerID, event, data)
}
