package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/money"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// ProjectRepository описывает взаимодействие сервиса с хранилищем проектов.
type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error)
	GetApprovalState(ctx context.Context, projectID uuid.UUID) (*models.ApprovalState, error)
	Cancel(ctx context.Context, projectID, actorID uuid.UUID) (*models.Project, error)
}

// ProjectService содержит бизнес-логику работы с проектами.
type ProjectService struct {
	repo ProjectRepository
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(repo ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

// CreateProjectInput описывает входные данные.
type CreateProjectInput struct {
	ClientID      uuid.UUID
	FreelancerID  uuid.UUID
	Title         string
	ApprovedTotal float64
	Currency      string
}

// Create создаёт проект на стадии переговоров. Проект появляется в момент
// принятия предложения, когда итоговая стоимость уже согласована.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	if err := validation.ValidateProjectTitle(in.Title); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := money.ValidatePositive(in.ApprovedTotal); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateCurrency(in.Currency); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if in.ClientID == in.FreelancerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "заказчик и исполнитель не могут совпадать")
	}

	project := &models.Project{
		ClientID:      in.ClientID,
		FreelancerID:  in.FreelancerID,
		Title:         in.Title,
		ApprovedTotal: in.ApprovedTotal,
		Currency:      in.Currency,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Get возвращает проект, доступный участнику или арбитру.
func (s *ProjectService) Get(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return project, nil
}

// ListMine возвращает проекты пользователя.
func (s *ProjectService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByParticipant(ctx, userID, limit, offset)
}

// Cancel отменяет проект на стадии переговоров.
func (s *ProjectService) Cancel(ctx context.Context, projectID, actorID uuid.UUID) (*models.Project, error) {
	return s.repo.Cancel(ctx, projectID, actorID)
}
