package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create сохраняет проект вместе с пустым состоянием согласования.
func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, p, `
			INSERT INTO projects (client_id, freelancer_id, title, approved_total, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, client_id, freelancer_id, title, approved_total, currency, status, created_at, updated_at
		`, p.ClientID, p.FreelancerID, p.Title, p.ApprovedTotal, p.Currency, models.ProjectStatusNegotiating)
		if err != nil {
			return fmt.Errorf("project repository: create %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO approval_states (project_id, client_approved, freelancer_approved, locked)
			VALUES ($1, false, false, false)
		`, p.ID)
		if err != nil {
			return fmt.Errorf("project repository: create approval state %w", err)
		}
		return nil
	})
}

// GetByID возвращает проект по идентификатору.
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return common.GetByID[models.Project](ctx, r.db, "projects", id, apperror.ErrProjectNotFound)
}

// ListByParticipant возвращает проекты, где пользователь выступает любой из сторон.
func (r *ProjectRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error) {
	projects := []models.Project{}
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects
		WHERE client_id = $1 OR freelancer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("project repository: list by participant %w", err)
	}
	return projects, nil
}

// GetApprovalState возвращает состояние согласования набора этапов.
func (r *ProjectRepository) GetApprovalState(ctx context.Context, projectID uuid.UUID) (*models.ApprovalState, error) {
	var state models.ApprovalState
	if err := r.db.GetContext(ctx, &state, `SELECT * FROM approval_states WHERE project_id = $1`, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("project repository: get approval state %w", err)
	}
	return &state, nil
}

// Cancel переводит проект в cancelled. Разрешено только на стадии переговоров:
// после блокировки набора деньги и этапы живут по своим правилам.
func (r *ProjectRepository) Cancel(ctx context.Context, projectID, actorID uuid.UUID) (*models.Project, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var project models.Project
	err = tx.GetContext(ctx, &project, `SELECT * FROM projects WHERE id = $1 FOR UPDATE`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("project repository: cancel get %w", err)
	}

	if !project.IsParticipant(actorID) {
		return nil, apperror.ErrForbidden
	}
	if project.Status != models.ProjectStatusNegotiating {
		return nil, apperror.New(apperror.ErrCodeLocked, "отменить можно только проект на стадии переговоров")
	}

	err = tx.GetContext(ctx, &project, `
		UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING *
	`, projectID, models.ProjectStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("project repository: cancel update %w", err)
	}

	return &project, tx.Commit()
}
