package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/pkg/money"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// ListByProject возвращает этапы проекта в плотном порядке 1..N.
func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Milestone, error) {
	milestones := []models.Milestone{}
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE project_id = $1 ORDER BY seq
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list by project %w", err)
	}
	return milestones, nil
}

// GetByID возвращает этап по идентификатору.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, apperror.ErrMilestoneNotFound)
}

// Replace атомарно заменяет набор этапов проекта и сбрасывает оба флага
// согласования. Частичная замена снаружи не наблюдаема: либо весь новый набор,
// либо прежний. После блокировки набора замена запрещена.
func (r *MilestoneRepository) Replace(ctx context.Context, projectID uuid.UUID, drafts []models.MilestoneDraft) ([]models.Milestone, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Блокировка состояния согласования сериализует конкурирующие правки
	// и approve по одному проекту.
	var state models.ApprovalState
	err = tx.GetContext(ctx, &state, `SELECT * FROM approval_states WHERE project_id = $1 FOR UPDATE`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("milestone repository: replace lock state %w", err)
	}
	if state.Locked {
		return nil, apperror.New(apperror.ErrCodeLocked, "набор этапов заблокирован, правки невозможны")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE project_id = $1`, projectID); err != nil {
		return nil, fmt.Errorf("milestone repository: replace delete %w", err)
	}

	milestones := make([]models.Milestone, 0, len(drafts))
	for i, d := range drafts {
		var m models.Milestone
		err = tx.GetContext(ctx, &m, `
			INSERT INTO milestones (project_id, seq, title, description, amount, due_date, status, revision)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
			RETURNING *
		`, projectID, i+1, d.Title, d.Description, d.Amount, d.DueDate, models.MilestoneStatusPending)
		if err != nil {
			return nil, fmt.Errorf("milestone repository: replace insert %w", err)
		}
		milestones = append(milestones, m)
	}

	state.ResetApprovals()
	_, err = tx.ExecContext(ctx, `
		UPDATE approval_states
		SET client_approved = $2, freelancer_approved = $3, updated_at = NOW()
		WHERE project_id = $1
	`, projectID, state.ClientApproved, state.FreelancerApproved)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: replace reset flags %w", err)
	}

	return milestones, tx.Commit()
}

// Approve выставляет флаг согласования стороны. Когда оба флага становятся
// true в одной транзакции, набор блокируется, фиксируется момент блокировки
// и проект переходит в in_progress. Сумма этапов обязана точно равняться
// утверждённой стоимости проекта (сравнение в минорных единицах валюты).
func (r *MilestoneRepository) Approve(ctx context.Context, projectID uuid.UUID, role string) (*models.ApprovalState, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var state models.ApprovalState
	err = tx.GetContext(ctx, &state, `SELECT * FROM approval_states WHERE project_id = $1 FOR UPDATE`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("milestone repository: approve lock state %w", err)
	}
	if state.Locked {
		return nil, apperror.New(apperror.ErrCodeLocked, "набор этапов уже заблокирован")
	}

	var project models.Project
	if err := tx.GetContext(ctx, &project, `SELECT * FROM projects WHERE id = $1 FOR UPDATE`, projectID); err != nil {
		return nil, fmt.Errorf("milestone repository: approve get project %w", err)
	}

	var amounts []float64
	if err := tx.SelectContext(ctx, &amounts, `SELECT amount FROM milestones WHERE project_id = $1`, projectID); err != nil {
		return nil, fmt.Errorf("milestone repository: approve sum %w", err)
	}
	if len(amounts) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя согласовать пустой набор этапов")
	}
	if !money.SumEquals(amounts, project.ApprovedTotal) {
		return nil, apperror.Newf(apperror.ErrCodeValidation,
			"сумма этапов (%.2f) не равна утверждённой стоимости проекта (%.2f)", money.Sum(amounts), project.ApprovedTotal)
	}

	if !state.RegisterApproval(role, time.Now()) {
		return nil, apperror.ErrForbidden
	}

	if state.Locked {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1
		`, projectID, models.ProjectStatusInProgress); err != nil {
			return nil, fmt.Errorf("milestone repository: approve lock project %w", err)
		}
	}

	err = tx.GetContext(ctx, &state, `
		UPDATE approval_states
		SET client_approved = $2, freelancer_approved = $3, locked = $4, locked_at = $5, updated_at = NOW()
		WHERE project_id = $1
		RETURNING *
	`, projectID, state.ClientApproved, state.FreelancerApproved, state.Locked, state.LockedAt)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: approve update %w", err)
	}

	return &state, tx.Commit()
}

// Start переводит этап из pending в in_progress. Этапы выполняются строго
// по порядку: предыдущий должен быть принят или оплачен.
func (r *MilestoneRepository) Start(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, project, err := lockMilestone(ctx, tx, milestoneID)
	if err != nil {
		return nil, err
	}
	if project.FreelancerID != freelancerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "начать этап может только исполнитель проекта")
	}
	if models.IsMilestoneFrozen(m.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "этап заморожен открытым спором")
	}
	if project.Status != models.ProjectStatusInProgress {
		return nil, apperror.New(apperror.ErrCodeLocked, "набор этапов ещё не согласован обеими сторонами")
	}
	if m.Status != models.MilestoneStatusPending {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "этап в статусе %s нельзя начать", m.Status)
	}

	if m.Seq > 1 {
		var predecessorStatus string
		err = tx.GetContext(ctx, &predecessorStatus, `
			SELECT status FROM milestones WHERE project_id = $1 AND seq = $2
		`, m.ProjectID, m.Seq-1)
		if err != nil {
			return nil, fmt.Errorf("milestone repository: start predecessor %w", err)
		}
		if !models.PredecessorAllowsStart(predecessorStatus) {
			return nil, apperror.Newf(apperror.ErrCodeOrdering,
				"этап %d нельзя начать: этап %d в статусе %s", m.Seq, m.Seq-1, predecessorStatus)
		}
	}

	return updateMilestoneStatus(ctx, tx, m.ID, models.MilestoneStatusInProgress)
}

// Submit фиксирует сдачу работы по этапу.
func (r *MilestoneRepository) Submit(ctx context.Context, milestoneID, freelancerID uuid.UUID, note string, attachmentID *uuid.UUID) (*models.Milestone, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, project, err := lockMilestone(ctx, tx, milestoneID)
	if err != nil {
		return nil, err
	}
	if project.FreelancerID != freelancerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "сдать этап может только исполнитель проекта")
	}
	if models.IsMilestoneFrozen(m.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "этап заморожен открытым спором")
	}
	if !models.CanTransition(m.Status, models.MilestoneStatusSubmitted) {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "сдать можно только этап в работе, текущий статус %s", m.Status)
	}

	var updated models.Milestone
	err = tx.GetContext(ctx, &updated, `
		UPDATE milestones
		SET status = $2, submission_note = $3, attachment_id = $4, submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, m.ID, models.MilestoneStatusSubmitted, nullableString(note), attachmentID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: submit %w", err)
	}

	return &updated, tx.Commit()
}

// ApproveSubmission принимает сданную работу.
func (r *MilestoneRepository) ApproveSubmission(ctx context.Context, milestoneID, clientID uuid.UUID) (*models.Milestone, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, project, err := lockMilestone(ctx, tx, milestoneID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != clientID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "принять этап может только заказчик проекта")
	}
	if models.IsMilestoneFrozen(m.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "этап заморожен открытым спором")
	}
	if !models.CanTransition(m.Status, models.MilestoneStatusApproved) {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "принять можно только сданный этап, текущий статус %s", m.Status)
	}

	return updateMilestoneStatus(ctx, tx, m.ID, models.MilestoneStatusApproved)
}

// RequestChanges возвращает сданный этап на доработку: текущая сдача вместе
// с причиной отказа дописывается в историю, счётчик ревизий растёт, поля
// текущей сдачи очищаются.
func (r *MilestoneRepository) RequestChanges(ctx context.Context, milestoneID, clientID uuid.UUID, reason string) (*models.Milestone, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, project, err := lockMilestone(ctx, tx, milestoneID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != clientID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вернуть этап на доработку может только заказчик проекта")
	}
	if models.IsMilestoneFrozen(m.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "этап заморожен открытым спором")
	}
	if m.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "вернуть на доработку можно только сданный этап, текущий статус %s", m.Status)
	}

	record := m.ArchiveSubmission(reason)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO milestone_submissions (milestone_id, revision, note, attachment_id, reject_reason, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.MilestoneID, record.Revision, record.Note, record.AttachmentID, record.RejectReason, record.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: request changes history %w", err)
	}

	var updated models.Milestone
	err = tx.GetContext(ctx, &updated, `
		UPDATE milestones
		SET status = $2, revision = revision + 1,
		    submission_note = NULL, attachment_id = NULL, submitted_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, m.ID, models.MilestoneStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: request changes update %w", err)
	}

	return &updated, tx.Commit()
}

// History возвращает историю сдач этапа в порядке добавления.
func (r *MilestoneRepository) History(ctx context.Context, milestoneID uuid.UUID) ([]models.MilestoneSubmission, error) {
	history := []models.MilestoneSubmission{}
	err := r.db.SelectContext(ctx, &history, `
		SELECT * FROM milestone_submissions WHERE milestone_id = $1 ORDER BY created_at, revision
	`, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: history %w", err)
	}
	return history, nil
}

// lockMilestone блокирует этап и его проект на время транзакции.
// Все проверки защит выполняются после этой блокировки, поэтому
// конкурирующие переходы по одному этапу сериализуются.
func lockMilestone(ctx context.Context, tx *sqlx.Tx, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	var m models.Milestone
	err := tx.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1 FOR UPDATE`, milestoneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperror.ErrMilestoneNotFound
		}
		return nil, nil, fmt.Errorf("milestone repository: lock milestone %w", err)
	}

	var project models.Project
	if err := tx.GetContext(ctx, &project, `SELECT * FROM projects WHERE id = $1 FOR UPDATE`, m.ProjectID); err != nil {
		return nil, nil, fmt.Errorf("milestone repository: lock project %w", err)
	}

	// Спор на уровне проекта замораживает все этапы, включая незамороженные
	// по собственному статусу.
	if models.IsProjectFrozen(project.Status) {
		return nil, nil, apperror.New(apperror.ErrCodeFrozen, "проект заморожен открытым спором")
	}

	return &m, &project, nil
}

func updateMilestoneStatus(ctx context.Context, tx *sqlx.Tx, milestoneID uuid.UUID, status string) (*models.Milestone, error) {
	var updated models.Milestone
	err := tx.GetContext(ctx, &updated, `
		UPDATE milestones SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *
	`, milestoneID, status)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: update status %w", err)
	}
	return &updated, tx.Commit()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
