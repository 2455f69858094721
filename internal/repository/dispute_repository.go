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
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор и в той же транзакции замораживает этап (или весь
// проект, если этап не указан). Замороженный этап отвергает все обычные
// переходы до разрешения спора.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute, attachmentIDs []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var project models.Project
	err = tx.GetContext(ctx, &project, `SELECT * FROM projects WHERE id = $1 FOR UPDATE`, d.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrProjectNotFound
		}
		return fmt.Errorf("dispute repository: create lock project %w", err)
	}

	if d.MilestoneID != nil {
		var m models.Milestone
		err = tx.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1 AND project_id = $2 FOR UPDATE`, *d.MilestoneID, d.ProjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrMilestoneNotFound
			}
			return fmt.Errorf("dispute repository: create lock milestone %w", err)
		}
		if m.Status == models.MilestoneStatusPaid || m.Status == models.MilestoneStatusResolved {
			return apperror.New(apperror.ErrCodeValidation, "нельзя открыть спор по оплаченному или закрытому этапу")
		}
		if models.IsMilestoneFrozen(m.Status) {
			return apperror.New(apperror.ErrCodeValidation, "по этапу уже открыт спор")
		}

		original := m.Status
		d.MilestoneStatusOriginal = &original

		if _, err := tx.ExecContext(ctx, `
			UPDATE milestones SET status = $2, updated_at = NOW() WHERE id = $1
		`, m.ID, models.MilestoneStatusDisputed); err != nil {
			return fmt.Errorf("dispute repository: create freeze milestone %w", err)
		}

		// Если по этапу зарезервированы средства, они тоже замораживаются.
		var payment models.Payment
		err = tx.GetContext(ctx, &payment, `SELECT * FROM payments WHERE milestone_id = $1 FOR UPDATE`, m.ID)
		if err == nil && payment.Status == models.PaymentStatusEscrowed {
			if _, err := tx.ExecContext(ctx, `
				UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1
			`, payment.ID, models.PaymentStatusDisputed); err != nil {
				return fmt.Errorf("dispute repository: create freeze payment %w", err)
			}
			d.PaymentID = &payment.ID
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dispute repository: create get payment %w", err)
		}
	} else {
		// Спор без этапа замораживает проект целиком.
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1
		`, d.ProjectID, models.ProjectStatusDisputed); err != nil {
			return fmt.Errorf("dispute repository: create freeze project %w", err)
		}
	}

	err = tx.GetContext(ctx, d, `
		INSERT INTO disputes (project_id, milestone_id, payment_id, initiator_id, reason, description,
		                      status, contested_amount, suggested_resolution, milestone_status_original)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *
	`, d.ProjectID, d.MilestoneID, d.PaymentID, d.InitiatorID, d.Reason, d.Description,
		models.DisputeStatusOpen, d.ContestedAmount, d.SuggestedResolution, d.MilestoneStatusOriginal)
	if err != nil {
		return fmt.Errorf("dispute repository: create insert %w", err)
	}

	if len(attachmentIDs) > 0 {
		inserter := common.NewBatchInserter(tx, `INSERT INTO dispute_attachments (dispute_id, media_id, uploaded_by)`, 3, 50)
		for _, mediaID := range attachmentIDs {
			if err := inserter.Add(ctx, d.ID, mediaID, d.InitiatorID); err != nil {
				return fmt.Errorf("dispute repository: create attachment %w", err)
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("dispute repository: create attachments %w", err)
		}
	}

	return tx.Commit()
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// ListByProject возвращает споры проекта.
func (r *DisputeRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by project %w", err)
	}
	return disputes, nil
}

// ListOpen возвращает неразрешённые споры для очереди арбитра.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status IN ($1, $2) ORDER BY created_at
		LIMIT $3 OFFSET $4
	`, models.DisputeStatusOpen, models.DisputeStatusUnderReview, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}

// ListAttachments возвращает вложения спора.
func (r *DisputeRepository) ListAttachments(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAttachment, error) {
	attachments := []models.DisputeAttachment{}
	err := r.db.SelectContext(ctx, &attachments, `
		SELECT * FROM dispute_attachments WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list attachments %w", err)
	}
	return attachments, nil
}

// ListResolutionNotes возвращает записи решений в порядке добавления.
func (r *DisputeRepository) ListResolutionNotes(ctx context.Context, disputeID uuid.UUID) ([]models.ResolutionNote, error) {
	notes := []models.ResolutionNote{}
	err := r.db.SelectContext(ctx, &notes, `
		SELECT * FROM resolution_notes WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list resolution notes %w", err)
	}
	return notes, nil
}

// AddUpdate дописывает реплику стороны к описанию спора и прикладывает
// вложения. После разрешения спора дополнения запрещены.
func (r *DisputeRepository) AddUpdate(ctx context.Context, disputeID, authorID uuid.UUID, notes string, attachmentIDs []uuid.UUID) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, err := lockDispute(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeTerminalState, "спор разрешён, дополнения больше не принимаются")
	}

	if notes != "" {
		description := models.AppendDescription(d.Description, authorID, time.Now(), notes)
		err = tx.GetContext(ctx, d, `
			UPDATE disputes SET description = $2 WHERE id = $1 RETURNING *
		`, disputeID, description)
		if err != nil {
			return nil, fmt.Errorf("dispute repository: add update description %w", err)
		}
	}

	for _, mediaID := range attachmentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dispute_attachments (dispute_id, media_id, uploaded_by) VALUES ($1, $2, $3)
		`, disputeID, mediaID, authorID); err != nil {
			return nil, fmt.Errorf("dispute repository: add update attachment %w", err)
		}
	}

	return d, tx.Commit()
}

// StartReview переводит спор в under_review: арбитр взял спор в работу.
func (r *DisputeRepository) StartReview(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, err := lockDispute(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeStatusOpen {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "взять в работу можно только открытый спор, текущий статус %s", d.Status)
	}

	err = tx.GetContext(ctx, d, `
		UPDATE disputes SET status = $2 WHERE id = $1 RETURNING *
	`, disputeID, models.DisputeStatusUnderReview)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: start review %w", err)
	}

	return d, tx.Commit()
}

// SettleInput описывает итог решения арбитра, применяемый одной транзакцией.
// Деньги к этому моменту уже переведены шлюзом: откат здесь невозможен,
// поэтому повторная проверка статуса спора выполняется внутри транзакции.
type SettleInput struct {
	DisputeID     uuid.UUID
	ArbiterID     uuid.UUID
	Action        string
	Note          string
	DisputeStatus string

	// Финальный статус этапа. Пустая строка — этап не меняется.
	MilestoneStatus string
	// Очистить ли текущую сдачу этапа (redo).
	ClearSubmission bool

	// Финальный статус платежа. Пустая строка — платёж не меняется.
	PaymentStatus string
	RefundAmount  *float64
	ReleaseAmount *float64
	RefundTxID    *string
	ReleaseTxID   *string

	// Документ-подтверждение перевода, прикладывается к спору.
	TransferAttachmentID *uuid.UUID
}

// Settle применяет решение арбитра: статусы спора, этапа и платежа меняются
// атомарно, запись решения дописывается в журнал.
func (r *DisputeRepository) Settle(ctx context.Context, in SettleInput) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, err := lockDispute(ctx, tx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	if d.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeTerminalState, "спор уже разрешён")
	}

	if d.MilestoneID != nil && in.MilestoneStatus != "" {
		query := `UPDATE milestones SET status = $2, updated_at = NOW() WHERE id = $1`
		if in.ClearSubmission {
			query = `
				UPDATE milestones
				SET status = $2, submission_note = NULL, attachment_id = NULL, submitted_at = NULL, updated_at = NOW()
				WHERE id = $1`
		}
		if _, err := tx.ExecContext(ctx, query, *d.MilestoneID, in.MilestoneStatus); err != nil {
			return nil, fmt.Errorf("dispute repository: settle milestone %w", err)
		}
	}

	if d.PaymentID != nil && in.PaymentStatus != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, refund_tx_id = COALESCE($3, refund_tx_id),
			    release_tx_id = COALESCE($4, release_tx_id), updated_at = NOW()
			WHERE id = $1
		`, *d.PaymentID, in.PaymentStatus, in.RefundTxID, in.ReleaseTxID); err != nil {
			return nil, fmt.Errorf("dispute repository: settle payment %w", err)
		}
	}

	// Спор без этапа замораживал проект целиком — возвращаем его в работу.
	if d.MilestoneID == nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
		`, d.ProjectID, models.ProjectStatusInProgress, models.ProjectStatusDisputed); err != nil {
			return nil, fmt.Errorf("dispute repository: settle project %w", err)
		}
	}

	if in.TransferAttachmentID != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dispute_attachments (dispute_id, media_id, uploaded_by) VALUES ($1, $2, $3)
		`, d.ID, *in.TransferAttachmentID, in.ArbiterID); err != nil {
			return nil, fmt.Errorf("dispute repository: settle attachment %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resolution_notes (dispute_id, author_id, action, note, refund_amount, release_amount, refund_tx_id, release_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, in.ArbiterID, in.Action, in.Note, in.RefundAmount, in.ReleaseAmount, in.RefundTxID, in.ReleaseTxID); err != nil {
		return nil, fmt.Errorf("dispute repository: settle note %w", err)
	}

	err = tx.GetContext(ctx, d, `
		UPDATE disputes SET status = $2, resolved_by = $3, resolved_at = NOW() WHERE id = $1 RETURNING *
	`, d.ID, in.DisputeStatus, in.ArbiterID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: settle dispute %w", err)
	}

	return d, tx.Commit()
}

func lockDispute(ctx context.Context, tx *sqlx.Tx, disputeID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := tx.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, disputeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: lock dispute %w", err)
	}
	return &d, nil
}
