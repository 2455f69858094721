package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var (
	// ErrOperationExists возвращается при повторе ключа идемпотентности.
	ErrOperationExists = errors.New("payment operation already exists")
)

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет платёж после подтверждения escrow платёжным шлюзом.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.GetContext(ctx, p, `
		INSERT INTO payments (project_id, milestone_id, amount, currency, method, status, escrow_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, p.ProjectID, p.MilestoneID, p.Amount, p.Currency, p.Method, models.PaymentStatusEscrowed, p.EscrowRef)
	if err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByMilestoneID возвращает платёж по этапу.
func (r *PaymentRepository) GetByMilestoneID(ctx context.Context, milestoneID uuid.UUID) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "milestone_id", milestoneID, apperror.ErrPaymentNotFound)
}

// ListByProject возвращает платежи проекта.
func (r *PaymentRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list by project %w", err)
	}
	return payments, nil
}

// GetOperation возвращает ранее записанную операцию по ключу идемпотентности.
func (r *PaymentRepository) GetOperation(ctx context.Context, key string) (*models.PaymentOperation, error) {
	var op models.PaymentOperation
	if err := r.db.GetContext(ctx, &op, `SELECT * FROM payment_operations WHERE idempotency_key = $1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("payment repository: get operation %w", err)
	}
	return &op, nil
}

// BeginOperation фиксирует намерение обратиться к шлюзу до самого обращения.
// Повтор ключа идемпотентности возвращает ErrOperationExists: после падения
// между вызовом шлюза и локальным обновлением ретрай не продублирует расчёт.
func (r *PaymentRepository) BeginOperation(ctx context.Context, op *models.PaymentOperation) error {
	err := r.db.GetContext(ctx, op, `
		INSERT INTO payment_operations (idempotency_key, payment_id, kind, status, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, op.IdempotencyKey, op.PaymentID, op.Kind, models.OperationStatusPending, op.Amount)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrOperationExists
		}
		return fmt.Errorf("payment repository: begin operation %w", err)
	}
	return nil
}

// CompleteOperation записывает подтверждённый результат обращения к шлюзу.
func (r *PaymentRepository) CompleteOperation(ctx context.Context, key string, txID, secondTxID *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_operations
		SET status = $2, tx_id = $3, second_tx_id = $4, completed_at = NOW()
		WHERE idempotency_key = $1
	`, key, models.OperationStatusCompleted, txID, secondTxID)
	if err != nil {
		return fmt.Errorf("payment repository: complete operation %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment repository: complete operation: ключ %s не найден", key)
	}
	return nil
}

// FailOperation помечает операцию проваленной. Запись остаётся: повтор с тем
// же ключом после отказа шлюза разрешён и пойдёт в шлюз заново.
func (r *PaymentRepository) FailOperation(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payment_operations SET status = $2, completed_at = NOW() WHERE idempotency_key = $1
	`, key, models.OperationStatusFailed); err != nil {
		return fmt.Errorf("payment repository: fail operation %w", err)
	}
	return nil
}

// ResetOperation возвращает проваленную операцию в pending перед ретраем.
func (r *PaymentRepository) ResetOperation(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payment_operations SET status = $2, completed_at = NULL WHERE idempotency_key = $1
	`, key, models.OperationStatusPending); err != nil {
		return fmt.Errorf("payment repository: reset operation %w", err)
	}
	return nil
}

// FinalizeRelease завершает выплату по этапу: платёж становится released,
// этап — paid, а когда оплачен последний этап, проект закрывается.
// Провал шлюза сюда не попадает: этап остаётся approved и выплата ретраится.
func (r *PaymentRepository) FinalizeRelease(ctx context.Context, paymentID uuid.UUID, txID string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p models.Payment
	err = tx.GetContext(ctx, &p, `SELECT * FROM payments WHERE id = $1 FOR UPDATE`, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: finalize release get %w", err)
	}
	if p.Status != models.PaymentStatusEscrowed {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "платёж в статусе %s нельзя выплатить", p.Status)
	}

	err = tx.GetContext(ctx, &p, `
		UPDATE payments SET status = $2, release_tx_id = $3, updated_at = NOW() WHERE id = $1
		RETURNING *
	`, paymentID, models.PaymentStatusReleased, txID)
	if err != nil {
		return nil, fmt.Errorf("payment repository: finalize release update %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE milestones SET status = $2, updated_at = NOW() WHERE id = $1
	`, p.MilestoneID, models.MilestoneStatusPaid); err != nil {
		return nil, fmt.Errorf("payment repository: finalize release milestone %w", err)
	}

	// Проект завершается, когда не осталось этапов вне терминальных статусов.
	var remaining int
	err = tx.GetContext(ctx, &remaining, `
		SELECT COUNT(*) FROM milestones
		WHERE project_id = $1 AND status NOT IN ($2, $3)
	`, p.ProjectID, models.MilestoneStatusPaid, models.MilestoneStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("payment repository: finalize release count %w", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1
		`, p.ProjectID, models.ProjectStatusCompleted); err != nil {
			return nil, fmt.Errorf("payment repository: finalize release project %w", err)
		}
	}

	return &p, tx.Commit()
}
