package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы платежа (escrow по этапу).
const (
	PaymentStatusEscrowed = "escrowed"
	PaymentStatusReleased = "released"
	PaymentStatusRefunded = "refunded"
	PaymentStatusDisputed = "disputed"
)

// Способы оплаты.
const (
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "bank_transfer"
	PaymentMethodBalance  = "balance"
)

// Виды операций платёжного шлюза.
const (
	OperationEscrow  = "escrow"
	OperationRelease = "release"
	OperationRefund  = "refund"
	OperationSplit   = "split"
)

// Статусы операций платёжного шлюза.
const (
	OperationStatusPending   = "pending"
	OperationStatusCompleted = "completed"
	OperationStatusFailed    = "failed"
)

// Payment представляет зарезервированные средства по этапу проекта.
// Статус меняется только подтверждениями платёжного шлюза и решением арбитра.
type Payment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProjectID   uuid.UUID `db:"project_id" json:"project_id"`
	MilestoneID uuid.UUID `db:"milestone_id" json:"milestone_id"`
	Amount      float64   `db:"amount" json:"amount"`
	Currency    string    `db:"currency" json:"currency"`
	Method      string    `db:"method" json:"method"`
	Status      string    `db:"status" json:"status"`

	// Ссылки, возвращаемые платёжным процессором.
	EscrowRef   string  `db:"escrow_ref" json:"escrow_ref"`
	ReleaseTxID *string `db:"release_tx_id" json:"release_tx_id,omitempty"`
	RefundTxID  *string `db:"refund_tx_id" json:"refund_tx_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentOperation фиксирует обращение к платёжному шлюзу.
// Ключ идемпотентности генерирует вызывающая сторона; повтор с тем же ключом
// возвращает сохранённый результат и не трогает шлюз повторно.
type PaymentOperation struct {
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	PaymentID      uuid.UUID  `db:"payment_id" json:"payment_id"`
	Kind           string     `db:"kind" json:"kind"`
	Status         string     `db:"status" json:"status"`
	Amount         float64    `db:"amount" json:"amount"`
	TxID           *string    `db:"tx_id" json:"tx_id,omitempty"`
	SecondTxID     *string    `db:"second_tx_id" json:"second_tx_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
