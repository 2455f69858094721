package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
	DisputeStatusCancelled   = "cancelled"
	DisputeStatusClosed      = "closed"
)

// Причины открытия спора.
const (
	DisputeReasonQuality    = "quality"
	DisputeReasonDeadline   = "deadline"
	DisputeReasonScope      = "scope"
	DisputeReasonNonPayment = "non_payment"
	DisputeReasonNoDelivery = "no_delivery"
	DisputeReasonOther      = "other"
)

// Действия арбитра при закрытии спора.
const (
	ResolutionRefund  = "refund"
	ResolutionRelease = "release"
	ResolutionSplit   = "split"
	ResolutionRedo    = "redo"
	ResolutionReject  = "reject"
)

// ValidDisputeReasons список валидных категорий споров.
var ValidDisputeReasons = map[string]struct{}{
	DisputeReasonQuality:    {},
	DisputeReasonDeadline:   {},
	DisputeReasonScope:      {},
	DisputeReasonNonPayment: {},
	DisputeReasonNoDelivery: {},
	DisputeReasonOther:      {},
}

// Dispute описывает спор по проекту или конкретному этапу.
// Описание дополняется только конкатенацией, чтобы переписка сторон
// восстанавливалась целиком для арбитра.
type Dispute struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	ProjectID           uuid.UUID  `db:"project_id" json:"project_id"`
	MilestoneID         *uuid.UUID `db:"milestone_id" json:"milestone_id,omitempty"`
	PaymentID           *uuid.UUID `db:"payment_id" json:"payment_id,omitempty"`
	InitiatorID         uuid.UUID  `db:"initiator_id" json:"initiator_id"`
	Reason              string     `db:"reason" json:"reason"`
	Description         string     `db:"description" json:"description"`
	Status              string     `db:"status" json:"status"`
	ContestedAmount     *float64   `db:"contested_amount" json:"contested_amount,omitempty"`
	SuggestedResolution *string    `db:"suggested_resolution" json:"suggested_resolution,omitempty"`

	// Статус этапа до заморозки, для восстановления при отклонении спора.
	MilestoneStatusOriginal *string `db:"milestone_status_original" json:"milestone_status_original,omitempty"`

	ResolvedBy *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsTerminal сообщает, закрыт ли спор для дальнейших дополнений.
func (d *Dispute) IsTerminal() bool {
	return d.Status == DisputeStatusResolved || d.Status == DisputeStatusCancelled || d.Status == DisputeStatusClosed
}

// AppendDescription добавляет реплику к описанию спора со структурным
// разделителем и метаданными автора.
func AppendDescription(current string, authorID uuid.UUID, at time.Time, text string) string {
	return current + fmt.Sprintf("\n---\n[%s @ %s]\n%s", authorID, at.UTC().Format(time.RFC3339), text)
}

// DisputeAttachment связывает загруженный файл-доказательство со спором.
type DisputeAttachment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DisputeID  uuid.UUID `db:"dispute_id" json:"dispute_id"`
	MediaID    uuid.UUID `db:"media_id" json:"media_id"`
	UploadedBy uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ResolutionNote — запись решения или комментария арбитра.
// Записи никогда не редактируются после создания.
type ResolutionNote struct {
	ID            uuid.UUID `db:"id" json:"id"`
	DisputeID     uuid.UUID `db:"dispute_id" json:"dispute_id"`
	AuthorID      uuid.UUID `db:"author_id" json:"author_id"`
	Action        string    `db:"action" json:"action"`
	Note          string    `db:"note" json:"note"`
	RefundAmount  *float64  `db:"refund_amount" json:"refund_amount,omitempty"`
	ReleaseAmount *float64  `db:"release_amount" json:"release_amount,omitempty"`
	RefundTxID    *string   `db:"refund_tx_id" json:"refund_tx_id,omitempty"`
	ReleaseTxID   *string   `db:"release_tx_id" json:"release_tx_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
