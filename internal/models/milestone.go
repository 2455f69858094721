package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone описывает один этап проекта.
// Последовательность этапов плотная (1..N) и уникальна внутри проекта.
type Milestone struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProjectID   uuid.UUID `db:"project_id" json:"project_id"`
	Seq         int       `db:"seq" json:"seq"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Amount      float64   `db:"amount" json:"amount"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Status      string    `db:"status" json:"status"`

	// Текущая сдача работы. Поля очищаются при возврате на доработку,
	// предыдущая версия при этом попадает в историю.
	SubmissionNote *string    `db:"submission_note" json:"submission_note,omitempty"`
	AttachmentID   *uuid.UUID `db:"attachment_id" json:"attachment_id,omitempty"`
	SubmittedAt    *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	Revision       int        `db:"revision" json:"revision"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MilestoneSubmission — запись истории сдач этапа.
// История только дополняется, существующие записи никогда не изменяются.
type MilestoneSubmission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MilestoneID  uuid.UUID  `db:"milestone_id" json:"milestone_id"`
	Revision     int        `db:"revision" json:"revision"`
	Note         *string    `db:"note" json:"note,omitempty"`
	AttachmentID *uuid.UUID `db:"attachment_id" json:"attachment_id,omitempty"`
	RejectReason string     `db:"reject_reason" json:"reject_reason"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ArchiveSubmission готовит запись истории из текущей сдачи этапа.
// Запись несёт ревизию и содержимое сдачи на момент возврата: после
// этого поля сдачи очищаются, а история не меняется.
func (m *Milestone) ArchiveSubmission(reason string) MilestoneSubmission {
	return MilestoneSubmission{
		MilestoneID:  m.ID,
		Revision:     m.Revision,
		Note:         m.SubmissionNote,
		AttachmentID: m.AttachmentID,
		RejectReason: reason,
		SubmittedAt:  m.SubmittedAt,
	}
}

// MilestoneDraft — предлагаемый этап при пересогласовании набора.
type MilestoneDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	DueDate     time.Time `json:"due_date"`
}
