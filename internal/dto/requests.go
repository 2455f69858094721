package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreateProjectRequest — запрос на создание проекта.
type CreateProjectRequest struct {
	FreelancerID  uuid.UUID `json:"freelancer_id" binding:"required"`
	Title         string    `json:"title" binding:"required"`
	ApprovedTotal float64   `json:"approved_total" binding:"required"`
	Currency      string    `json:"currency" binding:"required"`
}

// MilestoneDraftRequest — один этап в предлагаемом плане.
type MilestoneDraftRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	Amount      float64   `json:"amount" binding:"required"`
	DueDate     time.Time `json:"due_date" binding:"required"`
}

// ReplaceMilestonesRequest — полная замена плана этапов.
type ReplaceMilestonesRequest struct {
	Milestones []MilestoneDraftRequest `json:"milestones" binding:"required"`
}

// SubmitMilestoneRequest — сдача работы по этапу.
type SubmitMilestoneRequest struct {
	Note         string     `json:"note"`
	AttachmentID *uuid.UUID `json:"attachment_id"`
}

// RequestChangesRequest — возврат этапа на доработку.
type RequestChangesRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FundMilestoneRequest — резервирование средств по этапу.
type FundMilestoneRequest struct {
	Method string `json:"method" binding:"required"`
}

// CreateDisputeRequest — открытие спора.
type CreateDisputeRequest struct {
	MilestoneID         *uuid.UUID  `json:"milestone_id"`
	Reason              string      `json:"reason" binding:"required"`
	Description         string      `json:"description" binding:"required"`
	ContestedAmount     *float64    `json:"contested_amount"`
	SuggestedResolution *string     `json:"suggested_resolution"`
	AttachmentIDs       []uuid.UUID `json:"attachment_ids"`
}

// DisputeUpdateRequest — дополнение к спору.
type DisputeUpdateRequest struct {
	Notes         string      `json:"notes"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids"`
}

// ResolveDisputeRequest — решение арбитра.
type ResolveDisputeRequest struct {
	Action               string     `json:"action" binding:"required"`
	Note                 string     `json:"note" binding:"required"`
	RefundAmount         *float64   `json:"refund_amount"`
	ReleaseAmount        *float64   `json:"release_amount"`
	TransferAttachmentID *uuid.UUID `json:"transfer_attachment_id"`
}
