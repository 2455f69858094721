package models

import (
	"time"

	"github.com/google/uuid"
)

// Project описывает проект с поэтапной оплатой между клиентом и фрилансером.
// Проект никогда не удаляется физически, только переводится в терминальный статус.
type Project struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ClientID      uuid.UUID `db:"client_id" json:"client_id"`
	FreelancerID  uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	Title         string    `db:"title" json:"title"`
	ApprovedTotal float64   `db:"approved_total" json:"approved_total"`
	Currency      string    `db:"currency" json:"currency"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsParticipant проверяет, является ли пользователь стороной проекта.
func (p *Project) IsParticipant(userID uuid.UUID) bool {
	return p.ClientID == userID || p.FreelancerID == userID
}

// RoleOf возвращает роль пользователя в проекте.
func (p *Project) RoleOf(userID uuid.UUID) string {
	switch userID {
	case p.ClientID:
		return RoleClient
	case p.FreelancerID:
		return RoleFreelancer
	default:
		return ""
	}
}

// ApprovalState хранит флаги двустороннего согласования набора этапов.
// Оба флага сбрасываются при любом изменении набора; блокировка выставляется
// атомарно в момент, когда оба флага становятся true.
type ApprovalState struct {
	ProjectID          uuid.UUID  `db:"project_id" json:"project_id"`
	ClientApproved     bool       `db:"client_approved" json:"client_approved"`
	FreelancerApproved bool       `db:"freelancer_approved" json:"freelancer_approved"`
	Locked             bool       `db:"locked" json:"locked"`
	LockedAt           *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ResetApprovals аннулирует согласие обеих сторон. Вызывается при любой
// правке набора этапов, в том числе правке самого согласовавшего.
func (s *ApprovalState) ResetApprovals() {
	s.ClientApproved = false
	s.FreelancerApproved = false
}

// RegisterApproval выставляет флаг согласования стороны и блокирует набор,
// когда согласие дали обе стороны. Возвращает false для роли, не являющейся
// стороной переговоров.
func (s *ApprovalState) RegisterApproval(role string, now time.Time) bool {
	switch role {
	case RoleClient:
		s.ClientApproved = true
	case RoleFreelancer:
		s.FreelancerApproved = true
	default:
		return false
	}
	if s.ClientApproved && s.FreelancerApproved {
		s.Locked = true
		s.LockedAt = &now
	}
	return true
}
