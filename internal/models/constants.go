package models

// Роли участников.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleArbiter    = "arbiter"
)

// ProjectStatus константы статусов проектов.
const (
	ProjectStatusNegotiating = "negotiating"
	ProjectStatusInProgress  = "in_progress"
	ProjectStatusCompleted   = "completed"
	ProjectStatusDisputed    = "disputed"
	ProjectStatusCancelled   = "cancelled"
)

// MilestoneStatus константы статусов этапов.
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusSubmitted  = "submitted"
	MilestoneStatusApproved   = "approved"
	MilestoneStatusPaid       = "paid"
	MilestoneStatusDisputed   = "disputed"
	MilestoneStatusResolved   = "resolved"
)

// ValidProjectStatuses список валидных статусов проектов.
var ValidProjectStatuses = map[string]struct{}{
	ProjectStatusNegotiating: {},
	ProjectStatusInProgress:  {},
	ProjectStatusCompleted:   {},
	ProjectStatusDisputed:    {},
	ProjectStatusCancelled:   {},
}

// milestoneTransitions — допустимые переходы состояния этапа в нормальном
// потоке. Заморозка спором и решения арбитра идут отдельными путями.
var milestoneTransitions = map[string]map[string]struct{}{
	MilestoneStatusPending:    {MilestoneStatusInProgress: {}},
	MilestoneStatusInProgress: {MilestoneStatusSubmitted: {}},
	MilestoneStatusSubmitted:  {MilestoneStatusApproved: {}, MilestoneStatusInProgress: {}},
	MilestoneStatusApproved:   {MilestoneStatusPaid: {}},
}

// CanTransition проверяет допустимость перехода этапа.
func CanTransition(from, to string) bool {
	next, ok := milestoneTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsMilestoneTerminal сообщает, достиг ли этап терминального статуса.
func IsMilestoneTerminal(status string) bool {
	return status == MilestoneStatusPaid || status == MilestoneStatusResolved
}

// IsMilestoneFrozen сообщает, заморожен ли этап спором.
// Проверка обязана выполняться внутри той же транзакции, что и сам переход.
func IsMilestoneFrozen(status string) bool {
	return status == MilestoneStatusDisputed
}

// IsProjectFrozen сообщает, заморожен ли проект спором без привязки к этапу.
// Замороженный проект отклоняет любые переходы этапов и движения средств.
func IsProjectFrozen(status string) bool {
	return status == ProjectStatusDisputed
}

// PredecessorAllowsStart проверяет правило строгой последовательности:
// этап может начаться только после приёмки или оплаты предыдущего.
func PredecessorAllowsStart(predecessorStatus string) bool {
	return predecessorStatus == MilestoneStatusApproved || predecessorStatus == MilestoneStatusPaid
}
