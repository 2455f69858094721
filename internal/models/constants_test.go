package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_NormalFlow(t *testing.T) {
	assert.True(t, CanTransition(MilestoneStatusPending, MilestoneStatusInProgress))
	assert.True(t, CanTransition(MilestoneStatusInProgress, MilestoneStatusSubmitted))
	assert.True(t, CanTransition(MilestoneStatusSubmitted, MilestoneStatusApproved))
	assert.True(t, CanTransition(MilestoneStatusApproved, MilestoneStatusPaid))
}

func TestCanTransition_RevisionLoop(t *testing.T) {
	// Возврат на доработку: submitted → in_progress.
	assert.True(t, CanTransition(MilestoneStatusSubmitted, MilestoneStatusInProgress))
}

func TestCanTransition_Forbidden(t *testing.T) {
	assert.False(t, CanTransition(MilestoneStatusPending, MilestoneStatusSubmitted))
	assert.False(t, CanTransition(MilestoneStatusPending, MilestoneStatusPaid))
	assert.False(t, CanTransition(MilestoneStatusApproved, MilestoneStatusInProgress))
	assert.False(t, CanTransition(MilestoneStatusPaid, MilestoneStatusInProgress))
	assert.False(t, CanTransition(MilestoneStatusResolved, MilestoneStatusInProgress))
	assert.False(t, CanTransition(MilestoneStatusDisputed, MilestoneStatusSubmitted))
}

func TestIsMilestoneTerminal(t *testing.T) {
	assert.True(t, IsMilestoneTerminal(MilestoneStatusPaid))
	assert.True(t, IsMilestoneTerminal(MilestoneStatusResolved))
	assert.False(t, IsMilestoneTerminal(MilestoneStatusApproved))
	assert.False(t, IsMilestoneTerminal(MilestoneStatusDisputed))
}

func TestIsMilestoneFrozen(t *testing.T) {
	assert.True(t, IsMilestoneFrozen(MilestoneStatusDisputed))
	assert.False(t, IsMilestoneFrozen(MilestoneStatusSubmitted))
}

func TestIsProjectFrozen(t *testing.T) {
	assert.True(t, IsProjectFrozen(ProjectStatusDisputed))
	assert.False(t, IsProjectFrozen(ProjectStatusInProgress))
	assert.False(t, IsProjectFrozen(ProjectStatusNegotiating))
	assert.False(t, IsProjectFrozen(ProjectStatusCompleted))
}

func TestPredecessorAllowsStart(t *testing.T) {
	assert.True(t, PredecessorAllowsStart(MilestoneStatusApproved))
	assert.True(t, PredecessorAllowsStart(MilestoneStatusPaid))
	assert.False(t, PredecessorAllowsStart(MilestoneStatusPending))
	assert.False(t, PredecessorAllowsStart(MilestoneStatusInProgress))
	assert.False(t, PredecessorAllowsStart(MilestoneStatusSubmitted))
	assert.False(t, PredecessorAllowsStart(MilestoneStatusDisputed))
}
