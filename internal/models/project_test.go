package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApprovalState_RegisterApproval_OneSideDoesNotLock(t *testing.T) {
	state := &ApprovalState{}

	ok := state.RegisterApproval(RoleClient, time.Now())
	assert.True(t, ok)
	assert.True(t, state.ClientApproved)
	assert.False(t, state.FreelancerApproved)
	assert.False(t, state.Locked)
	assert.Nil(t, state.LockedAt)
}

func TestApprovalState_RegisterApproval_BothSidesLock(t *testing.T) {
	state := &ApprovalState{}
	now := time.Now()

	assert.True(t, state.RegisterApproval(RoleClient, now))
	assert.True(t, state.RegisterApproval(RoleFreelancer, now))
	assert.True(t, state.Locked)
	if assert.NotNil(t, state.LockedAt) {
		assert.Equal(t, now, *state.LockedAt)
	}
}

func TestApprovalState_RegisterApproval_ArbiterNotAParty(t *testing.T) {
	state := &ApprovalState{}

	ok := state.RegisterApproval(RoleArbiter, time.Now())
	assert.False(t, ok)
	assert.False(t, state.ClientApproved)
	assert.False(t, state.FreelancerApproved)
}

func TestApprovalState_ResetApprovals(t *testing.T) {
	// Правка набора аннулирует в том числе собственное согласие редактора.
	state := &ApprovalState{ClientApproved: true, FreelancerApproved: true}

	state.ResetApprovals()
	assert.False(t, state.ClientApproved)
	assert.False(t, state.FreelancerApproved)
}
