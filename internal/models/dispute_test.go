package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppendDescription_PreservesOriginal(t *testing.T) {
	authorID := uuid.New()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	result := AppendDescription("исходное описание", authorID, at, "дополнение")

	assert.Contains(t, result, "исходное описание")
	assert.Contains(t, result, "дополнение")
	assert.Contains(t, result, "\n---\n")
	assert.Contains(t, result, authorID.String())
	assert.Contains(t, result, "2025-03-10T12:00:00Z")
}

func TestAppendDescription_Sequential(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	at := time.Now()

	result := AppendDescription("начало", a, at, "первая реплика")
	result = AppendDescription(result, b, at, "вторая реплика")

	assert.Contains(t, result, "первая реплика")
	assert.Contains(t, result, "вторая реплика")
	// Обе реплики идут после исходного текста.
	assert.Equal(t, "начало", result[:len("начало")])
}

func TestDisputeIsTerminal(t *testing.T) {
	for _, status := range []string{DisputeStatusResolved, DisputeStatusCancelled, DisputeStatusClosed} {
		d := Dispute{Status: status}
		assert.True(t, d.IsTerminal(), status)
	}
	for _, status := range []string{DisputeStatusOpen, DisputeStatusUnderReview} {
		d := Dispute{Status: status}
		assert.False(t, d.IsTerminal(), status)
	}
}

func TestProjectRoleOf(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	p := Project{ClientID: client, FreelancerID: freelancer}

	assert.Equal(t, RoleClient, p.RoleOf(client))
	assert.Equal(t, RoleFreelancer, p.RoleOf(freelancer))
	assert.Equal(t, "", p.RoleOf(uuid.New()))
	assert.True(t, p.IsParticipant(client))
	assert.False(t, p.IsParticipant(uuid.New()))
}
