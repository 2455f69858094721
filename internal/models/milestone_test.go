package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMilestone_ArchiveSubmission(t *testing.T) {
	note := "готово, см. вложение"
	attachmentID := uuid.New()
	submittedAt := time.Now().Add(-time.Hour)
	m := &Milestone{
		ID:             uuid.New(),
		Revision:       3,
		SubmissionNote: &note,
		AttachmentID:   &attachmentID,
		SubmittedAt:    &submittedAt,
	}

	record := m.ArchiveSubmission("нет адаптивной вёрстки")

	assert.Equal(t, m.ID, record.MilestoneID)
	assert.Equal(t, 3, record.Revision)
	assert.Equal(t, &note, record.Note)
	assert.Equal(t, &attachmentID, record.AttachmentID)
	assert.Equal(t, "нет адаптивной вёрстки", record.RejectReason)
	assert.Equal(t, &submittedAt, record.SubmittedAt)
}

func TestMilestone_ArchiveSubmission_EmptySubmission(t *testing.T) {
	m := &Milestone{ID: uuid.New(), Revision: 1}

	record := m.ArchiveSubmission("работа не приложена")
	assert.Nil(t, record.Note)
	assert.Nil(t, record.AttachmentID)
	assert.Nil(t, record.SubmittedAt)
	assert.Equal(t, 1, record.Revision)
}
