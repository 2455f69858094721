package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

func validDraft() models.MilestoneDraft {
	return models.MilestoneDraft{
		Title:       "Дизайн главной страницы",
		Description: "Макеты в Figma, две итерации правок",
		Amount:      1500.50,
		DueDate:     time.Now().Add(14 * 24 * time.Hour),
	}
}

func TestValidateMilestoneSet_Valid(t *testing.T) {
	drafts := []models.MilestoneDraft{validDraft(), validDraft(), validDraft()}
	assert.NoError(t, ValidateMilestoneSet(drafts, time.Now()))
}

func TestValidateMilestoneSet_Empty(t *testing.T) {
	assert.Error(t, ValidateMilestoneSet(nil, time.Now()))
	assert.Error(t, ValidateMilestoneSet([]models.MilestoneDraft{}, time.Now()))
}

func TestValidateMilestoneSet_TooMany(t *testing.T) {
	drafts := make([]models.MilestoneDraft, MaxMilestonesPerProject+1)
	for i := range drafts {
		drafts[i] = validDraft()
	}
	assert.Error(t, ValidateMilestoneSet(drafts, time.Now()))
}

func TestValidateMilestoneDraft_BadAmount(t *testing.T) {
	now := time.Now()

	d := validDraft()
	d.Amount = 0
	assert.Error(t, ValidateMilestoneDraft(0, d, now))

	d = validDraft()
	d.Amount = 100.999
	assert.Error(t, ValidateMilestoneDraft(0, d, now))

	d = validDraft()
	d.Amount = MaxAmount + 1
	assert.Error(t, ValidateMilestoneDraft(0, d, now))
}

func TestValidateMilestoneDraft_PastDueDate(t *testing.T) {
	d := validDraft()
	d.DueDate = time.Now().Add(-48 * time.Hour)
	err := ValidateMilestoneDraft(0, d, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "прошлом")
}

func TestValidateMilestoneDraft_ErrorNamesPosition(t *testing.T) {
	d := validDraft()
	d.Title = "ab"
	err := ValidateMilestoneDraft(2, d, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "этап 3")
}

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("USD"))
	assert.NoError(t, ValidateCurrency("RUB"))
	assert.Error(t, ValidateCurrency("usd"))
	assert.Error(t, ValidateCurrency("RUBL"))
	assert.Error(t, ValidateCurrency(""))
}

func TestValidateDisputeReason(t *testing.T) {
	assert.NoError(t, ValidateDisputeReason(models.DisputeReasonQuality))
	assert.NoError(t, ValidateDisputeReason(models.DisputeReasonNoDelivery))
	assert.Error(t, ValidateDisputeReason(""))
	assert.Error(t, ValidateDisputeReason("vibes"))
}

func TestValidateRejectReason(t *testing.T) {
	assert.NoError(t, ValidateRejectReason("не соответствует макету"))
	assert.Error(t, ValidateRejectReason(""))
	assert.Error(t, ValidateRejectReason("   "))
}
