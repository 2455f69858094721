package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual_ExactMinorUnits(t *testing.T) {
	assert.True(t, Equal(0.1+0.2, 0.3))
	assert.True(t, Equal(1000.00, 1000))
	assert.False(t, Equal(1000.00, 1000.01))
}

func TestSum_NoFloatDrift(t *testing.T) {
	// 0.1 десять раз в float64 не равно 1.0, в минорных единицах — равно.
	amounts := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	assert.True(t, Equal(Sum(amounts), 1.0))

	assert.True(t, Equal(Sum([]float64{1000, 2000, 2000}), 5000))
	assert.False(t, Equal(Sum([]float64{1000, 2000, 2500}), 5000))
}

func TestSumEquals_PlanBudget(t *testing.T) {
	// Набор этапов блокируется только при точном совпадении с бюджетом.
	assert.True(t, SumEquals([]float64{1000, 2000, 2000}, 5000))
	assert.False(t, SumEquals([]float64{1000, 2000, 2000}, 5500))
	assert.False(t, SumEquals([]float64{1000, 2000, 2000, 0.01}, 5000))

	// Копеечные суммы сравниваются без дрейфа float64.
	assert.True(t, SumEquals([]float64{0.1, 0.2}, 0.3))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(0))
	assert.NoError(t, ValidateAmount(99.99))
	assert.NoError(t, ValidateAmount(1500))

	assert.Error(t, ValidateAmount(-1))
	assert.Error(t, ValidateAmount(10.123))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ValidatePositive(0.01))
	assert.Error(t, ValidatePositive(0))
	assert.Error(t, ValidatePositive(-5))
	assert.Error(t, ValidatePositive(3.555))
}
