package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

var examplePolicies = []models.CancellationPolicy{
	{DaysThreshold: 7, Type: models.CancellationPolicyFixed, Amount: 50},
	{DaysThreshold: 3, Type: models.CancellationPolicyPercentage, Amount: 100},
}

func TestEvaluateCancellationExamples(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		start       time.Time
		wantDays    int
		wantPolicy  *int
		wantPenalty float64
		wantRefund  float64
	}{
		{"five days out hits the 7 day fixed fee", now.Add(5 * day), 5, intPtr(7), 50, 450},
		{"two days out hits the 3 day full charge", now.Add(2 * day), 2, intPtr(3), 500, 0},
		{"ten days out is free", now.Add(10 * day), 10, nil, 0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCancellation(examplePolicies, 500, tt.start, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, got.DaysUntilStart)
			assert.Equal(t, tt.wantPenalty, got.PenaltyAmount)
			assert.Equal(t, tt.wantRefund, got.RefundAmount)
			if tt.wantPolicy == nil {
				assert.Nil(t, got.AppliedPolicy)
			} else {
				require.NotNil(t, got.AppliedPolicy)
				assert.Equal(t, *tt.wantPolicy, got.AppliedPolicy.DaysThreshold)
			}
		})
	}
}

func TestDaysUntilStart(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntilStart(now.Add(-48*time.Hour), now))
	assert.Equal(t, 0, DaysUntilStart(now, now))
	assert.Equal(t, 1, DaysUntilStart(now.Add(time.Minute), now))
	assert.Equal(t, 1, DaysUntilStart(now.Add(day), now))
	assert.Equal(t, 2, DaysUntilStart(now.Add(day+time.Second), now))
}

func TestEvaluateCancellationPastStartUsesSmallestThreshold(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	policies := []models.CancellationPolicy{
		{DaysThreshold: 0, Type: models.CancellationPolicyPercentage, Amount: 80},
		{DaysThreshold: 5, Type: models.CancellationPolicyFixed, Amount: 20},
	}

	got, err := EvaluateCancellation(policies, 99.99, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DaysUntilStart)
	assert.Equal(t, 79.99, got.PenaltyAmount)
	assert.Equal(t, 20.0, got.RefundAmount)
}

func TestEvaluateCancellationFixedIsCappedAtTotal(t *testing.T) {
	now := time.Now()
	policies := []models.CancellationPolicy{{DaysThreshold: 30, Type: models.CancellationPolicyFixed, Amount: 1000}}

	got, err := EvaluateCancellation(policies, 120, now.Add(3*day), now)
	require.NoError(t, err)
	assert.Equal(t, 120.0, got.PenaltyAmount)
	assert.Equal(t, 0.0, got.RefundAmount)
}

func TestEvaluateCancellationTiesKeepInputOrder(t *testing.T) {
	now := time.Now()
	policies := []models.CancellationPolicy{
		{DaysThreshold: 4, Type: models.CancellationPolicyFixed, Amount: 10},
		{DaysThreshold: 4, Type: models.CancellationPolicyFixed, Amount: 99},
	}

	got, err := EvaluateCancellation(policies, 200, now.Add(day), now)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.PenaltyAmount)
}

func TestEvaluateCancellationDoesNotReorderInput(t *testing.T) {
	policies := append([]models.CancellationPolicy(nil), examplePolicies...)
	now := time.Now()

	_, err := EvaluateCancellation(policies, 500, now.Add(day), now)
	require.NoError(t, err)
	assert.Equal(t, examplePolicies, policies)
}

func TestEvaluateCancellationIsDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start := now.Add(4*day + 3*time.Hour)

	first, err := EvaluateCancellation(examplePolicies, 333.33, start, now)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := EvaluateCancellation(examplePolicies, 333.33, start, now)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluateCancellationRejectsInvalidPolicies(t *testing.T) {
	now := time.Now()
	invalid := [][]models.CancellationPolicy{
		{{DaysThreshold: 2, Type: models.CancellationPolicyPercentage, Amount: 150}},
		{{DaysThreshold: 2, Type: models.CancellationPolicyFixed, Amount: -1}},
		{{DaysThreshold: -1, Type: models.CancellationPolicyFixed, Amount: 1}},
		{{DaysThreshold: 2, Type: "flat", Amount: 1}},
	}

	for _, policies := range invalid {
		_, err := EvaluateCancellation(policies, 100, now.Add(day), now)
		assert.True(t, apperror.IsValidation(err), "expected validation error for %+v, got %v", policies, err)
	}
}

func intPtr(v int) *int { return &v }
