package booking

import (
	"math"
	"sort"
	"time"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

const day = 24 * time.Hour

// Penalty is the monetary outcome of cancelling a booking at a given time.
type Penalty struct {
	AppliedPolicy  *models.CancellationPolicy `json:"applied_policy"`
	DaysUntilStart int                        `json:"days_until_start"`
	PenaltyAmount  float64                    `json:"penalty_amount"`
	RefundAmount   float64                    `json:"refund_amount"`
}

// DaysUntilStart rounds the remaining time up to whole days, never below 0.
func DaysUntilStart(start, now time.Time) int {
	d := start.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(day)))
}

// EvaluateCancellation selects the nearest threshold the cancellation has
// crossed into: policies are ordered by DaysThreshold ascending and the first
// one with DaysThreshold >= days until start applies. Cancelling before every
// threshold is free. The result depends only on its arguments.
func EvaluateCancellation(policies []models.CancellationPolicy, total float64, start, now time.Time) (Penalty, error) {
	if total < 0 {
		return Penalty{}, apperror.Validation("total_amount", "must not be negative")
	}
	for i, p := range policies {
		if err := p.Validate(); err != nil {
			return Penalty{}, apperror.Validation("cancellation_policies", "policy %d: %v", i, err)
		}
	}

	sorted := make([]models.CancellationPolicy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DaysThreshold < sorted[j].DaysThreshold
	})

	days := DaysUntilStart(start, now)
	out := Penalty{DaysUntilStart: days, RefundAmount: round2(total)}
	for i := range sorted {
		if sorted[i].DaysThreshold < days {
			continue
		}
		applied := sorted[i]
		out.AppliedPolicy = &applied
		out.PenaltyAmount = round2(penaltyFor(applied, total))
		out.RefundAmount = round2(total - out.PenaltyAmount)
		break
	}
	return out, nil
}

func penaltyFor(p models.CancellationPolicy, total float64) float64 {
	switch p.Type {
	case models.CancellationPolicyFixed:
		return math.Min(p.Amount, total)
	case models.CancellationPolicyPercentage:
		return total * p.Amount / 100
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
