package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type CancellationPolicyType string

const (
	CancellationPolicyFixed      CancellationPolicyType = "fixed"
	CancellationPolicyPercentage CancellationPolicyType = "percentage"
)

// CancellationPolicy maps closeness to the start date onto a penalty. It is
// copied onto the booking at creation and never edited afterwards.
type CancellationPolicy struct {
	DaysThreshold int                    `json:"days_threshold" validate:"gte=0"`
	Type          CancellationPolicyType `json:"type" validate:"required,oneof=fixed percentage"`
	Amount        float64                `json:"amount" validate:"gte=0"`
}

func (p CancellationPolicy) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return err
	}
	if p.Type == CancellationPolicyPercentage && p.Amount > 100 {
		return fmt.Errorf("percentage cancellation policy amount %.2f exceeds 100", p.Amount)
	}
	return nil
}
