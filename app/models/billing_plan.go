package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Plan is a publisher pricing plan. When ExternalPlanID is set the plan is
// mirrored in the payment processor and every change goes there first.
type Plan struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Description     string    `gorm:"type:text" json:"description" validate:"max=2000"`
	Price           float64   `gorm:"type:decimal(12,2);not null" json:"price" validate:"gt=0"`
	Currency        string    `gorm:"type:varchar(3);not null" json:"currency" validate:"required,len=3,uppercase"`
	FrequencyMonths int       `gorm:"not null;default:1" json:"frequency_months" validate:"gte=1,lte=12"`
	MaxListings     int       `gorm:"not null;default:1" json:"max_listings" validate:"gte=1"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	ExternalPlanID  *string   `gorm:"type:varchar(191);uniqueIndex" json:"external_plan_id,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) Validate() error {
	return validator.New().Struct(p)
}

// IsMirrored reports whether the plan has an external counterpart.
func (p *Plan) IsMirrored() bool {
	return p.ExternalPlanID != nil && *p.ExternalPlanID != ""
}
