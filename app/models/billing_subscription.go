package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusPaused    = "paused"
)

// StatusHistoryEntry records one externally reported status.
type StatusHistoryEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	ExternalStatus string    `json:"external_status"`
}

// Subscription is a recurring-billing entitlement mirrored from the payment
// processor. It is created and mutated only by the webhook reconciler and
// never deleted.
type Subscription struct {
	ID                     uint                 `gorm:"primaryKey" json:"id"`
	UserID                 uint                 `gorm:"not null;index" json:"user_id"`
	PlanID                 uint                 `gorm:"not null;index" json:"plan_id"`
	ExternalPaymentID      string               `gorm:"type:varchar(64);not null;default:'';index" json:"external_payment_id"`
	ExternalSubscriptionID *string              `gorm:"type:varchar(191);uniqueIndex:ux_subscriptions_external_subscription_id" json:"external_subscription_id,omitempty"`
	Status                 string               `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	Amount                 float64              `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency               string               `gorm:"type:varchar(3);not null" json:"currency"`
	StartDate              time.Time            `gorm:"not null" json:"start_date"`
	EndDate                *time.Time           `gorm:"default:null" json:"end_date,omitempty"`
	StatusHistory          []StatusHistoryEntry `gorm:"type:text;serializer:json" json:"status_history"`
	// ActiveUserID equals UserID while Status is active and NULL otherwise.
	// Its unique index enforces one active subscription per user.
	ActiveUserID *uint     `gorm:"uniqueIndex:ux_subscriptions_active_user" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AppendStatus adds a history entry; entries are never rewritten.
func (s *Subscription) AppendStatus(at time.Time, externalStatus string) {
	s.StatusHistory = append(s.StatusHistory, StatusHistoryEntry{
		Timestamp:      at.UTC(),
		ExternalStatus: externalStatus,
	})
}

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// BeforeSave keeps ActiveUserID in sync with Status.
func (s *Subscription) BeforeSave(tx *gorm.DB) error {
	if s.Status == SubscriptionStatusActive {
		uid := s.UserID
		s.ActiveUserID = &uid
	} else {
		s.ActiveUserID = nil
	}
	return nil
}
