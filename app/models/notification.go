package models

import (
	"time"
)

// Notification types written for booking and subscription events.
const (
	NotificationBookingRequested      = "booking_requested"
	NotificationBookingAccepted       = "booking_accepted"
	NotificationBookingDeclined       = "booking_declined"
	NotificationBookingPaymentPending = "booking_payment_pending"
	NotificationBookingPaid           = "booking_paid"
	NotificationBookingPaymentFailed  = "booking_payment_failed"
	NotificationBookingCancelled      = "booking_cancelled"
	NotificationBookingCompleted      = "booking_completed"
	NotificationSubscriptionActive    = "subscription_active"
	NotificationSubscriptionCancelled = "subscription_cancelled"
	NotificationSubscriptionPaused    = "subscription_paused"
)

// Notification is an in-app message for a user. ReferenceID points at the
// booking or subscription the notification is about.
type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index" json:"user_id"`
	Type        string    `gorm:"type:varchar(50)" json:"type"`
	Content     string    `gorm:"type:text" json:"content"`
	IsRead      bool      `gorm:"default:false" json:"is_read"`
	ReferenceID uint      `json:"reference_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
