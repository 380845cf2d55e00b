package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// BookingStatus is the wire value of a booking's lifecycle state.
type BookingStatus string

const (
	BookingStatusRequested      BookingStatus = "requested"
	BookingStatusAccepted       BookingStatus = "accepted"
	BookingStatusDeclined       BookingStatus = "declined"
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusPaid           BookingStatus = "paid"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusCompleted      BookingStatus = "completed"
)

// IsTerminal reports whether no further transition can leave the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusDeclined, BookingStatusCancelled, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

const (
	CancelledByClient = "client"
	CancelledByOwner  = "owner"
)

// ClientData is the contact snapshot taken when the booking is requested.
type ClientData struct {
	Name  string `json:"name" validate:"required,max=150"`
	Email string `json:"email" validate:"required,email,max=200"`
	Phone string `json:"phone,omitempty" validate:"max=40"`
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

// Booking is a reservation of a listing (post) by a client from its owner.
// Status only changes through booking.StateMachine transitions.
type Booking struct {
	ID                   uint                 `gorm:"primaryKey" json:"id"`
	PostID               uint                 `gorm:"not null;index" json:"post_id" validate:"required"`
	ClientID             uint                 `gorm:"not null;index" json:"client_id" validate:"required"`
	OwnerID              uint                 `gorm:"not null;index" json:"owner_id" validate:"required,nefield=ClientID"`
	Status               BookingStatus        `gorm:"type:varchar(32);not null;default:'requested';index" json:"status"`
	StartDate            time.Time            `gorm:"not null;index" json:"start_date" validate:"required"`
	EndDate              time.Time            `gorm:"not null" json:"end_date" validate:"required,gtfield=StartDate"`
	TotalAmount          float64              `gorm:"type:decimal(12,2);not null" json:"total_amount" validate:"gt=0"`
	Currency             string               `gorm:"type:varchar(3);not null" json:"currency" validate:"required,len=3,uppercase"`
	GuestCount           int                  `gorm:"not null;default:1" json:"guest_count" validate:"gte=1"`
	ClientData           ClientData           `gorm:"type:text;serializer:json" json:"client_data" validate:"required"`
	CancellationPolicies []CancellationPolicy `gorm:"type:text;serializer:json" json:"cancellation_policies" validate:"dive"`
	AcceptedAt           *time.Time           `gorm:"default:null" json:"accepted_at,omitempty"`
	DeclinedAt           *time.Time           `gorm:"default:null" json:"declined_at,omitempty"`
	PaymentRequestedAt   *time.Time           `gorm:"default:null" json:"payment_requested_at,omitempty"`
	PaidAt               *time.Time           `gorm:"default:null" json:"paid_at,omitempty"`
	CancelledAt          *time.Time           `gorm:"default:null" json:"cancelled_at,omitempty"`
	CompletedAt          *time.Time           `gorm:"default:null" json:"completed_at,omitempty"`
	CancelledBy          string               `gorm:"type:varchar(16);default:''" json:"cancelled_by,omitempty"`
	PenaltyAmount        *float64             `gorm:"type:decimal(12,2);default:null" json:"penalty_amount,omitempty"`
	RefundAmount         *float64             `gorm:"type:decimal(12,2);default:null" json:"refund_amount,omitempty"`
	CreatedAt            time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Booking) Validate() error {
	v := validator.New()
	if err := v.Struct(b); err != nil {
		return err
	}
	for _, p := range b.CancellationPolicies {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if !b.StartDate.Before(b.EndDate) {
		return errors.New("start_date must be before end_date")
	}
	return nil
}

// TimestampFor returns a pointer to the transition timestamp field owned by
// status, or nil for statuses without one (requested).
func (b *Booking) TimestampFor(status BookingStatus) **time.Time {
	switch status {
	case BookingStatusAccepted:
		return &b.AcceptedAt
	case BookingStatusDeclined:
		return &b.DeclinedAt
	case BookingStatusPendingPayment:
		return &b.PaymentRequestedAt
	case BookingStatusPaid:
		return &b.PaidAt
	case BookingStatusCancelled:
		return &b.CancelledAt
	case BookingStatusCompleted:
		return &b.CompletedAt
	default:
		return nil
	}
}
