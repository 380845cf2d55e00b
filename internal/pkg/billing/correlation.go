package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

const (
	subscriptionRefPrefix = "subscription"
	bookingRefPrefix      = "booking"
)

// CorrelationRef ties a processor subscription or payment to the local plan
// and user it was created for. Its wire form is subscription_<planId>_<userId>.
type CorrelationRef struct {
	PlanID uint
	UserID uint
}

// NewCorrelationRef validates both ids.
func NewCorrelationRef(planID, userID uint) (CorrelationRef, error) {
	if planID == 0 {
		return CorrelationRef{}, apperror.Validation("plan_id", "must be positive")
	}
	if userID == 0 {
		return CorrelationRef{}, apperror.Validation("user_id", "must be positive")
	}
	return CorrelationRef{PlanID: planID, UserID: userID}, nil
}

func (r CorrelationRef) String() string {
	return fmt.Sprintf("%s_%d_%d", subscriptionRefPrefix, r.PlanID, r.UserID)
}

// ParseCorrelationRef decodes exactly three _-delimited segments with the
// literal subscription prefix and two positive integer ids.
func ParseCorrelationRef(s string) (CorrelationRef, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return CorrelationRef{}, apperror.Validation("external_reference", "expected 3 segments, got %d", len(parts))
	}
	if parts[0] != subscriptionRefPrefix {
		return CorrelationRef{}, apperror.Validation("external_reference", "unknown prefix %q", parts[0])
	}
	planID, err := parseID(parts[1])
	if err != nil {
		return CorrelationRef{}, apperror.Validation("external_reference", "plan id: %v", err)
	}
	userID, err := parseID(parts[2])
	if err != nil {
		return CorrelationRef{}, apperror.Validation("external_reference", "user id: %v", err)
	}
	return CorrelationRef{PlanID: planID, UserID: userID}, nil
}

// BookingRef marks a one-off payment for a booking: booking_<bookingId>.
type BookingRef struct {
	BookingID uint
}

func (r BookingRef) String() string {
	return fmt.Sprintf("%s_%d", bookingRefPrefix, r.BookingID)
}

// ParseBookingRef decodes a booking payment reference.
func ParseBookingRef(s string) (BookingRef, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] != bookingRefPrefix {
		return BookingRef{}, apperror.Validation("external_reference", "not a booking reference")
	}
	id, err := parseID(parts[1])
	if err != nil {
		return BookingRef{}, apperror.Validation("external_reference", "booking id: %v", err)
	}
	return BookingRef{BookingID: id}, nil
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || strconv.FormatUint(v, 10) != s {
		return 0, fmt.Errorf("%q is not a positive integer", s)
	}
	if v == 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return uint(v), nil
}
