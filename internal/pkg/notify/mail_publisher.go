package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/ManuelReschke/TourMarket/app/models"
)

// Mailer sends one mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// UserLookup resolves the recipient of an event.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// MailPublisher emails the event content to the user.
type MailPublisher struct {
	users  UserLookup
	mailer Mailer
}

func NewMailPublisher(users UserLookup, mailer Mailer) *MailPublisher {
	return &MailPublisher{users: users, mailer: mailer}
}

func (p *MailPublisher) Publish(ctx context.Context, event Event) error {
	u, err := p.users.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", event.UserID, err)
	}
	if !u.IsActive() || u.Email == "" {
		return nil
	}
	body := "<p>" + html.EscapeString(event.Content) + "</p>"
	return p.mailer.Send(ctx, u.Email, subjectFor(event.Type), body)
}

func (p *MailPublisher) Close() error { return nil }

func subjectFor(eventType string) string {
	switch eventType {
	case models.NotificationBookingRequested:
		return "New booking request"
	case models.NotificationBookingAccepted:
		return "Your booking was accepted"
	case models.NotificationBookingDeclined:
		return "Your booking was declined"
	case models.NotificationBookingPaymentPending:
		return "Payment requested for your booking"
	case models.NotificationBookingPaid:
		return "Booking paid"
	case models.NotificationBookingPaymentFailed:
		return "Booking payment failed"
	case models.NotificationBookingCancelled:
		return "Booking cancelled"
	case models.NotificationBookingCompleted:
		return "Booking completed"
	case models.NotificationSubscriptionActive:
		return "Your subscription is active"
	case models.NotificationSubscriptionCancelled:
		return "Your subscription was cancelled"
	case models.NotificationSubscriptionPaused:
		return "Your subscription is paused"
	default:
		return "TourMarket notification"
	}
}

// MultiPublisher publishes to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
