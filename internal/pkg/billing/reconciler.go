package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
)

// Outcome names how a webhook was resolved. Every outcome returned with a
// nil error is acknowledged to the processor.
type Outcome string

const (
	OutcomeActivated            Outcome = "activated"
	OutcomeAlreadyActive        Outcome = "already_active"
	OutcomeIgnoredStatus        Outcome = "ignored_status"
	OutcomeInvalidReference     Outcome = "invalid_reference"
	OutcomePlanNotFound         Outcome = "plan_not_found"
	OutcomeSubscriptionNotFound Outcome = "subscription_not_found"
	OutcomeStatusUpdated        Outcome = "status_updated"
	OutcomeUnmappedStatus       Outcome = "unmapped_status"
	OutcomeBookingPaid          Outcome = "booking_paid"
	OutcomeBookingRejected      Outcome = "booking_rejected"
)

// RoleCoordinator reacts to subscription lifecycle changes.
type RoleCoordinator interface {
	OnActivated(ctx context.Context, userID uint) error
	OnCancelled(ctx context.Context, userID uint) error
}

// PlanCatalog resolves plan ids.
type PlanCatalog interface {
	GetByID(ctx context.Context, id uint) (*models.Plan, error)
}

// BookingPayments applies processor outcomes to bookings.
type BookingPayments interface {
	Apply(ctx context.Context, id uint, action booking.Action, userID uint) (*booking.Outcome, error)
}

var errAlreadyActive = errors.New("user already has an active subscription")

// Reconciler applies processor webhooks to local state. The webhook body is
// only a wake-up signal: the authoritative object is always fetched first.
type Reconciler struct {
	processor  ProcessorClient
	subs       repository.SubscriptionRepository
	plans      PlanCatalog
	roles      RoleCoordinator
	uow        database.UnitOfWork
	dispatcher notify.Dispatcher
	bookings   BookingPayments
	now        func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithBookingPayments enables booking_<id> payment references.
func WithBookingPayments(b BookingPayments) ReconcilerOption {
	return func(r *Reconciler) { r.bookings = b }
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(
	processor ProcessorClient,
	subs repository.SubscriptionRepository,
	plans PlanCatalog,
	roles RoleCoordinator,
	uow database.UnitOfWork,
	dispatcher notify.Dispatcher,
	opts ...ReconcilerOption,
) *Reconciler {
	if uow == nil {
		uow = database.NoopUnitOfWork{}
	}
	if dispatcher == nil {
		dispatcher = notify.Discard{}
	}
	r := &Reconciler{
		processor:  processor,
		subs:       subs,
		plans:      plans,
		roles:      roles,
		uow:        uow,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandlePaymentEvent reconciles one payment. A returned error means the
// delivery must be retried by the processor.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, paymentID string) (Outcome, error) {
	payment, err := r.processor.GetPayment(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	if payment.Status != PaymentStatusApproved {
		log.Infow("[Billing] payment not approved, ignoring", "payment_id", paymentID, "status", payment.Status, "status_detail", payment.StatusDetail)
		return OutcomeIgnoredStatus, nil
	}

	ref, err := ParseCorrelationRef(payment.ExternalReference)
	if err != nil {
		if bref, berr := ParseBookingRef(payment.ExternalReference); berr == nil && r.bookings != nil {
			return r.confirmBookingPayment(ctx, payment, bref)
		}
		log.Warnw("[Billing] payment carries an invalid reference, acknowledging", "payment_id", paymentID, "external_reference", payment.ExternalReference, "error", err)
		return OutcomeInvalidReference, nil
	}

	existing, err := r.subs.GetActiveByUser(ctx, ref.UserID)
	switch {
	case err == nil && existing != nil:
		log.Infow("[Billing] user already has an active subscription", "payment_id", paymentID, "user_id", ref.UserID, "subscription_id", existing.ID)
		return OutcomeAlreadyActive, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("check active subscription for user %d: %w", ref.UserID, err)
	}

	plan, err := r.plans.GetByID(ctx, ref.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorw("[Billing] approved payment references an unknown plan, operator action required",
				"payment_id", paymentID, "plan_id", ref.PlanID, "user_id", ref.UserID, "error", apperror.NotFound("plan", ref.PlanID))
			return OutcomePlanNotFound, nil
		}
		return "", fmt.Errorf("load plan %d: %w", ref.PlanID, err)
	}
	if payment.TransactionAmount != plan.Price {
		log.Warnw("[Billing] payment amount differs from plan price", "payment_id", paymentID, "plan_id", plan.ID, "amount", payment.TransactionAmount, "price", plan.Price)
	}

	now := r.now()
	sub := &models.Subscription{
		UserID:            ref.UserID,
		PlanID:            plan.ID,
		ExternalPaymentID: payment.ID.String(),
		Status:            models.SubscriptionStatusActive,
		Amount:            payment.TransactionAmount,
		Currency:          payment.CurrencyID,
		StartDate:         now,
	}
	if sub.Currency == "" {
		sub.Currency = plan.Currency
	}
	if pid := payment.PreapprovalID(); pid != "" {
		sub.ExternalSubscriptionID = &pid
	}
	sub.AppendStatus(now, payment.Status)

	err = r.uow.Do(ctx, func(ctx context.Context) error {
		if err := r.subs.Create(ctx, sub); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyActive
			}
			return fmt.Errorf("create subscription: %w", err)
		}
		return r.roles.OnActivated(ctx, ref.UserID)
	})
	if errors.Is(err, errAlreadyActive) {
		log.Infow("[Billing] concurrent delivery already activated the subscription", "payment_id", paymentID, "user_id", ref.UserID)
		return OutcomeAlreadyActive, nil
	}
	if err != nil {
		return "", err
	}

	log.Infow("[Billing] subscription activated", "subscription_id", sub.ID, "user_id", sub.UserID, "plan_id", sub.PlanID, "payment_id", paymentID)
	r.notify(ctx, sub, models.NotificationSubscriptionActive, fmt.Sprintf("Your subscription to %s is active.", plan.Name))
	return OutcomeActivated, nil
}

// HandleSubscriptionStatusEvent reconciles one processor subscription. It
// only updates subscriptions created by the payment flow and never creates.
func (r *Reconciler) HandleSubscriptionStatusEvent(ctx context.Context, preapprovalID string) (Outcome, error) {
	pre, err := r.processor.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		return "", fmt.Errorf("fetch preapproval %s: %w", preapprovalID, err)
	}

	ref, err := ParseCorrelationRef(pre.ExternalReference)
	if err != nil {
		log.Warnw("[Billing] preapproval carries an invalid reference, acknowledging", "preapproval_id", preapprovalID, "external_reference", pre.ExternalReference, "error", err)
		return OutcomeInvalidReference, nil
	}
	if pre.PayerEmail != "" {
		log.Infow("[Billing] preapproval event", "preapproval_id", preapprovalID, "status", pre.Status, "payer_email", pre.PayerEmail)
	}

	sub, err := r.findSubscription(ctx, pre.ID.String(), ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnw("[Billing] no local subscription for preapproval, acknowledging", "preapproval_id", preapprovalID, "user_id", ref.UserID, "plan_id", ref.PlanID)
			return OutcomeSubscriptionNotFound, nil
		}
		return "", err
	}

	status, ok := mapPreapprovalStatus(pre.Status)
	if !ok {
		log.Infow("[Billing] unmapped preapproval status, ignoring", "preapproval_id", preapprovalID, "status", pre.Status)
		return OutcomeUnmappedStatus, nil
	}

	if sub.Status == status && sub.ExternalSubscriptionID != nil && lastExternalStatus(sub) == pre.Status {
		log.Infow("[Billing] preapproval status unchanged", "preapproval_id", preapprovalID, "subscription_id", sub.ID, "status", status)
		return OutcomeStatusUpdated, nil
	}

	now := r.now()
	sub.Status = status
	sub.AppendStatus(now, pre.Status)
	if sub.ExternalSubscriptionID == nil {
		id := pre.ID.String()
		sub.ExternalSubscriptionID = &id
	}
	if status == models.SubscriptionStatusCancelled && sub.EndDate == nil {
		sub.EndDate = &now
	}

	err = r.uow.Do(ctx, func(ctx context.Context) error {
		if err := r.subs.Update(ctx, sub); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyActive
			}
			return fmt.Errorf("update subscription %d: %w", sub.ID, err)
		}
		switch status {
		case models.SubscriptionStatusActive:
			return r.roles.OnActivated(ctx, sub.UserID)
		case models.SubscriptionStatusCancelled:
			return r.roles.OnCancelled(ctx, sub.UserID)
		}
		return nil
	})
	if errors.Is(err, errAlreadyActive) {
		log.Errorw("[Billing] another subscription is already active for user, operator action required",
			"preapproval_id", preapprovalID, "subscription_id", sub.ID, "user_id", sub.UserID)
		return OutcomeAlreadyActive, nil
	}
	if err != nil {
		return "", err
	}

	log.Infow("[Billing] subscription status updated", "subscription_id", sub.ID, "user_id", sub.UserID, "status", status, "external_status", pre.Status)
	r.notify(ctx, sub, statusNotification(status), fmt.Sprintf("Your subscription is now %s.", status))
	return OutcomeStatusUpdated, nil
}

// findSubscription looks the subscription up by processor id. A payment
// that did not report its preapproval leaves the record unlinked; the
// user's active subscription on the referenced plan is linked then.
func (r *Reconciler) findSubscription(ctx context.Context, externalID string, ref CorrelationRef) (*models.Subscription, error) {
	sub, err := r.subs.GetByExternalID(ctx, externalID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load subscription by external id %s: %w", externalID, err)
	}

	active, err := r.subs.GetActiveByUser(ctx, ref.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("check active subscription for user %d: %w", ref.UserID, err)
	}
	if active.PlanID != ref.PlanID || active.ExternalSubscriptionID != nil {
		return nil, gorm.ErrRecordNotFound
	}
	log.Infow("[Billing] linking subscription to preapproval", "subscription_id", active.ID, "preapproval_id", externalID)
	return active, nil
}

func (r *Reconciler) confirmBookingPayment(ctx context.Context, payment *Payment, ref BookingRef) (Outcome, error) {
	out, err := r.bookings.Apply(ctx, ref.BookingID, booking.ActionConfirmPayment, 0)
	switch {
	case err == nil:
		log.Infow("[Billing] booking payment confirmed", "booking_id", ref.BookingID, "payment_id", payment.ID.String(), "status", out.Booking.Status)
		return OutcomeBookingPaid, nil
	case apperror.IsConflict(err), apperror.IsNotFound(err):
		log.Errorw("[Billing] approved payment cannot be applied to booking, refund may be required",
			"booking_id", ref.BookingID, "payment_id", payment.ID.String(), "amount", payment.TransactionAmount, "error", err)
		return OutcomeBookingRejected, nil
	default:
		return "", fmt.Errorf("confirm payment for booking %d: %w", ref.BookingID, err)
	}
}

func (r *Reconciler) notify(ctx context.Context, sub *models.Subscription, eventType, content string) {
	if eventType == "" {
		return
	}
	event := notify.NewEvent(eventType, sub.ID)
	event.Content = content
	r.dispatcher.Send(ctx, sub.UserID, event)
}

func lastExternalStatus(sub *models.Subscription) string {
	if len(sub.StatusHistory) == 0 {
		return ""
	}
	return sub.StatusHistory[len(sub.StatusHistory)-1].ExternalStatus
}

func mapPreapprovalStatus(external string) (string, bool) {
	switch external {
	case PreapprovalStatusAuthorized:
		return models.SubscriptionStatusActive, true
	case PreapprovalStatusCancelled:
		return models.SubscriptionStatusCancelled, true
	case PreapprovalStatusPaused:
		return models.SubscriptionStatusPaused, true
	default:
		return "", false
	}
}

func statusNotification(status string) string {
	switch status {
	case models.SubscriptionStatusActive:
		return models.NotificationSubscriptionActive
	case models.SubscriptionStatusCancelled:
		return models.NotificationSubscriptionCancelled
	case models.SubscriptionStatusPaused:
		return models.NotificationSubscriptionPaused
	}
	return ""
}
