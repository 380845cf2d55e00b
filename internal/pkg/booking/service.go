package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/archive"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
)

// Service runs booking lifecycle changes against storage. Every status
// change is a compare-and-set written together with its notifications.
type Service struct {
	bookings      repository.BookingRepository
	notifications repository.NotificationRepository
	uow           database.UnitOfWork
	dispatcher    notify.Dispatcher
	archiver      archive.Archiver
	now           func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithArchiver stores every cancellation evaluation.
func WithArchiver(a archive.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func NewService(
	bookings repository.BookingRepository,
	notifications repository.NotificationRepository,
	uow database.UnitOfWork,
	dispatcher notify.Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		bookings:      bookings,
		notifications: notifications,
		uow:           uow,
		dispatcher:    dispatcher,
		archiver:      archive.Noop{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = notify.Discard{}
	}
	return s
}

// Outcome is the result of a booking action.
type Outcome struct {
	Booking *models.Booking
	Result  Result
	Penalty *Penalty
}

// Create stores a new booking in requested status and notifies the owner in
// the same transaction.
func (s *Service) Create(ctx context.Context, b *models.Booking) error {
	b.ID = 0
	b.Status = models.BookingStatusRequested
	b.AcceptedAt, b.DeclinedAt, b.PaymentRequestedAt = nil, nil, nil
	b.PaidAt, b.CancelledAt, b.CompletedAt = nil, nil, nil
	b.CancelledBy, b.PenaltyAmount, b.RefundAmount = "", nil, nil
	b.StartDate, b.EndDate = b.StartDate.UTC(), b.EndDate.UTC()
	if err := b.Validate(); err != nil {
		return validationFrom(err)
	}

	notice := Notice{UserID: b.OwnerID, Type: models.NotificationBookingRequested}
	var stored []storedNotice
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.bookings.Create(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		notice.BookingID = b.ID
		var err error
		stored, err = s.writeNotices(ctx, []Notice{notice})
		return err
	})
	if err != nil {
		return err
	}

	log.Infow("[Booking] created", "booking_id", b.ID, "client_id", b.ClientID, "owner_id", b.OwnerID)
	s.dispatch(ctx, stored)
	return nil
}

// Get loads a booking visible to userID.
func (s *Service) Get(ctx context.Context, id, userID uint) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := ActorFor(b, userID); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns userID's bookings as client, or as owner when asOwner is set.
func (s *Service) List(ctx context.Context, userID uint, asOwner bool, offset, limit int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if asOwner {
		return s.bookings.ListByOwner(ctx, userID, offset, limit)
	}
	return s.bookings.ListByClient(ctx, userID, offset, limit)
}

// ActorFor resolves the role userID plays on b.
func ActorFor(b *models.Booking, userID uint) (Actor, error) {
	switch userID {
	case b.ClientID:
		return ActorClient, nil
	case b.OwnerID:
		return ActorOwner, nil
	default:
		return "", apperror.ErrForbidden
	}
}

// Apply runs a non-cancel action by userID, or by the system when userID is 0.
func (s *Service) Apply(ctx context.Context, id uint, action Action, userID uint) (*Outcome, error) {
	if action == ActionCancel {
		return nil, apperror.Validation("action", "use Cancel to cancel a booking")
	}
	return s.apply(ctx, id, action, func(b *models.Booking) (Actor, error) {
		if userID == 0 {
			return ActorSystem, nil
		}
		return ActorFor(b, userID)
	}, nil)
}

// Cancel evaluates the penalty at the current time and cancels the booking.
// cancelledBy must match the role userID plays on the booking.
func (s *Service) Cancel(ctx context.Context, id uint, cancelledBy Actor, userID uint) (*Outcome, error) {
	if cancelledBy != ActorClient && cancelledBy != ActorOwner {
		return nil, apperror.Validation("cancelledBy", "must be client or owner")
	}
	var penalty Penalty
	out, err := s.apply(ctx, id, ActionCancel, func(b *models.Booking) (Actor, error) {
		actor, err := ActorFor(b, userID)
		if err != nil {
			return "", err
		}
		if actor != cancelledBy {
			return "", apperror.ErrForbidden
		}
		return actor, nil
	}, func(b *models.Booking, now time.Time) error {
		p, err := EvaluateCancellation(b.CancellationPolicies, b.TotalAmount, b.StartDate, now)
		if err != nil {
			return err
		}
		penalty = p
		b.CancelledBy = string(cancelledBy)
		b.PenaltyAmount = &p.PenaltyAmount
		b.RefundAmount = &p.RefundAmount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Result.Applied {
		out.Penalty = &penalty
		s.archiveCancellation(ctx, out.Booking, penalty)
	} else {
		out.Penalty = recordedPenalty(out.Booking)
	}
	return out, nil
}

// Quote evaluates the cancellation penalty without changing the booking.
func (s *Service) Quote(ctx context.Context, id, userID uint) (*Penalty, error) {
	b, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BookingStatusCancelled {
		return recordedPenalty(b), nil
	}
	if !canApply(b.Status, ActionCancel) {
		return nil, &apperror.ConflictError{From: string(b.Status), Attempted: string(ActionCancel)}
	}
	p, err := EvaluateCancellation(b.CancellationPolicies, b.TotalAmount, b.StartDate, s.now())
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) apply(
	ctx context.Context,
	id uint,
	action Action,
	authorize func(*models.Booking) (Actor, error),
	prepare func(*models.Booking, time.Time) error,
) (*Outcome, error) {
	var (
		out    Outcome
		stored []storedNotice
	)
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		b, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		actor, err := authorize(b)
		if err != nil {
			return err
		}

		now := s.now()
		from := b.Status
		working := *b
		if prepare != nil && canApply(from, action) {
			if err := prepare(&working, now); err != nil {
				return err
			}
		}
		res, err := Transition(&working, action, actor, now)
		if err != nil {
			return err
		}
		out = Outcome{Booking: b, Result: res}
		if !res.Applied {
			return nil
		}

		if err := s.bookings.UpdateStatus(ctx, &working, from); err != nil {
			return err
		}
		out.Booking = &working
		stored, err = s.writeNotices(ctx, res.Notices)
		return err
	})
	if errors.Is(err, repository.ErrStaleStatus) {
		return s.resolveStale(ctx, id, action)
	}
	if err != nil {
		return nil, err
	}

	if out.Result.Applied {
		log.Infow("[Booking] transition applied", "booking_id", id, "action", action, "from", out.Result.From, "to", out.Result.To)
		s.dispatch(ctx, stored)
	}
	return &out, nil
}

// resolveStale re-reads a booking another writer changed first. Landing in
// the target status counts as success; anything else is a conflict against
// the fresh status.
func (s *Service) resolveStale(ctx context.Context, id uint, action Action) (*Outcome, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	target, _ := Target(action)
	if b.Status == target {
		return &Outcome{Booking: b, Result: Result{From: target, To: target}}, nil
	}
	log.Warnw("[Booking] concurrent transition rejected", "booking_id", id, "action", action, "current", b.Status)
	return nil, &apperror.ConflictError{From: string(b.Status), Attempted: string(action)}
}

func (s *Service) load(ctx context.Context, id uint) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("booking", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

type storedNotice struct {
	Notice
	NotificationID uint
}

func (s *Service) writeNotices(ctx context.Context, notices []Notice) ([]storedNotice, error) {
	out := make([]storedNotice, 0, len(notices))
	for _, n := range notices {
		row := &models.Notification{
			UserID:      n.UserID,
			Type:        n.Type,
			Content:     noticeContent(n),
			ReferenceID: n.BookingID,
		}
		if err := s.notifications.Create(ctx, row); err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		out = append(out, storedNotice{Notice: n, NotificationID: row.ID})
	}
	return out, nil
}

func (s *Service) dispatch(ctx context.Context, notices []storedNotice) {
	for _, n := range notices {
		ev := notify.NewEvent(n.Type, n.BookingID)
		ev.NotificationID = n.NotificationID
		ev.Content = noticeContent(n.Notice)
		s.dispatcher.Send(ctx, n.UserID, ev)
	}
}

func (s *Service) archiveCancellation(ctx context.Context, b *models.Booking, p Penalty) {
	evaluatedAt := s.now().UTC()
	if b.CancelledAt != nil {
		evaluatedAt = *b.CancelledAt
	}
	key, err := archive.PutCancellation(ctx, s.archiver, archive.CancellationRecord{
		BookingID:     b.ID,
		CancelledBy:   b.CancelledBy,
		EvaluatedAt:   evaluatedAt,
		StartDate:     b.StartDate,
		TotalAmount:   b.TotalAmount,
		Policies:      b.CancellationPolicies,
		Penalty:       p,
		PenaltyAmount: p.PenaltyAmount,
		RefundAmount:  p.RefundAmount,
	})
	if err != nil {
		log.Errorw("[Booking] cancellation archive failed", "booking_id", b.ID, "error", err)
		return
	}
	if _, ok := s.archiver.(archive.Noop); !ok {
		log.Infow("[Booking] cancellation archived", "booking_id", b.ID, "key", key)
	}
}

func recordedPenalty(b *models.Booking) *Penalty {
	p := &Penalty{RefundAmount: b.TotalAmount}
	if b.PenaltyAmount != nil {
		p.PenaltyAmount = *b.PenaltyAmount
	}
	if b.RefundAmount != nil {
		p.RefundAmount = *b.RefundAmount
	}
	return p
}

func canApply(status models.BookingStatus, action Action) bool {
	t, ok := transitions[action]
	return ok && containsStatus(t.from, status)
}

func noticeContent(n Notice) string {
	switch n.Type {
	case models.NotificationBookingRequested:
		return fmt.Sprintf("New booking request #%d", n.BookingID)
	case models.NotificationBookingAccepted:
		return fmt.Sprintf("Booking #%d was accepted", n.BookingID)
	case models.NotificationBookingDeclined:
		return fmt.Sprintf("Booking #%d was declined", n.BookingID)
	case models.NotificationBookingPaymentPending:
		return fmt.Sprintf("Booking #%d is waiting for payment", n.BookingID)
	case models.NotificationBookingPaid:
		return fmt.Sprintf("Booking #%d is paid", n.BookingID)
	case models.NotificationBookingPaymentFailed:
		return fmt.Sprintf("Payment for booking #%d was declined", n.BookingID)
	case models.NotificationBookingCancelled:
		return fmt.Sprintf("Booking #%d was cancelled", n.BookingID)
	case models.NotificationBookingCompleted:
		return fmt.Sprintf("Booking #%d is completed", n.BookingID)
	default:
		return fmt.Sprintf("Booking #%d updated", n.BookingID)
	}
}

func validationFrom(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.Validation(fe.Field(), "failed on %q", fe.Tag())
	}
	return apperror.Validation("", "%s", err.Error())
}
