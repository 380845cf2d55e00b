package booking

import (
	"time"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

// Action is a requested booking lifecycle step.
type Action string

const (
	ActionAccept          Action = "accept"
	ActionDecline         Action = "decline"
	ActionRequestPayment  Action = "request_payment"
	ActionConfirmPayment  Action = "confirm_payment"
	ActionPaymentDeclined Action = "payment_declined"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"
)

// Actor is who performs an action.
type Actor string

const (
	ActorClient Actor = "client"
	ActorOwner  Actor = "owner"
	ActorSystem Actor = "system"
)

type transition struct {
	from   []models.BookingStatus
	to     models.BookingStatus
	actors []Actor
	notify string
}

var transitions = map[Action]transition{
	ActionAccept: {
		from:   []models.BookingStatus{models.BookingStatusRequested},
		to:     models.BookingStatusAccepted,
		actors: []Actor{ActorOwner},
		notify: models.NotificationBookingAccepted,
	},
	ActionDecline: {
		from:   []models.BookingStatus{models.BookingStatusRequested},
		to:     models.BookingStatusDeclined,
		actors: []Actor{ActorOwner},
		notify: models.NotificationBookingDeclined,
	},
	ActionRequestPayment: {
		from:   []models.BookingStatus{models.BookingStatusAccepted},
		to:     models.BookingStatusPendingPayment,
		actors: []Actor{ActorOwner},
		notify: models.NotificationBookingPaymentPending,
	},
	ActionConfirmPayment: {
		from:   []models.BookingStatus{models.BookingStatusPendingPayment},
		to:     models.BookingStatusPaid,
		actors: []Actor{ActorSystem},
		notify: models.NotificationBookingPaid,
	},
	ActionPaymentDeclined: {
		from:   []models.BookingStatus{models.BookingStatusPendingPayment},
		to:     models.BookingStatusRequested,
		actors: []Actor{ActorSystem},
		notify: models.NotificationBookingPaymentFailed,
	},
	ActionComplete: {
		from:   []models.BookingStatus{models.BookingStatusPaid},
		to:     models.BookingStatusCompleted,
		actors: []Actor{ActorOwner},
		notify: models.NotificationBookingCompleted,
	},
	ActionCancel: {
		from: []models.BookingStatus{
			models.BookingStatusRequested,
			models.BookingStatusPendingPayment,
			models.BookingStatusPaid,
		},
		to:     models.BookingStatusCancelled,
		actors: []Actor{ActorClient, ActorOwner},
		notify: models.NotificationBookingCancelled,
	},
}

// Notice is a notification owed to a user after a transition.
type Notice struct {
	UserID    uint
	Type      string
	BookingID uint
}

// Result describes the outcome of a transition.
type Result struct {
	From    models.BookingStatus
	To      models.BookingStatus
	Applied bool // false when the booking already sat in the target status
	Notices []Notice
}

// Target returns the status action leads to.
func Target(action Action) (models.BookingStatus, bool) {
	t, ok := transitions[action]
	return t.to, ok
}

// Transition applies action to b in memory. On any error b is untouched.
// An action whose target equals the current status succeeds without change.
func Transition(b *models.Booking, action Action, actor Actor, now time.Time) (Result, error) {
	t, ok := transitions[action]
	if !ok {
		return Result{}, apperror.Validation("action", "unknown booking action %q", action)
	}
	if !containsActor(t.actors, actor) {
		return Result{}, apperror.ErrForbidden
	}

	res := Result{From: b.Status, To: t.to}
	if b.Status == t.to {
		return res, nil
	}
	if !containsStatus(t.from, b.Status) {
		return Result{}, &apperror.ConflictError{From: string(b.Status), Attempted: string(action)}
	}

	b.Status = t.to
	if ts := b.TimestampFor(t.to); ts != nil && *ts == nil {
		stamp := now.UTC()
		*ts = &stamp
	}
	res.Applied = true
	res.Notices = counterparts(b, actor, t.notify)
	return res, nil
}

// counterparts addresses the notification to the side that did not act.
func counterparts(b *models.Booking, actor Actor, kind string) []Notice {
	switch actor {
	case ActorClient:
		return []Notice{{UserID: b.OwnerID, Type: kind, BookingID: b.ID}}
	case ActorOwner:
		return []Notice{{UserID: b.ClientID, Type: kind, BookingID: b.ID}}
	default:
		return []Notice{
			{UserID: b.ClientID, Type: kind, BookingID: b.ID},
			{UserID: b.OwnerID, Type: kind, BookingID: b.ID},
		}
	}
}

func containsActor(list []Actor, a Actor) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}

func containsStatus(list []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
