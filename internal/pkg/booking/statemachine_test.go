package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

type step struct {
	action Action
	actor  Actor
}

func freshBooking() *models.Booking {
	return &models.Booking{ID: 1, ClientID: 10, OwnerID: 20, Status: models.BookingStatusRequested}
}

func TestTransitionValidSequences(t *testing.T) {
	sequences := map[string][]step{
		"happy path": {
			{ActionAccept, ActorOwner},
			{ActionRequestPayment, ActorOwner},
			{ActionConfirmPayment, ActorSystem},
			{ActionComplete, ActorOwner},
		},
		"declined": {
			{ActionDecline, ActorOwner},
		},
		"payment retry then cancel by client": {
			{ActionAccept, ActorOwner},
			{ActionRequestPayment, ActorOwner},
			{ActionPaymentDeclined, ActorSystem},
			{ActionCancel, ActorClient},
		},
		"paid then cancelled by owner": {
			{ActionAccept, ActorOwner},
			{ActionRequestPayment, ActorOwner},
			{ActionConfirmPayment, ActorSystem},
			{ActionCancel, ActorOwner},
		},
	}

	for name, steps := range sequences {
		t.Run(name, func(t *testing.T) {
			b := freshBooking()
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			stamped := map[models.BookingStatus]time.Time{}

			for i, s := range steps {
				now = now.Add(time.Hour)
				res, err := Transition(b, s.action, s.actor, now)
				require.NoError(t, err, "step %d (%s)", i, s.action)

				target, _ := Target(s.action)
				assert.Equal(t, target, b.Status)
				if ts := b.TimestampFor(target); ts != nil {
					require.NotNil(t, *ts)
					if first, seen := stamped[target]; seen {
						assert.Equal(t, first, **ts, "timestamp for %s rewritten", target)
					} else {
						stamped[target] = **ts
					}
				}
				assert.NotEmpty(t, res.Notices)
			}

			last, _ := Target(steps[len(steps)-1].action)
			assert.Equal(t, last, b.Status)
		})
	}
}

func TestTransitionRetryKeepsFirstAcceptedAt(t *testing.T) {
	b := freshBooking()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Transition(b, ActionAccept, ActorOwner, t0)
	require.NoError(t, err)
	_, err = Transition(b, ActionRequestPayment, ActorOwner, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = Transition(b, ActionPaymentDeclined, ActorSystem, t0.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = Transition(b, ActionAccept, ActorOwner, t0.Add(3*time.Hour))
	require.NoError(t, err)

	require.NotNil(t, b.AcceptedAt)
	assert.Equal(t, t0, *b.AcceptedAt)
}

func TestTransitionRejectsInvalidSourceWithoutMutation(t *testing.T) {
	statuses := []models.BookingStatus{
		models.BookingStatusRequested,
		models.BookingStatusAccepted,
		models.BookingStatusDeclined,
		models.BookingStatusPendingPayment,
		models.BookingStatusPaid,
		models.BookingStatusCancelled,
		models.BookingStatusCompleted,
	}
	actors := map[Action]Actor{
		ActionAccept:          ActorOwner,
		ActionDecline:         ActorOwner,
		ActionRequestPayment:  ActorOwner,
		ActionConfirmPayment:  ActorSystem,
		ActionPaymentDeclined: ActorSystem,
		ActionComplete:        ActorOwner,
		ActionCancel:          ActorClient,
	}

	for _, status := range statuses {
		for action, actor := range actors {
			target, _ := Target(action)
			if canApply(status, action) || status == target {
				continue
			}
			b := freshBooking()
			b.Status = status
			before := *b

			_, err := Transition(b, action, actor, time.Now())
			var conflict *apperror.ConflictError
			require.ErrorAs(t, err, &conflict, "%s from %s", action, status)
			assert.Equal(t, string(status), conflict.From)
			assert.Equal(t, string(action), conflict.Attempted)
			assert.Equal(t, before, *b)
		}
	}
}

func TestTransitionIsIdempotentForSameTarget(t *testing.T) {
	b := freshBooking()
	_, err := Transition(b, ActionAccept, ActorOwner, time.Now())
	require.NoError(t, err)
	first := *b.AcceptedAt

	res, err := Transition(b, ActionAccept, ActorOwner, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, res.Notices)
	assert.Equal(t, first, *b.AcceptedAt)
}

func TestTransitionActorGuards(t *testing.T) {
	b := freshBooking()
	before := *b

	_, err := Transition(b, ActionAccept, ActorClient, time.Now())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = Transition(b, ActionConfirmPayment, ActorOwner, time.Now())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = Transition(b, ActionCancel, ActorSystem, time.Now())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, before, *b)

	_, err = Transition(b, Action("teleport"), ActorOwner, time.Now())
	assert.True(t, apperror.IsValidation(err))
}

func TestTransitionNotifiesCounterpart(t *testing.T) {
	b := freshBooking()
	res, err := Transition(b, ActionAccept, ActorOwner, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, b.ClientID, res.Notices[0].UserID)
	assert.Equal(t, models.NotificationBookingAccepted, res.Notices[0].Type)

	b = freshBooking()
	res, err = Transition(b, ActionCancel, ActorClient, time.Now())
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, b.OwnerID, res.Notices[0].UserID)

	b = freshBooking()
	b.Status = models.BookingStatusPendingPayment
	res, err = Transition(b, ActionConfirmPayment, ActorSystem, time.Now())
	require.NoError(t, err)
	assert.Len(t, res.Notices, 2)
}
