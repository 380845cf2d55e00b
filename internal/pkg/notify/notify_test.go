package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
)

type fakeEnqueuer struct {
	jobs []*jobqueue.Job
	err  error
}

func (f *fakeEnqueuer) EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := &jobqueue.Job{ID: "job", Type: jobType, Payload: payload}
	f.jobs = append(f.jobs, job)
	return job, nil
}

type fakeStore struct {
	created []*models.Notification
}

func (f *fakeStore) Create(ctx context.Context, n *models.Notification) error {
	n.ID = uint(len(f.created) + 1)
	f.created = append(f.created, n)
	return nil
}

type fakePublisher struct {
	events []Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, e Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestQueueDispatcherEnqueuesNotificationJob(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewQueueDispatcher(q)

	ev := NewEvent(models.NotificationBookingAccepted, 7)
	ev.NotificationID = 3
	d.Send(context.Background(), 11, ev)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, jobqueue.JobTypeNotification, q.jobs[0].Type)
	p, err := jobqueue.NotificationJobPayloadFromMap(q.jobs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint(11), p.UserID)
	assert.Equal(t, uint(7), p.ReferenceID)
	assert.Equal(t, uint(3), p.NotificationID)
}

func TestQueueDispatcherSwallowsEnqueueErrors(t *testing.T) {
	d := NewQueueDispatcher(&fakeEnqueuer{err: errors.New("redis down")})
	assert.NotPanics(t, func() {
		d.Send(context.Background(), 1, NewEvent(models.NotificationBookingPaid, 1))
	})
}

func TestWorkerStoresMissingRowAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	w := NewWorker(store, pub)

	job := &jobqueue.Job{Payload: jobqueue.NotificationJobPayload{
		EventID: "e1", UserID: 5, Type: models.NotificationSubscriptionActive, ReferenceID: 9,
	}.ToMap()}
	require.NoError(t, w.Handle(context.Background(), job))

	require.Len(t, store.created, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "notification.subscription_active", pub.events[0].RoutingKey())
	assert.Equal(t, uint(1), pub.events[0].NotificationID)
}

func TestWorkerSkipsRowWrittenWithBusinessChange(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	w := NewWorker(store, pub)

	job := &jobqueue.Job{Payload: jobqueue.NotificationJobPayload{
		UserID: 5, Type: models.NotificationBookingAccepted, NotificationID: 42,
	}.ToMap()}
	require.NoError(t, w.Handle(context.Background(), job))

	assert.Empty(t, store.created)
	require.Len(t, pub.events, 1)
	assert.Equal(t, uint(42), pub.events[0].NotificationID)
}

func TestWorkerPublishFailureDoesNotDuplicateRowOnRetry(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker down")}
	w := NewWorker(store, pub)

	job := &jobqueue.Job{Payload: jobqueue.NotificationJobPayload{UserID: 5, Type: models.NotificationBookingPaid}.ToMap()}
	require.Error(t, w.Handle(context.Background(), job))

	pub.err = nil
	require.NoError(t, w.Handle(context.Background(), job))
	assert.Len(t, store.created, 1)
	assert.Len(t, pub.events, 1)
}
