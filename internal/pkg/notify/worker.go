package notify

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Worker processes notification jobs from the queue.
type Worker struct {
	store     NotificationStore
	publisher Publisher
}

func NewWorker(store NotificationStore, publisher Publisher) *Worker {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &Worker{store: store, publisher: publisher}
}

// Register installs the worker as the notification job handler.
func (w *Worker) Register(q *jobqueue.Queue) {
	q.Handle(jobqueue.JobTypeNotification, w.Handle)
}

// Handle writes the in-app row unless it already exists and publishes the
// event. A publish error fails the job so the queue retries it.
func (w *Worker) Handle(ctx context.Context, job *jobqueue.Job) error {
	p, err := jobqueue.NotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode notification payload: %w", err)
	}

	event := Event{
		ID:             p.EventID,
		UserID:         p.UserID,
		Type:           p.Type,
		ReferenceID:    p.ReferenceID,
		NotificationID: p.NotificationID,
		Content:        p.Content,
		OccurredAt:     p.OccurredAt,
	}

	if event.NotificationID == 0 {
		n := &models.Notification{
			UserID:      event.UserID,
			Type:        event.Type,
			Content:     event.Content,
			ReferenceID: event.ReferenceID,
		}
		if err := w.store.Create(ctx, n); err != nil {
			return fmt.Errorf("store notification: %w", err)
		}
		event.NotificationID = n.ID
		// Do not write the row again if the publish below fails.
		job.Payload["notification_id"] = n.ID
	}

	if err := w.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.RoutingKey(), err)
	}
	return nil
}
