package notify

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
)

// Enqueuer is the part of the job queue the dispatcher needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// QueueDispatcher hands events to the Redis job queue.
type QueueDispatcher struct {
	queue Enqueuer
}

func NewQueueDispatcher(queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Send(ctx context.Context, userID uint, event Event) {
	event.UserID = userID
	payload := jobqueue.NotificationJobPayload{
		EventID:        event.ID,
		UserID:         userID,
		Type:           event.Type,
		ReferenceID:    event.ReferenceID,
		NotificationID: event.NotificationID,
		Content:        event.Content,
		OccurredAt:     event.OccurredAt,
	}
	// The caller's request may already be finished.
	if _, err := d.queue.EnqueueJob(context.WithoutCancel(ctx), jobqueue.JobTypeNotification, payload.ToMap()); err != nil {
		log.Errorw("[Notify] enqueue failed", "user_id", userID, "type", event.Type, "reference_id", event.ReferenceID, "error", err)
	}
}
