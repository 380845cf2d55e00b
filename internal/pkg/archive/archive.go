// Package archive keeps JSON audit documents (cancellation evaluations and
// raw processor webhooks) in S3 compatible object storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
)

// Archiver stores one JSON document under key.
type Archiver interface {
	Put(ctx context.Context, key string, document any) error
}

// Noop discards documents. Used when archiving is disabled.
type Noop struct{}

func (Noop) Put(context.Context, string, any) error { return nil }

// New returns the S3 archiver when enabled and Noop otherwise.
func New(ctx context.Context, cfg *Config) (Archiver, error) {
	if cfg == nil || !cfg.IsEnabled() {
		log.Info("[Archive] Disabled, using no-op archiver")
		return Noop{}, nil
	}
	return NewClient(ctx, cfg)
}

// CancellationRecord is everything needed to re-run a cancellation
// evaluation with identical inputs.
type CancellationRecord struct {
	BookingID     uint      `json:"booking_id"`
	CancelledBy   string    `json:"cancelled_by"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
	StartDate     time.Time `json:"start_date"`
	TotalAmount   float64   `json:"total_amount"`
	Policies      any       `json:"policies"`
	Penalty       any       `json:"penalty"`
	PenaltyAmount float64   `json:"penalty_amount"`
	RefundAmount  float64   `json:"refund_amount"`
}

// PutCancellation archives r under its cancellation key.
func PutCancellation(ctx context.Context, a Archiver, r CancellationRecord) (string, error) {
	key := CancellationKey(r.BookingID, r.EvaluatedAt, uuid.NewString())
	return key, a.Put(ctx, key, r)
}

// WebhookJobHandler archives raw webhook payloads queued by the webhook
// handler.
func WebhookJobHandler(a Archiver) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		p, err := jobqueue.ArchiveWebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("decode archive payload: %w", err)
		}
		key := WebhookKey(p.EventType, p.ExternalID, p.ReceivedAt, job.ID)
		doc := map[string]any{
			"event_type":  p.EventType,
			"external_id": p.ExternalID,
			"received_at": p.ReceivedAt,
			"payload":     json.RawMessage(p.Payload),
		}
		if !json.Valid([]byte(p.Payload)) {
			doc["payload"] = p.Payload
		}
		return a.Put(ctx, key, doc)
	}
}
