package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
)

const (
	EventTypePayment     = "payment"
	EventTypePreapproval = "preapproval"
	// EventTypeSubscriptionPreapproval is the processor's newer name for
	// preapproval notifications.
	EventTypeSubscriptionPreapproval = "subscription_preapproval"
)

// ErrInvalidSignature rejects deliveries whose signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Notification is the inbound webhook body. Only type and data.id are used
// for reconciliation.
type Notification struct {
	ID     ExternalID `json:"id"`
	Type   string     `json:"type"`
	Action string     `json:"action"`
	Data   struct {
		ID ExternalID `json:"id"`
	} `json:"data"`
}

// ParseNotification decodes and validates a webhook body.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, apperror.Validation("body", "invalid JSON: %v", err)
	}
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	switch n.Type {
	case EventTypePayment, EventTypePreapproval, EventTypeSubscriptionPreapproval:
	case "":
		return nil, apperror.Validation("type", "is required")
	default:
		return nil, apperror.Validation("type", "unsupported event type %q", n.Type)
	}
	if strings.TrimSpace(n.Data.ID.String()) == "" {
		return nil, apperror.Validation("data.id", "is required")
	}
	return &n, nil
}

// Delivery is one received webhook.
type Delivery struct {
	Notification *Notification
	Payload      []byte
	// SignatureChecked is false when no webhook secret is configured.
	SignatureChecked bool
	SignatureValid   bool
	ReceivedAt       time.Time
}

// WebhookResult describes how a delivery was handled.
type WebhookResult struct {
	EventID   uint
	Duplicate bool
	Outcome   Outcome
}

// EventHandler is the reconciler surface used by WebhookService.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, paymentID string) (Outcome, error)
	HandleSubscriptionStatusEvent(ctx context.Context, preapprovalID string) (Outcome, error)
}

// WebhookService records deliveries, skips ones already handled and routes
// the rest to the reconciler.
type WebhookService struct {
	events   repository.WebhookEventRepository
	handler  EventHandler
	queue    notify.Enqueuer
	recorder OutcomeRecorder
}

// OutcomeRecorder counts processed deliveries by outcome.
type OutcomeRecorder interface {
	Incr(ctx context.Context, field string) error
}

// WebhookOption customizes a WebhookService.
type WebhookOption func(*WebhookService)

// WithOutcomeRecorder counts every delivery result, including duplicates,
// rejected signatures and failures.
func WithOutcomeRecorder(r OutcomeRecorder) WebhookOption {
	return func(s *WebhookService) { s.recorder = r }
}

// NewWebhookService creates the service. queue may be nil, then raw payloads
// are not archived.
func NewWebhookService(events repository.WebhookEventRepository, handler EventHandler, queue notify.Enqueuer, opts ...WebhookOption) *WebhookService {
	s := &WebhookService{events: events, handler: handler, queue: queue}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process handles one delivery. A returned error other than a validation
// error or ErrInvalidSignature asks the processor to retry.
func (s *WebhookService) Process(ctx context.Context, d Delivery) (*WebhookResult, error) {
	n := d.Notification
	if n == nil {
		return nil, apperror.Validation("body", "missing notification")
	}

	created, stored, err := s.events.CreateIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderMercadoPago,
		ProviderEventID: deliveryID(n, d.Payload),
		EventType:       n.Type,
		PayloadJSON:     string(d.Payload),
		SignatureValid:  d.SignatureValid,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	result := &WebhookResult{EventID: stored.ID}

	if d.SignatureChecked && !d.SignatureValid {
		s.markProcessed(ctx, stored.ID, ErrInvalidSignature)
		s.record(ctx, "invalid_signature")
		return result, ErrInvalidSignature
	}
	if !created && stored.Succeeded() {
		log.Infow("[Billing] duplicate webhook delivery", "event_id", stored.ID, "type", n.Type, "data_id", n.Data.ID.String())
		result.Duplicate = true
		s.record(ctx, "duplicate")
		return result, nil
	}
	if created {
		s.archive(ctx, d)
	}

	outcome, err := s.route(ctx, n)
	s.markProcessed(ctx, stored.ID, err)
	if err != nil {
		log.Errorw("[Billing] webhook processing failed", "event_id", stored.ID, "type", n.Type, "data_id", n.Data.ID.String(), "error", err)
		s.record(ctx, "failed")
		return result, err
	}
	result.Outcome = outcome
	s.record(ctx, string(outcome))
	log.Infow("[Billing] webhook processed", "event_id", stored.ID, "type", n.Type, "data_id", n.Data.ID.String(), "outcome", outcome)
	return result, nil
}

// Replay reprocesses an event by processor object id without recording it.
func (s *WebhookService) Replay(ctx context.Context, eventType, dataID string) (Outcome, error) {
	n := &Notification{Type: strings.ToLower(strings.TrimSpace(eventType))}
	n.Data.ID = ExternalID(strings.TrimSpace(dataID))
	return s.route(ctx, n)
}

func (s *WebhookService) route(ctx context.Context, n *Notification) (Outcome, error) {
	switch n.Type {
	case EventTypePayment:
		return s.handler.HandlePaymentEvent(ctx, n.Data.ID.String())
	case EventTypePreapproval, EventTypeSubscriptionPreapproval:
		return s.handler.HandleSubscriptionStatusEvent(ctx, n.Data.ID.String())
	default:
		return "", apperror.Validation("type", "unsupported event type %q", n.Type)
	}
}

func (s *WebhookService) markProcessed(ctx context.Context, id uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.events.MarkProcessed(context.WithoutCancel(ctx), id, msg); err != nil {
		log.Errorw("[Billing] could not mark webhook processed", "event_id", id, "error", err)
	}
}

func (s *WebhookService) record(ctx context.Context, field string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Incr(context.WithoutCancel(ctx), field); err != nil {
		log.Warnw("[Billing] could not count webhook outcome", "outcome", field, "error", err)
	}
}

func (s *WebhookService) archive(ctx context.Context, d Delivery) {
	if s.queue == nil {
		return
	}
	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	payload := jobqueue.ArchiveWebhookJobPayload{
		EventType:  d.Notification.Type,
		ExternalID: d.Notification.Data.ID.String(),
		Payload:    string(d.Payload),
		ReceivedAt: receivedAt,
	}
	if _, err := s.queue.EnqueueJob(context.WithoutCancel(ctx), jobqueue.JobTypeArchiveWebhook, payload.ToMap()); err != nil {
		log.Warnw("[Billing] could not queue webhook archive", "type", payload.EventType, "data_id", payload.ExternalID, "error", err)
	}
}

// deliveryID identifies one notification. The processor's notification id
// is preferred; bodies without one are keyed by content hash.
func deliveryID(n *Notification, payload []byte) string {
	if id := strings.TrimSpace(n.ID.String()); id != "" {
		return n.Type + ":" + id
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
