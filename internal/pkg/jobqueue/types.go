package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotification   JobType = "notification"
	JobTypeArchiveWebhook JobType = "archive_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// NotificationJobPayload carries one notification event to the workers.
// NotificationID is set when the in-app row was already written together
// with the business change.
type NotificationJobPayload struct {
	EventID        string    `json:"event_id"`
	UserID         uint      `json:"user_id"`
	Type           string    `json:"type"`
	ReferenceID    uint      `json:"reference_id"`
	NotificationID uint      `json:"notification_id"`
	Content        string    `json:"content"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ToMap converts the payload to a map for storage
func (p NotificationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id":        p.EventID,
		"user_id":         p.UserID,
		"type":            p.Type,
		"reference_id":    p.ReferenceID,
		"notification_id": p.NotificationID,
		"content":         p.Content,
		"occurred_at":     p.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// NotificationJobPayloadFromMap creates a payload from a map
func NotificationJobPayloadFromMap(data map[string]interface{}) (*NotificationJobPayload, error) {
	var payload NotificationJobPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ArchiveWebhookJobPayload carries a raw processor delivery to the archive.
type ArchiveWebhookJobPayload struct {
	EventType  string    `json:"event_type"`
	ExternalID string    `json:"external_id"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// ToMap converts the payload to a map for storage
func (p ArchiveWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_type":  p.EventType,
		"external_id": p.ExternalID,
		"payload":     p.Payload,
		"received_at": p.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ArchiveWebhookJobPayloadFromMap creates a payload from a map
func ArchiveWebhookJobPayloadFromMap(data map[string]interface{}) (*ArchiveWebhookJobPayload, error) {
	var payload ArchiveWebhookJobPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decodePayload(data map[string]interface{}, into interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, into)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
