package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker/v2"

	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/env"
)

const (
	defaultMercadoPagoAPIBaseURL = "https://api.mercadopago.com"

	PaymentStatusApproved = "approved"

	PreapprovalStatusAuthorized = "authorized"
	PreapprovalStatusCancelled  = "cancelled"
	PreapprovalStatusPaused     = "paused"
)

// ExternalID accepts both JSON numbers and strings. Payment ids are numeric
// on the wire while preapproval ids are strings.
type ExternalID string

func (id *ExternalID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ExternalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("external id: %w", err)
	}
	*id = ExternalID(n.String())
	return nil
}

func (id ExternalID) String() string { return string(id) }

// Payment holds the payment fields the reconciler consumes.
type Payment struct {
	ID                 ExternalID     `json:"id"`
	Status             string         `json:"status"`
	StatusDetail       string         `json:"status_detail"`
	ExternalReference  string         `json:"external_reference"`
	TransactionAmount  float64        `json:"transaction_amount"`
	CurrencyID         string         `json:"currency_id"`
	Metadata           map[string]any `json:"metadata"`
	PointOfInteraction struct {
		TransactionData struct {
			SubscriptionID string `json:"subscription_id"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// PreapprovalID returns the processor subscription the payment belongs to,
// if the processor reported one.
func (p *Payment) PreapprovalID() string {
	if id := strings.TrimSpace(p.PointOfInteraction.TransactionData.SubscriptionID); id != "" {
		return id
	}
	if v, ok := p.Metadata["preapproval_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Preapproval is a processor-side recurring subscription.
type Preapproval struct {
	ID                ExternalID `json:"id"`
	Status            string     `json:"status"`
	PayerEmail        string     `json:"payer_email"`
	ExternalReference string     `json:"external_reference"`
	PreapprovalPlanID string     `json:"preapproval_plan_id,omitempty"`
	InitPoint         string     `json:"init_point,omitempty"`
}

// PreapprovalRequest starts a processor checkout for one plan and user.
type PreapprovalRequest struct {
	PreapprovalPlanID string `json:"preapproval_plan_id"`
	Reason            string `json:"reason"`
	ExternalReference string `json:"external_reference"`
	PayerEmail        string `json:"payer_email"`
	BackURL           string `json:"back_url"`
	Status            string `json:"status"`
}

// AutoRecurring is the billing cycle of a processor plan.
type AutoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

// PlanSpec is the desired processor-side state of a local plan.
type PlanSpec struct {
	Reason        string        `json:"reason"`
	AutoRecurring AutoRecurring `json:"auto_recurring"`
	BackURL       string        `json:"back_url"`
	Status        string        `json:"status,omitempty"`
}

// ProcessorPlan is the processor's answer to a plan mutation.
type ProcessorPlan struct {
	ID     ExternalID `json:"id"`
	Status string     `json:"status"`
}

// ProcessorClient is the processor API surface the billing flows use.
type ProcessorClient interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPreapproval(ctx context.Context, id string) (*Preapproval, error)
	CreatePreapproval(ctx context.Context, req PreapprovalRequest) (*Preapproval, error)
	CreatePreapprovalPlan(ctx context.Context, spec PlanSpec) (*ProcessorPlan, error)
	UpdatePreapprovalPlan(ctx context.Context, id string, spec PlanSpec) (*ProcessorPlan, error)
}

// MercadoPagoClient talks to the processor REST API. Every call is bounded
// by Timeout and guarded by a circuit breaker.
type MercadoPagoClient struct {
	AccessToken string
	APIBaseURL  string
	Timeout     time.Duration

	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*processorResponse]
}

type processorResponse struct {
	status int
	body   []byte
}

// NewMercadoPagoClient builds a client with a breaker that opens after
// failureThreshold consecutive transport or 5xx failures.
func NewMercadoPagoClient(accessToken, baseURL string, timeout time.Duration, failureThreshold uint32) *MercadoPagoClient {
	if baseURL == "" {
		baseURL = defaultMercadoPagoAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if failureThreshold == 0 {
		failureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "mercadopago",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("[Billing] circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &MercadoPagoClient{
		AccessToken: accessToken,
		APIBaseURL:  strings.TrimRight(baseURL, "/"),
		Timeout:     timeout,
		HTTPClient:  &http.Client{},
		breaker:     gobreaker.NewCircuitBreaker[*processorResponse](settings),
	}
}

func NewMercadoPagoClientFromEnv() *MercadoPagoClient {
	return NewMercadoPagoClient(
		strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		strings.TrimSpace(env.GetEnv("MP_API_BASE_URL", defaultMercadoPagoAPIBaseURL)),
		env.GetEnvDuration("PROCESSOR_TIMEOUT", 10*time.Second),
		uint32(env.GetEnvInt("PROCESSOR_BREAKER_FAILURES", 5)),
	)
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "get payment", http.MethodGet, "/v1/payments/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MercadoPagoClient) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	var out Preapproval
	if err := c.do(ctx, "get preapproval", http.MethodGet, "/preapproval/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MercadoPagoClient) CreatePreapproval(ctx context.Context, req PreapprovalRequest) (*Preapproval, error) {
	var out Preapproval
	if err := c.do(ctx, "create preapproval", http.MethodPost, "/preapproval", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MercadoPagoClient) CreatePreapprovalPlan(ctx context.Context, spec PlanSpec) (*ProcessorPlan, error) {
	var out ProcessorPlan
	if err := c.do(ctx, "create preapproval plan", http.MethodPost, "/preapproval_plan", spec, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &apperror.UpstreamError{Op: "create preapproval plan", Err: errors.New("response carries no id")}
	}
	return &out, nil
}

func (c *MercadoPagoClient) UpdatePreapprovalPlan(ctx context.Context, id string, spec PlanSpec) (*ProcessorPlan, error) {
	var out ProcessorPlan
	if err := c.do(ctx, "update preapproval plan", http.MethodPut, "/preapproval_plan/"+id, spec, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = ExternalID(id)
	}
	return &out, nil
}

// do sends one request. Every failure comes back as *apperror.UpstreamError.
func (c *MercadoPagoClient) do(ctx context.Context, op, method, path string, in, out any) error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return &apperror.UpstreamError{Op: op, Err: errors.New("MP_ACCESS_TOKEN is not configured")}
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = b
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	resp, err := c.breaker.Execute(func() (*processorResponse, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &apperror.UpstreamError{Op: op, Err: fmt.Errorf("circuit open: %w", err)}
		}
		var upstream *apperror.UpstreamError
		if errors.As(err, &upstream) {
			upstream.Op = op
			return upstream
		}
		return &apperror.UpstreamError{Op: op, Err: err}
	}

	if resp.status < 200 || resp.status >= 300 {
		return &apperror.UpstreamError{Op: op, StatusCode: resp.status, Err: fmt.Errorf("body=%s", truncate(resp.body, 512))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &apperror.UpstreamError{Op: op, StatusCode: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// send performs the HTTP round trip. Transport errors, 429 and 5xx count as
// breaker failures; other statuses are returned to the caller as data.
func (c *MercadoPagoClient) send(ctx context.Context, method, path string, payload []byte) (*processorResponse, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return nil, &apperror.UpstreamError{StatusCode: res.StatusCode, Err: fmt.Errorf("body=%s", truncate(raw, 512))}
	}
	return &processorResponse{status: res.StatusCode, body: raw}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(" + strconv.Itoa(len(b)) + " bytes)"
}
