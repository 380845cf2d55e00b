package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

// SyncCoordinator mirrors a locally owned resource in an external system.
// The external side is written first; if it fails nothing changed. If the
// local commit fails afterwards the error is an *apperror.PartialFailure.
type SyncCoordinator[T any] struct {
	Resource     string
	SyncExternal func(ctx context.Context, desired T) (T, error)
	CommitLocal  func(ctx context.Context, synced T) error
	// IDs names both representations for logs and PartialFailure.
	IDs func(v T) (localID, externalID string)
}

// Run performs the dual write.
func (c SyncCoordinator[T]) Run(ctx context.Context, desired T) (T, error) {
	synced, err := c.SyncExternal(ctx, desired)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("sync %s externally, nothing changed: %w", c.Resource, err)
	}

	if err := c.CommitLocal(ctx, synced); err != nil {
		localID, externalID := c.ids(synced)
		log.Errorw("[Billing] local commit failed after external sync, representations diverge",
			"resource", c.Resource, "local_id", localID, "external_id", externalID, "error", err)
		return synced, &apperror.PartialFailure{Resource: c.Resource, LocalID: localID, ExternalID: externalID, Err: err}
	}
	return synced, nil
}

func (c SyncCoordinator[T]) ids(v T) (string, string) {
	if c.IDs == nil {
		return "", ""
	}
	return c.IDs(v)
}

// PlanInput is an admin change to a plan. Nil fields stay unchanged.
type PlanInput struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	Price           *float64 `json:"price"`
	Currency        *string  `json:"currency"`
	FrequencyMonths *int     `json:"frequency_months"`
	MaxListings     *int     `json:"max_listings"`
	IsActive        *bool    `json:"is_active"`
}

func (in PlanInput) applyTo(p *models.Plan) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Currency != nil {
		p.Currency = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.FrequencyMonths != nil {
		p.FrequencyMonths = *in.FrequencyMonths
	}
	if in.MaxListings != nil {
		p.MaxListings = *in.MaxListings
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// PlanSyncService keeps the plan catalog mirrored as processor plans.
type PlanSyncService struct {
	processor ProcessorClient
	plans     repository.PlanRepository
	backURL   string
}

func NewPlanSyncService(processor ProcessorClient, plans repository.PlanRepository, backURL string) *PlanSyncService {
	return &PlanSyncService{processor: processor, plans: plans, backURL: backURL}
}

// Create mirrors a new plan and stores it locally.
func (s *PlanSyncService) Create(ctx context.Context, in PlanInput) (*models.Plan, error) {
	plan := &models.Plan{FrequencyMonths: 1, MaxListings: 1, IsActive: true}
	in.applyTo(plan)
	if err := plan.Validate(); err != nil {
		return nil, apperror.Validation("plan", "%v", err)
	}
	return s.coordinator(s.plans.Create).Run(ctx, plan)
}

// Update applies in to plan id, external side first.
func (s *PlanSyncService) Update(ctx context.Context, id uint, in PlanInput) (*models.Plan, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	in.applyTo(plan)
	if err := plan.Validate(); err != nil {
		return nil, apperror.Validation("plan", "%v", err)
	}
	return s.coordinator(s.plans.Update).Run(ctx, plan)
}

// Resync pushes the stored plan to the processor again. Used to repair a
// PartialFailure.
func (s *PlanSyncService) Resync(ctx context.Context, id uint) (*models.Plan, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.coordinator(s.plans.Update).Run(ctx, plan)
}

// Checkout starts a processor subscription for userID on plan id and returns
// the processor's checkout URL. The correlation reference ties the later
// payment back to plan and user.
func (s *PlanSyncService) Checkout(ctx context.Context, planID, userID uint, payerEmail string) (*Preapproval, error) {
	ref, err := NewCorrelationRef(planID, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.load(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperror.Validation("plan_id", "plan %d is not available", planID)
	}
	if !plan.IsMirrored() {
		return nil, apperror.Validation("plan_id", "plan %d is not mirrored in the processor yet", planID)
	}
	if strings.TrimSpace(payerEmail) == "" {
		return nil, apperror.Validation("payer_email", "is required")
	}

	pre, err := s.processor.CreatePreapproval(ctx, PreapprovalRequest{
		PreapprovalPlanID: *plan.ExternalPlanID,
		Reason:            plan.Name,
		ExternalReference: ref.String(),
		PayerEmail:        payerEmail,
		BackURL:           s.backURL,
		Status:            "pending",
	})
	if err != nil {
		return nil, fmt.Errorf("create preapproval for %s: %w", ref, err)
	}
	log.Infow("[Billing] checkout started", "plan_id", planID, "user_id", userID, "preapproval_id", pre.ID.String())
	return pre, nil
}

func (s *PlanSyncService) coordinator(commit func(context.Context, *models.Plan) error) SyncCoordinator[*models.Plan] {
	return SyncCoordinator[*models.Plan]{
		Resource:     "plan",
		SyncExternal: s.syncExternal,
		CommitLocal:  commit,
		IDs: func(p *models.Plan) (string, string) {
			local := ""
			if p.ID != 0 {
				local = fmt.Sprint(p.ID)
			}
			external := ""
			if p.ExternalPlanID != nil {
				external = *p.ExternalPlanID
			}
			return local, external
		},
	}
}

// syncExternal creates the processor plan when the plan is not mirrored yet
// and updates it otherwise. desired is not modified when the call fails.
func (s *PlanSyncService) syncExternal(ctx context.Context, desired *models.Plan) (*models.Plan, error) {
	spec := s.planSpec(desired)
	synced := *desired

	if desired.IsMirrored() {
		if _, err := s.processor.UpdatePreapprovalPlan(ctx, *desired.ExternalPlanID, spec); err != nil {
			return nil, err
		}
		return &synced, nil
	}

	created, err := s.processor.CreatePreapprovalPlan(ctx, spec)
	if err != nil {
		return nil, err
	}
	externalID := created.ID.String()
	synced.ExternalPlanID = &externalID
	return &synced, nil
}

func (s *PlanSyncService) planSpec(p *models.Plan) PlanSpec {
	status := "active"
	if !p.IsActive {
		status = "cancelled"
	}
	return PlanSpec{
		Reason: p.Name,
		AutoRecurring: AutoRecurring{
			Frequency:         p.FrequencyMonths,
			FrequencyType:     "months",
			TransactionAmount: p.Price,
			CurrencyID:        p.Currency,
		},
		BackURL: s.backURL,
		Status:  status,
	}
}

func (s *PlanSyncService) load(ctx context.Context, id uint) (*models.Plan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("plan", id)
		}
		return nil, fmt.Errorf("load plan %d: %w", id, err)
	}
	return plan, nil
}
