package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

type memoryPlans struct {
	plans     map[uint]models.Plan
	nextID    uint
	createErr error
	updateErr error
}

func newMemoryPlans() *memoryPlans {
	return &memoryPlans{plans: map[uint]models.Plan{}, nextID: 1}
}

func (m *memoryPlans) GetByID(_ context.Context, id uint) (*models.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (m *memoryPlans) List(context.Context, bool) ([]models.Plan, error) {
	out := make([]models.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryPlans) Create(_ context.Context, p *models.Plan) error {
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = m.nextID
	m.nextID++
	m.plans[p.ID] = *p
	return nil
}

func (m *memoryPlans) Update(_ context.Context, p *models.Plan) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.plans[p.ID] = *p
	return nil
}

func ptr[T any](v T) *T { return &v }

func validInput() PlanInput {
	return PlanInput{
		Name:            ptr("Publisher Monthly"),
		Price:           ptr(1500.0),
		Currency:        ptr("ars"),
		FrequencyMonths: ptr(1),
		MaxListings:     ptr(5),
	}
}

func TestSyncCoordinator_Outcomes(t *testing.T) {
	ctx := context.Background()
	externalErr := errors.New("processor down")
	localErr := errors.New("db down")

	var committed []string
	c := SyncCoordinator[string]{
		Resource: "thing",
		SyncExternal: func(_ context.Context, desired string) (string, error) {
			if desired == "fail-external" {
				return "", externalErr
			}
			return desired + "@ext", nil
		},
		CommitLocal: func(_ context.Context, synced string) error {
			if synced == "fail-local@ext" {
				return localErr
			}
			committed = append(committed, synced)
			return nil
		},
		IDs: func(v string) (string, string) { return "local-1", v },
	}

	got, err := c.Run(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok@ext", got)

	_, err = c.Run(ctx, "fail-external")
	assert.ErrorIs(t, err, externalErr)
	assert.False(t, apperror.IsPartialFailure(err))

	_, err = c.Run(ctx, "fail-local")
	var pf *apperror.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "fail-local@ext", pf.ExternalID)
	assert.Equal(t, "local-1", pf.LocalID)
	assert.ErrorIs(t, err, localErr)

	assert.Equal(t, []string{"ok@ext"}, committed)
}

func TestPlanSyncService_CreateMirrorsFirst(t *testing.T) {
	proc := newFakeProcessor()
	plans := newMemoryPlans()
	svc := NewPlanSyncService(proc, plans, "https://tourmarket.test/billing/return")

	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.NotNil(t, plan.ExternalPlanID)
	assert.Equal(t, "plan-ext-1", *plan.ExternalPlanID)
	assert.Equal(t, "ARS", plan.Currency)

	require.Len(t, proc.createdPlans, 1)
	spec := proc.createdPlans[0]
	assert.Equal(t, "Publisher Monthly", spec.Reason)
	assert.Equal(t, 1500.0, spec.AutoRecurring.TransactionAmount)
	assert.Equal(t, "months", spec.AutoRecurring.FrequencyType)

	stored, err := plans.GetByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsMirrored())
}

func TestPlanSyncService_ExternalFailureChangesNothing(t *testing.T) {
	proc := newFakeProcessor()
	proc.planErr = &apperror.UpstreamError{Op: "create preapproval plan", StatusCode: 500, Err: errors.New("boom")}
	plans := newMemoryPlans()
	svc := NewPlanSyncService(proc, plans, "")

	_, err := svc.Create(context.Background(), validInput())
	assert.True(t, apperror.IsUpstream(err))
	assert.False(t, apperror.IsPartialFailure(err))
	assert.Empty(t, plans.plans)
}

func TestPlanSyncService_LocalFailureIsPartial(t *testing.T) {
	proc := newFakeProcessor()
	plans := newMemoryPlans()
	svc := NewPlanSyncService(proc, plans, "")
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	plans.updateErr = errors.New("deadlock")
	_, err = svc.Update(context.Background(), plan.ID, PlanInput{Price: ptr(1800.0)})
	var pf *apperror.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "plan-ext-1", pf.ExternalID)
	assert.Equal(t, itoa(plan.ID), pf.LocalID)

	// external side already carries the new price, local does not
	assert.Equal(t, 1800.0, proc.updatedPlans["plan-ext-1"].AutoRecurring.TransactionAmount)
	stored, _ := plans.GetByID(context.Background(), plan.ID)
	assert.Equal(t, 1500.0, stored.Price)

	// repair: the operator fixes the local side and resyncs
	plans.updateErr = nil
	_, err = svc.Update(context.Background(), plan.ID, PlanInput{Price: ptr(1800.0)})
	require.NoError(t, err)
	stored, _ = plans.GetByID(context.Background(), plan.ID)
	assert.Equal(t, 1800.0, stored.Price)
}

func TestPlanSyncService_UpdateMirrorsUnmirroredPlan(t *testing.T) {
	proc := newFakeProcessor()
	plans := newMemoryPlans()
	require.NoError(t, plans.Create(context.Background(), &models.Plan{Name: "Legacy", Price: 100, Currency: "ARS", FrequencyMonths: 1, MaxListings: 1, IsActive: true}))
	svc := NewPlanSyncService(proc, plans, "")

	plan, err := svc.Resync(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, plan.IsMirrored())
	assert.Len(t, proc.createdPlans, 1)

	_, err = svc.Update(context.Background(), 1, PlanInput{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", proc.updatedPlans["plan-ext-1"].Status)
}

func TestPlanSyncService_Validation(t *testing.T) {
	proc := newFakeProcessor()
	svc := NewPlanSyncService(proc, newMemoryPlans(), "")

	in := validInput()
	in.Price = ptr(0.0)
	_, err := svc.Create(context.Background(), in)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, proc.createdPlans)

	_, err = svc.Update(context.Background(), 99, validInput())
	assert.True(t, apperror.IsNotFound(err))
}

func TestPlanSyncService_Checkout(t *testing.T) {
	proc := newFakeProcessor()
	plans := newMemoryPlans()
	svc := NewPlanSyncService(proc, plans, "https://tourmarket.test/return")
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	pre, err := svc.Checkout(context.Background(), plan.ID, 42, "buyer@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, pre.InitPoint)
	require.Len(t, proc.checkouts, 1)
	assert.Equal(t, "subscription_"+itoa(plan.ID)+"_42", proc.checkouts[0].ExternalReference)
	assert.Equal(t, "plan-ext-1", proc.checkouts[0].PreapprovalPlanID)

	_, err = svc.Checkout(context.Background(), plan.ID, 0, "buyer@example.com")
	assert.True(t, apperror.IsValidation(err))
}
