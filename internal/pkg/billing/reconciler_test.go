package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
)

type fakeProcessor struct {
	mu           sync.Mutex
	payments     map[string]*Payment
	preapprovals map[string]*Preapproval
	err          error

	createdPlans []PlanSpec
	updatedPlans map[string]PlanSpec
	planErr      error
	checkouts    []PreapprovalRequest
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		payments:     map[string]*Payment{},
		preapprovals: map[string]*Preapproval{},
		updatedPlans: map[string]PlanSpec{},
	}
}

func (f *fakeProcessor) GetPayment(_ context.Context, id string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, &apperror.UpstreamError{Op: "get payment", StatusCode: 404, Err: errors.New("not found")}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProcessor) GetPreapproval(_ context.Context, id string) (*Preapproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.preapprovals[id]
	if !ok {
		return nil, &apperror.UpstreamError{Op: "get preapproval", StatusCode: 404, Err: errors.New("not found")}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProcessor) CreatePreapproval(_ context.Context, req PreapprovalRequest) (*Preapproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	return &Preapproval{ID: "pre-checkout", Status: "pending", ExternalReference: req.ExternalReference, InitPoint: "https://processor.test/checkout"}, nil
}

func (f *fakeProcessor) CreatePreapprovalPlan(_ context.Context, spec PlanSpec) (*ProcessorPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.planErr != nil {
		return nil, f.planErr
	}
	f.createdPlans = append(f.createdPlans, spec)
	return &ProcessorPlan{ID: "plan-ext-1", Status: "active"}, nil
}

func (f *fakeProcessor) UpdatePreapprovalPlan(_ context.Context, id string, spec PlanSpec) (*ProcessorPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.planErr != nil {
		return nil, f.planErr
	}
	f.updatedPlans[id] = spec
	return &ProcessorPlan{ID: ExternalID(id), Status: spec.Status}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Send(_ context.Context, userID uint, e notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.UserID = userID
	d.events = append(d.events, e)
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db         *gorm.DB
	repos      *repository.Repositories
	processor  *fakeProcessor
	coord      *entitlements.Coordinator
	dispatcher *recordingDispatcher
	rec        *Reconciler
	plan       *models.Plan
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	f := &fixture{
		db:         db,
		repos:      repos,
		processor:  newFakeProcessor(),
		dispatcher: &recordingDispatcher{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.coord = entitlements.NewCoordinator(repos.Role, repos.Subscription, entitlements.NewMemoryCache(time.Minute))
	f.rec = NewReconciler(f.processor, repos.Subscription, repos.Plan, f.coord, database.NewUnitOfWork(db), f.dispatcher,
		WithReconcilerClock(func() time.Time { return f.now }))

	f.plan = &models.Plan{Name: "Publisher Monthly", Price: 1500, Currency: "ARS", FrequencyMonths: 1, MaxListings: 5, IsActive: true}
	require.NoError(t, repos.Plan.Create(context.Background(), f.plan))
	return f
}

func (f *fixture) approvedPayment(id string, userID uint) {
	ref, _ := NewCorrelationRef(f.plan.ID, userID)
	f.processor.payments[id] = &Payment{
		ID:                ExternalID(id),
		Status:            PaymentStatusApproved,
		ExternalReference: ref.String(),
		TransactionAmount: 1500,
		CurrencyID:        "ARS",
	}
}

func (f *fixture) subscriptions(t *testing.T, userID uint) []models.Subscription {
	subs, err := f.repos.Subscription.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	return subs
}

func (f *fixture) grants(t *testing.T, userID uint) []models.RoleAssignment {
	var rows []models.RoleAssignment
	require.NoError(t, f.db.Where("user_id = ?", userID).Find(&rows).Error)
	return rows
}

func TestHandlePaymentEvent_ActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)
	f.processor.payments["9001"].Metadata = map[string]any{"preapproval_id": "pre-1"}

	outcome, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, outcome)

	subs := f.subscriptions(t, 42)
	require.Len(t, subs, 1)
	sub := subs[0]
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "9001", sub.ExternalPaymentID)
	require.NotNil(t, sub.ExternalSubscriptionID)
	assert.Equal(t, "pre-1", *sub.ExternalSubscriptionID)
	assert.Equal(t, f.plan.ID, sub.PlanID)
	require.Len(t, sub.StatusHistory, 1)
	assert.Equal(t, PaymentStatusApproved, sub.StatusHistory[0].ExternalStatus)

	has, err := f.coord.HasRole(ctx, 42, entitlements.RolePublisher)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, []string{models.NotificationSubscriptionActive}, f.dispatcher.types())
}

func TestHandlePaymentEvent_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)

	first, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)
	second, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)

	assert.Equal(t, OutcomeActivated, first)
	assert.Equal(t, OutcomeAlreadyActive, second)
	assert.Len(t, f.subscriptions(t, 42), 1)
	assert.Len(t, f.grants(t, 42), 1)
}

func TestHandlePaymentEvent_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.rec.HandlePaymentEvent(ctx, "9001")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.subscriptions(t, 42), 1)
	assert.Len(t, f.grants(t, 42), 1)
}

func TestHandlePaymentEvent_AcknowledgedWithoutMutation(t *testing.T) {
	tests := []struct {
		name    string
		payment *Payment
		want    Outcome
	}{
		{
			name:    "garbage reference",
			payment: &Payment{ID: "1", Status: PaymentStatusApproved, ExternalReference: "garbage"},
			want:    OutcomeInvalidReference,
		},
		{
			name:    "pending payment",
			payment: &Payment{ID: "1", Status: "pending", ExternalReference: "subscription_1_42"},
			want:    OutcomeIgnoredStatus,
		},
		{
			name:    "unknown plan",
			payment: &Payment{ID: "1", Status: PaymentStatusApproved, ExternalReference: "subscription_999_42"},
			want:    OutcomePlanNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.processor.payments["1"] = tt.payment

			outcome, err := f.rec.HandlePaymentEvent(context.Background(), "1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Empty(t, f.subscriptions(t, 42))
			assert.Empty(t, f.grants(t, 42))
			assert.Empty(t, f.dispatcher.types())
		})
	}
}

func TestHandlePaymentEvent_UpstreamFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.processor.err = &apperror.UpstreamError{Op: "get payment", Err: context.DeadlineExceeded}

	_, err := f.rec.HandlePaymentEvent(context.Background(), "9001")
	require.Error(t, err)
	assert.True(t, apperror.IsUpstream(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleSubscriptionStatusEvent_UnknownPreapprovalIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.processor.preapprovals["pre-x"] = &Preapproval{ID: "pre-x", Status: PreapprovalStatusCancelled, ExternalReference: "subscription_1_42", PayerEmail: "a@example.com"}

	outcome, err := f.rec.HandleSubscriptionStatusEvent(context.Background(), "pre-x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscriptionNotFound, outcome)
	assert.Empty(t, f.subscriptions(t, 42))
	assert.Empty(t, f.dispatcher.types())
}

func TestHandleSubscriptionStatusEvent_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)
	f.processor.payments["9001"].PointOfInteraction.TransactionData.SubscriptionID = "pre-1"
	_, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)

	ref := "subscription_" + itoa(f.plan.ID) + "_42"
	f.processor.preapprovals["pre-1"] = &Preapproval{ID: "pre-1", Status: PreapprovalStatusPaused, ExternalReference: ref}
	outcome, err := f.rec.HandleSubscriptionStatusEvent(ctx, "pre-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStatusUpdated, outcome)

	sub, err := f.repos.Subscription.GetByExternalID(ctx, "pre-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPaused, sub.Status)
	// paused does not touch roles
	has, err := f.coord.HasRole(ctx, 42, entitlements.RolePublisher)
	require.NoError(t, err)
	assert.True(t, has)

	f.processor.preapprovals["pre-1"].Status = PreapprovalStatusCancelled
	_, err = f.rec.HandleSubscriptionStatusEvent(ctx, "pre-1")
	require.NoError(t, err)

	sub, err = f.repos.Subscription.GetByExternalID(ctx, "pre-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.NotNil(t, sub.EndDate)
	require.Len(t, sub.StatusHistory, 3)
	assert.Equal(t, PreapprovalStatusCancelled, sub.StatusHistory[2].ExternalStatus)

	has, err = f.coord.HasRole(ctx, 42, entitlements.RolePublisher)
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, []string{
		models.NotificationSubscriptionActive,
		models.NotificationSubscriptionPaused,
		models.NotificationSubscriptionCancelled,
	}, f.dispatcher.types())
}

func TestHandleSubscriptionStatusEvent_RedeliveryAppendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)
	f.processor.payments["9001"].Metadata = map[string]any{"preapproval_id": "pre-1"}
	_, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)

	f.processor.preapprovals["pre-1"] = &Preapproval{ID: "pre-1", Status: PreapprovalStatusAuthorized, ExternalReference: "subscription_" + itoa(f.plan.ID) + "_42"}
	for i := 0; i < 2; i++ {
		_, err := f.rec.HandleSubscriptionStatusEvent(ctx, "pre-1")
		require.NoError(t, err)
	}

	sub, err := f.repos.Subscription.GetByExternalID(ctx, "pre-1")
	require.NoError(t, err)
	assert.Len(t, sub.StatusHistory, 2)
	assert.Len(t, f.grants(t, 42), 1)
}

func TestHandleSubscriptionStatusEvent_LinksUnlinkedSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)
	_, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)

	f.processor.preapprovals["pre-9"] = &Preapproval{ID: "pre-9", Status: PreapprovalStatusAuthorized, ExternalReference: "subscription_" + itoa(f.plan.ID) + "_42"}
	outcome, err := f.rec.HandleSubscriptionStatusEvent(ctx, "pre-9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStatusUpdated, outcome)

	sub, err := f.repos.Subscription.GetByExternalID(ctx, "pre-9")
	require.NoError(t, err)
	assert.Equal(t, uint(42), sub.UserID)
}

func TestHandleSubscriptionStatusEvent_UnmappedStatusIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approvedPayment("9001", 42)
	f.processor.payments["9001"].Metadata = map[string]any{"preapproval_id": "pre-1"}
	_, err := f.rec.HandlePaymentEvent(ctx, "9001")
	require.NoError(t, err)

	f.processor.preapprovals["pre-1"] = &Preapproval{ID: "pre-1", Status: "pending", ExternalReference: "subscription_" + itoa(f.plan.ID) + "_42"}
	outcome, err := f.rec.HandleSubscriptionStatusEvent(ctx, "pre-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmappedStatus, outcome)

	sub, err := f.repos.Subscription.GetByExternalID(ctx, "pre-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Len(t, sub.StatusHistory, 1)
}

func TestHandleSubscriptionStatusEvent_InvalidReference(t *testing.T) {
	f := newFixture(t)
	f.processor.preapprovals["pre-1"] = &Preapproval{ID: "pre-1", Status: PreapprovalStatusAuthorized, ExternalReference: "subscription_x_1"}

	outcome, err := f.rec.HandleSubscriptionStatusEvent(context.Background(), "pre-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidReference, outcome)
}

type fakeBookings struct {
	calls []uint
	err   error
}

func (b *fakeBookings) Apply(_ context.Context, id uint, action booking.Action, userID uint) (*booking.Outcome, error) {
	if action != booking.ActionConfirmPayment || userID != 0 {
		return nil, errors.New("unexpected call")
	}
	b.calls = append(b.calls, id)
	if b.err != nil {
		return nil, b.err
	}
	return &booking.Outcome{Booking: &models.Booking{ID: id, Status: models.BookingStatusPaid}}, nil
}

func TestHandlePaymentEvent_BookingReference(t *testing.T) {
	f := newFixture(t)
	bookings := &fakeBookings{}
	f.rec.bookings = bookings
	f.processor.payments["77"] = &Payment{ID: "77", Status: PaymentStatusApproved, ExternalReference: "booking_15", TransactionAmount: 300}

	outcome, err := f.rec.HandlePaymentEvent(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBookingPaid, outcome)
	assert.Equal(t, []uint{15}, bookings.calls)

	bookings.err = &apperror.ConflictError{From: "cancelled", Attempted: "confirm_payment"}
	outcome, err = f.rec.HandlePaymentEvent(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBookingRejected, outcome)

	bookings.err = errors.New("db down")
	_, err = f.rec.HandlePaymentEvent(context.Background(), "77")
	assert.Error(t, err)
}
