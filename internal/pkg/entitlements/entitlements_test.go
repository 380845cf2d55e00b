package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database/dbtest"
)

type fixture struct {
	repos *repository.Repositories
	cache *MemoryCache
	coord *Coordinator
	uow   database.UnitOfWork
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	cache := NewMemoryCache(time.Minute)
	return &fixture{
		repos: repos,
		cache: cache,
		coord: NewCoordinator(repos.Role, repos.Subscription, cache),
		uow:   database.NewUnitOfWork(db),
	}
}

func activeSub(userID, planID uint) *models.Subscription {
	return &models.Subscription{UserID: userID, PlanID: planID, Status: models.SubscriptionStatusActive, Amount: 10, Currency: "ARS", StartDate: time.Now().UTC()}
}

func TestRoleSet(t *testing.T) {
	set := RoleSet{Grants: []Grant{
		{Role: RolePublisher, Source: models.RoleSourceSubscription, Active: false},
		{Role: RoleAdmin, Source: models.RoleSourceManual, Active: true},
		{Role: RolePublisher, Source: models.RoleSourceManual, Active: true},
	}}
	assert.True(t, set.Has(RolePublisher))
	assert.True(t, set.Has(RoleAdmin))
	assert.Equal(t, []Role{RoleAdmin, RolePublisher}, set.Effective())

	assert.False(t, RoleSet{}.Has(RolePublisher))
	_, ok := ParseRole("superuser")
	assert.False(t, ok)
}

func TestOnActivatedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.OnActivated(ctx, 7))
	require.NoError(t, f.coord.OnActivated(ctx, 7))

	assignments, err := f.repos.Role.ListActive(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)

	ok, err := f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActivationInvalidatesCachedView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.False(t, ok)
	_, cached := f.cache.Get(ctx, 7)
	assert.True(t, cached)

	require.NoError(t, f.uow.Do(ctx, func(ctx context.Context) error {
		return f.coord.OnActivated(ctx, 7)
	}))

	_, cached = f.cache.Get(ctx, 7)
	assert.False(t, cached)
	ok, err = f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOnCancelledRevokesWhenNoActiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.OnActivated(ctx, 7))
	require.NoError(t, f.coord.OnCancelled(ctx, 7))

	ok, err := f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOnCancelledKeepsRoleWhileAnotherSubscriptionIsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.OnActivated(ctx, 7))
	require.NoError(t, f.repos.Subscription.Create(ctx, activeSub(7, 2)))

	require.NoError(t, f.coord.OnCancelled(ctx, 7))

	ok, err := f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOnCancelledKeepsManualGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.GrantManual(ctx, 7, RolePublisher))
	require.NoError(t, f.coord.OnActivated(ctx, 7))
	require.NoError(t, f.coord.OnCancelled(ctx, 7))

	ok, err := f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.coord.RevokeManual(ctx, 7, RolePublisher))
	ok, err = f.coord.HasRole(ctx, 7, RolePublisher)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, 1, RoleSet{Grants: []Grant{{Role: RoleAdmin, Active: true}}})
	_, ok := c.Get(ctx, 1)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok)
}
