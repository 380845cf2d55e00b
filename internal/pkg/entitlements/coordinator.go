package entitlements

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
)

// ActiveSubscriptions reports a user's active subscription.
type ActiveSubscriptions interface {
	GetActiveByUser(ctx context.Context, userID uint) (*models.Subscription, error)
}

// Coordinator keeps subscription-sourced roles in line with subscription
// state and answers role checks through the authorization cache.
type Coordinator struct {
	roles repository.RoleRepository
	subs  ActiveSubscriptions
	cache AuthzCache
}

func NewCoordinator(roles repository.RoleRepository, subs ActiveSubscriptions, cache AuthzCache) *Coordinator {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Coordinator{roles: roles, subs: subs, cache: cache}
}

// OnActivated grants the publisher role from the subscription source. It is
// a no-op when the grant is already active.
func (c *Coordinator) OnActivated(ctx context.Context, userID uint) error {
	defer c.invalidateAfterCommit(ctx, userID)

	changed, err := c.roles.Grant(ctx, userID, string(RolePublisher), models.RoleSourceSubscription)
	if err != nil {
		return fmt.Errorf("grant %s to user %d: %w", RolePublisher, userID, err)
	}
	if changed {
		log.Infow("[Entitlements] role granted", "user_id", userID, "role", RolePublisher, "source", models.RoleSourceSubscription)
	}
	return nil
}

// OnCancelled re-evaluates the subscription-sourced grant. It is revoked only
// when no active subscription remains; grants from other sources are never
// touched.
func (c *Coordinator) OnCancelled(ctx context.Context, userID uint) error {
	defer c.invalidateAfterCommit(ctx, userID)

	active, err := c.subs.GetActiveByUser(ctx, userID)
	switch {
	case err == nil && active != nil:
		log.Infow("[Entitlements] role kept, another subscription is active", "user_id", userID, "subscription_id", active.ID)
		return nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("check active subscription for user %d: %w", userID, err)
	}

	changed, err := c.roles.Revoke(ctx, userID, string(RolePublisher), models.RoleSourceSubscription)
	if err != nil {
		return fmt.Errorf("revoke %s from user %d: %w", RolePublisher, userID, err)
	}
	if changed {
		log.Infow("[Entitlements] subscription grant revoked", "user_id", userID, "role", RolePublisher)
	}
	return nil
}

// Roles returns the user's evaluated role set, reading through the cache.
func (c *Coordinator) Roles(ctx context.Context, userID uint) (RoleSet, error) {
	if set, ok := c.cache.Get(ctx, userID); ok {
		return set, nil
	}
	assignments, err := c.roles.ListActive(ctx, userID)
	if err != nil {
		return RoleSet{}, fmt.Errorf("load roles for user %d: %w", userID, err)
	}
	set := FromAssignments(assignments)
	c.cache.Set(ctx, userID, set)
	return set, nil
}

// HasRole is the only role query callers should use.
func (c *Coordinator) HasRole(ctx context.Context, userID uint, role Role) (bool, error) {
	set, err := c.Roles(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(role), nil
}

// GrantManual activates a manual grant, used by operators.
func (c *Coordinator) GrantManual(ctx context.Context, userID uint, role Role) error {
	defer c.invalidateAfterCommit(ctx, userID)
	_, err := c.roles.Grant(ctx, userID, string(role), models.RoleSourceManual)
	return err
}

// RevokeManual deactivates a manual grant.
func (c *Coordinator) RevokeManual(ctx context.Context, userID uint, role Role) error {
	defer c.invalidateAfterCommit(ctx, userID)
	_, err := c.roles.Revoke(ctx, userID, string(role), models.RoleSourceManual)
	return err
}

// Invalidate drops the cached view of userID.
func (c *Coordinator) Invalidate(ctx context.Context, userID uint) {
	if err := c.cache.Invalidate(ctx, userID); err != nil {
		log.Warnw("[Entitlements] cache invalidation failed", "user_id", userID, "error", err)
	}
}

// invalidateAfterCommit clears the cache now and again once the surrounding
// transaction commits, so no reader caches the pre-commit state.
func (c *Coordinator) invalidateAfterCommit(ctx context.Context, userID uint) {
	c.Invalidate(ctx, userID)
	database.AfterCommit(ctx, func() {
		c.Invalidate(context.WithoutCancel(ctx), userID)
	})
}
