package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/TourMarket/app/models"
	"gorm.io/gorm"
)

// ErrStaleStatus is returned by BookingRepository.UpdateStatus when the
// stored status no longer matches the expected source status.
var ErrStaleStatus = errors.New("booking status changed concurrently")

// UserRepository defines the user lookups needed by API authentication
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	TouchAPIKeyUsage(ctx context.Context, id uint) error
}

// BookingRepository defines booking persistence. Status changes go through
// UpdateStatus only.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
	// UpdateStatus writes status, transition timestamps and cancellation
	// figures atomically if the stored status still equals expected.
	UpdateStatus(ctx context.Context, booking *models.Booking, expected models.BookingStatus) error
	ListByClient(ctx context.Context, clientID uint, offset, limit int) ([]models.Booking, error)
	ListByOwner(ctx context.Context, ownerID uint, offset, limit int) ([]models.Booking, error)
}

// SubscriptionRepository defines subscription persistence
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	GetActiveByUser(ctx context.Context, userID uint) (*models.Subscription, error)
	GetByExternalID(ctx context.Context, externalSubscriptionID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
}

// PlanRepository defines the local plan catalog
type PlanRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
}

// RoleRepository stores role assignments per user and source
type RoleRepository interface {
	// Grant activates the assignment and reports whether anything changed.
	Grant(ctx context.Context, userID uint, role, source string) (bool, error)
	// Revoke deactivates the assignment and reports whether anything changed.
	Revoke(ctx context.Context, userID uint, role, source string) (bool, error)
	ListActive(ctx context.Context, userID uint) ([]models.RoleAssignment, error)
}

// NotificationRepository stores in-app notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
}

// WebhookEventRepository records inbound processor deliveries
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless (provider, provider_event_id)
	// exists and returns the stored row either way.
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Booking      BookingRepository
	Subscription SubscriptionRepository
	Plan         PlanRepository
	Role         RoleRepository
	Notification NotificationRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Booking:      NewBookingRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Plan:         NewPlanRepository(db),
		Role:         NewRoleRepository(db),
		Notification: NewNotificationRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
