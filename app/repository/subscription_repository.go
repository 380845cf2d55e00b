package repository

import (
	"context"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"gorm.io/gorm"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := database.Conn(ctx, r.db).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetActiveByUser(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByExternalID(ctx context.Context, externalSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := database.Conn(ctx, r.db).
		Where("external_subscription_id = ?", externalSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := database.Conn(ctx, r.db).Where("user_id = ?", userID).Order("id").Find(&subs).Error
	return subs, err
}

// Create inserts a subscription. A second active subscription for the same
// user fails with gorm.ErrDuplicatedKey.
func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return database.Conn(ctx, r.db).Create(sub).Error
}

// Update saves the full row in one statement.
func (r *subscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	return database.Conn(ctx, r.db).Save(sub).Error
}
