package repository

import (
	"context"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"gorm.io/gorm"
)

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates the plan catalog repository
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) GetByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := database.Conn(ctx, r.db).First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	q := database.Conn(ctx, r.db).Order("price ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&plans).Error
	return plans, err
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	return database.Conn(ctx, r.db).Create(plan).Error
}

func (r *planRepository) Update(ctx context.Context, plan *models.Plan) error {
	return database.Conn(ctx, r.db).Save(plan).Error
}
