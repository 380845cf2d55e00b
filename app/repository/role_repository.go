package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"gorm.io/gorm"
)

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a role assignment repository backed by GORM.
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) find(ctx context.Context, userID uint, role, source string) (*models.RoleAssignment, error) {
	var ra models.RoleAssignment
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND role = ? AND source = ?", userID, role, source).
		First(&ra).Error
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

func (r *roleRepository) Grant(ctx context.Context, userID uint, role, source string) (bool, error) {
	now := time.Now().UTC()
	existing, err := r.find(ctx, userID, role, source)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ra := &models.RoleAssignment{
			UserID:    userID,
			Role:      role,
			Source:    source,
			IsActive:  true,
			GrantedAt: now,
		}
		err = database.Conn(ctx, r.db).Create(ra).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent grant inserted the active row first.
			return false, nil
		}
		return err == nil, err
	}
	if err != nil {
		return false, err
	}
	if existing.IsActive {
		return false, nil
	}
	err = database.Conn(ctx, r.db).
		Model(&models.RoleAssignment{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"is_active": true, "granted_at": now, "revoked_at": nil}).Error
	return err == nil, err
}

func (r *roleRepository) Revoke(ctx context.Context, userID uint, role, source string) (bool, error) {
	tx := database.Conn(ctx, r.db).
		Model(&models.RoleAssignment{}).
		Where("user_id = ? AND role = ? AND source = ? AND is_active = ?", userID, role, source, true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": time.Now().UTC()})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *roleRepository) ListActive(ctx context.Context, userID uint) ([]models.RoleAssignment, error) {
	var out []models.RoleAssignment
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("role, source").
		Find(&out).Error
	return out, err
}
