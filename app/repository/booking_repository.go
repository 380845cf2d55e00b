package repository

import (
	"context"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"gorm.io/gorm"
)

type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	return database.Conn(ctx, r.db).Create(booking).Error
}

func (r *bookingRepository) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := database.Conn(ctx, r.db).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateStatus is a compare-and-set on the status column. Zero rows affected
// means another request moved the booking first.
func (r *bookingRepository) UpdateStatus(ctx context.Context, booking *models.Booking, expected models.BookingStatus) error {
	updates := map[string]interface{}{
		"status":               booking.Status,
		"accepted_at":          booking.AcceptedAt,
		"declined_at":          booking.DeclinedAt,
		"payment_requested_at": booking.PaymentRequestedAt,
		"paid_at":              booking.PaidAt,
		"cancelled_at":         booking.CancelledAt,
		"completed_at":         booking.CompletedAt,
		"cancelled_by":         booking.CancelledBy,
		"penalty_amount":       booking.PenaltyAmount,
		"refund_amount":        booking.RefundAmount,
	}
	tx := database.Conn(ctx, r.db).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", booking.ID, expected).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *bookingRepository) ListByClient(ctx context.Context, clientID uint, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := database.Conn(ctx, r.db).
		Where("client_id = ?", clientID).
		Order("start_date DESC").
		Offset(offset).Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) ListByOwner(ctx context.Context, ownerID uint, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := database.Conn(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Order("start_date DESC").
		Offset(offset).Limit(limit).
		Find(&bookings).Error
	return bookings, err
}
