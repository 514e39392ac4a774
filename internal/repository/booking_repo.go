package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type BookingRepo interface {
	WithTx(tx *gorm.DB) BookingRepo
	Create(ctx context.Context, booking *model.Booking) error
	Save(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id uint) (*model.Booking, error)
	FindByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
	FindPendingPaymentExpired(ctx context.Context, now time.Time) ([]model.Booking, error)
}

type bookingRepoGorm struct {
	db *gorm.DB
}

var _ BookingRepo = (*bookingRepoGorm)(nil)

func NewBookingRepoGorm(db *gorm.DB) *bookingRepoGorm {
	return &bookingRepoGorm{
		db: db,
	}
}

func (r *bookingRepoGorm) WithTx(tx *gorm.DB) BookingRepo {
	return &bookingRepoGorm{
		db: tx,
	}
}

func (r *bookingRepoGorm) Create(ctx context.Context, booking *model.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *bookingRepoGorm) Save(ctx context.Context, booking *model.Booking) error {
	return r.db.WithContext(ctx).Save(booking).Error
}

func (r *bookingRepoGorm) GetByID(ctx context.Context, id uint) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Preload("Snacks").
		First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepoGorm) FindByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("lock_owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepoGorm) FindPendingPaymentExpired(ctx context.Context, now time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("status = ? AND payment_expires_at < ?", model.BookingPendingPayment, now).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
