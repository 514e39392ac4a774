package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type PaymentRepo interface {
	WithTx(tx *gorm.DB) PaymentRepo
	Create(ctx context.Context, payment *model.Payment) error
	GetByBooking(ctx context.Context, bookingID uint) (*model.Payment, error)
}

type paymentRepoGorm struct {
	db *gorm.DB
}

var _ PaymentRepo = (*paymentRepoGorm)(nil)

func NewPaymentRepoGorm(db *gorm.DB) *paymentRepoGorm {
	return &paymentRepoGorm{
		db: db,
	}
}

func (r *paymentRepoGorm) WithTx(tx *gorm.DB) PaymentRepo {
	return &paymentRepoGorm{
		db: tx,
	}
}

func (r *paymentRepoGorm) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoGorm) GetByBooking(ctx context.Context, bookingID uint) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
