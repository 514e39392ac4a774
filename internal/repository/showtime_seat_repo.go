package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type ShowtimeSeatRepo interface {
	WithTx(tx *gorm.DB) ShowtimeSeatRepo
	GetByIDsAndShowtime(ctx context.Context, ids []uint, showtimeID uint) ([]model.ShowtimeSeat, error)
	GetByShowtime(ctx context.Context, showtimeID uint) ([]model.ShowtimeSeat, error)
	UpdateStatus(ctx context.Context, ids []uint, status model.SeatStatus) error
	UpdateQuote(ctx context.Context, id uint, price float64, breakdown string) error
}

type showtimeSeatRepoGorm struct {
	db *gorm.DB
}

var _ ShowtimeSeatRepo = (*showtimeSeatRepoGorm)(nil)

func NewShowtimeSeatRepoGorm(db *gorm.DB) *showtimeSeatRepoGorm {
	return &showtimeSeatRepoGorm{
		db: db,
	}
}

func (r *showtimeSeatRepoGorm) WithTx(tx *gorm.DB) ShowtimeSeatRepo {
	return &showtimeSeatRepoGorm{
		db: tx,
	}
}

func (r *showtimeSeatRepoGorm) GetByIDsAndShowtime(ctx context.Context, ids []uint, showtimeID uint) ([]model.ShowtimeSeat, error) {
	var seats []model.ShowtimeSeat
	err := r.db.WithContext(ctx).
		Preload("Seat").
		Where("id IN ? AND showtime_id = ?", ids, showtimeID).
		Find(&seats).Error
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *showtimeSeatRepoGorm) GetByShowtime(ctx context.Context, showtimeID uint) ([]model.ShowtimeSeat, error) {
	var seats []model.ShowtimeSeat
	err := r.db.WithContext(ctx).
		Preload("Seat").
		Where("showtime_id = ?", showtimeID).
		Order("id").
		Find(&seats).Error
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *showtimeSeatRepoGorm) UpdateStatus(ctx context.Context, ids []uint, status model.SeatStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.ShowtimeSeat{}).
		Where("id IN ?", ids).
		Update("status", status).Error
}

func (r *showtimeSeatRepoGorm) UpdateQuote(ctx context.Context, id uint, price float64, breakdown string) error {
	return r.db.WithContext(ctx).
		Model(&model.ShowtimeSeat{}).
		Where("id = ?", id).
		Updates(map[string]any{"price": price, "price_breakdown": breakdown}).Error
}
