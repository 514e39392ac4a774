package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type SeatLockRepo interface {
	WithTx(tx *gorm.DB) SeatLockRepo
	Create(ctx context.Context, lock *model.SeatLock) error
	Save(ctx context.Context, lock *model.SeatLock) error
	GetByID(ctx context.Context, id uint) (*model.SeatLock, error)
	FindActiveByOwner(ctx context.Context, ownerID string) ([]model.SeatLock, error)
	FindExpired(ctx context.Context, now time.Time) ([]model.SeatLock, error)
}

type seatLockRepoGorm struct {
	db *gorm.DB
}

var _ SeatLockRepo = (*seatLockRepoGorm)(nil)

func NewSeatLockRepoGorm(db *gorm.DB) *seatLockRepoGorm {
	return &seatLockRepoGorm{
		db: db,
	}
}

func (r *seatLockRepoGorm) WithTx(tx *gorm.DB) SeatLockRepo {
	return &seatLockRepoGorm{
		db: tx,
	}
}

func (r *seatLockRepoGorm) Create(ctx context.Context, lock *model.SeatLock) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

func (r *seatLockRepoGorm) Save(ctx context.Context, lock *model.SeatLock) error {
	return r.db.WithContext(ctx).Save(lock).Error
}

func (r *seatLockRepoGorm) GetByID(ctx context.Context, id uint) (*model.SeatLock, error) {
	var lock model.SeatLock
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Preload("Seats.ShowtimeSeat").
		Preload("Seats.ShowtimeSeat.Seat").
		First(&lock, id).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *seatLockRepoGorm) FindActiveByOwner(ctx context.Context, ownerID string) ([]model.SeatLock, error) {
	var locks []model.SeatLock
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("lock_owner_id = ? AND active = ?", ownerID, true).
		Find(&locks).Error
	if err != nil {
		return nil, err
	}
	return locks, nil
}

func (r *seatLockRepoGorm) FindExpired(ctx context.Context, now time.Time) ([]model.SeatLock, error) {
	var locks []model.SeatLock
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("active = ? AND expires_at < ?", true, now).
		Find(&locks).Error
	if err != nil {
		return nil, err
	}
	return locks, nil
}
