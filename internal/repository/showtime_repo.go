package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type ShowtimeRepo interface {
	WithTx(tx *gorm.DB) ShowtimeRepo
	GetByID(ctx context.Context, id uint) (*model.Showtime, error)
	Exists(ctx context.Context, id uint) (bool, error)
}

type showtimeRepoGorm struct {
	db *gorm.DB
}

var _ ShowtimeRepo = (*showtimeRepoGorm)(nil)

func NewShowtimeRepoGorm(db *gorm.DB) *showtimeRepoGorm {
	return &showtimeRepoGorm{
		db: db,
	}
}

func (r *showtimeRepoGorm) WithTx(tx *gorm.DB) ShowtimeRepo {
	return &showtimeRepoGorm{
		db: tx,
	}
}

func (r *showtimeRepoGorm) GetByID(ctx context.Context, id uint) (*model.Showtime, error) {
	var showtime model.Showtime
	err := r.db.WithContext(ctx).Preload("Room").First(&showtime, id).Error
	if err != nil {
		return nil, err
	}
	return &showtime, nil
}

func (r *showtimeRepoGorm) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Showtime{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
