package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type SnackRepo interface {
	WithTx(tx *gorm.DB) SnackRepo
	GetByIDs(ctx context.Context, ids []uint) ([]model.Snack, error)
}

type snackRepoGorm struct {
	db *gorm.DB
}

var _ SnackRepo = (*snackRepoGorm)(nil)

func NewSnackRepoGorm(db *gorm.DB) *snackRepoGorm {
	return &snackRepoGorm{
		db: db,
	}
}

func (r *snackRepoGorm) WithTx(tx *gorm.DB) SnackRepo {
	return &snackRepoGorm{
		db: tx,
	}
}

func (r *snackRepoGorm) GetByIDs(ctx context.Context, ids []uint) ([]model.Snack, error) {
	var snacks []model.Snack
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&snacks).Error
	if err != nil {
		return nil, err
	}
	return snacks, nil
}
