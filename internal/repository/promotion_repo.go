package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type PromotionRepo interface {
	WithTx(tx *gorm.DB) PromotionRepo
	GetByCode(ctx context.Context, code string) (*model.Promotion, error)
}

type promotionRepoGorm struct {
	db *gorm.DB
}

var _ PromotionRepo = (*promotionRepoGorm)(nil)

func NewPromotionRepoGorm(db *gorm.DB) *promotionRepoGorm {
	return &promotionRepoGorm{
		db: db,
	}
}

func (r *promotionRepoGorm) WithTx(tx *gorm.DB) PromotionRepo {
	return &promotionRepoGorm{
		db: tx,
	}
}

func (r *promotionRepoGorm) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
	var promotion model.Promotion
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&promotion).Error
	if err != nil {
		return nil, err
	}
	return &promotion, nil
}
