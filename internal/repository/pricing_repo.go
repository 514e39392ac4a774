package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type PricingRepo interface {
	WithTx(tx *gorm.DB) PricingRepo
	ActiveBasePrice(ctx context.Context) (*model.PriceBase, error)
	ActiveModifiers(ctx context.Context) ([]model.PriceModifier, error)
}

type pricingRepoGorm struct {
	db *gorm.DB
}

var _ PricingRepo = (*pricingRepoGorm)(nil)

func NewPricingRepoGorm(db *gorm.DB) *pricingRepoGorm {
	return &pricingRepoGorm{
		db: db,
	}
}

func (r *pricingRepoGorm) WithTx(tx *gorm.DB) PricingRepo {
	return &pricingRepoGorm{
		db: tx,
	}
}

func (r *pricingRepoGorm) ActiveBasePrice(ctx context.Context) (*model.PriceBase, error) {
	var base model.PriceBase
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&base).Error
	if err != nil {
		return nil, err
	}
	return &base, nil
}

func (r *pricingRepoGorm) ActiveModifiers(ctx context.Context) ([]model.PriceModifier, error) {
	var modifiers []model.PriceModifier
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name, id").
		Find(&modifiers).Error
	if err != nil {
		return nil, err
	}
	return modifiers, nil
}
