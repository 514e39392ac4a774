package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
)

type UserRepo interface {
	WithTx(tx *gorm.DB) UserRepo
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type userRepoGorm struct {
	db *gorm.DB
}

var _ UserRepo = (*userRepoGorm)(nil)

func NewUserRepoGorm(db *gorm.DB) *userRepoGorm {
	return &userRepoGorm{
		db: db,
	}
}

func (r *userRepoGorm) WithTx(tx *gorm.DB) UserRepo {
	return &userRepoGorm{
		db: tx,
	}
}

func (r *userRepoGorm) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("MembershipTier").First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
