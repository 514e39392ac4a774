package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service"
)

// DiscountResult is the order-level discount against a subtotal. The
// membership and promotion parts are computed independently against the
// same subtotal and summed; neither sees the other's reduction.
type DiscountResult struct {
	TotalDiscount      float64
	DiscountReason     string
	MembershipDiscount float64
	PromotionDiscount  float64
}

type DiscountService interface {
	Resolve(ctx context.Context, userID *uint, promoCode string, subtotal float64) (*DiscountResult, error)
}

type discountService struct {
	db            *gorm.DB
	userRepo      repository.UserRepo
	promotionRepo repository.PromotionRepo

	now func() time.Time
}

var _ DiscountService = (*discountService)(nil)

func NewDiscountService(db *gorm.DB, userRepo repository.UserRepo, promotionRepo repository.PromotionRepo) *discountService {
	return &discountService{
		db:            db,
		userRepo:      userRepo,
		promotionRepo: promotionRepo,
		now:           time.Now,
	}
}

// Resolve computes the discount for an order subtotal. A nil userID and an
// empty promo code yield a zero result. An unknown, inactive or
// out-of-window promo code is a not-found error so the caller can tell the
// customer instead of silently charging full price.
func (s *discountService) Resolve(ctx context.Context, userID *uint, promoCode string, subtotal float64) (*DiscountResult, error) {
	result := &DiscountResult{}
	var reasons []string

	if userID != nil {
		amount, reason, err := s.membershipDiscount(ctx, *userID, subtotal)
		if err != nil {
			return nil, err
		}
		if amount > 0 {
			result.MembershipDiscount = amount
			reasons = append(reasons, reason)
		}
	}

	if promoCode != "" {
		amount, reason, err := s.promotionDiscount(ctx, promoCode, subtotal)
		if err != nil {
			return nil, err
		}
		if amount > 0 {
			result.PromotionDiscount = amount
			reasons = append(reasons, reason)
		}
	}

	result.TotalDiscount = result.MembershipDiscount + result.PromotionDiscount
	if result.TotalDiscount > subtotal {
		result.TotalDiscount = subtotal
	}
	result.DiscountReason = strings.Join(reasons, "; ")
	return result, nil
}

func (s *discountService) membershipDiscount(ctx context.Context, userID uint, subtotal float64) (float64, string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", &service.NotFoundError{Resource: "user", Key: userID}
		}
		return 0, "", err
	}

	tier := user.MembershipTier
	if tier == nil || !tier.IsActive || tier.DiscountType == nil || tier.DiscountValue == nil {
		return 0, "", nil
	}

	amount := discountAmount(*tier.DiscountType, *tier.DiscountValue, subtotal)
	reason := fmt.Sprintf("membership %s %s", tier.Name, discountLabel(*tier.DiscountType, *tier.DiscountValue))
	return amount, reason, nil
}

func (s *discountService) promotionDiscount(ctx context.Context, code string, subtotal float64) (float64, string, error) {
	promotion, err := s.promotionRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", &service.NotFoundError{Resource: "promotion", Key: code}
		}
		return 0, "", err
	}

	now := s.now()
	if !promotion.IsActive || now.Before(promotion.StartDate) || now.After(promotion.EndDate) {
		return 0, "", &service.NotFoundError{Resource: "promotion", Key: code}
	}

	amount := discountAmount(promotion.DiscountType, promotion.DiscountValue, subtotal)
	reason := fmt.Sprintf("promotion %s %s", promotion.Code, discountLabel(promotion.DiscountType, promotion.DiscountValue))
	return amount, reason, nil
}

func discountAmount(discountType model.DiscountType, value, subtotal float64) float64 {
	var amount float64
	switch discountType {
	case model.DiscountPercentage:
		amount = subtotal * value / 100
	case model.DiscountFixedAmount:
		amount = value
	}
	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

func discountLabel(discountType model.DiscountType, value float64) string {
	if discountType == model.DiscountPercentage {
		return fmt.Sprintf("-%g%%", value)
	}
	return fmt.Sprintf("-%g", value)
}
