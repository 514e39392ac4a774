package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service"
)

// PricingService loads the active pricing rules. Rule evaluation itself is
// a pure function on RuleSet so it can run outside any lock or transaction.
type PricingService interface {
	ActiveRules(ctx context.Context) (*RuleSet, error)
	ComputePrice(ctx context.Context, pc PriceContext) (PriceQuote, error)
}

type pricingService struct {
	db   *gorm.DB
	repo repository.PricingRepo
}

var _ PricingService = (*pricingService)(nil)

func NewPricingService(db *gorm.DB, pricingRepo repository.PricingRepo) *pricingService {
	return &pricingService{
		db:   db,
		repo: pricingRepo,
	}
}

func (s *pricingService) ActiveRules(ctx context.Context) (*RuleSet, error) {
	base, err := s.repo.ActiveBasePrice(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrNoActivePriceBase
		}
		return nil, err
	}

	modifiers, err := s.repo.ActiveModifiers(ctx)
	if err != nil {
		return nil, err
	}

	return &RuleSet{
		Base:      *base,
		Modifiers: modifiers,
	}, nil
}

// ComputePrice quotes a single seat against the rules active right now.
// Callers pricing many seats should take one ActiveRules snapshot instead.
func (s *pricingService) ComputePrice(ctx context.Context, pc PriceContext) (PriceQuote, error) {
	rules, err := s.ActiveRules(ctx)
	if err != nil {
		return PriceQuote{}, err
	}
	return rules.Quote(pc), nil
}

// RuleSet is one consistent snapshot of the active base price and
// modifiers. Quotes computed from the same snapshot are identical.
type RuleSet struct {
	Base      model.PriceBase
	Modifiers []model.PriceModifier
}

// PriceContext carries the attributes a modifier condition can match on.
type PriceContext struct {
	StartAt  time.Time
	Format   string
	RoomType string
	SeatType string
}

// PriceStep is one applied rule in a quote breakdown.
type PriceStep struct {
	Rule       string  `json:"rule"`
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	PriceAfter float64 `json:"price_after"`
}

// PriceQuote is the final price and the ordered steps that produced it.
type PriceQuote struct {
	Price float64
	Steps []PriceStep
}

// Modifiers apply in a fixed condition-type order so the same rule set
// always yields the same price regardless of row creation order. Within a
// condition type, rows apply in name order (the repo sorts them).
var conditionOrder = []model.ConditionType{
	model.ConditionDayType,
	model.ConditionTimeRange,
	model.ConditionFormat,
	model.ConditionRoomType,
	model.ConditionSeatType,
}

// Quote computes the price for one seat. Percentage modifiers compound on
// the running price; fixed amounts add to it. The result never drops below
// zero.
func (rs *RuleSet) Quote(pc PriceContext) PriceQuote {
	price := rs.Base.BasePrice
	steps := []PriceStep{
		{
			Rule:       rs.Base.Name,
			Type:       "BASE",
			Value:      rs.Base.BasePrice,
			PriceAfter: price,
		},
	}

	for _, conditionType := range conditionOrder {
		for _, m := range rs.Modifiers {
			if m.ConditionType != conditionType || !matchesCondition(m, pc) {
				continue
			}
			switch m.ModifierType {
			case model.ModifierPercentage:
				price = price * (1 + m.ModifierValue/100)
			case model.ModifierFixedAmount:
				price = price + m.ModifierValue
			}
			steps = append(steps, PriceStep{
				Rule:       m.Name,
				Type:       string(m.ModifierType),
				Value:      m.ModifierValue,
				PriceAfter: price,
			})
		}
	}

	if price < 0 {
		price = 0
		steps = append(steps, PriceStep{
			Rule:       "floor",
			Type:       "FLOOR",
			Value:      0,
			PriceAfter: 0,
		})
	}

	return PriceQuote{Price: price, Steps: steps}
}

// Breakdown renders the steps as JSON for persistence next to the frozen
// price.
func (q PriceQuote) Breakdown() string {
	data, err := json.Marshal(q.Steps)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func matchesCondition(m model.PriceModifier, pc PriceContext) bool {
	switch m.ConditionType {
	case model.ConditionDayType:
		return strings.EqualFold(m.ConditionValue, dayTypeOf(pc.StartAt))
	case model.ConditionTimeRange:
		return strings.EqualFold(m.ConditionValue, timeBucketOf(pc.StartAt))
	case model.ConditionFormat:
		return strings.Contains(strings.ToUpper(pc.Format), strings.ToUpper(m.ConditionValue))
	case model.ConditionRoomType:
		return strings.EqualFold(m.ConditionValue, pc.RoomType)
	case model.ConditionSeatType:
		return strings.EqualFold(m.ConditionValue, pc.SeatType)
	}
	return false
}

func dayTypeOf(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return "WEEKEND"
	default:
		return "WEEKDAY"
	}
}

func timeBucketOf(t time.Time) string {
	hour := t.Hour()
	switch {
	case hour >= 6 && hour < 12:
		return "MORNING"
	case hour >= 12 && hour < 17:
		return "AFTERNOON"
	case hour >= 17 && hour < 22:
		return "EVENING"
	default:
		return "NIGHT"
	}
}
