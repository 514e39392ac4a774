package model

import (
	"time"
)

// PriceBase is the single active starting ticket price. Pricing eras are
// new rows, never in-place edits, so historical breakdowns stay
// reproducible.
type PriceBase struct {
	ID        uint    `gorm:"primaryKey"`
	Name      string  `gorm:"size:100;not null"`
	BasePrice float64 `gorm:"not null"`
	IsActive  bool    `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// PriceModifier is a conditional price adjustment rule. Everything except
// IsActive is immutable once created: a new rule means a new row.
type PriceModifier struct {
	ID             uint          `gorm:"primaryKey"`
	Name           string        `gorm:"size:100;not null"`
	ConditionType  ConditionType `gorm:"type:varchar(16);not null"`
	ConditionValue string        `gorm:"size:32;not null"`
	ModifierType   ModifierType  `gorm:"type:varchar(16);not null"`
	ModifierValue  float64       `gorm:"not null"`
	IsActive       bool          `gorm:"not null;default:true"`
	CreatedAt      time.Time
}

type ConditionType string

const (
	ConditionDayType   ConditionType = "DAY_TYPE"   // WEEKEND, WEEKDAY
	ConditionTimeRange ConditionType = "TIME_RANGE" // MORNING, AFTERNOON, EVENING, NIGHT
	ConditionFormat    ConditionType = "FORMAT"     // 2D, 3D, IMAX, 4DX
	ConditionRoomType  ConditionType = "ROOM_TYPE"  // STANDARD, VIP, IMAX, STARIUM
	ConditionSeatType  ConditionType = "SEAT_TYPE"  // NORMAL, VIP, COUPLE
)

type ModifierType string

const (
	ModifierPercentage  ModifierType = "PERCENTAGE"
	ModifierFixedAmount ModifierType = "FIXED_AMOUNT"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Promotion is an order-level discount redeemed by code at preview or
// confirm time.
type Promotion struct {
	ID            uint         `gorm:"primaryKey"`
	Code          string       `gorm:"size:32;not null;uniqueIndex"`
	Name          string       `gorm:"size:100;not null"`
	DiscountType  DiscountType `gorm:"type:varchar(16);not null"`
	DiscountValue float64      `gorm:"not null"`
	StartDate     time.Time    `gorm:"not null"`
	EndDate       time.Time    `gorm:"not null"`
	IsActive      bool         `gorm:"not null;default:true"`
}
