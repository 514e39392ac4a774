package model

import (
	"time"
)

type User struct {
	ID               uint     `gorm:"primaryKey"`
	Email            string   `gorm:"size:120;not null;uniqueIndex"`
	Username         string   `gorm:"size:64;not null"`
	HashedPassword   string
	Role             UserRole `gorm:"type:varchar(16);not null"`
	MembershipTierID *uint
	MembershipTier   *MembershipTier
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
	RoleAdmin UserRole = "admin"
)

// MembershipTier grants registered users an order-level discount.
// Guests have no tier.
type MembershipTier struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"size:32;not null;uniqueIndex"`
	MinPoints     int    `gorm:"not null"`
	DiscountType  *DiscountType
	DiscountValue *float64
	IsActive      bool `gorm:"not null;default:true"`
}

type Movie struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:100;not null;uniqueIndex"`
	Description string `gorm:"type:text"`
}

type Cinema struct {
	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"size:100;not null"`
	Address string `gorm:"size:255"`
}

type Room struct {
	ID       uint   `gorm:"primaryKey"`
	CinemaID uint   `gorm:"not null;index"`
	Name     string `gorm:"size:64;not null"`
	RoomType string `gorm:"size:32;not null"` // STANDARD, VIP, IMAX, STARIUM
}

type Seat struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     uint   `gorm:"not null;index"`
	RowLabel   string `gorm:"size:4;not null"`
	SeatNumber int    `gorm:"not null"`
	SeatType   string `gorm:"size:32;not null"` // NORMAL, VIP, COUPLE
}

type Showtime struct {
	ID      uint      `gorm:"primaryKey"`
	MovieID uint      `gorm:"not null;index"`
	RoomID  uint      `gorm:"not null;index"`
	StartAt time.Time `gorm:"not null"`
	Format  string    `gorm:"size:16;not null"` // 2D, 3D, IMAX, 4DX
	Room    *Room
}

// ShowtimeSeat is one bookable unit: a physical seat for one showtime.
// Status is the only mutable shared state in the core and is changed
// exclusively through the seat lock service.
type ShowtimeSeat struct {
	ID         uint       `gorm:"primaryKey"`
	ShowtimeID uint       `gorm:"not null;index:idx_showtime_seat,unique"`
	SeatID     uint       `gorm:"not null;index:idx_showtime_seat,unique"`
	Status     SeatStatus `gorm:"type:varchar(16);not null"`
	// Price and PriceBreakdown are frozen copies of the last computed
	// quote, persisted for the seat-map surface.
	Price          float64
	PriceBreakdown string `gorm:"type:text"`
	Seat           *Seat
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatLocked    SeatStatus = "LOCKED"
	SeatBooked    SeatStatus = "BOOKED"
)

type Snack struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:100;not null"`
	Price float64
}
