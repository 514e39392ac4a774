package model

import (
	"time"
)

type LockOwnerType string

const (
	// OwnerUser marks a lock held by an authenticated user; the owner id
	// is the user id.
	OwnerUser LockOwnerType = "USER"
	// OwnerGuestSession marks a lock held by a guest; the owner id is the
	// client-supplied session id.
	OwnerGuestSession LockOwnerType = "GUEST_SESSION"
)

// SeatLock is a time-bounded reservation of one or more showtime seats by
// one session. LockKey is the random token stored as the value of every
// Redis seat key belonging to this lock; releasing or consuming the lock
// compares the token so only the owner (or the sweep acting for it) can
// free the seats.
type SeatLock struct {
	ID            uint          `gorm:"primaryKey"`
	LockKey       string        `gorm:"size:36;not null;uniqueIndex"`
	LockOwnerID   string        `gorm:"size:64;not null;index"`
	LockOwnerType LockOwnerType `gorm:"type:varchar(16);not null"`
	UserID        *uint
	ShowtimeID    uint `gorm:"not null;index"`
	Seats         []SeatLockSeat
	// TotalPrice is the sum of per-seat prices frozen when the lock was
	// taken. Confirm charges exactly this amount.
	TotalPrice float64
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"not null;index"`
	Active     bool      `gorm:"not null;default:true"`
}

// SeatLockSeat freezes the quoted price and breakdown for one locked seat.
type SeatLockSeat struct {
	ID             uint `gorm:"primaryKey"`
	SeatLockID     uint `gorm:"not null;index"`
	ShowtimeSeatID uint `gorm:"not null"`
	Price          float64
	PriceBreakdown string `gorm:"type:text"`
	ShowtimeSeat   *ShowtimeSeat
}

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingExpired        BookingStatus = "EXPIRED"
	BookingRefundPending  BookingStatus = "REFUND_PENDING"
	BookingRefunded       BookingStatus = "REFUNDED"
)

// Booking is the committed result of promoting a seat lock. Prices are
// copied from the lock, never recomputed.
type Booking struct {
	ID               uint   `gorm:"primaryKey"`
	Reference        string `gorm:"size:36;not null;uniqueIndex"`
	UserID           *uint
	LockOwnerID      string        `gorm:"size:64;not null;index"`
	ShowtimeID       uint          `gorm:"not null;index"`
	Status           BookingStatus `gorm:"type:varchar(20);not null;index"`
	TotalPrice       float64
	DiscountValue    float64
	DiscountReason   string `gorm:"size:255"`
	FinalPrice       float64
	PaymentMethod    string    `gorm:"size:32"`
	PaymentExpiresAt time.Time `gorm:"not null;index"`
	QRPayload        string    `gorm:"type:text"`
	Seats            []BookingSeat
	Snacks           []BookingSnack
	CreatedAt        time.Time
}

type BookingSeat struct {
	ID             uint `gorm:"primaryKey"`
	BookingID      uint `gorm:"not null;index"`
	ShowtimeSeatID uint `gorm:"not null"`
	Price          float64
	PriceBreakdown string `gorm:"type:text"`
}

type BookingSnack struct {
	ID        uint `gorm:"primaryKey"`
	BookingID uint `gorm:"not null;index"`
	SnackID   uint `gorm:"not null"`
	Quantity  int  `gorm:"not null"`
	UnitPrice float64
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment records the handoff to the payment collaborator.
type Payment struct {
	ID          uint          `gorm:"primaryKey"`
	BookingID   uint          `gorm:"not null;index"`
	Method      string        `gorm:"size:32;not null"`
	Amount      float64       `gorm:"not null"`
	Currency    string        `gorm:"size:8;not null"`
	Status      PaymentStatus `gorm:"type:varchar(16);not null"`
	ProviderRef string        `gorm:"size:64"`
	CreatedAt   time.Time
}
