package config

import (
	"os"
	"strconv"
	"time"

	"github.com/qs-lzh/movie-booking/internal/util"
)

type Config struct {
	DatabaseDSN string
	Addr        string
	CacheURL    string
	MQURL       string

	// SeatLockTTL is how long a seat lock stays valid before an
	// unconfirmed selection releases its seats.
	SeatLockTTL time.Duration

	// MaxSeatsPerBooking caps the number of seats a single lock request
	// may reserve.
	MaxSeatsPerBooking int

	// PaymentTimeout is how long a PENDING_PAYMENT booking may wait for
	// the payment gateway before it expires and its seats are released.
	PaymentTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	if err := util.LoadEnv(); err != nil {
		return nil, err
	}
	databaseDSN := os.Getenv("DATABASE_DSN")
	addr := os.Getenv("ADDR")
	cacheURL := os.Getenv("CACHE_URL")
	mqURL := os.Getenv("RABBIT_MQ_URL")
	return &Config{
		DatabaseDSN:        databaseDSN,
		Addr:               addr,
		CacheURL:           cacheURL,
		MQURL:              mqURL,
		SeatLockTTL:        time.Duration(envInt("SEAT_LOCK_TTL_MINUTES", 10)) * time.Minute,
		MaxSeatsPerBooking: envInt("MAX_SEATS_PER_BOOKING", 10),
		PaymentTimeout:     time.Duration(envInt("PAYMENT_TIMEOUT_MINUTES", 15)) * time.Minute,
	}, nil
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
