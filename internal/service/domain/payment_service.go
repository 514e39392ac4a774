package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/repository"
)

type PaymentService interface {
	Charge(ctx context.Context, booking *model.Booking, method string) (*model.Payment, error)
	TicketQR(booking *model.Booking) (string, error)
}

type paymentService struct {
	db   *gorm.DB
	repo repository.PaymentRepo
}

var _ PaymentService = (*paymentService)(nil)

func NewPaymentService(db *gorm.DB, paymentRepo repository.PaymentRepo) *paymentService {
	return &paymentService{
		db:   db,
		repo: paymentRepo,
	}
}

// Charge runs the mock payment provider against the booking's frozen
// final price. The provider always succeeds after a short simulated
// latency; failure paths come in through the timeout queue instead.
func (s *paymentService) Charge(ctx context.Context, booking *model.Booking, method string) (*model.Payment, error) {
	time.Sleep(time.Duration(rand.Intn(901)+100) * time.Millisecond)

	payment := &model.Payment{
		BookingID:   booking.ID,
		Method:      method,
		Amount:      booking.FinalPrice,
		Currency:    "VND",
		Status:      model.PaymentSucceeded,
		ProviderRef: uuid.NewString(),
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// TicketQR encodes the booking reference as a PNG QR code, returned
// base64-encoded for embedding in API responses.
func (s *paymentService) TicketQR(booking *model.Booking) (string, error) {
	payload := fmt.Sprintf("booking:%s:showtime:%d", booking.Reference, booking.ShowtimeID)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
