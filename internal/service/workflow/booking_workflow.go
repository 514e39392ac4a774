package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/mq"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service"
	"github.com/qs-lzh/movie-booking/internal/service/domain"
)

// SnackOrderItem is one snack line of a booking request.
type SnackOrderItem struct {
	SnackID  uint `json:"snack_id"`
	Quantity int  `json:"quantity"`
}

// PricePreview is the full quote for a lock before confirmation: the
// frozen seat prices, snacks, and the discount that would apply. Preview
// writes nothing; confirming with the same inputs charges the same total.
type PricePreview struct {
	LockID             uint
	Seats              []model.SeatLockSeat
	SeatTotal          float64
	SnackTotal         float64
	Subtotal           float64
	MembershipDiscount float64
	PromotionDiscount  float64
	TotalDiscount      float64
	DiscountReason     string
	FinalPrice         float64
}

// ConfirmRequest carries the confirmation inputs for a held lock.
type ConfirmRequest struct {
	Snacks        []SnackOrderItem
	PromoCode     string
	PaymentMethod string
}

// BookingWorkflow orchestrates the lock-preview-confirm lifecycle and
// consumes the payment outcome and timeout queues.
type BookingWorkflow struct {
	db             *gorm.DB
	seatLocks      domain.SeatLockService
	discounts      domain.DiscountService
	payments       domain.PaymentService
	snackRepo      repository.SnackRepo
	bookingRepo    repository.BookingRepo
	mqConn         *amqp.Connection
	logger         *zap.Logger
	maxSeats       int
	paymentTimeout time.Duration

	now func() time.Time
}

func NewBookingWorkflow(
	db *gorm.DB,
	seatLocks domain.SeatLockService,
	discounts domain.DiscountService,
	payments domain.PaymentService,
	snackRepo repository.SnackRepo,
	bookingRepo repository.BookingRepo,
	mqConn *amqp.Connection,
	logger *zap.Logger,
	maxSeats int,
	paymentTimeout time.Duration,
) *BookingWorkflow {
	return &BookingWorkflow{
		db:             db,
		seatLocks:      seatLocks,
		discounts:      discounts,
		payments:       payments,
		snackRepo:      snackRepo,
		bookingRepo:    bookingRepo,
		mqConn:         mqConn,
		logger:         logger,
		maxSeats:       maxSeats,
		paymentTimeout: paymentTimeout,
		now:            time.Now,
	}
}

// LockSeats validates the request against booking policy and acquires the
// seats. A session holds at most one active lock: a second lock attempt
// for the same showtime is a conflict, while locking seats for a
// different showtime silently releases the old lock first.
func (w *BookingWorkflow) LockSeats(ctx context.Context, sess service.SessionContext, showtimeID uint, showtimeSeatIDs []uint) (*model.SeatLock, error) {
	if len(showtimeSeatIDs) > w.maxSeats {
		return nil, &service.MaxSeatsExceededError{Max: w.maxSeats, Requested: len(showtimeSeatIDs)}
	}

	existing, err := w.seatLocks.ActiveLocks(ctx, sess)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		lock := &existing[i]
		if w.now().After(lock.ExpiresAt) {
			continue
		}
		if lock.ShowtimeID == showtimeID {
			return nil, &service.ConcurrentBookingError{
				Reason: fmt.Sprintf("session already holds lock %d for this showtime", lock.ID),
			}
		}
		if err := w.seatLocks.ReleaseLock(ctx, sess, lock.ID); err != nil {
			return nil, err
		}
	}

	return w.seatLocks.TryLock(ctx, sess, showtimeID, showtimeSeatIDs)
}

// PreviewPrice computes the total a confirmation would charge, without
// changing any state.
func (w *BookingWorkflow) PreviewPrice(ctx context.Context, sess service.SessionContext, lockID uint, snacks []SnackOrderItem, promoCode string) (*PricePreview, error) {
	lock, err := w.seatLocks.GetLock(ctx, sess, lockID)
	if err != nil {
		return nil, err
	}
	if !lock.Active || w.now().After(lock.ExpiresAt) {
		return nil, &service.LockExpiredError{LockID: lockID}
	}

	snackTotal, _, err := w.priceSnacks(ctx, snacks)
	if err != nil {
		return nil, err
	}

	subtotal := lock.TotalPrice + snackTotal
	discount, err := w.discounts.Resolve(ctx, sess.UserID, promoCode, subtotal)
	if err != nil {
		return nil, err
	}

	return &PricePreview{
		LockID:             lock.ID,
		Seats:              lock.Seats,
		SeatTotal:          lock.TotalPrice,
		SnackTotal:         snackTotal,
		Subtotal:           subtotal,
		MembershipDiscount: discount.MembershipDiscount,
		PromotionDiscount:  discount.PromotionDiscount,
		TotalDiscount:      discount.TotalDiscount,
		DiscountReason:     discount.DiscountReason,
		FinalPrice:         subtotal - discount.TotalDiscount,
	}, nil
}

// ConfirmBooking promotes the lock to booked seats and opens a pending
// booking at the prices frozen on the lock. Payment runs asynchronously:
// an immediate message triggers the charge and a delayed message expires
// the booking if no outcome arrives in time.
func (w *BookingWorkflow) ConfirmBooking(ctx context.Context, sess service.SessionContext, lockID uint, req ConfirmRequest) (*model.Booking, error) {
	snackTotal, snackLines, err := w.priceSnacks(ctx, req.Snacks)
	if err != nil {
		return nil, err
	}

	lock, err := w.seatLocks.PromoteToBooked(ctx, sess, lockID)
	if err != nil {
		return nil, err
	}

	subtotal := lock.TotalPrice + snackTotal
	discount, err := w.discounts.Resolve(ctx, sess.UserID, req.PromoCode, subtotal)
	if err != nil {
		// The seats are already booked; an invalid promo at this point
		// would strand them. Preview validates the code up front, so a
		// failure here is a race with the promo window and we charge
		// without it.
		w.logger.Warn("discount resolution failed at confirm, charging full price",
			zap.Uint("lock_id", lockID),
			zap.Error(err))
		discount = &domain.DiscountResult{}
	}

	booking := &model.Booking{
		Reference:        uuid.NewString(),
		UserID:           sess.UserID,
		LockOwnerID:      sess.LockOwnerID,
		ShowtimeID:       lock.ShowtimeID,
		Status:           model.BookingPendingPayment,
		TotalPrice:       subtotal,
		DiscountValue:    discount.TotalDiscount,
		DiscountReason:   discount.DiscountReason,
		FinalPrice:       subtotal - discount.TotalDiscount,
		PaymentMethod:    req.PaymentMethod,
		PaymentExpiresAt: w.now().Add(w.paymentTimeout),
		Snacks:           snackLines,
	}
	for _, lockSeat := range lock.Seats {
		booking.Seats = append(booking.Seats, model.BookingSeat{
			ShowtimeSeatID: lockSeat.ShowtimeSeatID,
			Price:          lockSeat.Price,
			PriceBreakdown: lockSeat.PriceBreakdown,
		})
	}

	if err := w.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	if err := w.publishPaymentRequest(booking); err != nil {
		// The pending-payment sweep will expire the booking if the
		// messages never went out.
		w.logger.Error("failed to publish payment messages",
			zap.Uint("booking_id", booking.ID),
			zap.Error(err))
	}

	w.logger.Info("booking created",
		zap.Uint("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.String("owner", sess.LockOwnerID),
		zap.Float64("final_price", booking.FinalPrice))
	return booking, nil
}

func (w *BookingWorkflow) GetBooking(ctx context.Context, sess service.SessionContext, bookingID uint) (*model.Booking, error) {
	booking, err := w.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &service.NotFoundError{Resource: "booking", Key: bookingID}
		}
		return nil, err
	}
	if booking.LockOwnerID != sess.LockOwnerID {
		return nil, &service.NotFoundError{Resource: "booking", Key: bookingID}
	}
	return booking, nil
}

func (w *BookingWorkflow) ListBookings(ctx context.Context, sess service.SessionContext) ([]model.Booking, error) {
	return w.bookingRepo.FindByOwner(ctx, sess.LockOwnerID)
}

// HandlePaymentResult settles a pending booking. The conditional status
// update arbitrates against the timeout path: whichever arrives first
// wins and the loser is a no-op.
func (w *BookingWorkflow) HandlePaymentResult(ctx context.Context, bookingID uint, succeeded bool) error {
	booking, err := w.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &service.NotFoundError{Resource: "booking", Key: bookingID}
		}
		return err
	}

	if succeeded {
		qr, err := w.payments.TicketQR(booking)
		if err != nil {
			return err
		}
		return w.settleBooking(ctx, booking, model.BookingConfirmed, qr, false)
	}
	return w.settleBooking(ctx, booking, model.BookingCancelled, "", true)
}

// ExpirePendingPayment handles the dead-lettered timeout message for a
// booking whose payment never completed.
func (w *BookingWorkflow) ExpirePendingPayment(ctx context.Context, bookingID uint) error {
	booking, err := w.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return w.settleBooking(ctx, booking, model.BookingExpired, "", true)
}

// CleanupExpiredPendingPayments is the backstop for lost timeout
// messages: any booking still pending past its payment deadline is
// expired and its seats are freed.
func (w *BookingWorkflow) CleanupExpiredPendingPayments(ctx context.Context) (int, error) {
	bookings, err := w.bookingRepo.FindPendingPaymentExpired(ctx, w.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range bookings {
		booking := &bookings[i]
		if err := w.settleBooking(ctx, booking, model.BookingExpired, "", true); err != nil {
			w.logger.Warn("failed to expire pending booking",
				zap.Uint("booking_id", booking.ID),
				zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		w.logger.Info("pending bookings expired", zap.Int("count", expired))
	}
	return expired, nil
}

// settleBooking moves a pending booking to a terminal status, optionally
// returning its seats to the available pool.
func (w *BookingWorkflow) settleBooking(ctx context.Context, booking *model.Booking, status model.BookingStatus, qrPayload string, freeSeats bool) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": status}
		if qrPayload != "" {
			updates["qr_payload"] = qrPayload
		}
		res := tx.Model(&model.Booking{}).
			Where("id = ? AND status = ?", booking.ID, model.BookingPendingPayment).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already settled by the other path.
			return nil
		}
		booking.Status = status
		booking.QRPayload = qrPayload

		if !freeSeats {
			return nil
		}
		seatIDs := make([]uint, 0, len(booking.Seats))
		for _, seat := range booking.Seats {
			seatIDs = append(seatIDs, seat.ShowtimeSeatID)
		}
		return tx.Model(&model.ShowtimeSeat{}).
			Where("id IN ? AND status = ?", seatIDs, model.SeatBooked).
			Update("status", model.SeatAvailable).Error
	})
}

func (w *BookingWorkflow) priceSnacks(ctx context.Context, items []SnackOrderItem) (float64, []model.BookingSnack, error) {
	if len(items) == 0 {
		return 0, nil, nil
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.SnackID)
	}
	snacks, err := w.snackRepo.GetByIDs(ctx, ids)
	if err != nil {
		return 0, nil, err
	}
	priceByID := make(map[uint]float64, len(snacks))
	for _, snack := range snacks {
		priceByID[snack.ID] = snack.Price
	}

	var total float64
	lines := make([]model.BookingSnack, 0, len(items))
	for _, item := range items {
		price, ok := priceByID[item.SnackID]
		if !ok {
			return 0, nil, &service.NotFoundError{Resource: "snack", Key: item.SnackID}
		}
		if item.Quantity <= 0 {
			continue
		}
		total += price * float64(item.Quantity)
		lines = append(lines, model.BookingSnack{
			SnackID:   item.SnackID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}
	return total, lines, nil
}

func (w *BookingWorkflow) publishPaymentRequest(booking *model.Booking) error {
	ch, err := mq.NewChannel(w.mqConn)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := mq.SendImmediateMessage(ch, mq.BookingToPaymentImmediateQueue,
		mq.BookingToPaymentImmediateMessage{
			BookingID: booking.ID,
			Amount:    booking.FinalPrice,
			Method:    booking.PaymentMethod,
		}); err != nil {
		return err
	}

	return mq.SendTimeoutMessage(ch, mq.BookingPaymentDelayQueue,
		mq.BookingPaymentDelayMessage{
			BookingID: booking.ID,
		})
}

func (w *BookingWorkflow) Start(mqConn *amqp.Connection) error {
	if err := w.ConsumePaymentResult(mqConn); err != nil {
		return err
	}
	return w.ConsumePaymentTimeout(mqConn)
}

func (w *BookingWorkflow) ConsumePaymentResult(conn *amqp.Connection) error {
	ch, err := mq.NewChannel(conn)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(mq.PaymentToBookingResultQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			if err := w.handlePaymentResultMessage(msg); err != nil {
				w.logger.Error("failed to handle payment result", zap.Error(err))
			}
		}
	}()

	return nil
}

func (w *BookingWorkflow) handlePaymentResultMessage(msg amqp.Delivery) error {
	var message mq.PaymentToBookingResultMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return err
	}

	if err := w.HandlePaymentResult(context.Background(), message.BookingID, message.Succeeded); err != nil {
		msg.Nack(false, true)
		return err
	}

	msg.Ack(false)

	return nil
}

func (w *BookingWorkflow) ConsumePaymentTimeout(conn *amqp.Connection) error {
	ch, err := mq.NewChannel(conn)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(mq.BookingPaymentTimeoutQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			w.handlePaymentTimeoutMessage(msg)
		}
	}()

	return nil
}

func (w *BookingWorkflow) handlePaymentTimeoutMessage(msg amqp.Delivery) {
	var message mq.BookingPaymentDelayMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return
	}
	if err := w.ExpirePendingPayment(context.Background(), message.BookingID); err != nil {
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}
