package workflow

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/mq"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service/domain"
)

// PaymentWorkflow consumes payment requests for pending bookings, runs
// the charge, and publishes the outcome back to the booking side.
type PaymentWorkflow struct {
	paymentService domain.PaymentService
	bookingRepo    repository.BookingRepo
	mqConn         *amqp.Connection
	logger         *zap.Logger
}

func NewPaymentWorkflow(paymentService domain.PaymentService, bookingRepo repository.BookingRepo, mqConn *amqp.Connection, logger *zap.Logger) *PaymentWorkflow {
	return &PaymentWorkflow{
		paymentService: paymentService,
		bookingRepo:    bookingRepo,
		mqConn:         mqConn,
		logger:         logger,
	}
}

func (w *PaymentWorkflow) Start(mqConn *amqp.Connection) error {
	return w.ConsumePaymentRequests(mqConn)
}

func (w *PaymentWorkflow) ConsumePaymentRequests(conn *amqp.Connection) error {
	ch, err := mq.NewChannel(conn)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(mq.BookingToPaymentImmediateQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			msg := msg
			go func() {
				result, err := w.handlePaymentRequest(msg)
				if err != nil {
					w.logger.Error("failed to handle payment request", zap.Error(err))
					return
				}
				if err := mq.SendImmediateMessage(ch, mq.PaymentToBookingResultQueue, result); err != nil {
					w.logger.Error("failed to publish payment result",
						zap.Uint("booking_id", result.BookingID),
						zap.Error(err))
				}
			}()
		}
	}()

	return nil
}

func (w *PaymentWorkflow) handlePaymentRequest(msg amqp.Delivery) (mq.PaymentToBookingResultMessage, error) {
	var message mq.BookingToPaymentImmediateMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return mq.PaymentToBookingResultMessage{}, err
	}

	ctx := context.Background()
	booking, err := w.bookingRepo.GetByID(ctx, message.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			msg.Nack(false, false)
		} else {
			msg.Nack(false, true)
		}
		return mq.PaymentToBookingResultMessage{}, err
	}

	// A booking already settled by the timeout path must not be charged.
	if booking.Status != model.BookingPendingPayment {
		msg.Ack(false)
		return mq.PaymentToBookingResultMessage{}, errors.New("booking no longer pending payment")
	}

	payment, err := w.paymentService.Charge(ctx, booking, message.Method)
	if err != nil {
		msg.Nack(false, true)
		return mq.PaymentToBookingResultMessage{}, err
	}

	msg.Ack(false)

	return mq.PaymentToBookingResultMessage{
		BookingID:   booking.ID,
		Succeeded:   payment.Status == model.PaymentSucceeded,
		ProviderRef: payment.ProviderRef,
	}, nil
}
