package workflow

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/qs-lzh/movie-booking/internal/service/domain"
)

// CleanupWorkflow runs the periodic sweeps: expired seat locks whose
// extend-or-confirm never came, and pending bookings whose payment
// timeout message was lost.
type CleanupWorkflow struct {
	seatLocks domain.SeatLockService
	bookings  *BookingWorkflow
	logger    *zap.Logger
	interval  time.Duration

	scheduler gocron.Scheduler
}

func NewCleanupWorkflow(seatLocks domain.SeatLockService, bookings *BookingWorkflow, logger *zap.Logger) *CleanupWorkflow {
	return &CleanupWorkflow{
		seatLocks: seatLocks,
		bookings:  bookings,
		logger:    logger,
		interval:  time.Minute,
	}
}

func (w *CleanupWorkflow) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.scheduler = scheduler

	if _, err := scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.Run),
	); err != nil {
		return err
	}

	scheduler.Start()
	return nil
}

func (w *CleanupWorkflow) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Shutdown()
}

func (w *CleanupWorkflow) Run() {
	ctx := context.Background()
	if _, err := w.seatLocks.CleanupExpiredLocks(ctx); err != nil {
		w.logger.Error("seat lock sweep failed", zap.Error(err))
	}
	if _, err := w.bookings.CleanupExpiredPendingPayments(ctx); err != nil {
		w.logger.Error("pending booking sweep failed", zap.Error(err))
	}
}
