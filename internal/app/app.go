package app

import (
	"github.com/qs-lzh/movie-booking/config"
	"github.com/qs-lzh/movie-booking/internal/cache"
	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/mq"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service/domain"
	"github.com/qs-lzh/movie-booking/internal/service/workflow"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config

	DB     *gorm.DB
	Cache  *cache.RedisCache
	Logger *zap.Logger
	MQConn *amqp.Connection

	SeatLockService domain.SeatLockService
	PricingService  domain.PricingService
	DiscountService domain.DiscountService
	PaymentService  domain.PaymentService

	BookingWorkflow *workflow.BookingWorkflow
	PaymentWorkflow *workflow.PaymentWorkflow
	CleanupWorkflow *workflow.CleanupWorkflow
}

func New(config *config.Config, db *gorm.DB, cache *cache.RedisCache, mqConn *amqp.Connection, logger *zap.Logger) *App {
	showtimeRepo := repository.NewShowtimeRepoGorm(db)
	showtimeSeatRepo := repository.NewShowtimeSeatRepoGorm(db)
	seatLockRepo := repository.NewSeatLockRepoGorm(db)
	pricingRepo := repository.NewPricingRepoGorm(db)
	promotionRepo := repository.NewPromotionRepoGorm(db)
	userRepo := repository.NewUserRepoGorm(db)
	snackRepo := repository.NewSnackRepoGorm(db)
	bookingRepo := repository.NewBookingRepoGorm(db)
	paymentRepo := repository.NewPaymentRepoGorm(db)

	pricingService := domain.NewPricingService(db, pricingRepo)
	discountService := domain.NewDiscountService(db, userRepo, promotionRepo)
	paymentService := domain.NewPaymentService(db, paymentRepo)
	seatLockService := domain.NewSeatLockService(
		db, cache, showtimeRepo, showtimeSeatRepo, seatLockRepo,
		pricingService, logger, config.SeatLockTTL)

	bookingWorkflow := workflow.NewBookingWorkflow(
		db, seatLockService, discountService, paymentService,
		snackRepo, bookingRepo, mqConn, logger,
		config.MaxSeatsPerBooking, config.PaymentTimeout)
	paymentWorkflow := workflow.NewPaymentWorkflow(paymentService, bookingRepo, mqConn, logger)
	cleanupWorkflow := workflow.NewCleanupWorkflow(seatLockService, bookingWorkflow, logger)

	return &App{
		Config:          config,
		DB:              db,
		Cache:           cache,
		Logger:          logger,
		MQConn:          mqConn,
		SeatLockService: seatLockService,
		PricingService:  pricingService,
		DiscountService: discountService,
		PaymentService:  paymentService,
		BookingWorkflow: bookingWorkflow,
		PaymentWorkflow: paymentWorkflow,
		CleanupWorkflow: cleanupWorkflow,
	}
}

func (app *App) Init() error {
	if err := app.DB.AutoMigrate(
		&model.User{},
		&model.MembershipTier{},
		&model.Movie{},
		&model.Cinema{},
		&model.Room{},
		&model.Seat{},
		&model.Showtime{},
		&model.ShowtimeSeat{},
		&model.Snack{},
		&model.PriceBase{},
		&model.PriceModifier{},
		&model.Promotion{},
		&model.SeatLock{},
		&model.SeatLockSeat{},
		&model.Booking{},
		&model.BookingSeat{},
		&model.BookingSnack{},
		&model.Payment{},
	); err != nil {
		return err
	}

	// init rabbit mq
	if err := mq.InitQueues(app.MQConn, app.Config.PaymentTimeout); err != nil {
		return err
	}

	if err := app.PaymentWorkflow.Start(app.MQConn); err != nil {
		return err
	}
	if err := app.BookingWorkflow.Start(app.MQConn); err != nil {
		return err
	}
	return app.CleanupWorkflow.Start()
}

func (app *App) Close() error {
	if err := app.CleanupWorkflow.Stop(); err != nil {
		app.Logger.Warn("failed to stop cleanup scheduler", zap.Error(err))
	}
	sqlDB, err := app.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
