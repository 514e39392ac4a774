package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/movie-booking/internal/app"
	"github.com/qs-lzh/movie-booking/internal/service"
	"github.com/qs-lzh/movie-booking/internal/service/workflow"
)

type BookingHandler struct {
	app *app.App
}

func NewBookingHandler(app *app.App) *BookingHandler {
	return &BookingHandler{
		app: app,
	}
}

func (h *BookingHandler) HandleLockSeats(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	showtimeID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req LockSeatsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{
			"error":  "Invalid request format",
			"detail": err.Error(),
		})
		return
	}

	lock, err := h.app.BookingWorkflow.LockSeats(ctx, sess, showtimeID, req.SeatIDs)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(201, gin.H{
		"lock_id":     lock.ID,
		"showtime_id": lock.ShowtimeID,
		"total_price": lock.TotalPrice,
		"expires_at":  lock.ExpiresAt,
		"seats":       lock.Seats,
	})
}

func (h *BookingHandler) HandleAvailability(ctx *gin.Context) {
	showtimeID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	seatMap, err := h.app.SeatLockService.Availability(ctx, showtimeID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"showtime_id": seatMap.ShowtimeID,
		"available":   seatMap.Available,
		"locked":      seatMap.Locked,
		"booked":      seatMap.Booked,
	})
}

func (h *BookingHandler) HandleExtendLock(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	lockID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	lock, err := h.app.SeatLockService.ExtendLock(ctx, sess, lockID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"lock_id":    lock.ID,
		"expires_at": lock.ExpiresAt,
	})
}

func (h *BookingHandler) HandleReleaseLock(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	lockID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := h.app.SeatLockService.ReleaseLock(ctx, sess, lockID); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"message": "Seat lock released",
	})
}

func (h *BookingHandler) HandlePreviewPrice(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	lockID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req PreviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{
			"error":  "Invalid request format",
			"detail": err.Error(),
		})
		return
	}

	preview, err := h.app.BookingWorkflow.PreviewPrice(ctx, sess, lockID, req.Snacks, req.PromoCode)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"lock_id":             preview.LockID,
		"seats":               preview.Seats,
		"seat_total":          preview.SeatTotal,
		"snack_total":         preview.SnackTotal,
		"subtotal":            preview.Subtotal,
		"membership_discount": preview.MembershipDiscount,
		"promotion_discount":  preview.PromotionDiscount,
		"total_discount":      preview.TotalDiscount,
		"discount_reason":     preview.DiscountReason,
		"final_price":         preview.FinalPrice,
	})
}

func (h *BookingHandler) HandleConfirmBooking(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	lockID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{
			"error":  "Invalid request format",
			"detail": err.Error(),
		})
		return
	}

	booking, err := h.app.BookingWorkflow.ConfirmBooking(ctx, sess, lockID, workflow.ConfirmRequest{
		Snacks:        req.Snacks,
		PromoCode:     req.PromoCode,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(201, gin.H{
		"booking_id":         booking.ID,
		"reference":          booking.Reference,
		"status":             booking.Status,
		"total_price":        booking.TotalPrice,
		"discount":           booking.DiscountValue,
		"discount_reason":    booking.DiscountReason,
		"final_price":        booking.FinalPrice,
		"payment_expires_at": booking.PaymentExpiresAt,
		"note":               "Please complete payment before the deadline",
	})
}

func (h *BookingHandler) HandleGetBooking(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	booking, err := h.app.BookingWorkflow.GetBooking(ctx, sess, bookingID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"booking_id":      booking.ID,
		"reference":       booking.Reference,
		"status":          booking.Status,
		"total_price":     booking.TotalPrice,
		"discount":        booking.DiscountValue,
		"discount_reason": booking.DiscountReason,
		"final_price":     booking.FinalPrice,
		"qr_payload":      booking.QRPayload,
		"seats":           booking.Seats,
		"snacks":          booking.Snacks,
	})
}

func (h *BookingHandler) HandleListBookings(ctx *gin.Context) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return
	}

	bookings, err := h.app.BookingWorkflow.ListBookings(ctx, sess)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(200, gin.H{
		"bookings": bookings,
	})
}

func writeError(ctx *gin.Context, err error) {
	var seatLocked *service.SeatLockedError
	if errors.As(err, &seatLocked) {
		ctx.JSON(409, gin.H{
			"error":    "Seats unavailable",
			"message":  "Some of the requested seats are already locked or booked",
			"seat_ids": seatLocked.SeatIDs,
		})
		return
	}

	var concurrent *service.ConcurrentBookingError
	if errors.As(err, &concurrent) {
		ctx.JSON(409, gin.H{
			"error":   "Conflicting booking in progress",
			"message": concurrent.Reason,
		})
		return
	}

	var expired *service.LockExpiredError
	if errors.As(err, &expired) {
		ctx.JSON(410, gin.H{
			"error":   "Seat lock expired",
			"message": "The seat lock has expired, please select seats again",
		})
		return
	}

	var maxSeats *service.MaxSeatsExceededError
	if errors.As(err, &maxSeats) {
		ctx.JSON(422, gin.H{
			"error":     "Too many seats",
			"message":   maxSeats.Error(),
			"max_seats": maxSeats.Max,
		})
		return
	}

	if errors.Is(err, service.ErrLockOwnership) {
		ctx.JSON(403, gin.H{
			"error": "Lock belongs to another session",
		})
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		ctx.JSON(404, gin.H{
			"error":  "Not found",
			"detail": err.Error(),
		})
		return
	}

	ctx.JSON(500, gin.H{
		"error":   "Internal server error",
		"message": "Failed to process request, please try again later",
	})
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		ctx.JSON(400, gin.H{
			"error": "Invalid id in path",
		})
		return 0, false
	}
	return uint(id), true
}

type LockSeatsRequest struct {
	SeatIDs []uint `json:"seat_ids" binding:"required"`
}

type PreviewRequest struct {
	Snacks    []workflow.SnackOrderItem `json:"snacks"`
	PromoCode string                    `json:"promo_code"`
}

type ConfirmRequest struct {
	Snacks        []workflow.SnackOrderItem `json:"snacks"`
	PromoCode     string                    `json:"promo_code"`
	PaymentMethod string                    `json:"payment_method"`
}
