package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/movie-booking/internal/app"
)

func NewRouter(app *app.App) *gin.Engine {
	router := gin.Default()
	bookingHandler := NewBookingHandler(app)

	v1 := router.Group("/api/v1")
	v1.GET("/showtimes/:id/seats", bookingHandler.HandleAvailability)

	session := v1.Group("")
	session.Use(SessionMiddleware())
	session.POST("/showtimes/:id/locks", bookingHandler.HandleLockSeats)
	session.POST("/locks/:id/extend", bookingHandler.HandleExtendLock)
	session.DELETE("/locks/:id", bookingHandler.HandleReleaseLock)
	session.POST("/locks/:id/preview", bookingHandler.HandlePreviewPrice)
	session.POST("/locks/:id/confirm", bookingHandler.HandleConfirmBooking)
	session.GET("/bookings/:id", bookingHandler.HandleGetBooking)
	session.GET("/bookings", bookingHandler.HandleListBookings)

	return router
}
