package mq

// Queue names and message definitions

// immediate queue from booking to payment service
// deliver message to notify payment service to charge a pending booking
const (
	BookingToPaymentImmediateQueue = "booking.payment.pay.immediate"
)

type BookingToPaymentImmediateMessage struct {
	BookingID uint    `json:"booking_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
}

// delay queue from booking to payment service
// deliver message to expire a pending booking that was never paid
const (
	BookingPaymentDelayQueue        = "booking.payment.timeout.delay"
	BookingPaymentTimeoutQueue      = "booking.payment.timeout.immediate"
	BookingPaymentTimeoutExchange   = "booking.timeout.exchange"
	BookingPaymentTimeoutRoutingKey = "booking.timeout"
)

type BookingPaymentDelayMessage struct {
	BookingID uint `json:"booking_id"`
}

// immediate queue from payment back to booking
// deliver the payment outcome so the booking can be confirmed or cancelled
const (
	PaymentToBookingResultQueue = "payment.booking.result.immediate"
)

type PaymentToBookingResultMessage struct {
	BookingID   uint   `json:"booking_id"`
	Succeeded   bool   `json:"succeeded"`
	ProviderRef string `json:"provider_ref"`
}
