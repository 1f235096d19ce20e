package kafka

import "time"

const (
	EventBookingSettled   = "booking_settled"
	EventBookingCancelled = "booking_cancelled"
	EventRefundRequested  = "refund_requested"
	EventComponentsReaped = "components_reaped"

	EventPaymentConfirmed = "payment_confirmed"
	EventPaymentFailed    = "payment_failed"
	EventRefundSucceeded  = "refund_succeeded"
)

// BookingEvent is published on the booking and notifications topics.
type BookingEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	TripID      int64     `json:"trip_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Components  []string  `json:"components,omitempty"`
	Failed      []string  `json:"failed,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PaymentRequest asks the payment subsystem to create a payment intent.
type PaymentRequest struct {
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	RequestedAt time.Time `json:"requested_at"`
}

// PaymentEvent is emitted by the payment subsystem.
type PaymentEvent struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
