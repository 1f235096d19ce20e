package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/kafka"
)

// Sender turns booking events into customer notifications. Delivery is a
// structured log line; there is no mail transport.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, body := Compose(event)
	if subject == "" {
		return nil
	}
	s.logger.InfoContext(ctx, "send notification",
		"user_id", event.UserID,
		"booking_id", event.BookingID,
		"type", event.Type,
		"subject", subject,
		"body", body)
	return nil
}

// Compose renders the subject and body for event. Events that users are
// not notified about yield an empty subject.
func Compose(event kafka.BookingEvent) (string, string) {
	amount := fmt.Sprintf("%.2f", float64(event.AmountCents)/100)

	switch event.Type {
	case kafka.EventBookingSettled:
		switch event.Status {
		case "confirmed":
			return "Your trip is booked",
				fmt.Sprintf("All components of booking %s are confirmed: %s. Total %s.", event.BookingID, list(event.Components), amount)
		case "partial":
			return "Your trip is partially booked",
				fmt.Sprintf("Booking %s confirmed %s but could not book %s. Total %s.", event.BookingID, list(event.Components), list(event.Failed), amount)
		default:
			return "We could not book your trip",
				fmt.Sprintf("No component of booking %s could be booked (%s).", event.BookingID, list(event.Failed))
		}
	case kafka.EventBookingCancelled:
		return "Your booking was cancelled",
			fmt.Sprintf("Booking %s has been cancelled. Refundable amount %s.", event.BookingID, amount)
	case kafka.EventRefundRequested:
		return "Refund requested",
			fmt.Sprintf("We received your refund request for booking %s: %s", event.BookingID, event.Reason)
	case kafka.EventComponentsReaped:
		return "Part of your booking did not complete",
			fmt.Sprintf("Booking %s could not complete %s.", event.BookingID, list(event.Failed))
	}
	return "", ""
}

func list(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
