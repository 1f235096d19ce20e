package booking

import (
	"context"
	"sort"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/metrics"
)

const staleComponentReason = "provider call did not complete"

// ApplyPaymentEvent records a payment subsystem outcome on the booking.
func (s *BookingService) ApplyPaymentEvent(ctx context.Context, event kafka.PaymentEvent) error {
	if event.BookingID == "" {
		return domain.Validationf("payment event without booking id")
	}

	var status domain.PaymentStatus
	switch event.Type {
	case kafka.EventPaymentConfirmed:
		status = domain.PaymentStatusPaid
	case kafka.EventPaymentFailed:
		status = domain.PaymentStatusFailed
	case kafka.EventRefundSucceeded:
		status = domain.PaymentStatusRefunded
	default:
		return domain.Validationf("unknown payment event type %q", event.Type)
	}

	if err := s.payments.UpdatePaymentStatus(ctx, event.BookingID, status, event.Reference); err != nil {
		return err
	}

	if status == domain.PaymentStatusRefunded {
		completed, err := s.payments.CompleteRefundRequests(ctx, event.BookingID)
		if err != nil {
			return err
		}
		s.logger.Info("refund requests completed", "booking_id", event.BookingID, "count", completed)
	}

	s.invalidate(ctx, event.BookingID)
	s.logger.Info("payment status updated", "booking_id", event.BookingID, "payment_status", status)
	return nil
}

// ReapStaleComponents fails components that have been pending or
// processing for longer than the stale threshold, e.g. after a crash
// between the processing write and the provider outcome.
func (s *BookingService) ReapStaleComponents(ctx context.Context) ([]domain.ComponentBooking, error) {
	reaped, err := s.bookings.FailStaleComponents(ctx, s.now().Add(-s.staleAfter), staleComponentReason)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "fail stale components", Err: err}
	}
	if len(reaped) == 0 {
		return reaped, nil
	}
	metrics.ReapedComponents.Add(float64(len(reaped)))

	byBooking := make(map[string][]domain.ComponentBooking)
	for _, c := range reaped {
		byBooking[c.BookingID] = append(byBooking[c.BookingID], c)
	}
	ids := make([]string, 0, len(byBooking))
	for id := range byBooking {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		components := byBooking[id]
		s.invalidate(ctx, id)

		failed := make([]string, len(components))
		for i, c := range components {
			failed[i] = string(c.ComponentType)
		}
		s.publish(ctx, kafka.BookingEvent{
			Type:      kafka.EventComponentsReaped,
			BookingID: id,
			TripID:    components[0].TripID,
			UserID:    components[0].UserID,
			Failed:    failed,
			Reason:    staleComponentReason,
		})
		s.logger.Warn("stale components failed", "booking_id", id, "components", failed)
	}
	return reaped, nil
}
