package booking

import (
	"context"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
)

const minRefundReasonLength = 10

type RefundInput struct {
	BookingID  string                 `json:"booking_id"`
	UserID     string                 `json:"user_id"`
	Reason     string                 `json:"reason"`
	Components []domain.ComponentType `json:"components,omitempty"`
}

// CancelBooking cancels every component of the booking. The ownership check
// reads the store, never the cache. Cancelling a cancelled booking returns
// it unchanged.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error) {
	if bookingID == "" {
		return nil, domain.Validationf("booking id is required")
	}
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}

	generation, cacheable := s.cacheGeneration(ctx, bookingID)

	current, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(userID) {
		return nil, ownershipError(bookingID)
	}
	if current.Status == domain.BookingStatusCancelled {
		return current, nil
	}

	components, err := s.bookings.CancelBooking(ctx, bookingID)
	if err != nil {
		s.invalidate(ctx, bookingID)
		return nil, &domain.PersistenceError{Op: "cancel booking", Err: err}
	}

	cancelled := domain.NewAggregate(components)
	if cancelled == nil {
		return nil, &domain.PersistenceError{Op: "cancel booking", Err: domain.ErrNotFound}
	}
	cancelled.PaymentStatus = current.PaymentStatus
	if cacheable {
		s.storeSnapshot(ctx, cancelled, generation)
	} else {
		s.invalidate(ctx, bookingID)
	}

	previouslyConfirmed := make([]string, 0, len(current.Components))
	for _, c := range current.Components {
		if c.Status == domain.ComponentStatusConfirmed {
			previouslyConfirmed = append(previouslyConfirmed, string(c.ComponentType))
		}
	}
	s.publish(ctx, kafka.BookingEvent{
		Type:        kafka.EventBookingCancelled,
		BookingID:   cancelled.ID,
		TripID:      cancelled.TripID,
		UserID:      cancelled.UserID,
		Status:      string(cancelled.Status),
		AmountCents: current.TotalCostCents,
		Components:  previouslyConfirmed,
	})

	s.logger.Info("booking cancelled", "booking_id", bookingID, "refundable_cents", current.TotalCostCents)
	return cancelled, nil
}

// RequestRefund records a refund request and hands it to the payment
// subsystem. An empty component list refunds the whole booking.
func (s *BookingService) RequestRefund(ctx context.Context, input RefundInput) (*domain.RefundRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	switch {
	case input.BookingID == "":
		return nil, domain.Validationf("booking id is required")
	case input.UserID == "":
		return nil, domain.Validationf("user id is required")
	case len(reason) < minRefundReasonLength:
		return nil, domain.Validationf("refund reason must be at least %d characters", minRefundReasonLength)
	}

	booking, err := s.loadBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(input.UserID) {
		return nil, ownershipError(input.BookingID)
	}

	for _, ct := range input.Components {
		if !ct.Valid() {
			return nil, domain.Validationf("unknown component type %q", ct)
		}
		if _, ok := booking.Component(ct); !ok {
			return nil, domain.Validationf("booking %s has no %s component", input.BookingID, ct)
		}
	}

	refund := &domain.RefundRequest{
		BookingID:  input.BookingID,
		UserID:     input.UserID,
		Reason:     reason,
		Components: input.Components,
		Status:     domain.RefundStatusRequested,
	}
	if err := s.payments.CreateRefundRequest(ctx, refund); err != nil {
		return nil, &domain.PersistenceError{Op: "create refund request", Err: err}
	}

	components := make([]string, len(input.Components))
	for i, ct := range input.Components {
		components[i] = string(ct)
	}
	s.publish(ctx, kafka.BookingEvent{
		Type:        kafka.EventRefundRequested,
		BookingID:   booking.ID,
		TripID:      booking.TripID,
		UserID:      booking.UserID,
		Status:      string(booking.Status),
		AmountCents: booking.TotalCostCents,
		Components:  components,
		Reason:      reason,
	})

	s.logger.Info("refund requested", "booking_id", booking.ID, "refund_id", refund.ID)
	return refund, nil
}
