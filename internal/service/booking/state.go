package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/metrics"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// GetBookingStatus returns the booking if it belongs to userID. A cached
// snapshot is used only when it carries owner metadata; otherwise the
// aggregate is rebuilt from the store and, once settled, cached unless the
// entry changed while the store was read.
func (s *BookingService) GetBookingStatus(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error) {
	if bookingID == "" {
		return nil, domain.Validationf("booking id is required")
	}
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}

	var (
		generation int64
		fillable   bool
	)
	if s.cache != nil {
		cached, gen, err := s.cache.GetBooking(ctx, bookingID)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("result cache lookup failed", "booking_id", bookingID, "error", err)
		case cached == nil:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
			generation, fillable = gen, true
		case cached.UserID == "":
			metrics.CacheLookups.WithLabelValues("untrusted").Inc()
			s.logger.Error("cached booking snapshot has no owner, rebuilding from store", "booking_id", bookingID)
			generation, fillable = gen, true
		default:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			if !cached.OwnedBy(userID) {
				return nil, ownershipError(bookingID)
			}
			return cached, nil
		}
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(userID) {
		return nil, ownershipError(bookingID)
	}

	if fillable && booking.Settled() {
		s.fillSnapshot(ctx, booking, generation)
	}
	return booking, nil
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID string, limit, offset int) (*domain.BookingPage, error) {
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}
	if offset < 0 {
		return nil, domain.Validationf("offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = defaultPageLimit
	case limit > maxPageLimit:
		limit = maxPageLimit
	}

	bookings, total, err := s.bookings.ListUserBookings(ctx, userID, limit, offset)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list user bookings", Err: err}
	}
	if bookings == nil {
		bookings = []domain.BookingSummary{}
	}

	return &domain.BookingPage{
		Bookings: bookings,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// loadBooking rebuilds the aggregate from the authoritative store.
func (s *BookingService) loadBooking(ctx context.Context, bookingID string) (*domain.BookingAggregate, error) {
	components, err := s.bookings.ListComponents(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "load booking", Err: err}
	}
	booking := domain.NewAggregate(components)
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, bookingID)
	}

	if s.payments != nil {
		status, err := s.payments.GetPaymentStatus(ctx, bookingID)
		if err != nil {
			s.logger.Warn("failed to load payment status", "booking_id", bookingID, "error", err)
		} else {
			booking.PaymentStatus = status
		}
	}
	return booking, nil
}

// cacheGeneration returns the booking's cache generation, observed before
// a change to the store. ok is false when the cache cannot be read.
func (s *BookingService) cacheGeneration(ctx context.Context, bookingID string) (generation int64, ok bool) {
	if s.cache == nil {
		return 0, false
	}
	_, generation, err := s.cache.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn("result cache lookup failed", "booking_id", bookingID, "error", err)
		return 0, false
	}
	return generation, true
}

// storeSnapshot caches the state a write just produced. If another write
// or delete got in first, the entry is dropped instead, since this
// snapshot may be older than what the other writer saw.
func (s *BookingService) storeSnapshot(ctx context.Context, booking *domain.BookingAggregate, generation int64) {
	if s.cache == nil || booking == nil {
		return
	}
	stored, err := s.cache.SetBooking(ctx, booking, generation, s.resultTTL)
	switch {
	case err != nil:
		s.logger.Warn("failed to cache booking snapshot", "booking_id", booking.ID, "error", err)
		s.invalidate(ctx, booking.ID)
	case !stored:
		s.logger.Debug("booking snapshot changed concurrently, dropping entry", "booking_id", booking.ID)
		s.invalidate(ctx, booking.ID)
	}
}

// fillSnapshot caches a snapshot rebuilt by a read. A reader never drops
// entries: losing the race means a writer already refreshed the entry.
func (s *BookingService) fillSnapshot(ctx context.Context, booking *domain.BookingAggregate, generation int64) {
	stored, err := s.cache.SetBooking(ctx, booking, generation, s.resultTTL)
	switch {
	case err != nil:
		s.logger.Warn("failed to cache booking snapshot", "booking_id", booking.ID, "error", err)
	case !stored:
		s.logger.Debug("booking changed while it was read, not caching", "booking_id", booking.ID)
	}
}

func (s *BookingService) invalidate(ctx context.Context, bookingID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteBooking(ctx, bookingID); err != nil {
		s.logger.Warn("failed to invalidate booking snapshot", "booking_id", bookingID, "error", err)
	}
}

// publish sends event to the booking topic and, when configured, to the
// notifications topic. Publishing is best effort.
func (s *BookingService) publish(ctx context.Context, event kafka.BookingEvent) {
	if s.producer == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now()

	for _, topic := range []string{s.topics.Booking, s.topics.Notifications} {
		if topic == "" {
			continue
		}
		if err := s.producer.Publish(ctx, topic, event.BookingID, event); err != nil {
			metrics.PublishErrors.Inc()
			s.logger.Warn("failed to publish booking event", "topic", topic, "type", event.Type, "booking_id", event.BookingID, "error", err)
			continue
		}
		metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	}
}

func (s *BookingService) requestPayment(ctx context.Context, bookingID, userID string, amountCents int64) {
	if s.producer == nil || s.topics.Payments == "" {
		return
	}
	request := kafka.PaymentRequest{
		BookingID:   bookingID,
		UserID:      userID,
		AmountCents: amountCents,
		RequestedAt: s.now(),
	}
	if err := s.producer.Publish(ctx, s.topics.Payments, bookingID, request); err != nil {
		metrics.PublishErrors.Inc()
		s.logger.Warn("failed to publish payment request", "booking_id", bookingID, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("payment_requested").Inc()
}

func ownershipError(bookingID string) error {
	return fmt.Errorf("%w: booking %s", domain.ErrOwnership, bookingID)
}
