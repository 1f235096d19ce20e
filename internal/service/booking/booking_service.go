package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/metrics"
	"github.com/Domenick1991/tripbooking/internal/provider"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"golang.org/x/sync/errgroup"
)

type BookingUseCase interface {
	ProcessTripBooking(ctx context.Context, input SubmitInput) (*domain.SubmissionResult, error)
	GetBookingStatus(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error)
	GetUserBookings(ctx context.Context, userID string, limit, offset int) (*domain.BookingPage, error)
	CancelBooking(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error)
	RequestRefund(ctx context.Context, input RefundInput) (*domain.RefundRequest, error)
	ApplyPaymentEvent(ctx context.Context, event kafka.PaymentEvent) error
	ReapStaleComponents(ctx context.Context) ([]domain.ComponentBooking, error)
}

// Cache holds booking snapshots. Every entry has a generation that moves on
// each write or delete; SetBooking only succeeds for the generation the
// caller observed before reading the store.
type Cache interface {
	GetBooking(ctx context.Context, bookingID string) (*domain.BookingAggregate, int64, error)
	SetBooking(ctx context.Context, booking *domain.BookingAggregate, generation int64, ttl time.Duration) (bool, error)
	DeleteBooking(ctx context.Context, bookingID string) error
	AcquireTripLock(ctx context.Context, tripID int64, token string, ttl time.Duration) (bool, error)
	ReleaseTripLock(ctx context.Context, tripID int64, token string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Providers resolves the adapter for a component's provider.
type Providers interface {
	Allowed(componentType domain.ComponentType, name string) bool
	Resolve(componentType domain.ComponentType, name string) (provider.Adapter, error)
}

type Topics struct {
	Booking       string
	Notifications string
	Payments      string
}

type BookingService struct {
	bookings    repository.BookingRepository
	payments    repository.PaymentRepository
	cache       Cache
	producer    Producer
	providers   Providers
	executor    *Executor
	topics      Topics
	resultTTL   time.Duration
	tripLockTTL time.Duration
	staleAfter  time.Duration
	timeout     time.Duration
	maxParallel int
	now         func() time.Time
	logger      *slog.Logger
}

type SubmitInput struct {
	UserID     string             `json:"user_id"`
	TripID     int64              `json:"trip_id"`
	Selections []domain.Selection `json:"selections"`
}

type BookingServiceOption func(*BookingService)

func WithTopics(topics Topics) BookingServiceOption {
	return func(s *BookingService) {
		s.topics = topics
	}
}

func WithResultTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.resultTTL = ttl
	}
}

func WithTripLockTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.tripLockTTL = ttl
	}
}

func WithProviderTimeout(timeout time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.timeout = timeout
	}
}

// WithMaxParallel bounds how many components of one submission are booked
// at the same time. Zero means no bound.
func WithMaxParallel(n int) BookingServiceOption {
	return func(s *BookingService) {
		s.maxParallel = n
	}
}

func WithStaleAfter(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.staleAfter = d
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	cache Cache,
	producer Producer,
	providers Providers,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:    bookings,
		payments:    payments,
		cache:       cache,
		producer:    producer,
		providers:   providers,
		resultTTL:   time.Hour,
		tripLockTTL: 2 * time.Minute,
		staleAfter:  15 * time.Minute,
		timeout:     30 * time.Second,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	service.executor = NewExecutor(bookings, providers, service.timeout, service.now, service.logger)
	return service
}

// ProcessTripBooking books every selected component of a trip. Pending rows
// for all components are written before any provider is called; after that
// point the call always returns a result, whose status tells the caller
// whether every, some or none of the components were booked.
func (s *BookingService) ProcessTripBooking(ctx context.Context, input SubmitInput) (*domain.SubmissionResult, error) {
	if err := s.validateSubmission(input); err != nil {
		return nil, err
	}

	submittedAt := s.now()
	bookingID := newBookingID(input.TripID, submittedAt)
	logger := s.logger.With("booking_id", bookingID, "trip_id", input.TripID)

	if s.cache != nil {
		locked, err := s.cache.AcquireTripLock(ctx, input.TripID, bookingID, s.tripLockTTL)
		switch {
		case err != nil:
			logger.Warn("trip lock unavailable, relying on store constraint", "error", err)
		case !locked:
			return nil, fmt.Errorf("%w: trip %d has a submission in progress", domain.ErrConflict, input.TripID)
		default:
			defer func() {
				if err := s.cache.ReleaseTripLock(context.WithoutCancel(ctx), input.TripID, bookingID); err != nil {
					logger.Warn("failed to release trip lock", "error", err)
				}
			}()
		}
	}

	components := make([]*domain.ComponentBooking, 0, len(input.Selections))
	for _, sel := range input.Selections {
		components = append(components, &domain.ComponentBooking{
			BookingID:        bookingID,
			TripID:           input.TripID,
			UserID:           input.UserID,
			ComponentType:    sel.ComponentType,
			Provider:         sel.Provider,
			OptionID:         sel.OptionID,
			PriceCents:       sel.PriceCents,
			SelectionDetails: sel.Details,
			Customizations:   sel.Customizations,
			Status:           domain.ComponentStatusPending,
		})
	}

	if err := s.bookings.CreatePending(ctx, components); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		metrics.PersistenceFailures.WithLabelValues("create_pending").Inc()
		logger.Error("failed to persist pending components", "error", err)
		return nil, &domain.PersistenceError{Op: "create pending components", Err: err}
	}
	logger.Info("booking processing", "components", len(components))

	// Providers may already hold our bookings once the fan-out starts, so
	// the rest of the submission must not be abandoned with the caller.
	work := context.WithoutCancel(ctx)

	results := s.fanOut(work, components)
	result := summarize(bookingID, input.TripID, results, s.now())

	s.settle(work, input.UserID, components, results, result, logger)

	logger.Info("booking settled",
		"status", result.Status,
		"confirmed", len(result.Confirmed),
		"failed", len(result.Failed),
		"total_cost_cents", result.TotalCostCents)
	return result, nil
}

// fanOut runs one executor per component and waits for all of them. Every
// task returns nil; outcomes are collected per index.
func (s *BookingService) fanOut(ctx context.Context, components []*domain.ComponentBooking) []domain.ComponentResult {
	results := make([]domain.ComponentResult, len(components))

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i, c := range components {
		i, c := i, c
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("component booking panicked", "booking_id", c.BookingID, "component_type", c.ComponentType, "panic", r)
					results[i] = domain.ComponentResult{
						ComponentType: c.ComponentType,
						Provider:      c.Provider,
						PriceCents:    c.PriceCents,
						Status:        domain.ComponentStatusFailed,
						Err:           &domain.ProviderError{Provider: c.Provider, ComponentType: c.ComponentType, Err: fmt.Errorf("panic: %v", r)},
						PersistFailed: true,
					}
				}
			}()
			results[i] = s.executor.BookComponent(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// settle performs the writes that follow the fan-out: payment request,
// result snapshot and settlement events. None of them can change the
// outcome reported to the caller. When a component's stored row does not
// match its result, the amount to charge is taken from the store.
func (s *BookingService) settle(
	ctx context.Context,
	userID string,
	components []*domain.ComponentBooking,
	results []domain.ComponentResult,
	result *domain.SubmissionResult,
	logger *slog.Logger,
) {
	metrics.Submissions.WithLabelValues(string(result.Status)).Inc()

	consistent := true
	for _, r := range results {
		if r.PersistFailed {
			consistent = false
		}
	}

	snapshot := snapshotOf(components)
	snapshot.PaymentStatus = domain.PaymentStatusNone

	amount := result.TotalCostCents
	if !consistent {
		stored, err := s.bookings.ListComponents(ctx, result.BookingID)
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues("reload_booking").Inc()
			logger.Error("payment not requested, stored booking state unknown", "error", err)
			amount = 0
		} else {
			amount = domain.ConfirmedTotal(stored)
		}
	}

	if amount > 0 && s.payments != nil {
		if err := s.payments.UpsertPayment(ctx, result.BookingID, userID, amount, domain.PaymentStatusPending); err != nil {
			metrics.PersistenceFailures.WithLabelValues("upsert_payment").Inc()
			logger.Error("failed to record pending payment", "error", err)
			consistent = false
		} else {
			snapshot.PaymentStatus = domain.PaymentStatusPending
			s.requestPayment(ctx, result.BookingID, userID, amount)
		}
	}

	if consistent {
		// A new booking id has never been cached, so its generation is zero
		// unless a cancel or a reader got there first.
		s.storeSnapshot(ctx, snapshot, 0)
	} else {
		// The store and our in-memory view disagree; let readers recompute.
		s.invalidate(ctx, result.BookingID)
	}

	confirmed := make([]string, 0, len(result.Confirmed))
	for _, c := range result.Confirmed {
		confirmed = append(confirmed, string(c.ComponentType))
	}
	failed := make([]string, 0, len(result.Failed))
	for _, c := range result.Failed {
		failed = append(failed, string(c.ComponentType))
	}
	s.publish(ctx, kafka.BookingEvent{
		Type:        kafka.EventBookingSettled,
		BookingID:   result.BookingID,
		TripID:      result.TripID,
		UserID:      userID,
		Status:      string(result.Status),
		AmountCents: result.TotalCostCents,
		Components:  confirmed,
		Failed:      failed,
	})
}

func (s *BookingService) validateSubmission(input SubmitInput) error {
	if input.UserID == "" {
		return domain.Validationf("user id is required")
	}
	if input.TripID <= 0 {
		return domain.Validationf("trip id must be positive")
	}
	if len(input.Selections) == 0 {
		return domain.Validationf("at least one selection is required")
	}

	seen := make(map[domain.ComponentType]bool, len(input.Selections))
	for i, sel := range input.Selections {
		if !sel.ComponentType.Valid() {
			return domain.Validationf("selection %d: unknown component type %q", i, sel.ComponentType)
		}
		if seen[sel.ComponentType] {
			return domain.Validationf("selection %d: duplicate %s selection", i, sel.ComponentType)
		}
		seen[sel.ComponentType] = true

		if sel.PriceCents <= 0 {
			return domain.Validationf("selection %d: price must be positive", i)
		}
		if sel.Provider == "" {
			return domain.Validationf("selection %d: provider is required", i)
		}
		if s.providers == nil || !s.providers.Allowed(sel.ComponentType, sel.Provider) {
			return domain.Validationf("selection %d: provider %s is not available for %s", i, sel.Provider, sel.ComponentType)
		}
	}
	return nil
}

func summarize(bookingID string, tripID int64, results []domain.ComponentResult, completedAt time.Time) *domain.SubmissionResult {
	result := &domain.SubmissionResult{
		BookingID:      bookingID,
		TripID:         tripID,
		Confirmed:      make([]domain.ComponentResult, 0, len(results)),
		Failed:         make([]domain.ComponentResult, 0),
		ComponentCount: len(results),
		CompletedAt:    completedAt,
	}
	for _, r := range results {
		if r.Succeeded() {
			result.Confirmed = append(result.Confirmed, r)
			result.TotalCostCents += r.PriceCents
			continue
		}
		result.Failed = append(result.Failed, r)
	}
	result.Status = domain.Classify(len(result.Confirmed), len(result.Failed))
	return result
}

func snapshotOf(components []*domain.ComponentBooking) *domain.BookingAggregate {
	list := make([]domain.ComponentBooking, len(components))
	for i, c := range components {
		list[i] = *c
	}
	return domain.NewAggregate(list)
}

func newBookingID(tripID int64, at time.Time) string {
	return fmt.Sprintf("booking_%d_%d", tripID, at.UnixMilli())
}

var _ BookingUseCase = (*BookingService)(nil)
