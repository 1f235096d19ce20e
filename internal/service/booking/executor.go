package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/metrics"
	"github.com/Domenick1991/tripbooking/internal/provider"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/google/uuid"
)

// Executor books one component with its provider and records the outcome.
type Executor struct {
	bookings  repository.BookingRepository
	providers Providers
	timeout   time.Duration
	now       func() time.Time
	seq       atomic.Uint64
	logger    *slog.Logger
}

func NewExecutor(bookings repository.BookingRepository, providers Providers, timeout time.Duration, now func() time.Time, logger *slog.Logger) *Executor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		bookings:  bookings,
		providers: providers,
		timeout:   timeout,
		now:       now,
		logger:    logger,
	}
}

// BookComponent moves c to processing, calls the provider and records the
// outcome on c. It never returns an error: failures are reported in the
// result. PersistFailed is set when the stored row does not reflect the
// returned status.
func (e *Executor) BookComponent(ctx context.Context, c *domain.ComponentBooking) domain.ComponentResult {
	logger := e.logger.With("booking_id", c.BookingID, "component_type", c.ComponentType, "provider", c.Provider)
	result := domain.ComponentResult{
		ComponentType: c.ComponentType,
		Provider:      c.Provider,
		PriceCents:    c.PriceCents,
	}

	if err := e.bookings.MarkProcessing(ctx, c.BookingID, c.ComponentType); err != nil {
		// No provider call has been made, so nothing is held externally.
		metrics.PersistenceFailures.WithLabelValues("mark_processing").Inc()
		cause := &domain.PersistenceError{Op: "mark processing", Err: err}
		if errors.Is(err, repository.ErrStaleTransition) {
			logger.Warn("component left pending before it was booked", "error", err)
			return e.superseded(c, result, cause)
		}
		logger.Error("failed to mark component processing", "error", err)
		return e.fail(ctx, c, result, cause, logger)
	}
	c.Status = domain.ComponentStatusProcessing

	adapter, err := e.providers.Resolve(c.ComponentType, c.Provider)
	if err != nil {
		return e.fail(ctx, c, result, &domain.ProviderError{Provider: c.Provider, ComponentType: c.ComponentType, Err: err}, logger)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	confirmation, err := adapter.Book(callCtx, provider.Request{
		BookingID:      c.BookingID,
		TripID:         c.TripID,
		ComponentType:  c.ComponentType,
		OptionID:       c.OptionID,
		PriceCents:     c.PriceCents,
		Details:        c.SelectionDetails,
		Customizations: c.Customizations,
	})
	metrics.ProviderLatency.WithLabelValues(c.Provider).Observe(time.Since(started).Seconds())
	if err == nil && confirmation == nil {
		err = errors.New("provider returned no confirmation")
	}
	if err != nil {
		return e.fail(ctx, c, result, &domain.ProviderError{Provider: c.Provider, ComponentType: c.ComponentType, Err: err}, logger)
	}

	seq := e.seq.Add(1)
	reference := confirmation.Reference
	if reference == "" {
		reference = e.providerReference(c.Provider, seq)
	}
	confirmationNumber := newConfirmationNumber()

	details, err := buildDetails(c, confirmation.Attributes, seq, e.now())
	if err != nil {
		return e.fail(ctx, c, result, err, logger)
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return e.fail(ctx, c, result, fmt.Errorf("encode %s details: %w", c.ComponentType, err), logger)
	}

	c.ProviderReference = reference
	c.ConfirmationNumber = confirmationNumber
	c.ProviderDetails = payload

	result.ProviderReference = reference
	result.ConfirmationNumber = confirmationNumber
	result.Details = payload

	if err := e.bookings.MarkConfirmed(ctx, c); err != nil {
		metrics.PersistenceFailures.WithLabelValues("mark_confirmed").Inc()
		if errors.Is(err, repository.ErrStaleTransition) {
			// Cancelled or reaped while the provider call was in flight. The
			// provider facts stay on the result for reconciliation.
			logger.Error("provider confirmed a component that is no longer bookable",
				"provider_reference", reference,
				"confirmation_number", confirmationNumber,
				"error", err)
			return e.superseded(c, result, &domain.PersistenceError{Op: "mark confirmed", Err: err})
		}
		// The provider holds the booking but the store does not say so.
		logger.Error("provider confirmed but persisting confirmation failed",
			"provider_reference", reference,
			"error", err)
		result.PersistFailed = true
	}
	result.Status = domain.ComponentStatusConfirmed
	c.Status = domain.ComponentStatusConfirmed

	metrics.ComponentOutcomes.WithLabelValues(string(c.ComponentType), string(result.Status)).Inc()
	logger.Info("component confirmed", "provider_reference", reference, "confirmation_number", confirmationNumber)
	return result
}

func (e *Executor) fail(ctx context.Context, c *domain.ComponentBooking, result domain.ComponentResult, cause error, logger *slog.Logger) domain.ComponentResult {
	result.Status = domain.ComponentStatusFailed
	result.Err = cause

	c.Status = domain.ComponentStatusFailed
	c.Error = cause.Error()

	if err := e.bookings.MarkFailed(ctx, c.BookingID, c.ComponentType, c.Error); err != nil {
		metrics.PersistenceFailures.WithLabelValues("mark_failed").Inc()
		if errors.Is(err, repository.ErrStaleTransition) {
			logger.Warn("component left processing before its failure was recorded", "cause", cause, "error", err)
		} else {
			logger.Error("failed to persist component failure", "cause", cause, "error", err)
		}
		result.PersistFailed = true
	}

	metrics.ComponentOutcomes.WithLabelValues(string(c.ComponentType), string(result.Status)).Inc()
	logger.Warn("component failed", "error", cause)
	return result
}

// superseded reports a component whose stored row already moved on, to
// cancelled or to failed by the reaper. The row is left as it is.
func (e *Executor) superseded(c *domain.ComponentBooking, result domain.ComponentResult, cause error) domain.ComponentResult {
	result.Status = domain.ComponentStatusFailed
	result.Err = cause
	result.PersistFailed = true

	c.Status = domain.ComponentStatusFailed
	c.Error = cause.Error()

	metrics.ComponentOutcomes.WithLabelValues(string(c.ComponentType), "superseded").Inc()
	return result
}

func (e *Executor) providerReference(providerName string, seq uint64) string {
	return fmt.Sprintf("%s-%d-%d-%s", providerName, e.now().UnixMilli(), seq, uuid.NewString()[:8])
}

func newConfirmationNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:10])
}

// buildDetails produces the confirmation payload for c. Provider attributes
// win over the user's selection; missing values get defaults.
func buildDetails(c *domain.ComponentBooking, attrs map[string]string, seq uint64, now time.Time) (domain.ComponentDetails, error) {
	f := newFields(c.SelectionDetails, attrs)

	switch c.ComponentType {
	case domain.ComponentFlight:
		return domain.FlightDetails{
			FlightNumber: f.get("flight_number", "flightNumber").or(flightNumber(c.Provider, seq)),
			Seat:         f.get("seat").or("unassigned"),
			Class:        f.get("class", "cabin_class", "cabinClass").or("economy"),
		}, nil
	case domain.ComponentHotel:
		return domain.HotelDetails{
			RoomNumber: f.get("room_number", "roomNumber").or("assigned at check-in"),
			CheckIn:    f.get("check_in", "checkIn").value(),
			CheckOut:   f.get("check_out", "checkOut").value(),
		}, nil
	case domain.ComponentTicket:
		return domain.TicketDetails{
			Section: f.get("section").or("general admission"),
			Row:     f.get("row").value(),
			Seat:    f.get("seat").value(),
		}, nil
	case domain.ComponentCar:
		pickup := f.get("pickup_location", "pickupLocation", "location").value()
		return domain.CarDetails{
			PickupLocation: pickup,
			ReturnLocation: f.get("return_location", "returnLocation").or(pickup),
			PickupDate:     f.get("pickup_date", "pickupDate").value(),
			ReturnDate:     f.get("return_date", "returnDate").value(),
		}, nil
	case domain.ComponentTransportation:
		return domain.TransportationDetails{
			Pickup:  f.get("pickup", "pickup_location", "pickupLocation").value(),
			Dropoff: f.get("dropoff", "dropoff_location", "dropoffLocation").value(),
			ETA:     f.get("eta").or(now.Add(30 * time.Minute).UTC().Format(time.RFC3339)),
		}, nil
	}
	return nil, domain.Validationf("unknown component type %q", c.ComponentType)
}

func flightNumber(providerName string, seq uint64) string {
	code := strings.ToUpper(providerName)
	if len(code) > 2 {
		code = code[:2]
	}
	return fmt.Sprintf("%s%04d", code, 100+seq%9000)
}

type fields struct {
	selection map[string]any
	attrs     map[string]string
}

type field string

func newFields(selection json.RawMessage, attrs map[string]string) fields {
	f := fields{attrs: attrs}
	if len(selection) > 0 {
		// Selection details are free-form; anything that is not an object
		// is ignored.
		_ = json.Unmarshal(selection, &f.selection)
	}
	return f
}

func (f fields) get(keys ...string) field {
	for _, k := range keys {
		if v := f.attrs[k]; v != "" {
			return field(v)
		}
	}
	for _, k := range keys {
		switch v := f.selection[k].(type) {
		case string:
			if v != "" {
				return field(v)
			}
		case float64:
			return field(strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			return field(strconv.FormatBool(v))
		}
	}
	return ""
}

func (v field) or(fallback string) string {
	if v == "" {
		return fallback
	}
	return string(v)
}

func (v field) value() string {
	return string(v)
}
