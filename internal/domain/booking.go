package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ComponentType string

const (
	ComponentFlight         ComponentType = "flight"
	ComponentHotel          ComponentType = "hotel"
	ComponentTicket         ComponentType = "ticket"
	ComponentCar            ComponentType = "car"
	ComponentTransportation ComponentType = "transportation"
)

// ComponentTypes lists every bookable component type in display order.
var ComponentTypes = []ComponentType{
	ComponentFlight,
	ComponentHotel,
	ComponentTicket,
	ComponentCar,
	ComponentTransportation,
}

func (t ComponentType) Valid() bool {
	switch t {
	case ComponentFlight, ComponentHotel, ComponentTicket, ComponentCar, ComponentTransportation:
		return true
	}
	return false
}

func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown component type %q", ErrValidation, s)
	}
	return t, nil
}

type ComponentStatus string

const (
	ComponentStatusPending    ComponentStatus = "pending"
	ComponentStatusProcessing ComponentStatus = "processing"
	ComponentStatusConfirmed  ComponentStatus = "confirmed"
	ComponentStatusFailed     ComponentStatus = "failed"
	ComponentStatusCancelled  ComponentStatus = "cancelled"
)

type BookingStatus string

const (
	BookingStatusProcessing BookingStatus = "processing"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusPartial    BookingStatus = "partial"
	BookingStatusFailed     BookingStatus = "failed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusNone     PaymentStatus = "none"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Selection is one component the user picked for a trip.
type Selection struct {
	ComponentType  ComponentType   `json:"component_type"`
	OptionID       string          `json:"option_id"`
	Provider       string          `json:"provider"`
	PriceCents     int64           `json:"price_cents"`
	Details        json.RawMessage `json:"details,omitempty"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

// ComponentBooking is the persisted state of one component of a booking.
// SelectionDetails and ProviderDetails are opaque outside the executor.
type ComponentBooking struct {
	ID                 int64           `json:"id"`
	BookingID          string          `json:"booking_id"`
	TripID             int64           `json:"trip_id"`
	UserID             string          `json:"user_id"`
	ComponentType      ComponentType   `json:"component_type"`
	Provider           string          `json:"provider"`
	OptionID           string          `json:"option_id"`
	PriceCents         int64           `json:"price_cents"`
	SelectionDetails   json.RawMessage `json:"selection_details,omitempty"`
	Customizations     json.RawMessage `json:"customizations,omitempty"`
	Status             ComponentStatus `json:"status"`
	ProviderReference  string          `json:"provider_reference,omitempty"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	ProviderDetails    json.RawMessage `json:"provider_details,omitempty"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	BookedAt           *time.Time      `json:"booked_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
}

// BookingAggregate groups every component of one submission. It is never
// stored as its own row: Status and TotalCostCents are recomputed from the
// components on every read.
type BookingAggregate struct {
	ID             string             `json:"id"`
	TripID         int64              `json:"trip_id"`
	UserID         string             `json:"user_id"`
	Status         BookingStatus      `json:"status"`
	TotalCostCents int64              `json:"total_cost_cents"`
	PaymentStatus  PaymentStatus      `json:"payment_status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Components     []ComponentBooking `json:"components"`
}

// NewAggregate builds an aggregate from its component rows. It returns nil
// when components is empty.
func NewAggregate(components []ComponentBooking) *BookingAggregate {
	if len(components) == 0 {
		return nil
	}
	first := components[0]
	agg := &BookingAggregate{
		ID:            first.BookingID,
		TripID:        first.TripID,
		UserID:        first.UserID,
		PaymentStatus: PaymentStatusNone,
		CreatedAt:     first.CreatedAt,
		UpdatedAt:     first.UpdatedAt,
		Components:    components,
	}
	agg.Recompute()
	return agg
}

// Recompute refreshes the derived fields from the component list.
func (a *BookingAggregate) Recompute() {
	a.Status = DeriveStatus(a.Components)
	a.TotalCostCents = ConfirmedTotal(a.Components)
	for _, c := range a.Components {
		if c.CreatedAt.Before(a.CreatedAt) {
			a.CreatedAt = c.CreatedAt
		}
		if c.UpdatedAt.After(a.UpdatedAt) {
			a.UpdatedAt = c.UpdatedAt
		}
	}
}

// Settled reports whether no component is still waiting on its provider.
func (a *BookingAggregate) Settled() bool {
	for _, c := range a.Components {
		if c.Status == ComponentStatusPending || c.Status == ComponentStatusProcessing {
			return false
		}
	}
	return true
}

func (a *BookingAggregate) OwnedBy(userID string) bool {
	return a != nil && a.UserID != "" && a.UserID == userID
}

func (a *BookingAggregate) Component(t ComponentType) (ComponentBooking, bool) {
	for _, c := range a.Components {
		if c.ComponentType == t {
			return c, true
		}
	}
	return ComponentBooking{}, false
}

// BookingSummary is one row of a user's booking history.
type BookingSummary struct {
	ID             string        `json:"id"`
	TripID         int64         `json:"trip_id"`
	Status         BookingStatus `json:"status"`
	TotalCostCents int64         `json:"total_cost_cents"`
	ComponentCount int           `json:"component_count"`
	ConfirmedCount int           `json:"confirmed_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type BookingPage struct {
	Bookings []BookingSummary `json:"bookings"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ComponentResult is the settled outcome of one executor call.
type ComponentResult struct {
	ComponentType      ComponentType   `json:"component_type"`
	Provider           string          `json:"provider"`
	PriceCents         int64           `json:"price_cents"`
	Status             ComponentStatus `json:"status"`
	ProviderReference  string          `json:"provider_reference,omitempty"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	Details            json.RawMessage `json:"details,omitempty"`
	Err                error           `json:"-"`
	// PersistFailed is set when the provider outcome could not be written
	// to the store.
	PersistFailed bool `json:"-"`
}

func (r ComponentResult) Succeeded() bool {
	return r.Err == nil && r.Status == ComponentStatusConfirmed
}

type SubmissionResult struct {
	BookingID      string            `json:"booking_id"`
	TripID         int64             `json:"trip_id"`
	Status         BookingStatus     `json:"status"`
	Confirmed      []ComponentResult `json:"confirmed"`
	Failed         []ComponentResult `json:"failed"`
	TotalCostCents int64             `json:"total_cost_cents"`
	ComponentCount int               `json:"component_count"`
	CompletedAt    time.Time         `json:"completed_at"`
}

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusCompleted RefundStatus = "completed"
)

type RefundRequest struct {
	ID         int64           `json:"id"`
	BookingID  string          `json:"booking_id"`
	UserID     string          `json:"user_id"`
	Reason     string          `json:"reason"`
	Components []ComponentType `json:"components,omitempty"`
	Status     RefundStatus    `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}
