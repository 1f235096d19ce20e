package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleTransition is returned when a status write matched no row
// because the component already left the states the write applies to,
// for example a provider result arriving after cancellation.
var ErrStaleTransition = errors.New("component is not in an updatable state")

type BookingRepository interface {
	CreatePending(ctx context.Context, components []*domain.ComponentBooking) error
	MarkProcessing(ctx context.Context, bookingID string, componentType domain.ComponentType) error
	MarkConfirmed(ctx context.Context, component *domain.ComponentBooking) error
	MarkFailed(ctx context.Context, bookingID string, componentType domain.ComponentType, reason string) error
	ListComponents(ctx context.Context, bookingID string) ([]domain.ComponentBooking, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]domain.BookingSummary, int, error)
	CancelBooking(ctx context.Context, bookingID string) ([]domain.ComponentBooking, error)
	FailStaleComponents(ctx context.Context, before time.Time, reason string) ([]domain.ComponentBooking, error)
}

// Status writes only touch rows whose current status may move to the
// written one.
var (
	processingFrom = statusArgs(domain.TransitionSources(domain.ComponentStatusProcessing))
	confirmedFrom  = statusArgs(domain.TransitionSources(domain.ComponentStatusConfirmed))
	failedFrom     = statusArgs(domain.TransitionSources(domain.ComponentStatusFailed))
	cancelledFrom  = statusArgs(domain.TransitionSources(domain.ComponentStatusCancelled))
)

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const componentColumns = `id, booking_id, trip_id, user_id, component_type, provider, option_id, price_cents,
	selection_details, customizations, status, provider_reference, confirmation_number, provider_details, error,
	created_at, updated_at, booked_at, cancelled_at`

// CreatePending inserts every component of a submission in one transaction.
// Either all rows exist afterwards or none do.
func (r *PGBookingRepository) CreatePending(ctx context.Context, components []*domain.ComponentBooking) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const sql = `
		INSERT INTO component_bookings (booking_id, trip_id, user_id, component_type, provider, option_id, price_cents, selection_details, customizations, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	for _, c := range components {
		c.Status = domain.ComponentStatusPending
		err := tx.QueryRow(ctx, sql,
			c.BookingID, c.TripID, c.UserID, c.ComponentType, c.Provider, c.OptionID, c.PriceCents, nullJSON(c.SelectionDetails), nullJSON(c.Customizations), c.Status).
			Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: trip %d already has an active %s booking", domain.ErrConflict, c.TripID, c.ComponentType)
			}
			return fmt.Errorf("insert %s component: %w", c.ComponentType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pending components: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) MarkProcessing(ctx context.Context, bookingID string, componentType domain.ComponentType) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE component_bookings
		SET status = $3, updated_at = now()
		WHERE booking_id = $1 AND component_type = $2 AND status = ANY($4)`,
		bookingID, componentType, domain.ComponentStatusProcessing, processingFrom)
	if err != nil {
		return fmt.Errorf("mark %s processing: %w", componentType, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("mark %s processing: %w", componentType, ErrStaleTransition)
	}
	return nil
}

func (r *PGBookingRepository) MarkConfirmed(ctx context.Context, c *domain.ComponentBooking) error {
	row := r.db.QueryRow(ctx, `
		UPDATE component_bookings
		SET status = $3, provider_reference = $4, confirmation_number = $5, provider_details = $6,
			error = '', booked_at = now(), updated_at = now()
		WHERE booking_id = $1 AND component_type = $2 AND status = ANY($7)
		RETURNING updated_at, booked_at`,
		c.BookingID, c.ComponentType, domain.ComponentStatusConfirmed, c.ProviderReference, c.ConfirmationNumber, nullJSON(c.ProviderDetails), confirmedFrom)
	if err := row.Scan(&c.UpdatedAt, &c.BookedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("mark %s confirmed: %w", c.ComponentType, ErrStaleTransition)
		}
		return fmt.Errorf("mark %s confirmed: %w", c.ComponentType, err)
	}
	c.Status = domain.ComponentStatusConfirmed
	return nil
}

func (r *PGBookingRepository) MarkFailed(ctx context.Context, bookingID string, componentType domain.ComponentType, reason string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE component_bookings
		SET status = $3, error = $4, updated_at = now()
		WHERE booking_id = $1 AND component_type = $2 AND status = ANY($5)`,
		bookingID, componentType, domain.ComponentStatusFailed, reason, failedFrom)
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", componentType, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("mark %s failed: %w", componentType, ErrStaleTransition)
	}
	return nil
}

func (r *PGBookingRepository) ListComponents(ctx context.Context, bookingID string) ([]domain.ComponentBooking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+componentColumns+` FROM component_bookings WHERE booking_id = $1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	components, err := scanComponents(rows)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, bookingID)
	}
	return components, nil
}

func (r *PGBookingRepository) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]domain.BookingSummary, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT booking_id) FROM component_bookings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user bookings: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT booking_id, MIN(trip_id), MIN(created_at), MAX(updated_at),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'confirmed'),
			COALESCE(SUM(price_cents) FILTER (WHERE status = 'confirmed'), 0),
			array_agg(status)
		FROM component_bookings
		WHERE user_id = $1
		GROUP BY booking_id
		ORDER BY MIN(created_at) DESC, booking_id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list user bookings: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.BookingSummary, 0)
	for rows.Next() {
		var s domain.BookingSummary
		var statuses []string
		if err := rows.Scan(&s.ID, &s.TripID, &s.CreatedAt, &s.UpdatedAt, &s.ComponentCount, &s.ConfirmedCount, &s.TotalCostCents, &statuses); err != nil {
			return nil, 0, fmt.Errorf("scan booking summary: %w", err)
		}
		s.Status = statusFromStrings(statuses)
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// CancelBooking moves every component of the booking that is not already
// cancelled to cancelled and returns the resulting rows.
func (r *PGBookingRepository) CancelBooking(ctx context.Context, bookingID string) ([]domain.ComponentBooking, error) {
	_, err := r.db.Exec(ctx, `
		UPDATE component_bookings
		SET status = $2, cancelled_at = now(), updated_at = now()
		WHERE booking_id = $1 AND status = ANY($3)`,
		bookingID, domain.ComponentStatusCancelled, cancelledFrom)
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return r.ListComponents(ctx, bookingID)
}

func (r *PGBookingRepository) FailStaleComponents(ctx context.Context, before time.Time, reason string) ([]domain.ComponentBooking, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE component_bookings
		SET status = $1, error = $2, updated_at = now()
		WHERE status = ANY($4) AND updated_at < $3
		RETURNING `+componentColumns,
		domain.ComponentStatusFailed, reason, before, failedFrom)
	if err != nil {
		return nil, fmt.Errorf("fail stale components: %w", err)
	}
	return scanComponents(rows)
}

func scanComponents(rows pgx.Rows) ([]domain.ComponentBooking, error) {
	defer rows.Close()

	var components []domain.ComponentBooking
	for rows.Next() {
		var c domain.ComponentBooking
		var selection, customizations, details []byte
		if err := rows.Scan(&c.ID, &c.BookingID, &c.TripID, &c.UserID, &c.ComponentType, &c.Provider, &c.OptionID, &c.PriceCents,
			&selection, &customizations, &c.Status, &c.ProviderReference, &c.ConfirmationNumber, &details, &c.Error,
			&c.CreatedAt, &c.UpdatedAt, &c.BookedAt, &c.CancelledAt); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		c.SelectionDetails = json.RawMessage(selection)
		c.Customizations = json.RawMessage(customizations)
		c.ProviderDetails = json.RawMessage(details)
		components = append(components, c)
	}
	return components, rows.Err()
}

func statusFromStrings(statuses []string) domain.BookingStatus {
	components := make([]domain.ComponentBooking, len(statuses))
	for i, s := range statuses {
		components[i].Status = domain.ComponentStatus(s)
	}
	return domain.DeriveStatus(components)
}

func statusArgs(statuses []domain.ComponentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
