package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository stores the payment and refund side of a booking. The
// payment subsystem owns the money; these rows only mirror its events.
type PaymentRepository interface {
	UpsertPayment(ctx context.Context, bookingID, userID string, amountCents int64, status domain.PaymentStatus) error
	UpdatePaymentStatus(ctx context.Context, bookingID string, status domain.PaymentStatus, reference string) error
	GetPaymentStatus(ctx context.Context, bookingID string) (domain.PaymentStatus, error)
	CreateRefundRequest(ctx context.Context, refund *domain.RefundRequest) error
	CompleteRefundRequests(ctx context.Context, bookingID string) (int64, error)
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

func (r *PGPaymentRepository) UpsertPayment(ctx context.Context, bookingID, userID string, amountCents int64, status domain.PaymentStatus) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_payments (booking_id, user_id, amount_cents, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO UPDATE
		SET amount_cents = EXCLUDED.amount_cents, status = EXCLUDED.status, updated_at = now()`,
		bookingID, userID, amountCents, status)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

func (r *PGPaymentRepository) UpdatePaymentStatus(ctx context.Context, bookingID string, status domain.PaymentStatus, reference string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE booking_payments
		SET status = $2, reference = COALESCE(NULLIF($3, ''), reference), updated_at = now()
		WHERE booking_id = $1`,
		bookingID, status, reference)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: no payment for %s", domain.ErrNotFound, bookingID)
	}
	return nil
}

func (r *PGPaymentRepository) GetPaymentStatus(ctx context.Context, bookingID string) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM booking_payments WHERE booking_id = $1`, bookingID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaymentStatusNone, nil
		}
		return "", fmt.Errorf("get payment status: %w", err)
	}
	return status, nil
}

func (r *PGPaymentRepository) CreateRefundRequest(ctx context.Context, refund *domain.RefundRequest) error {
	components := make([]string, len(refund.Components))
	for i, c := range refund.Components {
		components[i] = string(c)
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO refund_requests (booking_id, user_id, reason, components, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		refund.BookingID, refund.UserID, refund.Reason, components, refund.Status).
		Scan(&refund.ID, &refund.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

func (r *PGPaymentRepository) CompleteRefundRequests(ctx context.Context, bookingID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2, updated_at = now()
		WHERE booking_id = $1 AND status = $3`,
		bookingID, domain.RefundStatusCompleted, domain.RefundStatusRequested)
	if err != nil {
		return 0, fmt.Errorf("complete refund requests: %w", err)
	}
	return cmd.RowsAffected(), nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
