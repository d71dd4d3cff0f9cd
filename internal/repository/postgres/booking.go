package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

type bookingRepo struct {
	s *Store
}

const bookingColumns = `
	id, customer_id, car_id, driver_id, pickup_location, destination,
	pickup_at, created_at, status, driver_required,
	total_amount_cents, refund_amount_cents, cancellation_reason, cancelled_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	b := &model.Booking{}
	var (
		driverID *string
		reason   *string
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.CarID, &driverID, &b.PickupLocation, &b.Destination,
		&b.PickupAt, &b.CreatedAt, &b.Status, &b.DriverRequired,
		&b.TotalAmountCents, &b.RefundAmountCents, &reason, &b.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		b.DriverID = *driverID
	}
	if reason != nil {
		b.CancellationReason = *reason
	}
	return b, nil
}

func (r *bookingRepo) get(ctx context.Context, id string, forUpdate bool) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate && r.s.inTx {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(r.s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

// Get fetches a booking by id.
func (r *bookingRepo) Get(ctx context.Context, id string) (*model.Booking, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate fetches a booking and locks its row for the transaction.
func (r *bookingRepo) GetForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	return r.get(ctx, id, true)
}

func (r *bookingRepo) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// List returns all bookings ordered by id.
func (r *bookingRepo) List(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, `SELECT`+bookingColumns+` FROM bookings ORDER BY id`)
}

// ListByCustomer returns the customer's bookings ordered by id.
func (r *bookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
	return r.list(ctx,
		`SELECT`+bookingColumns+` FROM bookings WHERE customer_id = $1 ORDER BY id`,
		customerID)
}

// ListActiveByCar returns pending/confirmed bookings on the car. These are
// the bookings that count as conflicts for the availability check.
func (r *bookingRepo) ListActiveByCar(ctx context.Context, carID string) ([]model.Booking, error) {
	return r.list(ctx,
		`SELECT`+bookingColumns+` FROM bookings
		 WHERE car_id = $1 AND status IN ('pending', 'confirmed')
		 ORDER BY id`,
		carID)
}

// ListDuePickups returns pending/confirmed bookings whose pickup time has
// passed. The reconciler re-checks each row under a lock before writing.
func (r *bookingRepo) ListDuePickups(ctx context.Context, now time.Time) ([]model.Booking, error) {
	return r.list(ctx,
		`SELECT`+bookingColumns+` FROM bookings
		 WHERE status IN ('pending', 'confirmed') AND pickup_at <= $1
		 ORDER BY id`,
		now)
}

// Save upserts a booking.
func (r *bookingRepo) Save(ctx context.Context, b *model.Booking) error {
	var driverID, reason *string
	if b.DriverID != "" {
		driverID = &b.DriverID
	}
	if b.CancellationReason != "" {
		reason = &b.CancellationReason
	}
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO bookings (
			id, customer_id, car_id, driver_id, pickup_location, destination,
			pickup_at, created_at, status, driver_required,
			total_amount_cents, refund_amount_cents, cancellation_reason, cancelled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			status = EXCLUDED.status,
			refund_amount_cents = EXCLUDED.refund_amount_cents,
			cancellation_reason = EXCLUDED.cancellation_reason,
			cancelled_at = EXCLUDED.cancelled_at
	`,
		b.ID, b.CustomerID, b.CarID, driverID, b.PickupLocation, b.Destination,
		b.PickupAt, b.CreatedAt, b.Status, b.DriverRequired,
		b.TotalAmountCents, b.RefundAmountCents, reason, b.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("save booking %s: %w", b.ID, err)
	}
	return nil
}

// Delete removes a booking row.
func (r *bookingRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.s.q.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
