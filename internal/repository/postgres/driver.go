package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

type driverRepo struct {
	s *Store
}

const driverColumns = `
	id, name, license_no, phone, email, available, has_own_car, car_id, created_at`

func scanDriver(row pgx.Row) (*model.Driver, error) {
	d := &model.Driver{}
	var carID *string
	err := row.Scan(
		&d.ID, &d.Name, &d.LicenseNo, &d.Phone, &d.Email,
		&d.Available, &d.HasOwnCar, &carID, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if carID != nil {
		d.CarID = *carID
	}
	return d, nil
}

func (r *driverRepo) get(ctx context.Context, id string, forUpdate bool) (*model.Driver, error) {
	query := `SELECT` + driverColumns + ` FROM drivers WHERE id = $1`
	if forUpdate && r.s.inTx {
		query += ` FOR UPDATE`
	}
	d, err := scanDriver(r.s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get driver %s: %w", id, err)
	}
	return d, nil
}

// Get fetches a driver by id.
func (r *driverRepo) Get(ctx context.Context, id string) (*model.Driver, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate fetches a driver and locks its row for the transaction.
func (r *driverRepo) GetForUpdate(ctx context.Context, id string) (*model.Driver, error) {
	return r.get(ctx, id, true)
}

// List returns all drivers ordered by id.
func (r *driverRepo) List(ctx context.Context) ([]model.Driver, error) {
	rows, err := r.s.q.Query(ctx, `SELECT`+driverColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []model.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// FirstAvailablePoolDriver picks the lowest-id available driver without an
// own car. Inside a transaction the row is locked so two concurrent
// allocations cannot pick the same driver; SKIP LOCKED makes the loser move
// on to the next candidate instead of blocking.
func (r *driverRepo) FirstAvailablePoolDriver(ctx context.Context) (*model.Driver, error) {
	query := `SELECT` + driverColumns + `
		FROM drivers
		WHERE available = TRUE AND has_own_car = FALSE
		ORDER BY id
		LIMIT 1`
	if r.s.inTx {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	d, err := scanDriver(r.s.q.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find pool driver: %w", err)
	}
	return d, nil
}

// Save upserts a driver.
func (r *driverRepo) Save(ctx context.Context, d *model.Driver) error {
	var carID *string
	if d.CarID != "" {
		carID = &d.CarID
	}
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO drivers (
			id, name, license_no, phone, email, available, has_own_car, car_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			license_no = EXCLUDED.license_no,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			available = EXCLUDED.available,
			has_own_car = EXCLUDED.has_own_car,
			car_id = EXCLUDED.car_id
	`,
		d.ID, d.Name, d.LicenseNo, d.Phone, d.Email, d.Available, d.HasOwnCar, carID, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save driver %s: %w", d.ID, err)
	}
	return nil
}

// Delete removes a driver row.
func (r *driverRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.s.q.Exec(ctx, `DELETE FROM drivers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete driver %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
