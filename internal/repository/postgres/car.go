package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

type carRepo struct {
	s *Store
}

const (
	carCacheKeyPrefix = "car:"
	carCacheTTL       = 30 * time.Second
)

const carColumns = `
	id, brand, model, license_plate, capacity,
	base_rate_cents, driver_rate_cents, available, assigned_driver_id, created_at`

func scanCar(row pgx.Row) (*model.Car, error) {
	c := &model.Car{}
	var assigned *string
	err := row.Scan(
		&c.ID, &c.Brand, &c.Model, &c.LicensePlate, &c.Capacity,
		&c.BaseRateCents, &c.DriverRateCents, &c.Available, &assigned, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assigned != nil {
		c.AssignedDriverID = *assigned
	}
	return c, nil
}

// Get fetches a car, trying the Redis cache first outside transactions.
// Transactional reads always hit the database so locks see fresh rows.
func (r *carRepo) Get(ctx context.Context, id string) (*model.Car, error) {
	if r.s.redis != nil && !r.s.inTx {
		if cached, err := r.s.redis.Get(ctx, carCacheKeyPrefix+id).Bytes(); err == nil {
			c := &model.Car{}
			if err := json.Unmarshal(cached, c); err == nil {
				return c, nil
			}
		}
	}

	c, err := r.get(ctx, id, false)
	if err != nil {
		return nil, err
	}

	// Cache the result (fire-and-forget, don't block on errors).
	if r.s.redis != nil && !r.s.inTx {
		if raw, err := json.Marshal(c); err == nil {
			_ = r.s.redis.Set(ctx, carCacheKeyPrefix+id, raw, carCacheTTL).Err()
		}
	}
	return c, nil
}

// GetForUpdate fetches a car and locks its row for the transaction.
func (r *carRepo) GetForUpdate(ctx context.Context, id string) (*model.Car, error) {
	return r.get(ctx, id, true)
}

func (r *carRepo) get(ctx context.Context, id string, forUpdate bool) (*model.Car, error) {
	query := `SELECT` + carColumns + ` FROM cars WHERE id = $1`
	if forUpdate && r.s.inTx {
		query += ` FOR UPDATE`
	}
	c, err := scanCar(r.s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get car %s: %w", id, err)
	}
	return c, nil
}

// List returns all cars ordered by id.
func (r *carRepo) List(ctx context.Context) ([]model.Car, error) {
	rows, err := r.s.q.Query(ctx, `SELECT`+carColumns+` FROM cars ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	var out []model.Car
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Save upserts a car and invalidates its cache entry.
func (r *carRepo) Save(ctx context.Context, c *model.Car) error {
	var assigned *string
	if c.AssignedDriverID != "" {
		assigned = &c.AssignedDriverID
	}
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO cars (
			id, brand, model, license_plate, capacity,
			base_rate_cents, driver_rate_cents, available, assigned_driver_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			license_plate = EXCLUDED.license_plate,
			capacity = EXCLUDED.capacity,
			base_rate_cents = EXCLUDED.base_rate_cents,
			driver_rate_cents = EXCLUDED.driver_rate_cents,
			available = EXCLUDED.available,
			assigned_driver_id = EXCLUDED.assigned_driver_id
	`,
		c.ID, c.Brand, c.Model, c.LicensePlate, c.Capacity,
		c.BaseRateCents, c.DriverRateCents, c.Available, assigned, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save car %s: %w", c.ID, err)
	}

	if r.s.redis != nil {
		if err := r.s.redis.Del(ctx, carCacheKeyPrefix+c.ID).Err(); err != nil {
			log.Printf("[store] car cache invalidation failed for %s: %v", c.ID, err)
		}
	}
	return nil
}

// Delete removes a car row and its cache entry.
func (r *carRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.s.q.Exec(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete car %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if r.s.redis != nil {
		_ = r.s.redis.Del(ctx, carCacheKeyPrefix+id).Err()
	}
	return nil
}
