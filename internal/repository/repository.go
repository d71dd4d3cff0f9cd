// Package repository defines the persistence ports consumed by the booking
// core, one per entity, plus the Store aggregate with its transactional
// boundary. Implementations live in the postgres and memory subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/megacity/cab/internal/model"
)

// ErrNotFound is returned by every Get/Delete when the id does not resolve.
var ErrNotFound = errors.New("record not found")

// Bookings is the persistence port for booking aggregates.
type Bookings interface {
	Get(ctx context.Context, id string) (*model.Booking, error)
	// GetForUpdate locks the row for the remainder of the enclosing
	// transaction. Outside Atomic it behaves like Get.
	GetForUpdate(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context) ([]model.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error)
	// ListActiveByCar returns bookings on the car whose status still counts
	// against its availability (pending or confirmed).
	ListActiveByCar(ctx context.Context, carID string) ([]model.Booking, error)
	// ListDuePickups returns pending/confirmed bookings whose pickup time is
	// at or before now.
	ListDuePickups(ctx context.Context, now time.Time) ([]model.Booking, error)
	Save(ctx context.Context, b *model.Booking) error
	Delete(ctx context.Context, id string) error
}

// Cars is the persistence port for fleet vehicles.
type Cars interface {
	Get(ctx context.Context, id string) (*model.Car, error)
	GetForUpdate(ctx context.Context, id string) (*model.Car, error)
	List(ctx context.Context) ([]model.Car, error)
	Save(ctx context.Context, c *model.Car) error
	Delete(ctx context.Context, id string) error
}

// Drivers is the persistence port for drivers.
type Drivers interface {
	Get(ctx context.Context, id string) (*model.Driver, error)
	GetForUpdate(ctx context.Context, id string) (*model.Driver, error)
	List(ctx context.Context) ([]model.Driver, error)
	// FirstAvailablePoolDriver returns the available driver with the lowest
	// id among those without an own car, or ErrNotFound.
	FirstAvailablePoolDriver(ctx context.Context) (*model.Driver, error)
	Save(ctx context.Context, d *model.Driver) error
	Delete(ctx context.Context, id string) error
}

// Customers is the persistence port for customers.
type Customers interface {
	Get(ctx context.Context, id string) (*model.Customer, error)
	List(ctx context.Context) ([]model.Customer, error)
	Save(ctx context.Context, c *model.Customer) error
	Delete(ctx context.Context, id string) error
}

// Store aggregates the entity repositories and owns the transaction boundary.
type Store interface {
	Bookings() Bookings
	Cars() Cars
	Drivers() Drivers
	Customers() Customers

	// Atomic runs fn against a Store view bound to a single transaction.
	// Writes made through that view are read back by subsequent reads in the
	// same fn, and either all commit or none do. Row locks taken via
	// GetForUpdate are held until fn returns.
	Atomic(ctx context.Context, fn func(Store) error) error
}
