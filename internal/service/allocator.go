package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

var (
	// ErrDriverUnavailable is returned when the car's pre-assigned driver
	// exists but is committed elsewhere.
	ErrDriverUnavailable = errors.New("car's assigned driver is not available")

	// ErrNoDriverAvailable is returned when no free driver exists in the
	// independent pool.
	ErrNoDriverAvailable = errors.New("no available driver")

	// ErrDriverNotFound is returned when a referenced driver id does not
	// resolve.
	ErrDriverNotFound = errors.New("driver not found")
)

// allocateDriver assigns a driver inside the caller's transaction.
//
// Cars with a pre-assigned driver get exactly that driver or fail; cars
// without one draw the lowest-id free driver from the independent pool
// (available, no own car). Exactly one driver's availability flag flips on
// success; on failure the enclosing transaction rolls every write back.
func allocateDriver(ctx context.Context, st repository.Store, car *model.Car) (*model.Driver, error) {
	var (
		driver *model.Driver
		err    error
	)

	if car.AssignedDriverID != "" {
		driver, err = st.Drivers().GetForUpdate(ctx, car.AssignedDriverID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrDriverNotFound
			}
			return nil, fmt.Errorf("allocate: load assigned driver: %w", err)
		}
		if !driver.Available {
			return nil, ErrDriverUnavailable
		}
	} else {
		driver, err = st.Drivers().FirstAvailablePoolDriver(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoDriverAvailable
			}
			return nil, fmt.Errorf("allocate: scan driver pool: %w", err)
		}
	}

	driver.Available = false
	if err := st.Drivers().Save(ctx, driver); err != nil {
		return nil, fmt.Errorf("allocate: save driver %s: %w", driver.ID, err)
	}

	log.Printf("[booking] assigned driver %s to car %s", driver.ID, car.ID)
	return driver, nil
}
