package service

import (
	"context"
	"errors"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

// ErrCarUnavailable is returned when the car is already committed or an
// active booking holds an overlapping slot.
var ErrCarUnavailable = errors.New("car is not available for the requested time")

// overlapBuffer is the minimum spacing between two pickups on the same car
// and calendar date. Pickups closer than this conflict.
const overlapBuffer = time.Hour

// overlapping reports whether two pickups conflict: same calendar date in
// the fleet zone and absolute difference strictly under the buffer. The
// check is symmetric.
func overlapping(existing, requested time.Time, loc *time.Location) bool {
	e := existing.In(loc)
	r := requested.In(loc)

	ey, em, ed := e.Date()
	ry, rm, rd := r.Date()
	if ey != ry || em != rm || ed != rd {
		return false
	}

	diff := e.Sub(r)
	if diff < 0 {
		diff = -diff
	}
	return diff < overlapBuffer
}

// checkCarAvailable enforces the availability invariant for a new booking:
// the car's flag must be up AND no pending/confirmed booking on the car may
// overlap the requested pickup. The flag is the primary signal; the overlap
// scan covers flags that drifted (e.g. across a process restart).
func checkCarAvailable(
	ctx context.Context,
	st repository.Store,
	car *model.Car,
	pickupAt time.Time,
	loc *time.Location,
) error {
	if !car.Available {
		return ErrCarUnavailable
	}

	active, err := st.Bookings().ListActiveByCar(ctx, car.ID)
	if err != nil {
		return err
	}
	for i := range active {
		if overlapping(active[i].PickupAt, pickupAt, loc) {
			return ErrCarUnavailable
		}
	}
	return nil
}
