package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

// Reconciler is the recurring job that advances bookings whose pickup time
// has passed from pending/confirmed to in_progress, and re-flags their cars
// as unavailable.
//
// It cooperates with the request path rather than racing it: the due list is
// only a snapshot, so each advance re-reads the booking under a row lock and
// re-checks its state immediately before writing. A booking cancelled
// between query and update is simply skipped, and re-running the job on an
// already-advanced set is a no-op.
type Reconciler struct {
	store    repository.Store
	clock    Clock
	interval time.Duration
}

// NewReconciler creates a reconciler ticking at the given interval.
func NewReconciler(store repository.Store, clock Clock, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{store: store, clock: clock, interval: interval}
}

// Run ticks until ctx is cancelled. Each tick failure is logged; the loop
// never stops because of one bad pass.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("[reconcile] running every %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[reconcile] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Printf("[reconcile] pass failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single reconciliation pass. Per-booking failures are
// logged and skipped so one bad record cannot halt the batch.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	now := r.clock.Now()

	due, err := r.store.Bookings().ListDuePickups(ctx, now)
	if err != nil {
		return err
	}

	for i := range due {
		if err := r.advance(ctx, due[i].ID); err != nil {
			log.Printf("[reconcile] booking %s: %v", due[i].ID, err)
		}
	}
	return nil
}

// advance moves one due booking to in_progress. The booking is re-read
// under a lock and its state re-checked, so a concurrent cancel wins and
// the advance becomes a no-op.
func (r *Reconciler) advance(ctx context.Context, bookingID string) error {
	return r.store.Atomic(ctx, func(st repository.Store) error {
		b, err := st.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil // deleted since the snapshot
			}
			return err
		}

		if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
			return nil // cancelled or already advanced since the snapshot
		}

		// Defensive re-flag: covers a car whose availability drifted, e.g.
		// after a process restart.
		car, err := st.Cars().GetForUpdate(ctx, b.CarID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		case car.Available:
			car.Available = false
			if err := st.Cars().Save(ctx, car); err != nil {
				return err
			}
		}

		b.Status = model.BookingInProgress
		if err := st.Bookings().Save(ctx, b); err != nil {
			return err
		}

		log.Printf("[reconcile] booking %s advanced to in_progress", b.ID)
		return nil
	})
}
