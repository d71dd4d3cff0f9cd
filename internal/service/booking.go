// Package service contains the core business logic for the cab booking
// system: the booking lifecycle manager, availability checking, driver
// allocation, pricing/refunds, and the reconciliation job.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

// ─── Booking Errors ─────────────────────────────────────────

var (
	// ErrBookingNotFound is returned when the booking id does not resolve.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrCarNotFound is returned when the car id does not resolve.
	ErrCarNotFound = errors.New("car not found")

	// ErrInvalidState is returned when the requested transition is not
	// legal from the booking's current status.
	ErrInvalidState = errors.New("operation not allowed in current booking state")

	// ErrNotOwner is returned when the requesting customer does not own
	// the booking.
	ErrNotOwner = errors.New("not authorized for this booking")

	// ErrInvalidInput is returned for malformed booking input.
	ErrInvalidInput = errors.New("invalid booking input")
)

// ─── Collaborator ports ─────────────────────────────────────

// Notifier delivers a message to a recipient. Delivery is best effort: the
// booking flow never fails because a notification could not be sent.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// ReceiptWriter renders a confirmation receipt for a booking. Like the
// Notifier it is best effort.
type ReceiptWriter interface {
	WriteConfirmation(b *model.Booking, customer *model.Customer, car *model.Car) (string, error)
}

// ─── BookingService ─────────────────────────────────────────

// BookingService is the booking lifecycle manager. It owns the state
// machine and runs every multi-record mutation inside Store.Atomic so a
// cancel and a reconciliation advance on the same booking cannot both win.
//
// Bookings start PENDING and need an explicit Confirm; both pending and
// confirmed bookings hold their car, so an unconfirmed booking still blocks
// the slot.
type BookingService struct {
	store    repository.Store
	notifier Notifier
	receipts ReceiptWriter
	clock    Clock
	pricing  Pricing
	loc      *time.Location
}

// NewBookingService creates a booking service. notifier and receipts may be
// nil; the corresponding side effects are then skipped.
func NewBookingService(
	store repository.Store,
	notifier Notifier,
	receipts ReceiptWriter,
	clock Clock,
	pricing Pricing,
	loc *time.Location,
) *BookingService {
	return &BookingService{
		store:    store,
		notifier: notifier,
		receipts: receipts,
		clock:    clock,
		pricing:  pricing,
		loc:      loc,
	}
}

// NewID returns a fresh 24-character hex record id.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateBookingInput carries a validated create request. The requesting
// customer is already resolved by the boundary.
type CreateBookingInput struct {
	CustomerID     string
	CarID          string
	PickupLocation string
	Destination    string
	PickupAt       time.Time
	DriverRequired bool
}

func (in *CreateBookingInput) validate() error {
	var missing []string
	if in.CustomerID == "" {
		missing = append(missing, "customer_id")
	}
	if in.CarID == "" {
		missing = append(missing, "car_id")
	}
	if in.PickupLocation == "" {
		missing = append(missing, "pickup_location")
	}
	if in.Destination == "" {
		missing = append(missing, "destination")
	}
	if in.PickupAt.IsZero() {
		missing = append(missing, "pickup_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Create books a car for a customer.
//
// Flow (one transaction):
//  1. Lock the car row; fail ErrCarNotFound if absent.
//  2. Availability check: flag + overlap scan (ErrCarUnavailable).
//  3. Price the booking (base rate + driver surcharge).
//  4. Allocate a driver if required; allocation failure aborts everything.
//  5. Flip the car to unavailable, persist car and booking.
//
// A booking whose pickup time already passed is admitted and goes straight
// to in_progress, exactly as the reconciler would advance it.
//
// The confirmation notification fires after commit and cannot fail the
// booking.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var created *model.Booking

	err := s.store.Atomic(ctx, func(st repository.Store) error {
		car, err := st.Cars().GetForUpdate(ctx, in.CarID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCarNotFound
			}
			return err
		}

		if err := checkCarAvailable(ctx, st, car, in.PickupAt, s.loc); err != nil {
			return err
		}

		b := &model.Booking{
			ID:               NewID(),
			CustomerID:       in.CustomerID,
			CarID:            in.CarID,
			PickupLocation:   in.PickupLocation,
			Destination:      in.Destination,
			PickupAt:         in.PickupAt,
			CreatedAt:        now,
			Status:           model.BookingPending,
			DriverRequired:   in.DriverRequired,
			TotalAmountCents: s.pricing.Quote(car, in.DriverRequired),
		}

		if in.DriverRequired {
			driver, err := allocateDriver(ctx, st, car)
			if err != nil {
				return err
			}
			b.DriverID = driver.ID
		}

		if !b.PickupAt.After(now) {
			b.Status = model.BookingInProgress
			log.Printf("[booking] booking %s created with a past pickup time; starting in_progress", b.ID)
		}

		car.Available = false
		if err := st.Cars().Save(ctx, car); err != nil {
			return err
		}
		if err := st.Bookings().Save(ctx, b); err != nil {
			return err
		}

		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[booking] created booking %s for customer %s (car %s, total %d)",
		created.ID, created.CustomerID, created.CarID, created.TotalAmountCents)

	s.notifyConfirmation(created)
	return created, nil
}

// Confirm moves a pending booking to confirmed. Any other starting state
// fails with ErrInvalidState.
func (s *BookingService) Confirm(ctx context.Context, bookingID string) (*model.Booking, error) {
	var confirmed *model.Booking

	err := s.store.Atomic(ctx, func(st repository.Store) error {
		b, err := st.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.Status != model.BookingPending {
			return ErrInvalidState
		}

		b.Status = model.BookingConfirmed
		if err := st.Bookings().Save(ctx, b); err != nil {
			return err
		}
		confirmed = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[booking] confirmed booking %s", confirmed.ID)
	s.notifyStatus(confirmed, "Booking Confirmed")
	return confirmed, nil
}

// Get returns the booking if the requesting customer owns it.
func (s *BookingService) Get(ctx context.Context, customerID, bookingID string) (*model.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, ErrNotOwner
	}
	return b, nil
}

// ListByCustomer returns all bookings belonging to the customer.
func (s *BookingService) ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
	return s.store.Bookings().ListByCustomer(ctx, customerID)
}

// List returns every booking. Operator surface, not customer-scoped.
func (s *BookingService) List(ctx context.Context) ([]model.Booking, error) {
	return s.store.Bookings().List(ctx)
}

// Cancel cancels a booking on behalf of its owner.
//
// Contract: ownership check, then state check (only pending/confirmed
// cancel), then in one transaction: stamp reason and time, release the car
// and driver, compute and store the refund. The cancellation notification
// fires after commit.
func (s *BookingService) Cancel(ctx context.Context, customerID, bookingID, reason string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: missing booking id", ErrInvalidInput)
	}

	now := s.clock.Now()
	var cancelled *model.Booking

	err := s.store.Atomic(ctx, func(st repository.Store) error {
		b, err := st.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.CustomerID != customerID {
			return ErrNotOwner
		}
		if !b.CanBeCancelled() {
			return ErrInvalidState
		}

		b.Status = model.BookingCancelled
		b.CancellationReason = reason
		cancelTime := now
		b.CancelledAt = &cancelTime
		b.RefundAmountCents = s.pricing.Refund(b.TotalAmountCents, b.PickupAt, now)

		if err := releaseResources(ctx, st, b); err != nil {
			return err
		}
		if err := st.Bookings().Save(ctx, b); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[booking] cancelled booking %s (refund %d)", cancelled.ID, cancelled.RefundAmountCents)
	s.notifyStatus(cancelled, "Booking Cancelled")
	return cancelled, nil
}

// Delete permanently removes a settled booking on behalf of its owner.
// Only cancelled or completed bookings are deletable. Completed bookings
// still hold their resources and release them here; cancelled bookings
// already released theirs at cancel time, and releasing again could free a
// car or driver that a newer booking holds in the meantime.
func (s *BookingService) Delete(ctx context.Context, customerID, bookingID string) error {
	err := s.store.Atomic(ctx, func(st repository.Store) error {
		b, err := st.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.CustomerID != customerID {
			return ErrNotOwner
		}
		if !b.CanBeDeleted() {
			return ErrInvalidState
		}

		if b.Status != model.BookingCancelled {
			if err := releaseResources(ctx, st, b); err != nil {
				return err
			}
		}
		return st.Bookings().Delete(ctx, b.ID)
	})
	if err != nil {
		return err
	}

	log.Printf("[booking] deleted booking %s for customer %s", bookingID, customerID)
	return nil
}

// releaseResources frees the booking's car and driver. Idempotent: records
// that are already available (or gone) are skipped without error.
func releaseResources(ctx context.Context, st repository.Store, b *model.Booking) error {
	if b.CarID != "" {
		car, err := st.Cars().GetForUpdate(ctx, b.CarID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Car removed from the fleet; nothing to release.
		case err != nil:
			return err
		case !car.Available:
			car.Available = true
			if err := st.Cars().Save(ctx, car); err != nil {
				return err
			}
			log.Printf("[booking] released car %s from booking %s", car.ID, b.ID)
		}
	}

	if b.DriverID != "" {
		driver, err := st.Drivers().GetForUpdate(ctx, b.DriverID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		case !driver.Available:
			driver.Available = true
			if err := st.Drivers().Save(ctx, driver); err != nil {
				return err
			}
			log.Printf("[booking] released driver %s from booking %s", driver.ID, b.ID)
		}
	}
	return nil
}

// ─── Notifications ──────────────────────────────────────────

const notifyTimeout = 5 * time.Second

// notifyConfirmation sends the booking confirmation (with receipt) in the
// background. Failures are logged and dropped.
func (s *BookingService) notifyConfirmation(b *model.Booking) {
	if s.notifier == nil {
		return
	}
	booking := *b
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		customer, err := s.store.Customers().Get(ctx, booking.CustomerID)
		if err != nil {
			log.Printf("[notify] skip confirmation for booking %s: customer lookup: %v", booking.ID, err)
			return
		}
		car, err := s.store.Cars().Get(ctx, booking.CarID)
		if err != nil {
			log.Printf("[notify] skip confirmation for booking %s: car lookup: %v", booking.ID, err)
			return
		}

		if s.receipts != nil {
			if path, err := s.receipts.WriteConfirmation(&booking, customer, car); err != nil {
				log.Printf("[notify] receipt for booking %s failed: %v", booking.ID, err)
			} else {
				log.Printf("[notify] receipt for booking %s written to %s", booking.ID, path)
			}
		}

		subject := fmt.Sprintf("MegaCity Cab - Booking Confirmation #%s", booking.ID)
		body := confirmationBody(&booking, customer, car)
		if err := s.notifier.Notify(ctx, customer.Email, subject, body); err != nil {
			log.Printf("[notify] confirmation for booking %s failed: %v", booking.ID, err)
		}
	}()
}

// notifyStatus sends a status-change notification in the background.
func (s *BookingService) notifyStatus(b *model.Booking, statusMessage string) {
	if s.notifier == nil {
		return
	}
	booking := *b
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		customer, err := s.store.Customers().Get(ctx, booking.CustomerID)
		if err != nil {
			log.Printf("[notify] skip %q for booking %s: customer lookup: %v", statusMessage, booking.ID, err)
			return
		}

		subject := fmt.Sprintf("MegaCity Cab - %s #%s", statusMessage, booking.ID)
		body := statusBody(&booking, customer, statusMessage)
		if err := s.notifier.Notify(ctx, customer.Email, subject, body); err != nil {
			log.Printf("[notify] %q for booking %s failed: %v", statusMessage, booking.ID, err)
		}
	}()
}

func confirmationBody(b *model.Booking, customer *model.Customer, car *model.Car) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear %s,\n\n", customer.Name)
	fmt.Fprintf(&sb, "Thank you for choosing MegaCity Cab. Your booking has been received:\n\n")
	fmt.Fprintf(&sb, "Booking ID: %s\n", b.ID)
	fmt.Fprintf(&sb, "Pickup: %s\n", b.PickupLocation)
	fmt.Fprintf(&sb, "Destination: %s\n", b.Destination)
	fmt.Fprintf(&sb, "Pickup time: %s\n", b.PickupAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "Car: %s %s (%s)\n", car.Brand, car.Model, car.LicensePlate)
	if b.DriverRequired {
		fmt.Fprintf(&sb, "Driver: included\n")
	}
	fmt.Fprintf(&sb, "Total: %s\n\n", formatCents(b.TotalAmountCents))
	sb.WriteString("Cancellations more than 24 hours before pickup receive a full refund;\n")
	sb.WriteString("within 24 hours a 10% cancellation fee applies.\n")
	return sb.String()
}

func statusBody(b *model.Booking, customer *model.Customer, statusMessage string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear %s,\n\n", customer.Name)
	fmt.Fprintf(&sb, "Your booking %s has been %s.\n", b.ID, strings.ToLower(statusMessage))
	if b.Status == model.BookingCancelled && b.RefundAmountCents > 0 {
		fmt.Fprintf(&sb, "\nA refund of %s will be processed to your original payment method.\n",
			formatCents(b.RefundAmountCents))
	}
	sb.WriteString("\nIf you have any questions, please contact our customer service team.\n")
	return sb.String()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("Rs. %d.%02d", cents/100, cents%100)
}
