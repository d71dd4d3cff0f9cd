// Package model contains domain models for the cab booking system.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// transitions is the single source of truth for legal status changes.
// Every guard in the service layer goes through CanTransition so that
// adding a state cannot silently bypass a check.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingInProgress, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted},
	BookingCompleted:  {},
	BookingCancelled:  {},
}

// CanTransition reports whether moving from → to is a legal status change.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leads out of the status.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether the booking counts against vehicle and driver
// availability.
func (s BookingStatus) IsActive() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingInProgress:
		return true
	}
	return false
}

// ─── Domain Models ──────────────────────────────────────────

// Customer is the scoping principal for booking queries: every booking
// lookup, cancellation, and deletion must match its CustomerID.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Car maps to the `cars` table. Available is false while the car is
// committed to any non-terminal booking.
type Car struct {
	ID               string    `json:"id"`
	Brand            string    `json:"brand"`
	Model            string    `json:"model"`
	LicensePlate     string    `json:"license_plate"`
	Capacity         int       `json:"capacity"`
	BaseRateCents    int64     `json:"base_rate_cents"`
	DriverRateCents  int64     `json:"driver_rate_cents"`
	Available        bool      `json:"available"`
	AssignedDriverID string    `json:"assigned_driver_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Driver maps to the `drivers` table. Drivers without an own car form the
// pool the allocator draws from for cars with no pre-assigned driver.
type Driver struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LicenseNo string    `json:"license_no"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Available bool      `json:"available"`
	HasOwnCar bool      `json:"has_own_car"`
	CarID     string    `json:"car_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Booking is the aggregate root of a ride transaction. It references Car and
// Driver by id only; neither is structurally owned by the booking.
type Booking struct {
	ID                 string        `json:"id"`
	CustomerID         string        `json:"customer_id"`
	CarID              string        `json:"car_id"`
	DriverID           string        `json:"driver_id,omitempty"`
	PickupLocation     string        `json:"pickup_location"`
	Destination        string        `json:"destination"`
	PickupAt           time.Time     `json:"pickup_at"`
	CreatedAt          time.Time     `json:"created_at"`
	Status             BookingStatus `json:"status"`
	DriverRequired     bool          `json:"driver_required"`
	TotalAmountCents   int64         `json:"total_amount_cents"`
	RefundAmountCents  int64         `json:"refund_amount_cents,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
}

// CanBeCancelled reports whether the booking may still be cancelled.
func (b *Booking) CanBeCancelled() bool {
	return CanTransition(b.Status, BookingCancelled)
}

// CanBeDeleted reports whether the booking record may be removed.
// Only settled bookings are deletable; this set is disjoint from the
// cancellable states.
func (b *Booking) CanBeDeleted() bool {
	return b.Status == BookingCancelled || b.Status == BookingCompleted
}
