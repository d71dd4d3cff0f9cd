package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/megacity/cab/internal/service"
)

// BookingHandler handles booking lifecycle HTTP requests.
type BookingHandler struct {
	bookingSvc *service.BookingService
	loc        *time.Location
}

// NewBookingHandler creates a new booking handler. loc is the fleet timezone
// used to interpret date+time pickup fields.
func NewBookingHandler(bookingSvc *service.BookingService, loc *time.Location) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc, loc: loc}
}

// createBookingRequest is the POST /bookings payload. Pickup time is either a
// single RFC 3339 pickup_at, or pickup_date + pickup_time interpreted in the
// fleet timezone.
type createBookingRequest struct {
	CarID          string `json:"car_id"`
	PickupLocation string `json:"pickup_location"`
	Destination    string `json:"destination"`
	PickupAt       string `json:"pickup_at"`
	PickupDate     string `json:"pickup_date"`
	PickupTime     string `json:"pickup_time"`
	DriverRequired bool   `json:"driver_required"`
}

func (req *createBookingRequest) pickupAt(loc *time.Location) (time.Time, bool) {
	if req.PickupAt != "" {
		t, err := time.Parse(time.RFC3339, req.PickupAt)
		if err != nil {
			return time.Time{}, false
		}
		return t.In(loc), true
	}
	if req.PickupDate != "" && req.PickupTime != "" {
		t, err := time.ParseInLocation("2006-01-02 15:04", req.PickupDate+" "+req.PickupTime, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// CreateBooking handles POST /api/v1/bookings
//
// Books a car for the requesting customer. The booking starts pending and
// must be confirmed separately; it still holds the car from creation on.
//
// Response codes:
//	201  — Booking created (returns the booking)
//	400  — Malformed payload or missing fields
//	404  — Car not found
//	422  — Car occupied for the slot, or driver allocation failed
//	500  — Unexpected error
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	pickupAt, ok := req.pickupAt(h.loc)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pickup time required: pickup_at (RFC 3339) or pickup_date + pickup_time",
		})
		return
	}

	booking, err := h.bookingSvc.Create(r.Context(), service.CreateBookingInput{
		CustomerID:     customerID(r),
		CarID:          req.CarID,
		PickupLocation: req.PickupLocation,
		Destination:    req.Destination,
		PickupAt:       pickupAt,
		DriverRequired: req.DriverRequired,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/v1/bookings/{id}
//
// Returns the booking if it belongs to the requesting customer.
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingSvc.Get(r.Context(), customerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// ListBookings handles GET /api/v1/bookings
//
// Operator surface: returns every booking regardless of owner.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookingSvc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// ListCustomerBookings handles GET /api/v1/customers/{id}/bookings
//
// A customer can only list their own bookings.
func (h *BookingHandler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != customerID(r) {
		writeError(w, service.ErrNotOwner)
		return
	}

	bookings, err := h.bookingSvc.ListByCustomer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// ConfirmBooking handles POST /api/v1/bookings/{id}/confirm
//
// Moves a pending booking to confirmed.
//
// Response codes:
//	200  — Confirmed (returns the booking)
//	404  — Booking not found
//	409  — Booking is not pending
func (h *BookingHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingSvc.Confirm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking handles POST /api/v1/bookings/{id}/cancel
//
// Cancels the customer's booking, releases the car and driver, and computes
// the refund (full more than 24 h before pickup, 10% fee within).
//
// Response codes:
//	200  — Cancelled (returns the booking with refund_amount_cents)
//	403  — Booking belongs to another customer
//	404  — Booking not found
//	409  — Booking already started, completed, or cancelled
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	booking, err := h.bookingSvc.Cancel(r.Context(), customerID(r), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// DeleteBooking handles DELETE /api/v1/bookings/{id}
//
// Permanently removes a cancelled or completed booking.
//
// Response codes:
//	204  — Deleted
//	403  — Booking belongs to another customer
//	404  — Booking not found
//	409  — Booking is still active
func (h *BookingHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.bookingSvc.Delete(r.Context(), customerID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
