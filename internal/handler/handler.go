// Package handler contains HTTP request handlers for the cab booking API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/megacity/cab/internal/service"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to the API error envelope.
//
// Mapping:
//
//	400 — malformed input
//	403 — booking belongs to another customer
//	404 — booking, car, or referenced driver not found
//	409 — transition not legal from the current status
//	422 — car occupied, or no usable driver free
//	500 — everything else
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrBookingNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Booking not found.",
		})
	case errors.Is(err, service.ErrCarNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Car not found.",
		})
	case errors.Is(err, service.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "forbidden",
			"message": "This booking belongs to another customer.",
		})
	case errors.Is(err, service.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_state",
			"message": "The booking is not in a state that allows this operation.",
		})
	case errors.Is(err, service.ErrCarUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "car_unavailable",
			"message": "The car is not available for the requested pickup time.",
		})
	case errors.Is(err, service.ErrNoDriverAvailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "no_driver",
			"message": "No pool driver is available right now.",
		})
	case errors.Is(err, service.ErrDriverUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "driver_unavailable",
			"message": "The car's assigned driver is not available.",
		})
	case errors.Is(err, service.ErrDriverNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "The car's assigned driver no longer exists.",
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}

// customerID resolves the requesting customer from the X-Customer-ID header.
// Identity is established upstream; the API only scopes by it.
func customerID(r *http.Request) string {
	return r.Header.Get("X-Customer-ID")
}
