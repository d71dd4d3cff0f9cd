package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
	"github.com/megacity/cab/internal/service"
)

// FleetHandler handles car, driver, and customer registration. These are
// plain CRUD endpoints over the store; the booking service never goes
// through them.
type FleetHandler struct {
	store repository.Store
}

// NewFleetHandler creates a new fleet handler.
func NewFleetHandler(store repository.Store) *FleetHandler {
	return &FleetHandler{store: store}
}

type createCarRequest struct {
	Brand            string `json:"brand"`
	Model            string `json:"model"`
	LicensePlate     string `json:"license_plate"`
	Capacity         int    `json:"capacity"`
	BaseRateCents    int64  `json:"base_rate_cents"`
	DriverRateCents  int64  `json:"driver_rate_cents"`
	AssignedDriverID string `json:"assigned_driver_id"`
}

// CreateCar handles POST /api/v1/cars
//
// Registers a car in the fleet. New cars start available.
func (h *FleetHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	var req createCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	var missing []string
	if req.Brand == "" {
		missing = append(missing, "brand")
	}
	if req.Model == "" {
		missing = append(missing, "model")
	}
	if req.LicensePlate == "" {
		missing = append(missing, "license_plate")
	}
	if req.BaseRateCents <= 0 {
		missing = append(missing, "base_rate_cents")
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing or invalid fields: " + strings.Join(missing, ", "),
		})
		return
	}
	if req.Capacity <= 0 {
		req.Capacity = 4
	}

	car := &model.Car{
		ID:               service.NewID(),
		Brand:            req.Brand,
		Model:            req.Model,
		LicensePlate:     req.LicensePlate,
		Capacity:         req.Capacity,
		BaseRateCents:    req.BaseRateCents,
		DriverRateCents:  req.DriverRateCents,
		Available:        true,
		AssignedDriverID: req.AssignedDriverID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.store.Cars().Save(r.Context(), car); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, car)
}

// ListCars handles GET /api/v1/cars
func (h *FleetHandler) ListCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.store.Cars().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

type createDriverRequest struct {
	Name      string `json:"name"`
	LicenseNo string `json:"license_no"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	HasOwnCar bool   `json:"has_own_car"`
	CarID     string `json:"car_id"`
}

// CreateDriver handles POST /api/v1/drivers
//
// Registers a driver. Drivers without an own car join the allocation pool.
func (h *FleetHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req createDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if req.Name == "" || req.LicenseNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and license_no are required",
		})
		return
	}

	driver := &model.Driver{
		ID:        service.NewID(),
		Name:      req.Name,
		LicenseNo: req.LicenseNo,
		Phone:     req.Phone,
		Email:     req.Email,
		Available: true,
		HasOwnCar: req.HasOwnCar,
		CarID:     req.CarID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Drivers().Save(r.Context(), driver); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, driver)
}

// ListDrivers handles GET /api/v1/drivers
func (h *FleetHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.store.Drivers().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

type createCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// CreateCustomer handles POST /api/v1/customers
func (h *FleetHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if req.Name == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and email are required",
		})
		return
	}

	customer := &model.Customer{
		ID:        service.NewID(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Customers().Save(r.Context(), customer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}
