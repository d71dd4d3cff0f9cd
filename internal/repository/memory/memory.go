// Package memory provides an in-memory Store used by tests and local runs.
//
// A single mutex serializes transactions, which trivially satisfies the
// per-record serialization the core requires. Atomic snapshots the maps up
// front and restores them if the callback fails, so a failed transaction
// leaves no partial state behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
)

// Store is the in-memory implementation of repository.Store.
type Store struct {
	mu   sync.Mutex
	data *tables
}

type tables struct {
	bookings  map[string]model.Booking
	cars      map[string]model.Car
	drivers   map[string]model.Driver
	customers map[string]model.Customer
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{data: &tables{
		bookings:  make(map[string]model.Booking),
		cars:      make(map[string]model.Car),
		drivers:   make(map[string]model.Driver),
		customers: make(map[string]model.Customer),
	}}
}

func (t *tables) clone() *tables {
	c := &tables{
		bookings:  make(map[string]model.Booking, len(t.bookings)),
		cars:      make(map[string]model.Car, len(t.cars)),
		drivers:   make(map[string]model.Driver, len(t.drivers)),
		customers: make(map[string]model.Customer, len(t.customers)),
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.cars {
		c.cars[k] = v
	}
	for k, v := range t.drivers {
		c.drivers[k] = v
	}
	for k, v := range t.customers {
		c.customers[k] = v
	}
	return c
}

// Bookings implements repository.Store.
func (s *Store) Bookings() repository.Bookings { return bookings{s} }

// Cars implements repository.Store.
func (s *Store) Cars() repository.Cars { return cars{s} }

// Drivers implements repository.Store.
func (s *Store) Drivers() repository.Drivers { return drivers{s} }

// Customers implements repository.Store.
func (s *Store) Customers() repository.Customers { return customers{s} }

// Atomic serializes the callback under the store mutex and rolls the tables
// back if it returns an error.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&txStore{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// txStore is the view handed to Atomic callbacks. The enclosing Atomic holds
// the store mutex, so access here is direct.
type txStore struct {
	data *tables
}

func (s *txStore) Bookings() repository.Bookings   { return txBookings{s.data} }
func (s *txStore) Cars() repository.Cars           { return txCars{s.data} }
func (s *txStore) Drivers() repository.Drivers     { return txDrivers{s.data} }
func (s *txStore) Customers() repository.Customers { return txCustomers{s.data} }

// Nested Atomic joins the ambient transaction.
func (s *txStore) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

// ─── Bookings ───────────────────────────────────────────────

type txBookings struct{ data *tables }

func (r txBookings) Get(_ context.Context, id string) (*model.Booking, error) {
	b, ok := r.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (r txBookings) GetForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	return r.Get(ctx, id)
}

func (r txBookings) List(_ context.Context) ([]model.Booking, error) {
	out := make([]model.Booking, 0, len(r.data.bookings))
	for _, b := range r.data.bookings {
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (r txBookings) ListByCustomer(_ context.Context, customerID string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range r.data.bookings {
		if b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r txBookings) ListActiveByCar(_ context.Context, carID string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range r.data.bookings {
		if b.CarID == carID && (b.Status == model.BookingPending || b.Status == model.BookingConfirmed) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r txBookings) ListDuePickups(_ context.Context, now time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range r.data.bookings {
		if (b.Status == model.BookingPending || b.Status == model.BookingConfirmed) && !b.PickupAt.After(now) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r txBookings) Save(_ context.Context, b *model.Booking) error {
	r.data.bookings[b.ID] = *b
	return nil
}

func (r txBookings) Delete(_ context.Context, id string) error {
	if _, ok := r.data.bookings[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.data.bookings, id)
	return nil
}

func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })
}

// ─── Cars ───────────────────────────────────────────────────

type txCars struct{ data *tables }

func (r txCars) Get(_ context.Context, id string) (*model.Car, error) {
	c, ok := r.data.cars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r txCars) GetForUpdate(ctx context.Context, id string) (*model.Car, error) {
	return r.Get(ctx, id)
}

func (r txCars) List(_ context.Context) ([]model.Car, error) {
	out := make([]model.Car, 0, len(r.data.cars))
	for _, c := range r.data.cars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r txCars) Save(_ context.Context, c *model.Car) error {
	r.data.cars[c.ID] = *c
	return nil
}

func (r txCars) Delete(_ context.Context, id string) error {
	if _, ok := r.data.cars[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.data.cars, id)
	return nil
}

// ─── Drivers ────────────────────────────────────────────────

type txDrivers struct{ data *tables }

func (r txDrivers) Get(_ context.Context, id string) (*model.Driver, error) {
	d, ok := r.data.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (r txDrivers) GetForUpdate(ctx context.Context, id string) (*model.Driver, error) {
	return r.Get(ctx, id)
}

func (r txDrivers) List(_ context.Context) ([]model.Driver, error) {
	out := make([]model.Driver, 0, len(r.data.drivers))
	for _, d := range r.data.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r txDrivers) FirstAvailablePoolDriver(_ context.Context) (*model.Driver, error) {
	var best *model.Driver
	for id := range r.data.drivers {
		d := r.data.drivers[id]
		if !d.Available || d.HasOwnCar {
			continue
		}
		if best == nil || d.ID < best.ID {
			cp := d
			best = &cp
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (r txDrivers) Save(_ context.Context, d *model.Driver) error {
	r.data.drivers[d.ID] = *d
	return nil
}

func (r txDrivers) Delete(_ context.Context, id string) error {
	if _, ok := r.data.drivers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.data.drivers, id)
	return nil
}

// ─── Customers ──────────────────────────────────────────────

type txCustomers struct{ data *tables }

func (r txCustomers) Get(_ context.Context, id string) (*model.Customer, error) {
	c, ok := r.data.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r txCustomers) List(_ context.Context) ([]model.Customer, error) {
	out := make([]model.Customer, 0, len(r.data.customers))
	for _, c := range r.data.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r txCustomers) Save(_ context.Context, c *model.Customer) error {
	r.data.customers[c.ID] = *c
	return nil
}

func (r txCustomers) Delete(_ context.Context, id string) error {
	if _, ok := r.data.customers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.data.customers, id)
	return nil
}

// ─── Locked pass-through for non-transactional access ───────

type bookings struct{ s *Store }

func (r bookings) Get(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.Get(ctx, id)
}

func (r bookings) GetForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	return r.Get(ctx, id)
}

func (r bookings) List(ctx context.Context) ([]model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.List(ctx)
}

func (r bookings) ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.ListByCustomer(ctx, customerID)
}

func (r bookings) ListActiveByCar(ctx context.Context, carID string) ([]model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.ListActiveByCar(ctx, carID)
}

func (r bookings) ListDuePickups(ctx context.Context, now time.Time) ([]model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.ListDuePickups(ctx, now)
}

func (r bookings) Save(ctx context.Context, b *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.Save(ctx, b)
}

func (r bookings) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txBookings{r.s.data}.Delete(ctx, id)
}

type cars struct{ s *Store }

func (r cars) Get(ctx context.Context, id string) (*model.Car, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCars{r.s.data}.Get(ctx, id)
}

func (r cars) GetForUpdate(ctx context.Context, id string) (*model.Car, error) {
	return r.Get(ctx, id)
}

func (r cars) List(ctx context.Context) ([]model.Car, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCars{r.s.data}.List(ctx)
}

func (r cars) Save(ctx context.Context, c *model.Car) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCars{r.s.data}.Save(ctx, c)
}

func (r cars) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCars{r.s.data}.Delete(ctx, id)
}

type drivers struct{ s *Store }

func (r drivers) Get(ctx context.Context, id string) (*model.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txDrivers{r.s.data}.Get(ctx, id)
}

func (r drivers) GetForUpdate(ctx context.Context, id string) (*model.Driver, error) {
	return r.Get(ctx, id)
}

func (r drivers) List(ctx context.Context) ([]model.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txDrivers{r.s.data}.List(ctx)
}

func (r drivers) FirstAvailablePoolDriver(ctx context.Context) (*model.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txDrivers{r.s.data}.FirstAvailablePoolDriver(ctx)
}

func (r drivers) Save(ctx context.Context, d *model.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txDrivers{r.s.data}.Save(ctx, d)
}

func (r drivers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txDrivers{r.s.data}.Delete(ctx, id)
}

type customers struct{ s *Store }

func (r customers) Get(ctx context.Context, id string) (*model.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCustomers{r.s.data}.Get(ctx, id)
}

func (r customers) List(ctx context.Context) ([]model.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCustomers{r.s.data}.List(ctx)
}

func (r customers) Save(ctx context.Context, c *model.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCustomers{r.s.data}.Save(ctx, c)
}

func (r customers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return txCustomers{r.s.data}.Delete(ctx, id)
}
