package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/megacity/cab/internal/model"
	"github.com/megacity/cab/internal/repository"
	"github.com/megacity/cab/internal/repository/memory"
)

// stubClock is a settable Clock for tests.
type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingNotifier captures notices on a channel so tests can wait for the
// background send.
type recordingNotifier struct {
	notices chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notices: make(chan string, 10)}
}

func (n *recordingNotifier) Notify(_ context.Context, recipient, subject, _ string) error {
	n.notices <- recipient + ": " + subject
	return nil
}

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(st *memory.Store, clock Clock) *BookingService {
	return NewBookingService(st, nil, nil, clock, DefaultPricing(), time.UTC)
}

func seedFleet(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(st.Customers().Save(ctx, &model.Customer{
		ID: "cust1", Name: "Nimal Perera", Email: "nimal@example.com",
	}))
	must(st.Customers().Save(ctx, &model.Customer{
		ID: "cust2", Name: "Kamala Silva", Email: "kamala@example.com",
	}))
	must(st.Cars().Save(ctx, &model.Car{
		ID: "car1", Brand: "Toyota", Model: "Prius", LicensePlate: "CAB-1234",
		Capacity: 4, BaseRateCents: 500000, DriverRateCents: 150000, Available: true,
	}))
	must(st.Drivers().Save(ctx, &model.Driver{
		ID: "drv1", Name: "Sunil", LicenseNo: "DL-001", Available: true,
	}))
}

func createInput(pickupAt time.Time) CreateBookingInput {
	return CreateBookingInput{
		CustomerID:     "cust1",
		CarID:          "car1",
		PickupLocation: "Fort Railway Station",
		Destination:    "Bandaranaike Airport",
		PickupAt:       pickupAt,
	}
}

func TestCreate_StartsPendingAndHoldsCar(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, err := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != model.BookingPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.TotalAmountCents != 500000 {
		t.Errorf("total = %d, want 500000", b.TotalAmountCents)
	}
	if len(b.ID) != 24 {
		t.Errorf("id length = %d, want 24", len(b.ID))
	}

	car, _ := st.Cars().Get(ctx, "car1")
	if car.Available {
		t.Errorf("car still available after booking")
	}
}

func TestCreate_MissingFields(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})

	_, err := svc.Create(context.Background(), CreateBookingInput{CarID: "car1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Create(missing fields) = %v, want ErrInvalidInput", err)
	}
}

func TestCreate_CarNotFound(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})

	in := createInput(testNow.Add(48 * time.Hour))
	in.CarID = "ghost"
	_, err := svc.Create(context.Background(), in)
	if !errors.Is(err, ErrCarNotFound) {
		t.Errorf("Create(unknown car) = %v, want ErrCarNotFound", err)
	}
}

func TestCreate_SecondBookingSameCarRejected(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	if _, err := svc.Create(ctx, createInput(testNow.Add(48 * time.Hour))); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := svc.Create(ctx, createInput(testNow.Add(72*time.Hour)))
	if !errors.Is(err, ErrCarUnavailable) {
		t.Errorf("second Create = %v, want ErrCarUnavailable", err)
	}
}

func TestCreate_PastPickupStartsInProgress(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})

	b, err := svc.Create(context.Background(), createInput(testNow.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != model.BookingInProgress {
		t.Errorf("status = %s, want in_progress", b.Status)
	}
}

func TestCreate_PoolDriverAllocated(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	ctx := context.Background()
	// A second pool driver with a higher id must lose the tie.
	st.Drivers().Save(ctx, &model.Driver{ID: "drv9", Name: "Ruwan", LicenseNo: "DL-009", Available: true})

	svc := newTestService(st, &stubClock{t: testNow})
	in := createInput(testNow.Add(48 * time.Hour))
	in.DriverRequired = true

	b, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.DriverID != "drv1" {
		t.Errorf("driver = %s, want lowest-id pool driver drv1", b.DriverID)
	}
	if b.TotalAmountCents != 650000 {
		t.Errorf("total = %d, want 650000 (base + driver rate)", b.TotalAmountCents)
	}

	drv, _ := st.Drivers().Get(ctx, "drv1")
	if drv.Available {
		t.Errorf("allocated driver still available")
	}
}

func TestCreate_OwnCarDriversExcludedFromPool(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	ctx := context.Background()
	st.Drivers().Save(ctx, &model.Driver{ID: "drv0", Name: "Ajith", LicenseNo: "DL-000", Available: true, HasOwnCar: true})

	svc := newTestService(st, &stubClock{t: testNow})
	in := createInput(testNow.Add(48 * time.Hour))
	in.DriverRequired = true

	b, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.DriverID != "drv1" {
		t.Errorf("driver = %s, want drv1 (drv0 has own car)", b.DriverID)
	}
}

func TestCreate_AssignedDriverPreferred(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	ctx := context.Background()
	st.Drivers().Save(ctx, &model.Driver{ID: "drv5", Name: "Chamara", LicenseNo: "DL-005", Available: true})
	st.Cars().Save(ctx, &model.Car{
		ID: "car2", Brand: "Honda", Model: "Vezel", LicensePlate: "CAB-5678",
		BaseRateCents: 400000, DriverRateCents: 100000, Available: true, AssignedDriverID: "drv5",
	})

	svc := newTestService(st, &stubClock{t: testNow})
	in := createInput(testNow.Add(48 * time.Hour))
	in.CarID = "car2"
	in.DriverRequired = true

	b, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.DriverID != "drv5" {
		t.Errorf("driver = %s, want the car's assigned driver drv5", b.DriverID)
	}
}

func TestCreate_AssignedDriverBusy(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	ctx := context.Background()
	st.Drivers().Save(ctx, &model.Driver{ID: "drv5", Name: "Chamara", LicenseNo: "DL-005", Available: false})
	st.Cars().Save(ctx, &model.Car{
		ID: "car2", Brand: "Honda", Model: "Vezel", LicensePlate: "CAB-5678",
		BaseRateCents: 400000, Available: true, AssignedDriverID: "drv5",
	})

	svc := newTestService(st, &stubClock{t: testNow})
	in := createInput(testNow.Add(48 * time.Hour))
	in.CarID = "car2"
	in.DriverRequired = true

	_, err := svc.Create(ctx, in)
	if !errors.Is(err, ErrDriverUnavailable) {
		t.Errorf("Create(busy assigned driver) = %v, want ErrDriverUnavailable", err)
	}
}

func TestCreate_NoPoolDriverRollsEverythingBack(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	ctx := context.Background()
	// Empty the pool.
	st.Drivers().Delete(ctx, "drv1")

	svc := newTestService(st, &stubClock{t: testNow})
	in := createInput(testNow.Add(48 * time.Hour))
	in.DriverRequired = true

	_, err := svc.Create(ctx, in)
	if !errors.Is(err, ErrNoDriverAvailable) {
		t.Fatalf("Create(empty pool) = %v, want ErrNoDriverAvailable", err)
	}

	// The whole transaction rolled back: the car must still be bookable and
	// no booking record may exist.
	car, _ := st.Cars().Get(ctx, "car1")
	if !car.Available {
		t.Errorf("car unavailable after failed allocation")
	}
	bookings, _ := st.Bookings().List(ctx)
	if len(bookings) != 0 {
		t.Errorf("bookings = %d, want 0 after rollback", len(bookings))
	}
}

func TestConfirm_PendingBecomesConfirmed(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))
	got, err := svc.Confirm(ctx, b.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != model.BookingConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
}

func TestConfirm_TwiceRejected(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))
	svc.Confirm(ctx, b.ID)

	_, err := svc.Confirm(ctx, b.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Confirm = %v, want ErrInvalidState", err)
	}
}

func TestConfirm_NotFound(t *testing.T) {
	st := memory.New()
	svc := newTestService(st, &stubClock{t: testNow})

	_, err := svc.Confirm(context.Background(), "ghost")
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("Confirm(unknown id) = %v, want ErrBookingNotFound", err)
	}
}

func TestGet_OwnershipEnforced(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	if _, err := svc.Get(ctx, "cust1", b.ID); err != nil {
		t.Errorf("Get(owner) = %v, want nil", err)
	}
	if _, err := svc.Get(ctx, "cust2", b.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Get(other customer) = %v, want ErrNotOwner", err)
	}
	if _, err := svc.Get(ctx, "cust1", "ghost"); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("Get(unknown id) = %v, want ErrBookingNotFound", err)
	}
}

func TestCancel_FullRefundOutsideWindow(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	clock := &stubClock{t: testNow}
	svc := newTestService(st, clock)
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	got, err := svc.Cancel(ctx, "cust1", b.ID, "change of plans")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != model.BookingCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.RefundAmountCents != 500000 {
		t.Errorf("refund = %d, want full 500000", got.RefundAmountCents)
	}
	if got.CancellationReason != "change of plans" {
		t.Errorf("reason = %q, want recorded", got.CancellationReason)
	}
	if got.CancelledAt == nil || !got.CancelledAt.Equal(testNow) {
		t.Errorf("cancelled_at = %v, want %v", got.CancelledAt, testNow)
	}
}

func TestCancel_FeeInsideWindow(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	clock := &stubClock{t: testNow}
	svc := newTestService(st, clock)
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	// Move to 2 hours before pickup: inside the 24 h window.
	clock.Set(b.PickupAt.Add(-2 * time.Hour))
	got, err := svc.Cancel(ctx, "cust1", b.ID, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.RefundAmountCents != 450000 {
		t.Errorf("refund = %d, want 450000 (10%% fee)", got.RefundAmountCents)
	}
}

func TestCancel_ReleasesCarAndDriver(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	in := createInput(testNow.Add(48 * time.Hour))
	in.DriverRequired = true
	b, _ := svc.Create(ctx, in)

	if _, err := svc.Cancel(ctx, "cust1", b.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	car, _ := st.Cars().Get(ctx, "car1")
	if !car.Available {
		t.Errorf("car not released after cancel")
	}
	drv, _ := st.Drivers().Get(ctx, "drv1")
	if !drv.Available {
		t.Errorf("driver not released after cancel")
	}
}

func TestCancel_WrongCustomer(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	_, err := svc.Cancel(ctx, "cust2", b.ID, "")
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Cancel(other customer) = %v, want ErrNotOwner", err)
	}

	// The booking must be untouched.
	got, _ := st.Bookings().Get(ctx, b.ID)
	if got.Status != model.BookingPending {
		t.Errorf("status = %s after rejected cancel, want pending", got.Status)
	}
}

func TestCancel_TwiceRejected(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))
	svc.Cancel(ctx, "cust1", b.ID, "")

	_, err := svc.Cancel(ctx, "cust1", b.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Cancel = %v, want ErrInvalidState", err)
	}
}

func TestCancel_InProgressRejected(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	// Past pickup admits straight to in_progress.
	b, _ := svc.Create(ctx, createInput(testNow.Add(-time.Hour)))

	_, err := svc.Cancel(ctx, "cust1", b.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel(in_progress) = %v, want ErrInvalidState", err)
	}
}

func TestDelete_ActiveRejected(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	err := svc.Delete(ctx, "cust1", b.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Delete(pending) = %v, want ErrInvalidState", err)
	}
}

func TestDelete_CancelledBookingRemoved(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))
	svc.Cancel(ctx, "cust1", b.ID, "")

	if err := svc.Delete(ctx, "cust1", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Bookings().Get(ctx, b.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("booking still present after delete")
	}

	// Release after an earlier cancel must be a no-op, not an error.
	car, _ := st.Cars().Get(ctx, "car1")
	if !car.Available {
		t.Errorf("car availability lost on delete of cancelled booking")
	}
}

func TestDelete_CancelledBookingLeavesRecommittedResourcesHeld(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	in := createInput(testNow.Add(48 * time.Hour))
	in.DriverRequired = true
	old, _ := svc.Create(ctx, in)
	svc.Cancel(ctx, "cust1", old.ID, "")

	// The same car and driver are committed to a newer booking.
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	if err := svc.Delete(ctx, "cust1", old.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Deleting the settled booking must not free the newer booking's hold.
	car, _ := st.Cars().Get(ctx, "car1")
	if car.Available {
		t.Errorf("car freed by deleting an old cancelled booking")
	}
	drv, _ := st.Drivers().Get(ctx, "drv1")
	if drv.Available {
		t.Errorf("driver freed by deleting an old cancelled booking")
	}
}

func TestListByCustomer_ScopedToOwner(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	b, _ := svc.Create(ctx, createInput(testNow.Add(48*time.Hour)))

	mine, err := svc.ListByCustomer(ctx, "cust1")
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != b.ID {
		t.Errorf("ListByCustomer(cust1) = %d bookings, want the 1 created", len(mine))
	}

	theirs, _ := svc.ListByCustomer(ctx, "cust2")
	if len(theirs) != 0 {
		t.Errorf("ListByCustomer(cust2) = %d bookings, want 0", len(theirs))
	}
}

func TestCreate_SendsConfirmationNotice(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	notifier := newRecordingNotifier()
	svc := NewBookingService(st, notifier, nil, &stubClock{t: testNow}, DefaultPricing(), time.UTC)

	if _, err := svc.Create(context.Background(), createInput(testNow.Add(48*time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case notice := <-notifier.notices:
		if !strings.HasPrefix(notice, "nimal@example.com:") {
			t.Errorf("notice sent to %q, want customer email", notice)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no confirmation notice within 2s")
	}
}

// Full lifecycle: book with driver, confirm, cancel early, book the slot again.
func TestLifecycle_BookConfirmCancelRebook(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	clock := &stubClock{t: testNow}
	svc := newTestService(st, clock)
	ctx := context.Background()

	in := createInput(testNow.Add(72 * time.Hour))
	in.DriverRequired = true
	b, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, "cust1", b.ID, "found a better rate")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.RefundAmountCents != cancelled.TotalAmountCents {
		t.Errorf("refund = %d, want full %d", cancelled.RefundAmountCents, cancelled.TotalAmountCents)
	}

	// The slot is free again for the same car and time.
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

// Two bookings on the same car on different dates: the first holds the car,
// so the second fails until the first settles.
func TestLifecycle_CarHeldAcrossDates(t *testing.T) {
	st := memory.New()
	seedFleet(t, st)
	svc := newTestService(st, &stubClock{t: testNow})
	ctx := context.Background()

	first, err := svc.Create(ctx, createInput(testNow.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err = svc.Create(ctx, createInput(testNow.Add(5*24*time.Hour)))
	if !errors.Is(err, ErrCarUnavailable) {
		t.Fatalf("second Create while car held = %v, want ErrCarUnavailable", err)
	}

	if _, err := svc.Cancel(ctx, "cust1", first.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Create(ctx, createInput(testNow.Add(5*24*time.Hour))); err != nil {
		t.Fatalf("Create after release: %v", err)
	}
}
