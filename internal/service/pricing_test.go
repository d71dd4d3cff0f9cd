package service

import (
	"testing"
	"time"

	"github.com/megacity/cab/internal/model"
)

func TestQuote_BaseRateOnly(t *testing.T) {
	p := DefaultPricing()
	car := &model.Car{BaseRateCents: 500000, DriverRateCents: 150000}

	if got := p.Quote(car, false); got != 500000 {
		t.Errorf("Quote(no driver) = %d, want 500000", got)
	}
}

func TestQuote_DriverSurcharge(t *testing.T) {
	p := DefaultPricing()
	car := &model.Car{BaseRateCents: 500000, DriverRateCents: 150000}

	if got := p.Quote(car, true); got != 650000 {
		t.Errorf("Quote(with driver) = %d, want 650000", got)
	}
}

func TestRefund_FullBeforeWindow(t *testing.T) {
	p := DefaultPricing()
	pickup := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// 25 hours before pickup: strictly outside the 24 h window.
	cancelled := pickup.Add(-25 * time.Hour)
	if got := p.Refund(100000, pickup, cancelled); got != 100000 {
		t.Errorf("Refund(25h before) = %d, want full 100000", got)
	}
}

func TestRefund_FeeAtExactWindowBoundary(t *testing.T) {
	p := DefaultPricing()
	pickup := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Exactly pickup − 24h is not strictly before the deadline: fee applies.
	cancelled := pickup.Add(-24 * time.Hour)
	if got := p.Refund(100000, pickup, cancelled); got != 90000 {
		t.Errorf("Refund(exactly 24h before) = %d, want 90000", got)
	}
}

func TestRefund_FeeWithinWindow(t *testing.T) {
	p := DefaultPricing()
	pickup := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	cancelled := pickup.Add(-2 * time.Hour)
	if got := p.Refund(100000, pickup, cancelled); got != 90000 {
		t.Errorf("Refund(2h before) = %d, want 90000", got)
	}
}

func TestRefund_FeeRoundsDown(t *testing.T) {
	p := DefaultPricing()
	pickup := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cancelled := pickup.Add(-time.Hour)

	// 10% of 9999 is 999.9; the fee truncates to 999 in the customer's favour.
	if got := p.Refund(9999, pickup, cancelled); got != 9000 {
		t.Errorf("Refund(9999) = %d, want 9000", got)
	}
}

func TestRefund_CustomWindow(t *testing.T) {
	p := Pricing{CancelWindow: 48 * time.Hour, CancelFeePercent: 25}
	pickup := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if got := p.Refund(40000, pickup, pickup.Add(-49*time.Hour)); got != 40000 {
		t.Errorf("Refund(outside 48h window) = %d, want 40000", got)
	}
	if got := p.Refund(40000, pickup, pickup.Add(-47*time.Hour)); got != 30000 {
		t.Errorf("Refund(inside 48h window) = %d, want 30000", got)
	}
}
