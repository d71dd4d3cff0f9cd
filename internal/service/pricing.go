package service

import (
	"time"

	"github.com/megacity/cab/internal/model"
)

// Pricing computes booking totals and cancellation refunds.
//
// The total is a pure function of the car and the request: base rate plus
// the driver surcharge when a driver is required. No taxes or discounts.
//
// Refunds follow the time-based cancellation policy: cancelling strictly
// before (pickup − CancelWindow) refunds the full amount; inside the window
// a CancelFeePercent fee is deducted.
type Pricing struct {
	CancelWindow     time.Duration
	CancelFeePercent int64
}

// DefaultPricing returns the standard policy: 24-hour window, 10% fee.
func DefaultPricing() Pricing {
	return Pricing{
		CancelWindow:     24 * time.Hour,
		CancelFeePercent: 10,
	}
}

// Quote returns the total amount in cents for booking the car.
func (p Pricing) Quote(car *model.Car, driverRequired bool) int64 {
	total := car.BaseRateCents
	if driverRequired {
		total += car.DriverRateCents
	}
	return total
}

// Refund returns the refund amount in cents for a cancellation at
// cancelledAt of a booking picked up at pickupAt. Integer division rounds
// the fee down, in the customer's favour.
func (p Pricing) Refund(totalCents int64, pickupAt, cancelledAt time.Time) int64 {
	deadline := pickupAt.Add(-p.CancelWindow)
	if cancelledAt.Before(deadline) {
		return totalCents
	}
	fee := totalCents * p.CancelFeePercent / 100
	return totalCents - fee
}
