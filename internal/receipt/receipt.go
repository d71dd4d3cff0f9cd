// Package receipt renders booking confirmation receipts as PDF files.
package receipt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/phpdave11/gofpdf"

	"github.com/megacity/cab/internal/model"
)

// Writer renders confirmation receipts into a directory. It satisfies the
// booking service's ReceiptWriter port.
type Writer struct {
	dir string
}

// NewWriter creates a receipt writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteConfirmation renders the receipt for a booking and returns the file
// path. Callers treat failures as best effort.
func (w *Writer) WriteConfirmation(b *model.Booking, customer *model.Customer, car *model.Car) (string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Booking Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "MEGACITY CAB - BOOKING RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range []string{
		"Booking ID : " + b.ID,
		"Customer   : " + customer.Name,
		"Booked at  : " + b.CreatedAt.Format("2006-01-02 15:04"),
		"Pickup     : " + b.PickupLocation,
		"Destination: " + b.Destination,
		"Pickup time: " + b.PickupAt.Format("2006-01-02 15:04"),
	} {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Vehicle")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("%s %s (%s)", car.Brand, car.Model, car.LicensePlate))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Payment")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Base rate   : %s", cents(car.BaseRateCents)))
	pdf.Ln(7)
	if b.DriverRequired {
		pdf.Cell(0, 7, fmt.Sprintf("Driver rate : %s", cents(car.DriverRateCents)))
		pdf.Ln(7)
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Total       : %s", cents(b.TotalAmountCents)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6,
		"Cancellations made more than 24 hours before pickup receive a full refund. "+
			"Cancellations within 24 hours of pickup incur a 10% cancellation fee.",
		"", "", false)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("receipt: mkdir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, b.ID+".pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("receipt: write %s: %w", path, err)
	}
	return path, nil
}

func cents(v int64) string {
	return fmt.Sprintf("Rs. %d.%02d", v/100, v%100)
}
