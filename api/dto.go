/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exposed to clients, kept separate from the engine types so
  the wire format can evolve independently. All decimals cross the wire
  as strings to avoid float rounding in clients.

SEE ALSO:
  - handlers.go: parses requests into these and serializes responses
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecourt/shift-engine/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

// StartShiftRequest opens a shift. Name is optional; when empty the
// server generates one.
type StartShiftRequest struct {
	Name      string   `json:"name,omitempty"`
	NozzleIDs []string `json:"nozzle_ids"`
}

// UpdateReadingRequest patches a nozzle reading. Absent fields are left
// unchanged. There is no opening-reading field on purpose.
type UpdateReadingRequest struct {
	TestQty        *string `json:"test_qty,omitempty"`
	ClosingReading *string `json:"closing_reading,omitempty"`
}

// PaymentRequest adds or updates a payment. A non-empty PaymentID
// updates the existing entry.
type PaymentRequest struct {
	PaymentID       string `json:"payment_id,omitempty"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          string `json:"amount"`
	Quantity        string `json:"quantity,omitempty"`
}

// CompleteShiftRequest closes out a shift.
type CompleteShiftRequest struct {
	Notes string `json:"notes,omitempty"`
}

// CreateEditRequestRequest asks to re-open a verified shift.
type CreateEditRequestRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ShiftDTO struct {
	ID          string        `json:"id"`
	AttendantID string        `json:"attendant_id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	StartedAt   string        `json:"started_at"`
	CompletedAt *string       `json:"completed_at,omitempty"`
	VerifiedAt  *string       `json:"verified_at,omitempty"`
	ArchivedAt  *string       `json:"archived_at,omitempty"`
	Summary     *SummaryDTO   `json:"summary,omitempty"`
	Readings    []ReadingDTO  `json:"readings"`
	Payments    []PaymentDTO  `json:"payments"`
}

type ReadingDTO struct {
	ID              string  `json:"id"`
	NozzleID        string  `json:"nozzle_id"`
	FuelID          string  `json:"fuel_id"`
	FuelName        string  `json:"fuel_name"`
	PriceAtOpen     string  `json:"price_at_open"`
	OpeningReading  string  `json:"opening_reading"`
	ClosingReading  *string `json:"closing_reading,omitempty"`
	TestQty         string  `json:"test_qty"`
	DispensedVolume string  `json:"dispensed_volume"`
}

type PaymentDTO struct {
	ID              string `json:"id"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          string `json:"amount"`
	Quantity        string `json:"quantity"`
	CreatedByUserID string `json:"created_by_user_id"`
	CreatedAt       string `json:"created_at"`
}

type SummaryDTO struct {
	FuelBreakdown  []FuelBreakdownDTO `json:"fuel_breakdown"`
	TotalExpected  string             `json:"total_expected"`
	TotalCollected string             `json:"total_collected"`
	Variance       string             `json:"variance"`
	GeneratedAt    string             `json:"generated_at"`
}

type FuelBreakdownDTO struct {
	FuelID           string `json:"fuel_id"`
	FuelName         string `json:"fuel_name"`
	QuantityInLiters string `json:"quantity_in_liters"`
	Amount           string `json:"amount"`
}

type EditRequestDTO struct {
	ID                string  `json:"id"`
	ShiftID           string  `json:"shift_id"`
	RequestedByUserID string  `json:"requested_by_user_id"`
	Reason            string  `json:"reason"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	ResolvedAt        *string `json:"resolved_at,omitempty"`
}

type ShiftNameDTO struct {
	Name string `json:"name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toShiftDTO(s *engine.Shift) ShiftDTO {
	dto := ShiftDTO{
		ID:          s.ID,
		AttendantID: s.AttendantID,
		Name:        s.Name,
		Status:      string(s.Status),
		Notes:       s.Notes,
		StartedAt:   s.StartedAt.Format(time.RFC3339),
		CompletedAt: timePtrString(s.CompletedAt),
		VerifiedAt:  timePtrString(s.VerifiedAt),
		ArchivedAt:  timePtrString(s.ArchivedAt),
		Readings:    make([]ReadingDTO, 0, len(s.Readings)),
		Payments:    make([]PaymentDTO, 0, len(s.Payments)),
	}
	if s.Summary != nil {
		sum := toSummaryDTO(s.Summary)
		dto.Summary = &sum
	}
	for _, r := range s.Readings {
		dto.Readings = append(dto.Readings, toReadingDTO(r))
	}
	for _, p := range s.Payments {
		dto.Payments = append(dto.Payments, toPaymentDTO(p))
	}
	return dto
}

func toReadingDTO(r *engine.NozzleReading) ReadingDTO {
	dto := ReadingDTO{
		ID:              r.ID,
		NozzleID:        r.NozzleID,
		FuelID:          r.FuelID,
		FuelName:        r.FuelName,
		PriceAtOpen:     r.PriceAtOpen.String(),
		OpeningReading:  r.OpeningReading.String(),
		TestQty:         r.TestQty.String(),
		DispensedVolume: r.DispensedVolume().String(),
	}
	if r.ClosingReading != nil {
		s := r.ClosingReading.String()
		dto.ClosingReading = &s
	}
	return dto
}

func toPaymentDTO(p *engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID,
		PaymentMethodID: p.PaymentMethodID,
		Amount:          p.Amount.String(),
		Quantity:        p.Quantity.String(),
		CreatedByUserID: p.CreatedByUserID,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

func toSummaryDTO(s *engine.Summary) SummaryDTO {
	dto := SummaryDTO{
		FuelBreakdown:  make([]FuelBreakdownDTO, 0, len(s.FuelBreakdown)),
		TotalExpected:  s.TotalExpected.String(),
		TotalCollected: s.TotalCollected.String(),
		Variance:       s.Variance.String(),
		GeneratedAt:    s.GeneratedAt.Format(time.RFC3339),
	}
	for _, line := range s.FuelBreakdown {
		dto.FuelBreakdown = append(dto.FuelBreakdown, FuelBreakdownDTO{
			FuelID:           line.FuelID,
			FuelName:         line.FuelName,
			QuantityInLiters: line.QuantityInLiters.String(),
			Amount:           line.Amount.String(),
		})
	}
	return dto
}

func toEditRequestDTO(r *engine.EditRequest) EditRequestDTO {
	return EditRequestDTO{
		ID:                r.ID,
		ShiftID:           r.ShiftID,
		RequestedByUserID: r.RequestedByUserID,
		Reason:            r.Reason,
		Status:            string(r.Status),
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
		ResolvedAt:        timePtrString(r.ResolvedAt),
	}
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// parseDecimalField parses a decimal wire string, reporting the field
// name on failure.
func parseDecimalField(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &engine.ValidationError{Field: field, Message: "not a valid decimal"}
	}
	return d, nil
}
