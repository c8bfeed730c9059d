/*
Package engine implements the shift lifecycle and reconciliation core.

PURPOSE:
  This package owns everything with real invariants in the back office:
  the shift state machine, the per-nozzle reading ledger, the payment
  ledger, the reconciliation calculator, and the edit-request workflow
  that governs re-opening a verified shift.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift: one attendant's bounded work session against a fixed nozzle set
  - NozzleReading: opening/closing meter pair for one nozzle in one shift
  - Payment: one collected-money entry (cash, card, credit) for a shift
  - EditRequest: a governed exception to re-open a verified shift
  - Summary: the reconciliation result (expected vs collected, variance)
  - Actor: the authenticated caller (user id + role)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all readings, prices, and money
  2. Snapshots: fuel and price are copied into a NozzleReading at shift
     start, so later catalog edits never retro-alter a recorded shift
  3. Auditability: shifts are never deleted, only archived; the summary
     computed at completion is frozen on the shift record

SEE ALSO:
  - shift.go: the state machine orchestrating everything
  - reconcile.go: the pure reconciliation calculator
  - store.go: persistence interfaces
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTOR - Authenticated caller
// =============================================================================

type Role string

const (
	RoleAttendant Role = "attendant"
	RoleManager   Role = "manager"
)

// Actor identifies who is performing an operation. Identity resolution
// (sessions, tokens) happens outside this package; the engine only sees
// the resolved user id and role.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsManager() bool { return a.Role == RoleManager }

// =============================================================================
// SHIFT - One work session for one attendant
// =============================================================================

type ShiftStatus string

const (
	ShiftOpen          ShiftStatus = "OPEN"
	ShiftPendingReview ShiftStatus = "PENDING_REVIEW"
	ShiftVerified      ShiftStatus = "VERIFIED"
	ShiftArchived      ShiftStatus = "ARCHIVED"
)

// Mutable reports whether readings and payments may still be edited.
// PENDING_REVIEW is mutable so an approved edit request (which moves a
// VERIFIED shift back to PENDING_REVIEW) re-enables corrections.
func (s ShiftStatus) Mutable() bool {
	return s == ShiftOpen || s == ShiftPendingReview
}

// Shift is the aggregate root. Readings and Payments are owned exclusively
// by their shift and are only mutated through the ledger operations.
type Shift struct {
	ID          string
	AttendantID string
	Name        string
	Status      ShiftStatus
	Notes       string

	StartedAt   time.Time
	CompletedAt *time.Time
	VerifiedAt  *time.Time
	ArchivedAt  *time.Time

	// Summary is the reconciliation frozen at completion. It is only
	// replaced by an explicit re-completion after an approved edit
	// request; ledger edits never silently retro-alter it.
	Summary *Summary

	Readings []*NozzleReading
	Payments []*Payment
}

// Reading returns the shift's reading with the given id, or nil.
func (s *Shift) Reading(readingID string) *NozzleReading {
	for _, r := range s.Readings {
		if r.ID == readingID {
			return r
		}
	}
	return nil
}

// Payment returns the shift's payment with the given id, or nil.
func (s *Shift) Payment(paymentID string) *Payment {
	for _, p := range s.Payments {
		if p.ID == paymentID {
			return p
		}
	}
	return nil
}

// =============================================================================
// NOZZLE READING - Meter pair for one nozzle within one shift
// =============================================================================

// NozzleReading captures the meter state of one nozzle for the duration
// of a shift. FuelID, FuelName and PriceAtOpen are snapshots taken from
// the catalog when the shift starts and are immutable afterward, as is
// OpeningReading. ClosingReading may be revised repeatedly while the
// shift is mutable.
type NozzleReading struct {
	ID      string
	ShiftID string

	NozzleID    string
	FuelID      string
	FuelName    string
	PriceAtOpen decimal.Decimal

	OpeningReading decimal.Decimal
	ClosingReading *decimal.Decimal
	TestQty        decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DispensedVolume is the billable volume for this nozzle:
// closing - opening - testQty. Zero until a closing reading exists.
// The ledger rejects any closing/testQty pair that would make it
// negative, so callers can rely on the result being >= 0.
func (r *NozzleReading) DispensedVolume() decimal.Decimal {
	if r.ClosingReading == nil {
		return decimal.Zero
	}
	return r.ClosingReading.Sub(r.OpeningReading).Sub(r.TestQty)
}

// ExpectedRevenue is DispensedVolume x PriceAtOpen.
func (r *NozzleReading) ExpectedRevenue() decimal.Decimal {
	return r.DispensedVolume().Mul(r.PriceAtOpen)
}

// =============================================================================
// PAYMENT - One collected-money entry
// =============================================================================

// Payment records money collected during a shift, attributed to a payment
// method. Quantity is the liters attributable to this payment and may be
// zero for non-fuel methods. No upper bound is enforced against expected
// sales: over/under collection is a variance, not a write-time error.
type Payment struct {
	ID              string
	ShiftID         string
	PaymentMethodID string
	Amount          decimal.Decimal
	Quantity        decimal.Decimal
	CreatedByUserID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// EDIT REQUEST - Governed re-opening of a verified shift
// =============================================================================

type EditRequestStatus string

const (
	EditPending  EditRequestStatus = "PENDING"
	EditApproved EditRequestStatus = "APPROVED"
	EditRejected EditRequestStatus = "REJECTED"
)

// EditRequest asks the owning attendant to consent to re-opening their
// VERIFIED shift. At most one PENDING request may exist per shift.
type EditRequest struct {
	ID                string
	ShiftID           string
	RequestedByUserID string
	Reason            string
	Status            EditRequestStatus

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// =============================================================================
// SUMMARY - Reconciliation result
// =============================================================================

// FuelBreakdownLine aggregates all nozzles sharing one fuel.
type FuelBreakdownLine struct {
	FuelID           string
	FuelName         string
	QuantityInLiters decimal.Decimal
	Amount           decimal.Decimal
}

// Summary compares expected fuel-sale revenue against collected payments.
// Variance is collected minus expected: negative = shortage, positive =
// overage.
type Summary struct {
	FuelBreakdown  []FuelBreakdownLine
	TotalExpected  decimal.Decimal
	TotalCollected decimal.Decimal
	Variance       decimal.Decimal
	GeneratedAt    time.Time
}
