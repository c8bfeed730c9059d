/*
store.go - Persistence interfaces for the shift engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  only ever mutates state through a TxStore transaction, so every
  operation is a single atomic unit: it fully commits or fully rolls
  back.

INVARIANTS THE STORE ENFORCES:
  - At most one OPEN shift per attendant. InsertShift returns
    ErrDuplicateOpenShift when violated. This must be a write-time
    uniqueness constraint (unique index or equivalent), never a
    read-then-write check in application code.
  - At most one PENDING edit request per shift. InsertEditRequest
    returns ErrDuplicatePendingEdit when violated.
  - Shifts are never deleted. There is no DeleteShift. The audit trail
    of readings, payments and summaries is append-or-update only.

IMPLEMENTATIONS:
  - store/sqlite: production store, also used in tests via ":memory:"

SEE ALSO:
  - shift.go: every mutation runs inside store.WithTx
  - store/sqlite/sqlite.go: concrete implementation
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// ShiftFilter narrows List queries. A nil Status matches all statuses;
// an empty AttendantID matches all attendants. Limit is clamped by the
// engine to [1,100]; Offset must be >= 0.
type ShiftFilter struct {
	Status      *ShiftStatus
	AttendantID string
	Limit       int
	Offset      int
}

// Store is the persistence surface the engine programs against.
// Get/Find/List return shifts with readings and payments attached.
// Methods return nil (not an error) when a lookup finds nothing;
// the engine turns that into NotFoundError with context.
type Store interface {
	// Shifts
	InsertShift(ctx context.Context, s *Shift) error
	GetShift(ctx context.Context, id string) (*Shift, error)
	FindOpenShift(ctx context.Context, attendantID string) (*Shift, error)
	ListShifts(ctx context.Context, f ShiftFilter) ([]*Shift, error)
	UpdateShift(ctx context.Context, s *Shift) error

	// Readings
	InsertReading(ctx context.Context, r *NozzleReading) error
	UpdateReading(ctx context.Context, r *NozzleReading) error

	// LastClosingReading returns the most recent recorded closing value
	// for a nozzle across all shifts, or decimal.Zero when the nozzle has
	// never been read. Used to snapshot opening readings at shift start.
	LastClosingReading(ctx context.Context, nozzleID string) (decimal.Decimal, error)

	// Payments
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, id string) error

	// Edit requests
	InsertEditRequest(ctx context.Context, r *EditRequest) error
	GetEditRequest(ctx context.Context, id string) (*EditRequest, error)
	UpdateEditRequest(ctx context.Context, r *EditRequest) error
	ListEditRequests(ctx context.Context, shiftID string) ([]*EditRequest, error)
}

// TxStore wraps Store with transaction support. WithTx executes fn
// within a single database transaction: if fn returns an error the
// transaction is rolled back, otherwise it is committed. Lock contention
// is retried a fixed small number of times at this boundary and then
// surfaced as a conflict (ErrConflict); the engine itself never retries,
// so fn must tolerate re-execution.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
