/*
shift.go - The shift state machine

PURPOSE:
  Entry point for every shift mutation. Owns status transitions and the
  single-active-shift-per-attendant invariant, orchestrates the reading
  and payment ledgers, and invokes the reconciliation calculator at
  completion.

STATE MACHINE:
  OPEN -> PENDING_REVIEW -> VERIFIED -> ARCHIVED

  with a single sanctioned back-edge VERIFIED -> PENDING_REVIEW, taken
  only when the owning attendant approves an edit request (see
  editrequest.go). OPEN and PENDING_REVIEW are the only statuses in
  which readings and payments may be mutated.

CONCURRENCY:
  Every operation is one store transaction. The one-OPEN-shift invariant
  is backed by a write-time uniqueness constraint in the store, so
  concurrent Start calls for the same attendant race at the constraint,
  not in application code: exactly one commits. Complete transitions the
  status away from OPEN in the same transaction that validates readings
  and computes the summary, so in-flight ledger writes either commit
  before the transition or fail their mutability check after it.

SEE ALSO:
  - readings.go, payments.go: the ledgers this machine guards
  - reconcile.go: the calculator invoked at completion
  - editrequest.go: the workflow behind the back-edge
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forecourt/shift-engine/catalog"
)

// List pagination bounds.
const (
	MaxListLimit     = 100
	DefaultListLimit = 20
)

// Service is the shift engine. All exposed operations require an Actor;
// ownership and role checks happen here, not in the transport layer.
type Service struct {
	Store   TxStore
	Catalog catalog.Catalog

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewService creates a Service backed by the given store and catalog.
func NewService(store TxStore, cat catalog.Catalog) *Service {
	return &Service{
		Store:   store,
		Catalog: cat,
		Now:     time.Now,
	}
}

// =============================================================================
// NAME GENERATION
// =============================================================================

// GenerateShiftName proposes a human label for a shift starting now,
// e.g. "2026-08-30 Morning". Purely advisory: attendants may override it.
func (s *Service) GenerateShiftName() string {
	now := s.Now()
	return fmt.Sprintf("%s %s", now.Format("2006-01-02"), slotFor(now.Hour()))
}

func slotFor(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Morning"
	case hour >= 12 && hour < 17:
		return "Afternoon"
	case hour >= 17 && hour < 22:
		return "Evening"
	default:
		return "Night"
	}
}

// =============================================================================
// START - Open a shift against a set of nozzles
// =============================================================================

// Start opens a shift for the acting attendant against the given nozzles.
// For each nozzle it snapshots fuel and current price from the catalog
// and copies the opening reading from the nozzle's last recorded closing
// (or zero if the nozzle has never been read). All writes happen in one
// transaction: a partial nozzle set never persists.
func (s *Service) Start(ctx context.Context, actor Actor, name string, nozzleIDs []string) (*Shift, error) {
	if name == "" {
		name = s.GenerateShiftName()
	}
	if len(nozzleIDs) == 0 {
		return nil, &ValidationError{Field: "nozzle_ids", Message: "a shift needs at least one nozzle"}
	}
	seen := make(map[string]bool, len(nozzleIDs))
	for _, id := range nozzleIDs {
		if seen[id] {
			return nil, &ValidationError{Field: "nozzle_ids", Message: fmt.Sprintf("nozzle %q listed twice", id)}
		}
		seen[id] = true
	}

	// Resolve the fuel/price snapshots before opening the transaction:
	// the catalog is read-only from the engine's perspective, and the
	// transaction should only cover the writes it serializes.
	infos := make([]*catalog.NozzleInfo, 0, len(nozzleIDs))
	for _, nozzleID := range nozzleIDs {
		info, err := s.Catalog.NozzleInfo(ctx, nozzleID)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, &NotFoundError{Resource: "nozzle", ID: nozzleID}
		}
		infos = append(infos, info)
	}

	now := s.Now()
	shift := &Shift{
		ID:          uuid.NewString(),
		AttendantID: actor.UserID,
		Name:        name,
		Status:      ShiftOpen,
		StartedAt:   now,
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		// The store may re-run this function on retry.
		shift.Readings = nil

		// The unique index on OPEN shifts is the authoritative guard;
		// this lookup only exists to produce a descriptive error for
		// the common single-caller case.
		existing, err := tx.FindOpenShift(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Resource: "shift",
				Message: fmt.Sprintf("attendant %s already has open shift %s", actor.UserID, existing.ID)}
		}

		if err := tx.InsertShift(ctx, shift); err != nil {
			return err
		}

		for i, nozzleID := range nozzleIDs {
			info := infos[i]

			opening, err := tx.LastClosingReading(ctx, nozzleID)
			if err != nil {
				return err
			}

			reading := &NozzleReading{
				ID:             uuid.NewString(),
				ShiftID:        shift.ID,
				NozzleID:       nozzleID,
				FuelID:         info.FuelID,
				FuelName:       info.FuelName,
				PriceAtOpen:    info.Price,
				OpeningReading: opening,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertReading(ctx, reading); err != nil {
				return err
			}
			shift.Readings = append(shift.Readings, reading)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOpenShift) {
			return nil, &ConflictError{Resource: "shift",
				Message: fmt.Sprintf("attendant %s already has an open shift", actor.UserID)}
		}
		return nil, err
	}

	return shift, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GetActive returns the attendant's OPEN shift with its readings, or nil
// when none exists. Attendants may only query themselves; managers may
// query any attendant. An empty attendantID means the actor themself.
func (s *Service) GetActive(ctx context.Context, actor Actor, attendantID string) (*Shift, error) {
	if attendantID == "" {
		attendantID = actor.UserID
	}
	if attendantID != actor.UserID && !actor.IsManager() {
		return nil, &AuthorizationError{ActorID: actor.UserID, Operation: "view active shift",
			Message: "attendants may only view their own shift"}
	}
	return s.Store.FindOpenShift(ctx, attendantID)
}

// Get returns a shift by id, with readings and payments. Attendants may
// only see their own shifts.
func (s *Service) Get(ctx context.Context, actor Actor, shiftID string) (*Shift, error) {
	shift, err := s.Store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, &NotFoundError{Resource: "shift", ID: shiftID}
	}
	if shift.AttendantID != actor.UserID && !actor.IsManager() {
		return nil, &AuthorizationError{ActorID: actor.UserID, Operation: "view shift",
			Message: "attendants may only view their own shifts"}
	}
	return shift, nil
}

// List returns shifts newest-first. Attendants are restricted to their
// own shifts regardless of the filter; managers see everything. Limit is
// clamped to [1,100] and a negative offset is rejected.
func (s *Service) List(ctx context.Context, actor Actor, f ShiftFilter) ([]*Shift, error) {
	if !actor.IsManager() {
		if f.AttendantID != "" && f.AttendantID != actor.UserID {
			return nil, &AuthorizationError{ActorID: actor.UserID, Operation: "list shifts",
				Message: "attendants may only list their own shifts"}
		}
		f.AttendantID = actor.UserID
	}
	if f.Offset < 0 {
		return nil, &ValidationError{Field: "offset", Message: "must be >= 0"}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return s.Store.ListShifts(ctx, f)
}

// GetSummary returns the reconciliation for a shift. While the shift is
// mutable this is a live preview recomputed from current readings and
// payments; once completed it returns the summary frozen at completion,
// so later edits via the edit-request path never silently retro-alter a
// reported reconciliation.
func (s *Service) GetSummary(ctx context.Context, actor Actor, shiftID string) (*Summary, error) {
	shift, err := s.Get(ctx, actor, shiftID)
	if err != nil {
		return nil, err
	}
	if !shift.Status.Mutable() && shift.Summary != nil {
		return shift.Summary, nil
	}
	return Reconcile(shift.Readings, shift.Payments, s.Now()), nil
}

// =============================================================================
// COMPLETE - OPEN -> PENDING_REVIEW
// =============================================================================

// Complete closes out an OPEN shift: every nozzle reading must have a
// closing value, the reconciliation summary is computed and frozen, and
// the status moves to PENDING_REVIEW. Only the owning attendant or a
// manager may complete a shift. The status transition, validation and
// summary all commit in one transaction, so concurrent ledger writes
// either land before the summary or fail their mutability check.
func (s *Service) Complete(ctx context.Context, actor Actor, shiftID, notes string) (*Shift, error) {
	var completed *Shift

	err := s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Resource: "shift", ID: shiftID}
		}
		if shift.AttendantID != actor.UserID && !actor.IsManager() {
			return &AuthorizationError{ActorID: actor.UserID, Operation: "complete shift",
				Message: "only the owning attendant or a manager may complete a shift"}
		}
		if shift.Status != ShiftOpen {
			return &ConflictError{Resource: "shift",
				Message: fmt.Sprintf("cannot complete a shift in status %s", shift.Status)}
		}

		var missing []string
		for _, r := range shift.Readings {
			if r.ClosingReading == nil {
				missing = append(missing, r.NozzleID)
			}
		}
		if len(missing) > 0 {
			return &IncompleteReadingsError{ShiftID: shiftID, MissingNozzleIDs: missing}
		}

		now := s.Now()
		shift.Summary = Reconcile(shift.Readings, shift.Payments, now)
		shift.Status = ShiftPendingReview
		shift.CompletedAt = &now
		shift.Notes = notes

		if err := tx.UpdateShift(ctx, shift); err != nil {
			return err
		}
		completed = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// =============================================================================
// VERIFY / ARCHIVE - Manager-owned transitions
// =============================================================================

// Verify marks a PENDING_REVIEW shift as reviewed and trusted. This is
// the reviewing role's step: managers only.
func (s *Service) Verify(ctx context.Context, actor Actor, shiftID string) (*Shift, error) {
	return s.transition(ctx, actor, shiftID, "verify shift", ShiftPendingReview, ShiftVerified)
}

// Archive retires a VERIFIED shift. Archived shifts are retained forever;
// there is no delete.
func (s *Service) Archive(ctx context.Context, actor Actor, shiftID string) (*Shift, error) {
	return s.transition(ctx, actor, shiftID, "archive shift", ShiftVerified, ShiftArchived)
}

func (s *Service) transition(ctx context.Context, actor Actor, shiftID, op string, from, to ShiftStatus) (*Shift, error) {
	if !actor.IsManager() {
		return nil, &AuthorizationError{ActorID: actor.UserID, Operation: op,
			Message: "managers only"}
	}

	var result *Shift
	err := s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Resource: "shift", ID: shiftID}
		}
		if shift.Status != from {
			return &ConflictError{Resource: "shift",
				Message: fmt.Sprintf("cannot %s: status is %s, want %s", op, shift.Status, from)}
		}

		now := s.Now()
		shift.Status = to
		switch to {
		case ShiftVerified:
			// Re-freeze the summary so post-edit-request corrections made
			// in PENDING_REVIEW are what gets certified.
			shift.Summary = Reconcile(shift.Readings, shift.Payments, now)
			shift.VerifiedAt = &now
		case ShiftArchived:
			shift.ArchivedAt = &now
		}
		if err := tx.UpdateShift(ctx, shift); err != nil {
			return err
		}
		result = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mutableShift loads a shift inside a transaction and checks that the
// actor owns it and that its status still permits ledger mutation.
// Shared by the reading and payment ledgers.
func mutableShift(ctx context.Context, tx Store, actor Actor, shiftID, op string) (*Shift, error) {
	shift, err := tx.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, &NotFoundError{Resource: "shift", ID: shiftID}
	}
	if shift.AttendantID != actor.UserID {
		return nil, &AuthorizationError{ActorID: actor.UserID, Operation: op,
			Message: "only the owning attendant may edit shift records"}
	}
	if !shift.Status.Mutable() {
		return nil, &ConflictError{Resource: "shift",
			Message: fmt.Sprintf("shift is %s and no longer accepts edits", shift.Status)}
	}
	return shift, nil
}
