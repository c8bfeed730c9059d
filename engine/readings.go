/*
readings.go - The reading ledger

PURPOSE:
  Owns updates to per-nozzle meter readings while a shift is mutable.
  The opening reading is locked at shift start and is never accepted as
  input here; the update payload simply has no field for it. The closing
  reading may be revised repeatedly until the shift is completed.

CONSTRAINTS:
  closingReading >= openingReading
  0 <= testQty
  testQty <= closingReading - openingReading once a closing value exists

  which together guarantee dispensedVolume >= 0 for every accepted pair.
  A test pour may be recorded before the closing reading is known; the
  delta check applies as soon as a closing value is written, and a shift
  cannot complete without one.

SEE ALSO:
  - shift.go: mutableShift, the shared status/ownership gate
  - types.go: NozzleReading.DispensedVolume
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReadingPatch carries the only two fields an attendant may change on a
// reading. Nil means "leave unchanged". There is deliberately no opening
// reading field: attempts to change it cannot be expressed.
type ReadingPatch struct {
	TestQty        *decimal.Decimal
	ClosingReading *decimal.Decimal
}

// UpdateReading applies a patch to one of the shift's readings. The
// shift must be mutable and owned by the actor; the resulting
// closing/testQty pair must keep the dispensed volume non-negative.
func (s *Service) UpdateReading(ctx context.Context, actor Actor, shiftID, readingID string, patch ReadingPatch) (*NozzleReading, error) {
	var updated *NozzleReading

	err := s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := mutableShift(ctx, tx, actor, shiftID, "update reading")
		if err != nil {
			return err
		}

		reading := shift.Reading(readingID)
		if reading == nil {
			return &NotFoundError{Resource: "reading", ID: readingID}
		}

		closing := reading.ClosingReading
		if patch.ClosingReading != nil {
			closing = patch.ClosingReading
		}
		testQty := reading.TestQty
		if patch.TestQty != nil {
			testQty = *patch.TestQty
		}

		if testQty.IsNegative() {
			return &ValidationError{Field: "test_qty", Message: "must be >= 0"}
		}
		// A test pour may arrive before the closing reading; the delta
		// check runs on every write once a closing value is present.
		if closing != nil {
			if closing.LessThan(reading.OpeningReading) {
				return &ValidationError{Field: "closing_reading",
					Message: "must be >= opening reading"}
			}
			if testQty.GreaterThan(closing.Sub(reading.OpeningReading)) {
				return &ValidationError{Field: "test_qty",
					Message: "must be <= closing - opening"}
			}
		}

		reading.ClosingReading = closing
		reading.TestQty = testQty
		reading.UpdatedAt = s.Now()

		if err := tx.UpdateReading(ctx, reading); err != nil {
			return err
		}
		updated = reading
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
