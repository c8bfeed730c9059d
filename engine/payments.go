/*
payments.go - The payment ledger

PURPOSE:
  Owns cash/card/credit entries for a shift. Entries can be added,
  revised and deleted freely while the shift is mutable; nothing rejects
  over- or under-collection against expected sales, because real-world
  cash counts are imperfect and the discrepancy belongs in the variance
  report, not in a write-time error.

SEE ALSO:
  - shift.go: mutableShift, the shared status/ownership gate
  - reconcile.go: where payment totals feed the variance
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentInput is the write payload for the payment ledger. A non-empty
// PaymentID makes this an update of an existing entry; otherwise a new
// payment is created.
type PaymentInput struct {
	PaymentID       string
	PaymentMethodID string
	Amount          decimal.Decimal
	Quantity        decimal.Decimal
}

// AddOrUpdatePayment records or revises a collected-money entry on a
// mutable shift owned by the actor. The payment method must exist in
// the catalog; amount and quantity must be >= 0.
func (s *Service) AddOrUpdatePayment(ctx context.Context, actor Actor, shiftID string, input PaymentInput) (*Payment, error) {
	if input.Amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Message: "must be >= 0"}
	}
	if input.Quantity.IsNegative() {
		return nil, &ValidationError{Field: "quantity", Message: "must be >= 0"}
	}

	method, err := s.Catalog.PaymentMethod(ctx, input.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, &ValidationError{Field: "payment_method_id",
			Message: fmt.Sprintf("unknown payment method %q", input.PaymentMethodID)}
	}

	var result *Payment
	err = s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := mutableShift(ctx, tx, actor, shiftID, "record payment")
		if err != nil {
			return err
		}

		now := s.Now()
		if input.PaymentID != "" {
			payment := shift.Payment(input.PaymentID)
			if payment == nil {
				return &NotFoundError{Resource: "payment", ID: input.PaymentID}
			}
			payment.PaymentMethodID = input.PaymentMethodID
			payment.Amount = input.Amount
			payment.Quantity = input.Quantity
			payment.UpdatedAt = now
			if err := tx.UpdatePayment(ctx, payment); err != nil {
				return err
			}
			result = payment
			return nil
		}

		payment := &Payment{
			ID:              uuid.NewString(),
			ShiftID:         shift.ID,
			PaymentMethodID: input.PaymentMethodID,
			Amount:          input.Amount,
			Quantity:        input.Quantity,
			CreatedByUserID: actor.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePayment removes an entry from a mutable shift owned by the
// actor. Deleting while the shift is immutable is a conflict, not a
// silent no-op.
func (s *Service) DeletePayment(ctx context.Context, actor Actor, shiftID, paymentID string) error {
	return s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := mutableShift(ctx, tx, actor, shiftID, "delete payment")
		if err != nil {
			return err
		}
		if shift.Payment(paymentID) == nil {
			return &NotFoundError{Resource: "payment", ID: paymentID}
		}
		return tx.DeletePayment(ctx, paymentID)
	})
}
