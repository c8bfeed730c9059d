/*
editrequest.go - The edit-request workflow

PURPOSE:
  A secondary state machine layered on top of a VERIFIED shift, gating
  the single sanctioned back-edge VERIFIED -> PENDING_REVIEW. Anyone who
  spots a problem may request a correction, but only the owning attendant
  - the person who will have to redo the work - can approve it. This
  keeps "verified" (reviewed, trusted) distinct from "locked": managers
  can ask for corrections without unilaterally overriding the
  attendant's authoritative record.

REQUEST LIFECYCLE:
  PENDING -> APPROVED   (shift moves back to PENDING_REVIEW atomically)
  PENDING -> REJECTED   (shift untouched)

  Both outcomes are terminal. At most one PENDING request may exist per
  shift; the store enforces this with a write-time uniqueness constraint
  so concurrent requests race at the constraint, not in application code.

AFTER APPROVAL:
  The shift is back in PENDING_REVIEW: the ledgers accept corrections
  and a manager must verify again; there is no implicit re-verification.
  Verification re-freezes the summary, so the certified numbers always
  reflect the corrected ledger.

SEE ALSO:
  - shift.go: Complete and Verify, the forward path the shift must retake
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MinEditReasonLength is the minimum length of an edit-request reason,
// counted in characters, not bytes. A correction request without a
// usable explanation is not actionable.
const MinEditReasonLength = 10

// RequestEdit opens a correction request against a VERIFIED shift.
func (s *Service) RequestEdit(ctx context.Context, actor Actor, shiftID, reason string) (*EditRequest, error) {
	if utf8.RuneCountInString(reason) < MinEditReasonLength {
		return nil, &ValidationError{Field: "reason",
			Message: fmt.Sprintf("must be at least %d characters", MinEditReasonLength)}
	}

	request := &EditRequest{
		ID:                uuid.NewString(),
		ShiftID:           shiftID,
		RequestedByUserID: actor.UserID,
		Reason:            reason,
		Status:            EditPending,
		CreatedAt:         s.Now(),
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Resource: "shift", ID: shiftID}
		}
		if shift.Status != ShiftVerified {
			return &ConflictError{Resource: "edit_request",
				Message: fmt.Sprintf("shift is %s; only verified shifts can be re-opened", shift.Status)}
		}
		return tx.InsertEditRequest(ctx, request)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePendingEdit) {
			return nil, &ConflictError{Resource: "edit_request",
				Message: fmt.Sprintf("shift %s already has a pending edit request", shiftID)}
		}
		return nil, err
	}
	return request, nil
}

// ApproveEdit resolves a PENDING request as approved and atomically
// moves the shift back to PENDING_REVIEW, re-enabling ledger mutation.
// Only the shift's owning attendant may approve, and never the requester
// themself.
func (s *Service) ApproveEdit(ctx context.Context, actor Actor, requestID string) (*EditRequest, error) {
	return s.resolveEdit(ctx, actor, requestID, EditApproved)
}

// RejectEdit resolves a PENDING request as rejected. The shift is
// untouched and stays VERIFIED.
func (s *Service) RejectEdit(ctx context.Context, actor Actor, requestID string) (*EditRequest, error) {
	return s.resolveEdit(ctx, actor, requestID, EditRejected)
}

func (s *Service) resolveEdit(ctx context.Context, actor Actor, requestID string, outcome EditRequestStatus) (*EditRequest, error) {
	var resolved *EditRequest

	err := s.Store.WithTx(ctx, func(tx Store) error {
		request, err := tx.GetEditRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return &NotFoundError{Resource: "edit_request", ID: requestID}
		}
		if request.Status != EditPending {
			return &ConflictError{Resource: "edit_request",
				Message: fmt.Sprintf("request is already %s", request.Status)}
		}

		shift, err := tx.GetShift(ctx, request.ShiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Resource: "shift", ID: request.ShiftID}
		}
		if shift.AttendantID != actor.UserID {
			return &AuthorizationError{ActorID: actor.UserID, Operation: "resolve edit request",
				Message: "only the shift's owning attendant may resolve it"}
		}
		if request.RequestedByUserID == actor.UserID {
			return &AuthorizationError{ActorID: actor.UserID, Operation: "resolve edit request",
				Message: "the requester may not resolve their own request"}
		}

		now := s.Now()
		request.Status = outcome
		request.ResolvedAt = &now
		if err := tx.UpdateEditRequest(ctx, request); err != nil {
			return err
		}

		if outcome == EditApproved {
			if shift.Status != ShiftVerified {
				return &ConflictError{Resource: "shift",
					Message: fmt.Sprintf("shift is %s; cannot re-open", shift.Status)}
			}
			shift.Status = ShiftPendingReview
			shift.VerifiedAt = nil
			if err := tx.UpdateShift(ctx, shift); err != nil {
				return err
			}
		}

		resolved = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ListEditRequests returns a shift's edit requests newest-first.
// Attendants may only list requests on their own shifts.
func (s *Service) ListEditRequests(ctx context.Context, actor Actor, shiftID string) ([]*EditRequest, error) {
	if _, err := s.Get(ctx, actor, shiftID); err != nil {
		return nil, err
	}
	return s.Store.ListEditRequests(ctx, shiftID)
}
