/*
handlers.go - HTTP API handlers for the shift lifecycle engine

PURPOSE:
  Exposes the shift engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the engine. The
  caller is resolved by the actor middleware (see actor.go); handlers
  never look at headers themselves.

ENDPOINTS:
  Shifts:
    GET    /api/shifts                     List shifts (filterable)
    POST   /api/shifts                     Start a shift
    GET    /api/shifts/active              Active shift for an attendant
    GET    /api/shifts/name                Suggested name for a new shift
    GET    /api/shifts/{id}                Shift with readings and payments
    GET    /api/shifts/{id}/summary        Reconciliation summary
    POST   /api/shifts/{id}/complete       OPEN -> PENDING_REVIEW
    POST   /api/shifts/{id}/verify         PENDING_REVIEW -> VERIFIED
    POST   /api/shifts/{id}/archive        VERIFIED -> ARCHIVED

  Readings and payments:
    PUT    /api/shifts/{id}/readings/{readingID}   Patch a nozzle reading
    POST   /api/shifts/{id}/payments               Add or update a payment
    DELETE /api/shifts/{id}/payments/{paymentID}   Remove a payment

  Edit requests:
    GET    /api/shifts/{id}/edit-requests  List requests for a shift
    POST   /api/shifts/{id}/edit-requests  Ask to re-open a verified shift
    POST   /api/edit-requests/{id}/approve Approve (re-opens the shift)
    POST   /api/edit-requests/{id}/reject  Reject

  Catalog:
    GET    /api/catalog/nozzles            Nozzles with fuel and price
    GET    /api/catalog/payment-methods    Payment methods

  Scenarios:
    POST   /api/scenarios/demo             Seed the demo station

ERROR HANDLING:
  Engine errors map to HTTP status via their sentinel:
  - 400: validation
  - 403: authorization
  - 404: not found
  - 409: conflict (wrong status, duplicate open shift, duplicate edit)
  - 422: incomplete readings at completion
  - 503: store unavailable after retries
  - 500: everything else

SEE ALSO:
  - dto.go: request/response data structures
  - actor.go: caller resolution
  - server.go: router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/forecourt/shift-engine/catalog"
	"github.com/forecourt/shift-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// CatalogReader is the catalog surface the API needs: the engine's
// lookup interface plus the list endpoints.
type CatalogReader interface {
	catalog.Catalog
	ListNozzles(ctx context.Context) ([]catalog.NozzleInfo, error)
	ListPaymentMethods(ctx context.Context) ([]catalog.PaymentMethod, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *engine.Service
	Catalog CatalogReader
	Seeder  catalog.Writer
	Log     zerolog.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(eng *engine.Service, cat CatalogReader, seeder catalog.Writer, log zerolog.Logger) *Handler {
	return &Handler{Engine: eng, Catalog: cat, Seeder: seeder, Log: log}
}

// =============================================================================
// SHIFT LIFECYCLE
// =============================================================================

// StartShift handles POST /api/shifts.
func (h *Handler) StartShift(w http.ResponseWriter, r *http.Request) {
	var req StartShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	shift, err := h.Engine.Start(r.Context(), actorFrom(r), req.Name, req.NozzleIDs)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(shift))
}

// GetShift handles GET /api/shifts/{id}.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Engine.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// GetActiveShift handles GET /api/shifts/active. Managers may pass
// ?attendant_id= to look at someone else's open shift.
func (h *Handler) GetActiveShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Engine.GetActive(r.Context(), actorFrom(r), r.URL.Query().Get("attendant_id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if shift == nil {
		writeError(w, http.StatusNotFound, "No active shift", nil)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// SuggestShiftName handles GET /api/shifts/name.
func (h *Handler) SuggestShiftName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ShiftNameDTO{Name: h.Engine.GenerateShiftName()})
}

// ListShifts handles GET /api/shifts with optional status, attendant_id,
// limit and offset query parameters.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter engine.ShiftFilter
	if s := q.Get("status"); s != "" {
		status := engine.ShiftStatus(s)
		switch status {
		case engine.ShiftOpen, engine.ShiftPendingReview, engine.ShiftVerified, engine.ShiftArchived:
			filter.Status = &status
		default:
			writeError(w, http.StatusBadRequest, "Unknown status "+s, nil)
			return
		}
	}
	filter.AttendantID = q.Get("attendant_id")

	var err error
	if filter.Limit, err = intQuery(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if filter.Offset, err = intQuery(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset", err)
		return
	}

	shifts, err := h.Engine.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]ShiftDTO, 0, len(shifts))
	for _, s := range shifts {
		dtos = append(dtos, toShiftDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary handles GET /api/shifts/{id}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.GetSummary(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// CompleteShift handles POST /api/shifts/{id}/complete. The body is
// optional; an empty body completes with no notes.
func (h *Handler) CompleteShift(w http.ResponseWriter, r *http.Request) {
	var req CompleteShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	shift, err := h.Engine.Complete(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// VerifyShift handles POST /api/shifts/{id}/verify.
func (h *Handler) VerifyShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Engine.Verify(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// ArchiveShift handles POST /api/shifts/{id}/archive.
func (h *Handler) ArchiveShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Engine.Archive(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}

// =============================================================================
// READINGS AND PAYMENTS
// =============================================================================

// UpdateReading handles PUT /api/shifts/{id}/readings/{readingID}.
func (h *Handler) UpdateReading(w http.ResponseWriter, r *http.Request) {
	var req UpdateReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var patch engine.ReadingPatch
	if req.TestQty != nil {
		d, err := parseDecimalField("test_qty", *req.TestQty)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		patch.TestQty = &d
	}
	if req.ClosingReading != nil {
		d, err := parseDecimalField("closing_reading", *req.ClosingReading)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		patch.ClosingReading = &d
	}

	reading, err := h.Engine.UpdateReading(r.Context(), actorFrom(r),
		chi.URLParam(r, "id"), chi.URLParam(r, "readingID"), patch)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingDTO(reading))
}

// RecordPayment handles POST /api/shifts/{id}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseDecimalField("amount", req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	quantity, err := parseDecimalField("quantity", req.Quantity)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	payment, err := h.Engine.AddOrUpdatePayment(r.Context(), actorFrom(r), chi.URLParam(r, "id"), engine.PaymentInput{
		PaymentID:       req.PaymentID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          amount,
		Quantity:        quantity,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	status := http.StatusCreated
	if req.PaymentID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, toPaymentDTO(payment))
}

// DeletePayment handles DELETE /api/shifts/{id}/payments/{paymentID}.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	err := h.Engine.DeletePayment(r.Context(), actorFrom(r),
		chi.URLParam(r, "id"), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EDIT REQUESTS
// =============================================================================

// CreateEditRequest handles POST /api/shifts/{id}/edit-requests.
func (h *Handler) CreateEditRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateEditRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	er, err := h.Engine.RequestEdit(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEditRequestDTO(er))
}

// ListEditRequests handles GET /api/shifts/{id}/edit-requests.
func (h *Handler) ListEditRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Engine.ListEditRequests(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]EditRequestDTO, 0, len(requests))
	for _, er := range requests {
		dtos = append(dtos, toEditRequestDTO(er))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveEditRequest handles POST /api/edit-requests/{id}/approve.
func (h *Handler) ApproveEditRequest(w http.ResponseWriter, r *http.Request) {
	er, err := h.Engine.ApproveEdit(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditRequestDTO(er))
}

// RejectEditRequest handles POST /api/edit-requests/{id}/reject.
func (h *Handler) RejectEditRequest(w http.ResponseWriter, r *http.Request) {
	er, err := h.Engine.RejectEdit(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditRequestDTO(er))
}

// =============================================================================
// CATALOG
// =============================================================================

type nozzleDTO struct {
	NozzleID    string `json:"nozzle_id"`
	DispenserID string `json:"dispenser_id"`
	FuelID      string `json:"fuel_id"`
	FuelName    string `json:"fuel_name"`
	Price       string `json:"price"`
}

// ListNozzles handles GET /api/catalog/nozzles.
func (h *Handler) ListNozzles(w http.ResponseWriter, r *http.Request) {
	nozzles, err := h.Catalog.ListNozzles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list nozzles", err)
		return
	}

	dtos := make([]nozzleDTO, 0, len(nozzles))
	for _, n := range nozzles {
		dtos = append(dtos, nozzleDTO{
			NozzleID:    n.NozzleID,
			DispenserID: n.DispenserID,
			FuelID:      n.FuelID,
			FuelName:    n.FuelName,
			Price:       n.Price.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPaymentMethods handles GET /api/catalog/payment-methods.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Catalog.ListPaymentMethods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

// =============================================================================
// HELPERS
// =============================================================================

// writeEngineError maps an engine error to an HTTP status and logs the
// unexpected ones.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsUnauthorized(err):
		writeError(w, http.StatusForbidden, "Not allowed", err)
	case engine.IsIncompleteReadings(err):
		writeError(w, http.StatusUnprocessableEntity, "Readings incomplete", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrStoreUnavailable):
		h.Log.Warn().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "Store unavailable, retry later", nil)
	default:
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func intQuery(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}
