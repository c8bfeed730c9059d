/*
Package sqlite provides the SQLite-backed store for the shift engine.

PURPOSE:
  Implements engine.TxStore (shifts, readings, payments, edit requests)
  and the catalog interfaces (fuels, nozzles, payment methods, users)
  over database/sql with mattn/go-sqlite3. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INVARIANTS ENFORCED AT WRITE TIME:
  Two invariants are load-bearing under concurrency and are enforced by
  partial unique indexes, never by read-then-write application code:

  - idx_shifts_one_open:           at most one OPEN shift per attendant
  - idx_edit_requests_one_pending: at most one PENDING edit request per
                                   shift

  Violations surface as engine.ErrDuplicateOpenShift and
  engine.ErrDuplicatePendingEdit respectively.

AUDIT TRAIL:
  There is no DELETE on the shifts, nozzle_readings or edit_requests
  tables. Shifts are archived, never removed; payments are the only
  deletable records, and only through the engine's mutability gate.

TRANSACTIONS:
  WithTx wraps a function in a single BEGIN/COMMIT. Busy/locked errors
  are retried a fixed small number of times at this boundary and then
  surfaced as unavailability; nothing above the store retries.

WAL MODE:
  The database is opened with WAL journaling and foreign keys on:
  readers don't block, one writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/station.db")  // or ":memory:"
  svc := engine.NewService(store, store)

SEE ALSO:
  - engine/store.go: interface contracts
  - catalog/catalog.go: catalog interfaces this store also implements
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/forecourt/shift-engine/catalog"
	"github.com/forecourt/shift-engine/engine"
)

// txRetries is the number of attempts WithTx makes against a busy
// database before giving up.
const txRetries = 3

// Store implements engine.TxStore, catalog.Catalog and catalog.Writer.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent (each
	// sqlite3 connection would otherwise get its own) and matches the
	// one-writer-at-a-time model WithTx already imposes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Shifts: full history, no hard deletes
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		attendant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT,
		verified_at TEXT,
		archived_at TEXT,
		summary_json TEXT
	);

	-- CRITICAL: at most one OPEN shift per attendant. Concurrent starts
	-- race here, at the constraint, so exactly one commits.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_open
		ON shifts(attendant_id) WHERE status = 'OPEN';

	CREATE INDEX IF NOT EXISTS idx_shifts_attendant
		ON shifts(attendant_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_shifts_status
		ON shifts(status);

	-- Nozzle readings: one row per nozzle per shift
	CREATE TABLE IF NOT EXISTS nozzle_readings (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		nozzle_id TEXT NOT NULL,
		fuel_id TEXT NOT NULL,
		fuel_name TEXT NOT NULL,
		price_at_open TEXT NOT NULL,
		opening_reading TEXT NOT NULL,
		closing_reading TEXT,
		test_qty TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(shift_id, nozzle_id)
	);

	CREATE INDEX IF NOT EXISTS idx_readings_shift
		ON nozzle_readings(shift_id);
	-- Hot path for opening-reading snapshots at shift start
	CREATE INDEX IF NOT EXISTS idx_readings_nozzle
		ON nozzle_readings(nozzle_id, created_at DESC);

	-- Payments
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		payment_method_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		quantity TEXT NOT NULL DEFAULT '0',
		created_by_user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_shift
		ON payments(shift_id);

	-- Edit requests
	CREATE TABLE IF NOT EXISTS edit_requests (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		requested_by_user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	-- CRITICAL: at most one PENDING edit request per shift.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_edit_requests_one_pending
		ON edit_requests(shift_id) WHERE status = 'PENDING';

	CREATE INDEX IF NOT EXISTS idx_edit_requests_shift
		ON edit_requests(shift_id, created_at DESC);

	-- Station catalog
	CREATE TABLE IF NOT EXISTS fuels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nozzles (
		id TEXT PRIMARY KEY,
		dispenser_id TEXT NOT NULL,
		fuel_id TEXT NOT NULL REFERENCES fuels(id)
	);

	CREATE TABLE IF NOT EXISTS payment_methods (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (engine.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction, retrying the whole
// unit on lock contention a fixed number of times. Contention that
// persists through every attempt is a conflict: the caller lost the
// race and may retry on its own terms.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isBusyError(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: lock contention persisted through %d attempts: %v",
		engine.ErrConflict, txRetries, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", engine.ErrStoreUnavailable, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the in-transaction view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertShift(ctx context.Context, sh *engine.Shift) error {
	return insertShift(ctx, ts.tx, sh)
}
func (ts *txStore) GetShift(ctx context.Context, id string) (*engine.Shift, error) {
	return getShift(ctx, ts.tx, id)
}
func (ts *txStore) FindOpenShift(ctx context.Context, attendantID string) (*engine.Shift, error) {
	return findOpenShift(ctx, ts.tx, attendantID)
}
func (ts *txStore) ListShifts(ctx context.Context, f engine.ShiftFilter) ([]*engine.Shift, error) {
	return listShifts(ctx, ts.tx, f)
}
func (ts *txStore) UpdateShift(ctx context.Context, sh *engine.Shift) error {
	return updateShift(ctx, ts.tx, sh)
}
func (ts *txStore) InsertReading(ctx context.Context, r *engine.NozzleReading) error {
	return insertReading(ctx, ts.tx, r)
}
func (ts *txStore) UpdateReading(ctx context.Context, r *engine.NozzleReading) error {
	return updateReading(ctx, ts.tx, r)
}
func (ts *txStore) LastClosingReading(ctx context.Context, nozzleID string) (decimal.Decimal, error) {
	return lastClosingReading(ctx, ts.tx, nozzleID)
}
func (ts *txStore) InsertPayment(ctx context.Context, p *engine.Payment) error {
	return insertPayment(ctx, ts.tx, p)
}
func (ts *txStore) UpdatePayment(ctx context.Context, p *engine.Payment) error {
	return updatePayment(ctx, ts.tx, p)
}
func (ts *txStore) DeletePayment(ctx context.Context, id string) error {
	return deletePayment(ctx, ts.tx, id)
}
func (ts *txStore) InsertEditRequest(ctx context.Context, r *engine.EditRequest) error {
	return insertEditRequest(ctx, ts.tx, r)
}
func (ts *txStore) GetEditRequest(ctx context.Context, id string) (*engine.EditRequest, error) {
	return getEditRequest(ctx, ts.tx, id)
}
func (ts *txStore) UpdateEditRequest(ctx context.Context, r *engine.EditRequest) error {
	return updateEditRequest(ctx, ts.tx, r)
}
func (ts *txStore) ListEditRequests(ctx context.Context, shiftID string) ([]*engine.EditRequest, error) {
	return listEditRequests(ctx, ts.tx, shiftID)
}

// =============================================================================
// SHIFTS
// =============================================================================

func (s *Store) InsertShift(ctx context.Context, sh *engine.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertShift(ctx, s.db, sh)
}

func insertShift(ctx context.Context, db dbtx, sh *engine.Shift) error {
	summaryJSON, err := marshalSummary(sh.Summary)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO shifts (id, attendant_id, name, status, notes,
			started_at, completed_at, verified_at, archived_at, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.AttendantID, sh.Name, sh.Status, sh.Notes,
		formatTime(sh.StartedAt), formatTimePtr(sh.CompletedAt),
		formatTimePtr(sh.VerifiedAt), formatTimePtr(sh.ArchivedAt),
		summaryJSON,
	)
	if err != nil {
		if isConstraintError(err, "idx_shifts_one_open") {
			return engine.ErrDuplicateOpenShift
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*engine.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getShift(ctx, s.db, id)
}

func getShift(ctx context.Context, db dbtx, id string) (*engine.Shift, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, attendant_id, name, status, notes,
		       started_at, completed_at, verified_at, archived_at, summary_json
		FROM shifts WHERE id = ?`, id)

	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := attachShiftRecords(ctx, db, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Store) FindOpenShift(ctx context.Context, attendantID string) (*engine.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOpenShift(ctx, s.db, attendantID)
}

func findOpenShift(ctx context.Context, db dbtx, attendantID string) (*engine.Shift, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, attendant_id, name, status, notes,
		       started_at, completed_at, verified_at, archived_at, summary_json
		FROM shifts WHERE attendant_id = ? AND status = 'OPEN'`, attendantID)

	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := attachShiftRecords(ctx, db, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Store) ListShifts(ctx context.Context, f engine.ShiftFilter) ([]*engine.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listShifts(ctx, s.db, f)
}

func listShifts(ctx context.Context, db dbtx, f engine.ShiftFilter) ([]*engine.Shift, error) {
	query := `
		SELECT id, attendant_id, name, status, notes,
		       started_at, completed_at, verified_at, archived_at, summary_json
		FROM shifts WHERE 1=1`
	var args []any

	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.AttendantID != "" {
		query += " AND attendant_id = ?"
		args = append(args, f.AttendantID)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*engine.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sh := range shifts {
		if err := attachShiftRecords(ctx, db, sh); err != nil {
			return nil, err
		}
	}
	return shifts, nil
}

func (s *Store) UpdateShift(ctx context.Context, sh *engine.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateShift(ctx, s.db, sh)
}

func updateShift(ctx context.Context, db dbtx, sh *engine.Shift) error {
	summaryJSON, err := marshalSummary(sh.Summary)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE shifts SET name = ?, status = ?, notes = ?,
			completed_at = ?, verified_at = ?, archived_at = ?, summary_json = ?
		WHERE id = ?`,
		sh.Name, sh.Status, sh.Notes,
		formatTimePtr(sh.CompletedAt), formatTimePtr(sh.VerifiedAt),
		formatTimePtr(sh.ArchivedAt), summaryJSON, sh.ID,
	)
	if err != nil {
		if isConstraintError(err, "idx_shifts_one_open") {
			return engine.ErrDuplicateOpenShift
		}
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Resource: "shift", ID: sh.ID}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (*engine.Shift, error) {
	var (
		sh                                           engine.Shift
		startedAt                                    string
		completedAt, verifiedAt, archivedAt, summary sql.NullString
	)
	err := row.Scan(&sh.ID, &sh.AttendantID, &sh.Name, &sh.Status, &sh.Notes,
		&startedAt, &completedAt, &verifiedAt, &archivedAt, &summary)
	if err != nil {
		return nil, err
	}

	sh.StartedAt = parseTime(startedAt)
	sh.CompletedAt = parseTimePtr(completedAt)
	sh.VerifiedAt = parseTimePtr(verifiedAt)
	sh.ArchivedAt = parseTimePtr(archivedAt)

	if summary.Valid && summary.String != "" {
		var sum engine.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return nil, fmt.Errorf("failed to decode shift summary: %w", err)
		}
		sh.Summary = &sum
	}
	return &sh, nil
}

func attachShiftRecords(ctx context.Context, db dbtx, sh *engine.Shift) error {
	readings, err := readingsForShift(ctx, db, sh.ID)
	if err != nil {
		return err
	}
	payments, err := paymentsForShift(ctx, db, sh.ID)
	if err != nil {
		return err
	}
	sh.Readings = readings
	sh.Payments = payments
	return nil
}

// =============================================================================
// NOZZLE READINGS
// =============================================================================

func (s *Store) InsertReading(ctx context.Context, r *engine.NozzleReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReading(ctx, s.db, r)
}

func insertReading(ctx context.Context, db dbtx, r *engine.NozzleReading) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO nozzle_readings (id, shift_id, nozzle_id, fuel_id, fuel_name,
			price_at_open, opening_reading, closing_reading, test_qty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ShiftID, r.NozzleID, r.FuelID, r.FuelName,
		r.PriceAtOpen.String(), r.OpeningReading.String(),
		decimalPtrString(r.ClosingReading), r.TestQty.String(),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (s *Store) UpdateReading(ctx context.Context, r *engine.NozzleReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReading(ctx, s.db, r)
}

// updateReading persists the mutable reading fields only. The opening
// reading and price snapshot are locked at insert and never touched here.
func updateReading(ctx context.Context, db dbtx, r *engine.NozzleReading) error {
	res, err := db.ExecContext(ctx, `
		UPDATE nozzle_readings SET closing_reading = ?, test_qty = ?, updated_at = ?
		WHERE id = ?`,
		decimalPtrString(r.ClosingReading), r.TestQty.String(),
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reading: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Resource: "reading", ID: r.ID}
	}
	return nil
}

func (s *Store) LastClosingReading(ctx context.Context, nozzleID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastClosingReading(ctx, s.db, nozzleID)
}

func lastClosingReading(ctx context.Context, db dbtx, nozzleID string) (decimal.Decimal, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT r.closing_reading
		FROM nozzle_readings r
		JOIN shifts s ON s.id = r.shift_id
		WHERE r.nozzle_id = ? AND r.closing_reading IS NOT NULL
		ORDER BY s.started_at DESC, r.updated_at DESC
		LIMIT 1`, nozzleID).Scan(&value)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to look up last closing reading: %w", err)
	}
	return parseDecimal(value)
}

func readingsForShift(ctx context.Context, db dbtx, shiftID string) ([]*engine.NozzleReading, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shift_id, nozzle_id, fuel_id, fuel_name, price_at_open,
		       opening_reading, closing_reading, test_qty, created_at, updated_at
		FROM nozzle_readings
		WHERE shift_id = ?
		ORDER BY nozzle_id ASC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []*engine.NozzleReading
	for rows.Next() {
		var (
			r                       engine.NozzleReading
			price, opening, testQty string
			closing                 sql.NullString
			createdAt, updatedAt    string
		)
		if err := rows.Scan(&r.ID, &r.ShiftID, &r.NozzleID, &r.FuelID, &r.FuelName,
			&price, &opening, &closing, &testQty, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if r.PriceAtOpen, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if r.OpeningReading, err = parseDecimal(opening); err != nil {
			return nil, err
		}
		if r.TestQty, err = parseDecimal(testQty); err != nil {
			return nil, err
		}
		if closing.Valid {
			d, err := parseDecimal(closing.String)
			if err != nil {
				return nil, err
			}
			r.ClosingReading = &d
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)

		readings = append(readings, &r)
	}
	return readings, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p *engine.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func insertPayment(ctx context.Context, db dbtx, p *engine.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, shift_id, payment_method_id, amount, quantity,
			created_by_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ShiftID, p.PaymentMethodID, p.Amount.String(), p.Quantity.String(),
		p.CreatedByUserID, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *engine.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePayment(ctx, s.db, p)
}

func updatePayment(ctx context.Context, db dbtx, p *engine.Payment) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payments SET payment_method_id = ?, amount = ?, quantity = ?, updated_at = ?
		WHERE id = ?`,
		p.PaymentMethodID, p.Amount.String(), p.Quantity.String(),
		formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Resource: "payment", ID: p.ID}
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePayment(ctx, s.db, id)
}

func deletePayment(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Resource: "payment", ID: id}
	}
	return nil
}

func paymentsForShift(ctx context.Context, db dbtx, shiftID string) ([]*engine.Payment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shift_id, payment_method_id, amount, quantity,
		       created_by_user_id, created_at, updated_at
		FROM payments
		WHERE shift_id = ?
		ORDER BY created_at ASC, id ASC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*engine.Payment
	for rows.Next() {
		var (
			p                    engine.Payment
			amount, quantity     string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.ShiftID, &p.PaymentMethodID, &amount, &quantity,
			&p.CreatedByUserID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if p.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// =============================================================================
// EDIT REQUESTS
// =============================================================================

func (s *Store) InsertEditRequest(ctx context.Context, r *engine.EditRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEditRequest(ctx, s.db, r)
}

func insertEditRequest(ctx context.Context, db dbtx, r *engine.EditRequest) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO edit_requests (id, shift_id, requested_by_user_id, reason,
			status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ShiftID, r.RequestedByUserID, r.Reason, r.Status,
		formatTime(r.CreatedAt), formatTimePtr(r.ResolvedAt),
	)
	if err != nil {
		if isConstraintError(err, "idx_edit_requests_one_pending") {
			return engine.ErrDuplicatePendingEdit
		}
		return fmt.Errorf("failed to insert edit request: %w", err)
	}
	return nil
}

func (s *Store) GetEditRequest(ctx context.Context, id string) (*engine.EditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEditRequest(ctx, s.db, id)
}

func getEditRequest(ctx context.Context, db dbtx, id string) (*engine.EditRequest, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, shift_id, requested_by_user_id, reason, status, created_at, resolved_at
		FROM edit_requests WHERE id = ?`, id)

	r, err := scanEditRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) UpdateEditRequest(ctx context.Context, r *engine.EditRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEditRequest(ctx, s.db, r)
}

func updateEditRequest(ctx context.Context, db dbtx, r *engine.EditRequest) error {
	res, err := db.ExecContext(ctx, `
		UPDATE edit_requests SET status = ?, resolved_at = ? WHERE id = ?`,
		r.Status, formatTimePtr(r.ResolvedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update edit request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Resource: "edit_request", ID: r.ID}
	}
	return nil
}

func (s *Store) ListEditRequests(ctx context.Context, shiftID string) ([]*engine.EditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEditRequests(ctx, s.db, shiftID)
}

func listEditRequests(ctx context.Context, db dbtx, shiftID string) ([]*engine.EditRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shift_id, requested_by_user_id, reason, status, created_at, resolved_at
		FROM edit_requests
		WHERE shift_id = ?
		ORDER BY created_at DESC, id DESC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edit requests: %w", err)
	}
	defer rows.Close()

	var requests []*engine.EditRequest
	for rows.Next() {
		r, err := scanEditRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanEditRequest(row rowScanner) (*engine.EditRequest, error) {
	var (
		r          engine.EditRequest
		createdAt  string
		resolvedAt sql.NullString
	)
	err := row.Scan(&r.ID, &r.ShiftID, &r.RequestedByUserID, &r.Reason,
		&r.Status, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.ResolvedAt = parseTimePtr(resolvedAt)
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func marshalSummary(sum *engine.Summary) (sql.NullString, error) {
	if sum == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode summary: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func isConstraintError(err error, index string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		strings.Contains(msg, indexColumnHint(index))
}

// indexColumnHint maps a partial unique index to the column sqlite names
// in its constraint error. go-sqlite3 reports "UNIQUE constraint failed:
// shifts.attendant_id" rather than the index name.
func indexColumnHint(index string) string {
	switch index {
	case "idx_shifts_one_open":
		return "shifts.attendant_id"
	case "idx_edit_requests_one_pending":
		return "edit_requests.shift_id"
	default:
		return index
	}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// interface compliance
var (
	_ engine.TxStore  = (*Store)(nil)
	_ engine.Store    = (*txStore)(nil)
	_ catalog.Catalog = (*Store)(nil)
	_ catalog.Writer  = (*Store)(nil)
)
