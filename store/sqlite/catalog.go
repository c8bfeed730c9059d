/*
catalog.go - Station catalog persistence

PURPOSE:
  Implements catalog.Catalog (lookups the engine consumes) and
  catalog.Writer (upserts used by fixture seeding and the demo loader)
  on the same SQLite store. NozzleInfo resolves a nozzle to its fuel and
  the fuel's current price in one join - the instant snapshot the engine
  copies into a NozzleReading at shift start.

SEE ALSO:
  - catalog/catalog.go: interface definitions
  - catalog/fixture.go: the JSON loader feeding the Writer side
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forecourt/shift-engine/catalog"
)

// =============================================================================
// LOOKUPS (catalog.Catalog)
// =============================================================================

// NozzleInfo resolves a nozzle to its fuel and current price.
// Returns nil when the nozzle is unknown.
func (s *Store) NozzleInfo(ctx context.Context, nozzleID string) (*catalog.NozzleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		info  catalog.NozzleInfo
		price string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.dispenser_id, f.id, f.name, f.price
		FROM nozzles n
		JOIN fuels f ON f.id = n.fuel_id
		WHERE n.id = ?`, nozzleID).
		Scan(&info.NozzleID, &info.DispenserID, &info.FuelID, &info.FuelName, &price)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve nozzle: %w", err)
	}

	if info.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	return &info, nil
}

// PaymentMethod returns the payment method with the given id, or nil.
func (s *Store) PaymentMethod(ctx context.Context, id string) (*catalog.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m catalog.PaymentMethod
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, kind FROM payment_methods WHERE id = ?", id).
		Scan(&m.ID, &m.Name, &m.Kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return &m, nil
}

// User returns the user with the given id, or nil.
func (s *Store) User(ctx context.Context, id string) (*catalog.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u catalog.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListNozzles returns the whole nozzle catalog for the station,
// resolved to fuel and price (used by the API's catalog endpoint).
func (s *Store) ListNozzles(ctx context.Context) ([]catalog.NozzleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.dispenser_id, f.id, f.name, f.price
		FROM nozzles n
		JOIN fuels f ON f.id = n.fuel_id
		ORDER BY n.dispenser_id, n.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nozzles: %w", err)
	}
	defer rows.Close()

	var infos []catalog.NozzleInfo
	for rows.Next() {
		var (
			info  catalog.NozzleInfo
			price string
		)
		if err := rows.Scan(&info.NozzleID, &info.DispenserID, &info.FuelID, &info.FuelName, &price); err != nil {
			return nil, err
		}
		if info.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ListPaymentMethods returns all payment methods.
func (s *Store) ListPaymentMethods(ctx context.Context) ([]catalog.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, kind FROM payment_methods ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []catalog.PaymentMethod
	for rows.Next() {
		var m catalog.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Kind); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// =============================================================================
// UPSERTS (catalog.Writer)
// =============================================================================

// SaveFuel upserts a fuel and its current price.
func (s *Store) SaveFuel(ctx context.Context, f catalog.Fuel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fuels (id, name, price) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price`,
		f.ID, f.Name, f.Price.String(),
	)
	return err
}

// SaveNozzle upserts a nozzle.
func (s *Store) SaveNozzle(ctx context.Context, n catalog.Nozzle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nozzles (id, dispenser_id, fuel_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dispenser_id = excluded.dispenser_id,
			fuel_id = excluded.fuel_id`,
		n.ID, n.DispenserID, n.FuelID,
	)
	return err
}

// SavePaymentMethod upserts a payment method.
func (s *Store) SavePaymentMethod(ctx context.Context, m catalog.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_methods (id, name, kind) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind`,
		m.ID, m.Name, m.Kind,
	)
	return err
}

// SaveUser upserts a user.
func (s *Store) SaveUser(ctx context.Context, u catalog.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role`,
		u.ID, u.Name, u.Role,
	)
	return err
}
