/*
Package catalog defines the station catalog the engine consumes.

PURPOSE:
  The shift engine treats the station's master data - fuels with current
  prices, dispensers and their nozzles, payment methods, users and roles -
  as an external collaborator. This package holds the catalog types, the
  read-only lookup interface the engine depends on, and a JSON fixture
  loader used to seed a station at startup.

READ-ONLY FROM THE ENGINE'S PERSPECTIVE:
  The engine never writes catalog data. It snapshots fuel and price into
  a NozzleReading at shift start, so later catalog edits cannot corrupt
  recorded shifts.

SEE ALSO:
  - engine/shift.go: consumes Catalog at shift start and payment recording
  - store/sqlite: the durable implementation of Catalog
*/
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// Fuel is a sellable product with its current per-liter price.
type Fuel struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Nozzle is one hose on a dispenser, bound to a single fuel.
type Nozzle struct {
	ID          string `json:"id"`
	DispenserID string `json:"dispenser_id"`
	FuelID      string `json:"fuel_id"`
}

// PaymentMethod is a way money is collected (cash, card, credit, ...).
type PaymentMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "cash", "card", "credit"
}

// User is an authenticated identity with a role.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"` // "attendant" or "manager"
}

// NozzleInfo is the resolved snapshot the engine needs at shift start:
// the nozzle's fuel and the fuel's price at this instant.
type NozzleInfo struct {
	NozzleID    string
	DispenserID string
	FuelID      string
	FuelName    string
	Price       decimal.Decimal
}

// =============================================================================
// CATALOG INTERFACE - What the engine consumes
// =============================================================================

// Catalog is the read-only lookup surface. Lookups return nil (not an
// error) when the id is unknown; callers decide whether that is a
// validation failure or a 404.
type Catalog interface {
	// NozzleInfo resolves a nozzle to its fuel and current price.
	NozzleInfo(ctx context.Context, nozzleID string) (*NozzleInfo, error)

	// PaymentMethod returns the payment method with the given id.
	PaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)

	// User returns the user with the given id.
	User(ctx context.Context, id string) (*User, error)
}

// Writer is implemented by stores that can persist catalog records.
// Used by fixture seeding and the demo scenario loader.
type Writer interface {
	SaveFuel(ctx context.Context, f Fuel) error
	SaveNozzle(ctx context.Context, n Nozzle) error
	SavePaymentMethod(ctx context.Context, m PaymentMethod) error
	SaveUser(ctx context.Context, u User) error
}
