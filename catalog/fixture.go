/*
fixture.go - JSON station fixtures

PURPOSE:
  Loads a station catalog (fuels, nozzles, payment methods, users) from a
  JSON file so a station can be provisioned without code changes. Used by
  the -catalog flag at startup and by the demo scenario loader.

JSON SCHEMA:
  {
    "fuels": [
      {"id": "petrol-95", "name": "Petrol 95", "price": "102.50"}
    ],
    "nozzles": [
      {"id": "nz-1", "dispenser_id": "d-1", "fuel_id": "petrol-95"}
    ],
    "payment_methods": [
      {"id": "pm-cash", "name": "Cash", "kind": "cash"}
    ],
    "users": [
      {"id": "u-ravi", "name": "Ravi", "role": "attendant"}
    ]
  }

VALIDATION:
  Every nozzle must reference a declared fuel; prices must be >= 0;
  roles must be "attendant" or "manager". A fixture that fails
  validation is rejected whole - partial catalogs never load.

SEE ALSO:
  - cmd/server/main.go: loads the fixture behind the -catalog flag
  - api/scenarios.go: the built-in demo fixture
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Fixture is a full station catalog as loaded from JSON.
type Fixture struct {
	Fuels          []Fuel          `json:"fuels"`
	Nozzles        []Nozzle        `json:"nozzles"`
	PaymentMethods []PaymentMethod `json:"payment_methods"`
	Users          []User          `json:"users"`
}

// LoadFixture reads and validates a station fixture from a JSON file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses and validates a station fixture from JSON bytes.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid fixture JSON: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks referential integrity and field constraints.
func (f *Fixture) Validate() error {
	fuels := make(map[string]bool, len(f.Fuels))
	for _, fuel := range f.Fuels {
		if fuel.ID == "" || fuel.Name == "" {
			return fmt.Errorf("fuel %q: id and name are required", fuel.ID)
		}
		if fuel.Price.IsNegative() {
			return fmt.Errorf("fuel %q: price must be >= 0", fuel.ID)
		}
		if fuels[fuel.ID] {
			return fmt.Errorf("fuel %q: duplicate id", fuel.ID)
		}
		fuels[fuel.ID] = true
	}

	for _, n := range f.Nozzles {
		if n.ID == "" {
			return fmt.Errorf("nozzle: id is required")
		}
		if !fuels[n.FuelID] {
			return fmt.Errorf("nozzle %q: unknown fuel %q", n.ID, n.FuelID)
		}
	}

	for _, m := range f.PaymentMethods {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("payment method %q: id and name are required", m.ID)
		}
	}

	for _, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("user: id is required")
		}
		if u.Role != "attendant" && u.Role != "manager" {
			return fmt.Errorf("user %q: role must be attendant or manager, got %q", u.ID, u.Role)
		}
	}

	return nil
}

// Seed persists the fixture into a catalog writer. Records are upserted,
// so loading the same fixture twice is safe.
func (f *Fixture) Seed(ctx context.Context, w Writer) error {
	for _, fuel := range f.Fuels {
		if err := w.SaveFuel(ctx, fuel); err != nil {
			return fmt.Errorf("failed to seed fuel %q: %w", fuel.ID, err)
		}
	}
	for _, n := range f.Nozzles {
		if err := w.SaveNozzle(ctx, n); err != nil {
			return fmt.Errorf("failed to seed nozzle %q: %w", n.ID, err)
		}
	}
	for _, m := range f.PaymentMethods {
		if err := w.SavePaymentMethod(ctx, m); err != nil {
			return fmt.Errorf("failed to seed payment method %q: %w", m.ID, err)
		}
	}
	for _, u := range f.Users {
		if err := w.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %q: %w", u.ID, err)
		}
	}
	return nil
}
