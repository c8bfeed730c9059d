/*
scenarios.go - Demo station seeder for testing and demonstrations

PURPOSE:
  Populates the catalog with a small but realistic station so the API
  can be exercised without hand-writing a fixture file: two fuels, two
  dispensers with four nozzles, three payment methods, and a pair of
  users (one attendant, one manager).

USAGE VIA API:

	POST /api/scenarios/demo

  Seeding is an upsert over catalog records. It never touches recorded
  shifts, so it is safe to call on a live database, and calling it twice
  is a no-op.

SEE ALSO:
  - catalog/fixture.go: the fixture loader this reuses
  - handlers.go: the rest of the API surface
*/
package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/forecourt/shift-engine/catalog"
)

// DemoFixture is the station the demo scenario seeds. Exposed so tests
// can seed the same station without going through HTTP.
func DemoFixture() *catalog.Fixture {
	return &catalog.Fixture{
		Fuels: []catalog.Fuel{
			{ID: "fuel-petrol-95", Name: "Petrol 95", Price: decimal.RequireFromString("102.50")},
			{ID: "fuel-diesel", Name: "Diesel", Price: decimal.RequireFromString("89.90")},
		},
		Nozzles: []catalog.Nozzle{
			{ID: "nozzle-1", DispenserID: "dispenser-1", FuelID: "fuel-petrol-95"},
			{ID: "nozzle-2", DispenserID: "dispenser-1", FuelID: "fuel-diesel"},
			{ID: "nozzle-3", DispenserID: "dispenser-2", FuelID: "fuel-petrol-95"},
			{ID: "nozzle-4", DispenserID: "dispenser-2", FuelID: "fuel-diesel"},
		},
		PaymentMethods: []catalog.PaymentMethod{
			{ID: "pm-cash", Name: "Cash", Kind: "cash"},
			{ID: "pm-card", Name: "Card terminal", Kind: "card"},
			{ID: "pm-credit", Name: "Fleet credit", Kind: "credit"},
		},
		Users: []catalog.User{
			{ID: "user-asha", Name: "Asha", Role: "attendant"},
			{ID: "user-bo", Name: "Bo", Role: "attendant"},
			{ID: "user-mira", Name: "Mira", Role: "manager"},
		},
	}
}

// LoadDemoScenario handles POST /api/scenarios/demo.
func (h *Handler) LoadDemoScenario(w http.ResponseWriter, r *http.Request) {
	fixture := DemoFixture()
	if err := fixture.Validate(); err != nil {
		writeError(w, http.StatusInternalServerError, "Demo fixture invalid", err)
		return
	}
	if err := fixture.Seed(r.Context(), h.Seeder); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo station", err)
		return
	}

	h.Log.Info().
		Int("fuels", len(fixture.Fuels)).
		Int("nozzles", len(fixture.Nozzles)).
		Int("users", len(fixture.Users)).
		Msg("demo station seeded")

	writeJSON(w, http.StatusOK, map[string]any{
		"fuels":           len(fixture.Fuels),
		"nozzles":         len(fixture.Nozzles),
		"payment_methods": len(fixture.PaymentMethods),
		"users":           len(fixture.Users),
	})
}
