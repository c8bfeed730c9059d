/*
reconcile.go - The reconciliation calculator

PURPOSE:
  Pure computation: given a shift's readings and payments, produce the
  variance summary comparing expected fuel-sale revenue against collected
  money. No store access, no clock beyond the caller-supplied timestamp,
  no mutation of its inputs - calling it twice on the same data yields
  identical output.

CALCULATION:
  per-fuel expected   = sum over nozzles of dispensedVolume x priceAtOpen
  total expected      = sum of per-fuel expected
  total collected     = sum of payment amounts
  variance            = collected - expected   (negative = shortage)

TWO CALL SITES:
  - Service.GetSummary: live preview while the shift is mutable, for
    attendant self-checking
  - Service.Complete: the authoritative run whose result is frozen onto
    the shift record

SEE ALSO:
  - types.go: Summary, FuelBreakdownLine
  - shift.go: Complete and GetSummary
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Reconcile combines a shift's readings and payments into a Summary.
// Nozzles without a closing reading contribute zero volume; the fuel
// breakdown is ordered by fuel name for stable output.
func Reconcile(readings []*NozzleReading, payments []*Payment, at time.Time) *Summary {
	type fuelAgg struct {
		name     string
		quantity decimal.Decimal
		amount   decimal.Decimal
	}

	byFuel := make(map[string]*fuelAgg)
	totalExpected := decimal.Zero

	for _, r := range readings {
		agg, ok := byFuel[r.FuelID]
		if !ok {
			agg = &fuelAgg{name: r.FuelName, quantity: decimal.Zero, amount: decimal.Zero}
			byFuel[r.FuelID] = agg
		}
		volume := r.DispensedVolume()
		revenue := r.ExpectedRevenue()
		agg.quantity = agg.quantity.Add(volume)
		agg.amount = agg.amount.Add(revenue)
		totalExpected = totalExpected.Add(revenue)
	}

	totalCollected := decimal.Zero
	for _, p := range payments {
		totalCollected = totalCollected.Add(p.Amount)
	}

	breakdown := make([]FuelBreakdownLine, 0, len(byFuel))
	for fuelID, agg := range byFuel {
		breakdown = append(breakdown, FuelBreakdownLine{
			FuelID:           fuelID,
			FuelName:         agg.name,
			QuantityInLiters: agg.quantity,
			Amount:           agg.amount,
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].FuelName != breakdown[j].FuelName {
			return breakdown[i].FuelName < breakdown[j].FuelName
		}
		return breakdown[i].FuelID < breakdown[j].FuelID
	})

	return &Summary{
		FuelBreakdown:  breakdown,
		TotalExpected:  totalExpected,
		TotalCollected: totalCollected,
		Variance:       totalCollected.Sub(totalExpected),
		GeneratedAt:    at,
	}
}
