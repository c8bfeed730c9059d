/*
shift_test.go - Shift state machine tests

Tests for:
- Shift start (catalog snapshots, opening-reading continuity, name generation)
- The one-open-shift-per-attendant invariant, including under concurrency
- Completion (closing validation, frozen summary)
- Verify/Archive transitions and role gating
- Query authorization and pagination
*/
package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/shift-engine/catalog"
	"github.com/forecourt/shift-engine/engine"
	"github.com/forecourt/shift-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	asha = engine.Actor{UserID: "user-asha", Role: engine.RoleAttendant}
	bo   = engine.Actor{UserID: "user-bo", Role: engine.RoleAttendant}
	mira = engine.Actor{UserID: "user-mira", Role: engine.RoleManager}
)

func testFixture() *catalog.Fixture {
	return &catalog.Fixture{
		Fuels: []catalog.Fuel{
			{ID: "fuel-petrol", Name: "Petrol 95", Price: dec("100")},
			{ID: "fuel-diesel", Name: "Diesel", Price: dec("90")},
		},
		Nozzles: []catalog.Nozzle{
			{ID: "nozzle-1", DispenserID: "dispenser-1", FuelID: "fuel-petrol"},
			{ID: "nozzle-2", DispenserID: "dispenser-1", FuelID: "fuel-diesel"},
			{ID: "nozzle-3", DispenserID: "dispenser-2", FuelID: "fuel-petrol"},
		},
		PaymentMethods: []catalog.PaymentMethod{
			{ID: "pm-cash", Name: "Cash", Kind: "cash"},
			{ID: "pm-card", Name: "Card", Kind: "card"},
		},
		Users: []catalog.User{
			{ID: "user-asha", Name: "Asha", Role: "attendant"},
			{ID: "user-bo", Name: "Bo", Role: "attendant"},
			{ID: "user-mira", Name: "Mira", Role: "manager"},
		},
	}
}

func newTestService(t *testing.T) (*engine.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, testFixture().Seed(context.Background(), store))

	svc := engine.NewService(store, store)
	svc.Now = func() time.Time {
		return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	}
	return svc, store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// closeReadings sets a closing value on every reading of an open shift.
func closeReadings(t *testing.T, svc *engine.Service, actor engine.Actor, shift *engine.Shift, closings map[string]string) {
	t.Helper()
	for _, r := range shift.Readings {
		closing := dec(closings[r.NozzleID])
		_, err := svc.UpdateReading(context.Background(), actor, shift.ID, r.ID, engine.ReadingPatch{
			ClosingReading: &closing,
		})
		require.NoError(t, err)
	}
}

// =============================================================================
// START
// =============================================================================

func TestStart_SnapshotsCatalog(t *testing.T) {
	// GIVEN: A seeded catalog
	// WHEN: Asha starts a shift on two nozzles
	// THEN: Each reading carries the nozzle's fuel and price snapshot and
	//       a zero opening (no prior shift on these nozzles)

	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1", "nozzle-2"})
	require.NoError(t, err)

	assert.Equal(t, engine.ShiftOpen, shift.Status)
	assert.Equal(t, "user-asha", shift.AttendantID)
	require.Len(t, shift.Readings, 2)

	byNozzle := map[string]*engine.NozzleReading{}
	for _, r := range shift.Readings {
		byNozzle[r.NozzleID] = r
	}
	petrol := byNozzle["nozzle-1"]
	require.NotNil(t, petrol)
	assert.Equal(t, "fuel-petrol", petrol.FuelID)
	assert.Equal(t, "Petrol 95", petrol.FuelName)
	assert.True(t, petrol.PriceAtOpen.Equal(dec("100")))
	assert.True(t, petrol.OpeningReading.IsZero())
	assert.Nil(t, petrol.ClosingReading)
}

func TestStart_GeneratedName(t *testing.T) {
	// The test clock is 09:30, which falls in the morning slot.
	svc, _ := newTestService(t)

	shift, err := svc.Start(context.Background(), asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14 Morning", shift.Name)
}

func TestGenerateShiftName_Slots(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		hour int
		want string
	}{
		{5, "2026-03-14 Morning"},
		{11, "2026-03-14 Morning"},
		{12, "2026-03-14 Afternoon"},
		{16, "2026-03-14 Afternoon"},
		{17, "2026-03-14 Evening"},
		{21, "2026-03-14 Evening"},
		{22, "2026-03-14 Night"},
		{4, "2026-03-14 Night"},
	}
	for _, tc := range cases {
		svc.Now = func() time.Time {
			return time.Date(2026, time.March, 14, tc.hour, 0, 0, 0, time.UTC)
		}
		assert.Equal(t, tc.want, svc.GenerateShiftName(), "hour %d", tc.hour)
	}
}

func TestStart_ValidationFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, asha, "", nil)
	assert.True(t, engine.IsValidation(err), "empty nozzle set should be rejected")

	_, err = svc.Start(ctx, asha, "", []string{"nozzle-1", "nozzle-1"})
	assert.True(t, engine.IsValidation(err), "duplicate nozzle should be rejected")

	_, err = svc.Start(ctx, asha, "", []string{"nozzle-99"})
	assert.True(t, engine.IsNotFound(err), "unknown nozzle should be not-found")
}

func TestStart_SecondOpenShiftRejected(t *testing.T) {
	// GIVEN: Asha already has an open shift
	// WHEN: She starts another
	// THEN: Conflict; Bo is unaffected

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)

	_, err = svc.Start(ctx, asha, "", []string{"nozzle-2"})
	assert.True(t, engine.IsConflict(err))

	_, err = svc.Start(ctx, bo, "", []string{"nozzle-2"})
	assert.NoError(t, err, "a different attendant may open in parallel")
}

func TestStart_ConcurrentSameAttendant(t *testing.T) {
	// GIVEN: No open shift for Asha
	// WHEN: Several goroutines race to start one
	// THEN: Exactly one succeeds, the rest get a conflict

	svc, _ := newTestService(t)
	ctx := context.Background()

	const racers = 8
	results := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Start(ctx, asha, "", []string{"nozzle-1"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, engine.IsConflict(err), "losers should see a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestStart_OpeningContinuesFromLastClosing(t *testing.T) {
	// GIVEN: Asha ran a shift on nozzle-1 and closed it at 1050
	// WHEN: Bo starts a new shift on nozzle-1
	// THEN: Bo's opening reading is 1050

	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	closeReadings(t, svc, asha, first, map[string]string{"nozzle-1": "1050"})
	_, err = svc.Complete(ctx, asha, first.ID, "")
	require.NoError(t, err)

	second, err := svc.Start(ctx, bo, "", []string{"nozzle-1"})
	require.NoError(t, err)
	require.Len(t, second.Readings, 1)
	assert.True(t, second.Readings[0].OpeningReading.Equal(dec("1050")),
		"opening should continue from the previous closing, got %s", second.Readings[0].OpeningReading)
}

// =============================================================================
// COMPLETE
// =============================================================================

func TestComplete_RequiresAllClosings(t *testing.T) {
	// GIVEN: A shift with one of two readings still open
	// WHEN: Completing
	// THEN: IncompleteReadingsError naming the missing nozzle

	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1", "nozzle-2"})
	require.NoError(t, err)

	closing := dec("1050")
	var firstReading *engine.NozzleReading
	for _, r := range shift.Readings {
		if r.NozzleID == "nozzle-1" {
			firstReading = r
		}
	}
	require.NotNil(t, firstReading)
	_, err = svc.UpdateReading(ctx, asha, shift.ID, firstReading.ID, engine.ReadingPatch{ClosingReading: &closing})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, asha, shift.ID, "")
	require.Error(t, err)
	assert.True(t, engine.IsIncompleteReadings(err))

	var incomplete *engine.IncompleteReadingsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"nozzle-2"}, incomplete.MissingNozzleIDs)
}

func TestComplete_FreezesSummaryAndTransitions(t *testing.T) {
	// GIVEN: An open shift with closed readings and a payment
	// WHEN: Completing
	// THEN: Status is PENDING_REVIEW, CompletedAt set, summary frozen

	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "50"})

	_, err = svc.AddOrUpdatePayment(ctx, asha, shift.ID, engine.PaymentInput{
		PaymentMethodID: "pm-cash", Amount: dec("4900"),
	})
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, asha, shift.ID, "short 100")
	require.NoError(t, err)

	assert.Equal(t, engine.ShiftPendingReview, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, "short 100", completed.Notes)
	require.NotNil(t, completed.Summary)
	// 50 liters at 100 = 5000 expected, 4900 collected
	assert.True(t, completed.Summary.TotalExpected.Equal(dec("5000")))
	assert.True(t, completed.Summary.TotalCollected.Equal(dec("4900")))
	assert.True(t, completed.Summary.Variance.Equal(dec("-100")))
}

func TestComplete_StatusAndRoleGates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "10"})

	// Another attendant may not complete someone else's shift.
	_, err = svc.Complete(ctx, bo, shift.ID, "")
	assert.True(t, engine.IsUnauthorized(err))

	// A manager may.
	_, err = svc.Complete(ctx, mira, shift.ID, "")
	require.NoError(t, err)

	// Completing twice is a status conflict.
	_, err = svc.Complete(ctx, asha, shift.ID, "")
	assert.True(t, engine.IsConflict(err))
}

// =============================================================================
// VERIFY / ARCHIVE
// =============================================================================

func completedShift(t *testing.T, svc *engine.Service) *engine.Shift {
	t.Helper()
	ctx := context.Background()
	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "100"})
	completed, err := svc.Complete(ctx, asha, shift.ID, "")
	require.NoError(t, err)
	return completed
}

func TestVerifyArchive_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shift := completedShift(t, svc)

	verified, err := svc.Verify(ctx, mira, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ShiftVerified, verified.Status)
	assert.NotNil(t, verified.VerifiedAt)

	archived, err := svc.Archive(ctx, mira, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ShiftArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)
}

func TestVerifyArchive_ManagerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shift := completedShift(t, svc)

	_, err := svc.Verify(ctx, asha, shift.ID)
	assert.True(t, engine.IsUnauthorized(err), "the owning attendant may not verify their own shift")

	_, err = svc.Archive(ctx, asha, shift.ID)
	assert.True(t, engine.IsUnauthorized(err))
}

func TestVerifyArchive_StatusGates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)

	// Cannot verify an OPEN shift, cannot archive before verification.
	_, err = svc.Verify(ctx, mira, shift.ID)
	assert.True(t, engine.IsConflict(err))
	_, err = svc.Archive(ctx, mira, shift.ID)
	assert.True(t, engine.IsConflict(err))

	// Archive is terminal.
	closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "5"})
	_, err = svc.Complete(ctx, asha, shift.ID, "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, mira, shift.ID)
	require.NoError(t, err)
	_, err = svc.Archive(ctx, mira, shift.ID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, mira, shift.ID)
	assert.True(t, engine.IsConflict(err))
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetActive_Authorization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	started, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)

	// Self lookup.
	active, err := svc.GetActive(ctx, asha, "")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.ID, active.ID)

	// Attendants may not look at each other.
	_, err = svc.GetActive(ctx, bo, "user-asha")
	assert.True(t, engine.IsUnauthorized(err))

	// Managers may.
	active, err = svc.GetActive(ctx, mira, "user-asha")
	require.NoError(t, err)
	require.NotNil(t, active)

	// No open shift yields nil, not an error.
	active, err = svc.GetActive(ctx, bo, "")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestGet_OwnerOrManager(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, bo, shift.ID)
	assert.True(t, engine.IsUnauthorized(err))

	got, err := svc.Get(ctx, mira, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, got.ID)

	_, err = svc.Get(ctx, asha, "no-such-shift")
	assert.True(t, engine.IsNotFound(err))
}

func TestList_ScopingAndPagination(t *testing.T) {
	// GIVEN: Shifts from two attendants
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
		require.NoError(t, err)
		closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "10"})
		_, err = svc.Complete(ctx, asha, shift.ID, "")
		require.NoError(t, err)
	}
	_, err := svc.Start(ctx, bo, "", []string{"nozzle-2"})
	require.NoError(t, err)

	// Attendants only ever see their own shifts.
	shifts, err := svc.List(ctx, asha, engine.ShiftFilter{})
	require.NoError(t, err)
	require.Len(t, shifts, 3)
	for _, s := range shifts {
		assert.Equal(t, "user-asha", s.AttendantID)
	}

	// Asking for someone else's is a hard error, not a silent filter.
	_, err = svc.List(ctx, asha, engine.ShiftFilter{AttendantID: "user-bo"})
	assert.True(t, engine.IsUnauthorized(err))

	// Managers see everything; status filter applies.
	open := engine.ShiftOpen
	shifts, err = svc.List(ctx, mira, engine.ShiftFilter{Status: &open})
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, "user-bo", shifts[0].AttendantID)

	// Pagination.
	shifts, err = svc.List(ctx, mira, engine.ShiftFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, shifts, 2)

	shifts, err = svc.List(ctx, mira, engine.ShiftFilter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, shifts, 1)

	_, err = svc.List(ctx, mira, engine.ShiftFilter{Offset: -1})
	assert.True(t, engine.IsValidation(err))
}

func TestGetSummary_LiveWhileMutableFrozenAfterVerify(t *testing.T) {
	// GIVEN: A completed shift
	// WHEN: A correction lands while still PENDING_REVIEW
	// THEN: The summary preview tracks it; after verification the frozen
	//       summary reflects the corrected ledger

	svc, _ := newTestService(t)
	ctx := context.Background()

	shift, err := svc.Start(ctx, asha, "", []string{"nozzle-1"})
	require.NoError(t, err)
	closeReadings(t, svc, asha, shift, map[string]string{"nozzle-1": "50"})
	completed, err := svc.Complete(ctx, asha, shift.ID, "")
	require.NoError(t, err)
	require.True(t, completed.Summary.TotalExpected.Equal(dec("5000")))

	// Revise the closing while PENDING_REVIEW (still mutable).
	closing := dec("60")
	_, err = svc.UpdateReading(ctx, asha, shift.ID, completed.Readings[0].ID, engine.ReadingPatch{ClosingReading: &closing})
	require.NoError(t, err)

	preview, err := svc.GetSummary(ctx, asha, shift.ID)
	require.NoError(t, err)
	assert.True(t, preview.TotalExpected.Equal(dec("6000")), "preview should track the live ledger")

	verified, err := svc.Verify(ctx, mira, shift.ID)
	require.NoError(t, err)
	assert.True(t, verified.Summary.TotalExpected.Equal(dec("6000")), "verification certifies the corrected ledger")

	frozen, err := svc.GetSummary(ctx, asha, shift.ID)
	require.NoError(t, err)
	assert.True(t, frozen.TotalExpected.Equal(dec("6000")))
}
