package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")

	dir, err := os.MkdirTemp("", "callrecon-store-test")
	if err != nil {
		panic(err)
	}
	InitDB(filepath.Join(dir, "test.db"))

	code := m.Run()
	DB.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func storedCall(source models.CallSource, id, caller, callTime string) *models.CallRecord {
	return &models.CallRecord{
		Source:             source,
		SourceSystemID:     id,
		Category:           models.CategoryInbound,
		CallerID:           caller,
		NormalizedCallerID: "+1" + caller,
		CallTime:           callTime,
		Payout:             decimal.RequireFromString("12.50"),
		Revenue:            decimal.RequireFromString("20.00"),
	}
}

func window(start, end string) models.DateWindow {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return models.DateWindow{Start: s, End: e}
}

func TestUpsertCallsSkipsDuplicates(t *testing.T) {
	store := NewCallStore()
	records := []*models.CallRecord{
		storedCall(models.SourceFeedA, "dup-a1", "7270000001", "2025-11-16T11:28:00"),
		storedCall(models.SourceFeedB, "dup-b1", "7270000001", "2025-11-16T11:30:00"),
	}

	inserted, err := store.UpsertCalls(records)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	// Re-fetching an overlapping window hands the same records back.
	inserted, err = store.UpsertCalls(records)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)

	calls, err := store.CallsForWindow(models.SourceFeedA, models.CategoryInbound, window("2025-11-15", "2025-11-17"))
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "dup-a1", calls[0].SourceSystemID)
	require.Equal(t, "+17270000001", calls[0].NormalizedCallerID)
	require.True(t, calls[0].Payout.Equal(decimal.RequireFromString("12.50")))
	require.False(t, calls[0].ParsedCallTime.IsZero())
}

func TestCallsForWindowUsesDatePrefix(t *testing.T) {
	store := NewCallStore()
	_, err := store.UpsertCalls([]*models.CallRecord{
		storedCall(models.SourceFeedA, "win-in", "7270000002", "2025-10-16T11:28:00"),
		storedCall(models.SourceFeedA, "win-out", "7270000002", "2025-10-14T23:59:00"),
	})
	require.NoError(t, err)

	calls, err := store.CallsForWindow(models.SourceFeedA, models.CategoryInbound, window("2025-10-15", "2025-10-17"))
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "win-in", calls[0].SourceSystemID)
}

func TestPersistMatchFillsOnlyOnce(t *testing.T) {
	store := NewCallStore()
	_, err := store.UpsertCalls([]*models.CallRecord{
		storedCall(models.SourceFeedB, "match-b1", "7270000003", "2025-09-16T11:30:00"),
	})
	require.NoError(t, err)

	calls, err := store.CallsForWindow(models.SourceFeedB, models.CategoryInbound, window("2025-09-15", "2025-09-17"))
	require.NoError(t, err)
	require.Len(t, calls, 1)
	id := calls[0].ID

	payout := decimal.RequireFromString("12.50")
	revenue := decimal.RequireFromString("20.00")
	filled, err := store.PersistMatch(id, "a-first", payout, revenue)
	require.NoError(t, err)
	require.True(t, filled)

	// A second write against an already-linked row must change nothing,
	// and must report that it changed nothing.
	filled, err = store.PersistMatch(id, "a-second", decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.False(t, filled)

	matched, err := store.MatchedCallsForWindow(window("2025-09-15", "2025-09-17"))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "a-first", matched[0].MatchedCounterpartID)
	require.True(t, matched[0].MatchedPayout.Equal(payout))
	require.True(t, matched[0].MatchedRevenue.Equal(revenue))
}

func TestPersistAdjustmentWritesOnce(t *testing.T) {
	store := NewCallStore()
	_, err := store.UpsertCalls([]*models.CallRecord{
		storedCall(models.SourceFeedB, "adj-b1", "7270000004", "2025-08-16T11:30:00"),
	})
	require.NoError(t, err)

	calls, err := store.CallsForWindow(models.SourceFeedB, models.CategoryInbound, window("2025-08-15", "2025-08-17"))
	require.NoError(t, err)
	id := calls[0].ID

	applied, err := store.PersistAdjustment(id, decimal.RequireFromString("-3.25"), "2025-08-16T11:31:00")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = store.PersistAdjustment(id, decimal.RequireFromString("-7.00"), "2025-08-16T11:45:00")
	require.NoError(t, err)
	require.False(t, applied)

	calls, err = store.CallsForWindow(models.SourceFeedB, models.CategoryInbound, window("2025-08-15", "2025-08-17"))
	require.NoError(t, err)
	require.True(t, calls[0].AdjustmentAmount.Valid)
	require.True(t, calls[0].AdjustmentAmount.Decimal.Equal(decimal.RequireFromString("-3.25")))
	require.Equal(t, "2025-08-16T11:31:00", calls[0].AdjustmentTime)
}

func TestPersistUnmatchedAndReadBack(t *testing.T) {
	store := NewCallStore()
	rec := storedCall(models.SourceFeedB, "unm-b1", "7270000005", "2025-07-16T11:30:00")

	require.NoError(t, store.PersistUnmatched("run-unm-1", rec, models.ReasonNoCandidates))

	entries, err := store.RecentUnmatched(50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "run-unm-1", entries[0].RunID)
	require.Equal(t, "unm-b1", entries[0].SourceSystemID)
	require.Equal(t, string(models.ReasonNoCandidates), entries[0].Reason)
}

func TestRunSummaryRoundTrip(t *testing.T) {
	store := NewCallStore()
	summary := &models.RunSummary{
		RunID:          "run-sum-1",
		Category:       models.CategoryInbound,
		WindowStart:    "2025-06-15",
		WindowEnd:      "2025-06-17",
		MatchedCount:   3,
		UnmatchedCount: 1,
		UpdatedCount:   2,
		// The first message contains "; " to prove the error list survives
		// delimiter-looking content.
		Errors:         []string{"feed unavailable: dial tcp; connection refused", "storage write failed: record x"},
		StartedAt:      time.Now().UTC(),
		DurationMillis: 420,
	}

	require.NoError(t, store.InsertRunSummary(summary))

	summaries, err := store.RecentRunSummaries(10)
	require.NoError(t, err)
	require.NotEmpty(t, summaries)
	require.Equal(t, "run-sum-1", summaries[0].RunID)
	require.Equal(t, 3, summaries[0].MatchedCount)
	require.Equal(t, 1, summaries[0].UnmatchedCount)
	require.Equal(t, 2, summaries[0].UpdatedCount)
	require.Equal(t, summary.Errors, summaries[0].Errors)
}
