package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/models"
)

var (
	// ErrFeedUnavailable wraps transport-level failures talking to a feed.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrStoreWrite wraps persistence failures; reported per record, never
	// fatal to a run.
	ErrStoreWrite = errors.New("storage write failed")
)

// FeedAClient retrieves affiliate-reporting records (calls and pending rate
// adjustments). Pagination and transport belong to the implementation.
type FeedAClient interface {
	FetchCalls(ctx context.Context, window models.DateWindow, category models.Category) ([]*models.CallRecord, error)
	FetchPendingAdjustments(ctx context.Context, window models.DateWindow) ([]*models.AdjustmentRecord, error)
}

// FeedBClient retrieves call-tracking/billing records.
type FeedBClient interface {
	FetchCalls(ctx context.Context, window models.DateWindow, category models.Category) ([]*models.CallRecord, error)
}

// CallStore is the persistence collaborator the driver reads and writes
// through.
type CallStore interface {
	UpsertCalls(records []*models.CallRecord) (int, error)
	CallsForWindow(source models.CallSource, category models.Category, window models.DateWindow) ([]*models.CallRecord, error)
	MatchedCallsForWindow(window models.DateWindow) ([]*models.CallRecord, error)
	// PersistMatch and PersistAdjustment are fill-only writes; they report
	// whether a row was actually written so a skip on an already-filled row
	// is visible to the caller.
	PersistMatch(callID int64, counterpartSystemID string, payout, revenue decimal.Decimal) (bool, error)
	PersistAdjustment(callID int64, amount decimal.Decimal, adjTime string) (bool, error)
	PersistUnmatched(runID string, rec *models.CallRecord, reason models.UnmatchedReason) error
	InsertRunSummary(summary *models.RunSummary) error
	RecentRunSummaries(limit int) ([]models.RunSummary, error)
	RecentUnmatched(limit int) ([]models.UnmatchedCall, error)
}

// AlertNotifier is told about runs whose error count crossed the configured
// threshold. Implementations may be a no-op.
type AlertNotifier interface {
	NotifyRunErrors(summary *models.RunSummary)
}

// ReconciliationService is the core the scheduler and the HTTP layer drive.
type ReconciliationService interface {
	RunReconciliation(ctx context.Context, window models.DateWindow, category models.Category) (*models.RunSummary, error)
	RecentRuns(limit int) ([]models.RunSummary, error)
	RecentUnmatched(limit int) ([]models.UnmatchedCall, error)
}
