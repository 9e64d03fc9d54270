package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/matching"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

const (
	ckLatestRunSummary = "agg_latest_run_summary_%s"
	ckRecentRuns       = "agg_recent_runs"
	ckRecentUnmatched  = "agg_recent_unmatched"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type reconciliationServiceImpl struct {
	feedA FeedAClient
	feedB FeedBClient
	store CallStore
	alert AlertNotifier

	callMatcher *matching.CallMatcher
	adjMatcher  *matching.AdjustmentMatcher

	countryCallingCode  string
	alertErrorThreshold int
	summaryCache        *cache.Cache

	// runMu serializes runs. The scheduler and the manual HTTP trigger share
	// this service; two overlapping runs could each load the same candidate
	// as unlinked and link it to two different records.
	runMu sync.Mutex
}

func NewReconciliationService(
	feedA FeedAClient,
	feedB FeedBClient,
	store CallStore,
	alert AlertNotifier,
	callMatcher *matching.CallMatcher,
	adjMatcher *matching.AdjustmentMatcher,
	countryCallingCode string,
	alertErrorThreshold int,
	summaryCache *cache.Cache,
) ReconciliationService {
	return &reconciliationServiceImpl{
		feedA:               feedA,
		feedB:               feedB,
		store:               store,
		alert:               alert,
		callMatcher:         callMatcher,
		adjMatcher:          adjMatcher,
		countryCallingCode:  countryCallingCode,
		alertErrorThreshold: alertErrorThreshold,
		summaryCache:        summaryCache,
	}
}

// RunReconciliation executes one full reconciliation pass for the window and
// category: fetch both feeds, match Feed-B calls against Feed-A candidates,
// then fold pending adjustments onto matched calls. The run is safe to repeat
// over the same window; already-established links and adjustments are never
// touched again. Per-record failures are collected into the summary's error
// list and never abort the run.
func (s *reconciliationServiceImpl) RunReconciliation(ctx context.Context, window models.DateWindow, category models.Category) (*models.RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	summary := &models.RunSummary{
		RunID:       uuid.NewString(),
		Category:    category,
		WindowStart: window.Start.Format("2006-01-02"),
		WindowEnd:   window.End.Format("2006-01-02"),
		StartedAt:   start,
	}
	logger.L.Info("RunReconciliation START",
		"runID", summary.RunID, "category", category,
		"windowStart", summary.WindowStart, "windowEnd", summary.WindowEnd)

	// Feed-A candidates are fetched one day wider on both sides so calls
	// logged just across a window boundary can still match.
	expanded := models.DateWindow{
		Start: window.Start.AddDate(0, 0, -1),
		End:   window.End.AddDate(0, 0, 1),
	}

	s.ingestFeeds(ctx, window, expanded, category, summary)

	adjustments, err := s.feedA.FetchPendingAdjustments(ctx, window)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: fetching adjustments: %v", ErrFeedUnavailable, err))
	}

	s.matchCalls(window, expanded, category, summary)
	s.applyAdjustments(window, adjustments, summary)

	summary.DurationMillis = time.Since(start).Milliseconds()
	if err := s.store.InsertRunSummary(summary); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: run summary: %v", ErrStoreWrite, err))
	}

	s.summaryCache.Set(fmt.Sprintf(ckLatestRunSummary, category), summary, cache.NoExpiration)
	s.summaryCache.Delete(ckRecentRuns)
	s.summaryCache.Delete(ckRecentUnmatched)

	if s.alert != nil && len(summary.Errors) >= s.alertErrorThreshold {
		s.alert.NotifyRunErrors(summary)
	}

	logger.L.Info("RunReconciliation END",
		"runID", summary.RunID,
		"matched", summary.MatchedCount,
		"unmatched", summary.UnmatchedCount,
		"updated", summary.UpdatedCount,
		"errors", len(summary.Errors),
		"duration", time.Since(start))
	return summary, nil
}

// ingestFeeds pulls both feeds for the run and upserts every observed record.
// A feed being down is reported but does not stop the run: previously stored
// records can still be matched.
func (s *reconciliationServiceImpl) ingestFeeds(ctx context.Context, window, expanded models.DateWindow, category models.Category, summary *models.RunSummary) {
	aCalls, err := s.feedA.FetchCalls(ctx, expanded, category)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: fetching feed A calls: %v", ErrFeedUnavailable, err))
	}
	bCalls, err := s.feedB.FetchCalls(ctx, window, category)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: fetching feed B calls: %v", ErrFeedUnavailable, err))
	}

	// Records whose feed label resolved to no known category would be stored
	// under a label no window query selects; report them instead of storing
	// them invisibly.
	aCalls = s.siftInvalidCategories(aCalls, summary)
	bCalls = s.siftInvalidCategories(bCalls, summary)

	// Normalize before persisting so stored rows can be grouped and compared
	// without re-deriving the canonical caller id on every load.
	s.normalizeCallers(aCalls)
	s.normalizeCallers(bCalls)

	if n, err := s.store.UpsertCalls(aCalls); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: upserting feed A calls: %v", ErrStoreWrite, err))
	} else if n > 0 {
		logger.L.Info("Stored new feed A calls", "count", n, "category", category)
	}
	if n, err := s.store.UpsertCalls(bCalls); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%v: upserting feed B calls: %v", ErrStoreWrite, err))
	} else if n > 0 {
		logger.L.Info("Stored new feed B calls", "count", n, "category", category)
	}
}

// siftInvalidCategories splits off records with an unresolvable category,
// recording each as unmatched with its reason, and returns the rest.
func (s *reconciliationServiceImpl) siftInvalidCategories(records []*models.CallRecord, summary *models.RunSummary) []*models.CallRecord {
	kept := records[:0]
	for _, rec := range records {
		if _, ok := models.ResolveCategory(string(rec.Category)); ok {
			kept = append(kept, rec)
			continue
		}
		summary.UnmatchedCount++
		if err := s.store.PersistUnmatched(summary.RunID, rec, models.ReasonInvalidCategory); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v: unmatched record %s: %v", ErrStoreWrite, rec.SourceSystemID, err))
		}
	}
	return kept
}

func (s *reconciliationServiceImpl) normalizeCallers(records []*models.CallRecord) {
	for _, rec := range records {
		if rec.NormalizedCallerID == "" {
			rec.NormalizedCallerID = utils.NormalizeCallerID(rec.CallerID, s.countryCallingCode)
		}
	}
}

// matchCalls builds the run-scoped candidate index and walks the incoming
// Feed-B records in ascending (timestamp, source id) order. Order determines
// which record wins a contested candidate, so it must be deterministic.
func (s *reconciliationServiceImpl) matchCalls(window, expanded models.DateWindow, category models.Category, summary *models.RunSummary) {
	candidates, err := s.store.CallsForWindow(models.SourceFeedA, category, expanded)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("loading feed A candidates: %v", err))
		return
	}
	incoming, err := s.store.CallsForWindow(models.SourceFeedB, category, window)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("loading feed B records: %v", err))
		return
	}

	idx := matching.BuildCandidateIndex(candidates, s.countryCallingCode)
	if idx.UnindexableCount() > 0 {
		logger.L.Warn("Candidate index skipped unnormalizable records", "count", idx.UnindexableCount())
	}

	sort.SliceStable(incoming, func(i, j int) bool {
		if incoming[i].CallTime != incoming[j].CallTime {
			return incoming[i].CallTime < incoming[j].CallTime
		}
		return incoming[i].SourceSystemID < incoming[j].SourceSystemID
	})

	consumed := matching.ConsumedSet{}
	for _, b := range incoming {
		if b.Linked() {
			// Linked by a prior run over an overlapping window; counted,
			// never re-matched.
			summary.MatchedCount++
			continue
		}

		decision := s.callMatcher.Match(b, idx, consumed)
		if !decision.Matched {
			summary.UnmatchedCount++
			if err := s.store.PersistUnmatched(summary.RunID, b, decision.Reason); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%v: unmatched record %s: %v", ErrStoreWrite, b.SourceSystemID, err))
			}
			continue
		}

		a := decision.Candidate
		// The candidate side is written first. If its fill reports no change
		// the row gained a link after this run loaded it, and the incoming
		// record must not be linked to an already-taken candidate.
		filled, err := s.store.PersistMatch(a.ID, b.SourceSystemID, b.Payout, b.Revenue)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v: match for %s: %v", ErrStoreWrite, a.SourceSystemID, err))
			continue
		}
		if !filled {
			summary.UnmatchedCount++
			if err := s.store.PersistUnmatched(summary.RunID, b, models.ReasonAllCandidatesConsumed); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%v: unmatched record %s: %v", ErrStoreWrite, b.SourceSystemID, err))
			}
			continue
		}
		// Each side records the counterpart's amounts, so payout/revenue
		// discrepancies stay visible to reporting.
		if _, err := s.store.PersistMatch(b.ID, a.SourceSystemID, a.Payout, a.Revenue); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v: match for %s: %v", ErrStoreWrite, b.SourceSystemID, err))
		}
		summary.MatchedCount++
		logger.L.Debug("Matched call",
			"feedB", b.SourceSystemID, "feedA", a.SourceSystemID,
			"score", decision.Score, "timeDiffMinutes", decision.TimeDiffMinutes)
	}
}

// applyAdjustments runs the second pass: pending Feed-A rate corrections
// against the already-updated store.
func (s *reconciliationServiceImpl) applyAdjustments(window models.DateWindow, adjustments []*models.AdjustmentRecord, summary *models.RunSummary) {
	if len(adjustments) == 0 {
		return
	}

	matchedCalls, err := s.store.MatchedCallsForWindow(window)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("loading matched calls for adjustments: %v", err))
		return
	}

	sort.SliceStable(adjustments, func(i, j int) bool {
		if adjustments[i].Timestamp != adjustments[j].Timestamp {
			return adjustments[i].Timestamp < adjustments[j].Timestamp
		}
		return adjustments[i].CallerID < adjustments[j].CallerID
	})

	consumed := matching.ConsumedSet{}
	for _, adj := range adjustments {
		decision := s.adjMatcher.Match(adj, matchedCalls, consumed)
		if !decision.Matched {
			logger.L.Debug("Adjustment not applied",
				"callerID", adj.CallerID, "timestamp", adj.Timestamp, "reason", decision.Reason)
			continue
		}

		call := decision.Candidate
		applied, err := s.store.PersistAdjustment(call.ID, adj.Amount, adj.Timestamp)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v: adjustment for call %d: %v", ErrStoreWrite, call.ID, err))
			continue
		}
		if !applied {
			// The write-once guard kept an earlier adjustment. Counting this
			// as an update would report a write that never happened, on this
			// run and on every overlapping re-run.
			logger.L.Debug("Adjustment write skipped, call already adjusted",
				"callID", call.ID, "amount", adj.Amount, "timestamp", adj.Timestamp)
			continue
		}
		// Reflect the write on the in-memory candidate so a duplicate
		// adjustment later in this run is excluded too.
		call.AdjustmentAmount = decimal.NullDecimal{Decimal: adj.Amount, Valid: true}
		call.AdjustmentTime = adj.Timestamp
		summary.UpdatedCount++
	}
}

func (s *reconciliationServiceImpl) RecentRuns(limit int) ([]models.RunSummary, error) {
	if cached, found := s.summaryCache.Get(ckRecentRuns); found {
		logger.L.Debug("Cache hit for RecentRuns")
		return cached.([]models.RunSummary), nil
	}
	summaries, err := s.store.RecentRunSummaries(limit)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(ckRecentRuns, summaries, DefaultCacheExpiration)
	return summaries, nil
}

func (s *reconciliationServiceImpl) RecentUnmatched(limit int) ([]models.UnmatchedCall, error) {
	if cached, found := s.summaryCache.Get(ckRecentUnmatched); found {
		logger.L.Debug("Cache hit for RecentUnmatched")
		return cached.([]models.UnmatchedCall), nil
	}
	entries, err := s.store.RecentUnmatched(limit)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(ckRecentUnmatched, entries, DefaultCacheExpiration)
	return entries, nil
}
