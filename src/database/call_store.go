package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

// CallStore is the persistence layer the reconciliation driver writes
// through. It wraps the package-level DB handle.
type CallStore struct{}

func NewCallStore() *CallStore {
	return &CallStore{}
}

const callColumns = `id, source, source_system_id, category, caller_id, normalized_caller_id,
	call_time, payout, revenue, matched_counterpart_id, matched_payout, matched_revenue,
	adjustment_amount, adjustment_time`

// UpsertCalls inserts newly observed call records, skipping rows already
// present for the same (source, source_system_id). Re-fetching overlapping
// windows makes duplicates the common case, not an error.
func (s *CallStore) UpsertCalls(records []*models.CallRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	dbTx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO calls
		(source, source_system_id, category, caller_id, normalized_caller_id, call_time, payout, revenue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		_, err := stmt.Exec(rec.Source, rec.SourceSystemID, rec.Category, rec.CallerID,
			rec.NormalizedCallerID, rec.CallTime, rec.Payout.String(), rec.Revenue.String())
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping already-stored call record",
					"source", rec.Source, "sourceSystemID", rec.SourceSystemID)
				continue
			}
			return inserted, fmt.Errorf("error inserting call record (sourceSystemID: %s): %w", rec.SourceSystemID, err)
		}
		inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return inserted, fmt.Errorf("error committing call records: %w", err)
	}
	return inserted, nil
}

// CallsForWindow returns stored records of one source/category whose recorded
// date component falls inside the window, ordered by timestamp then source id
// so iteration order is deterministic.
func (s *CallStore) CallsForWindow(source models.CallSource, category models.Category, window models.DateWindow) ([]*models.CallRecord, error) {
	start, end := windowBounds(window)
	rows, err := DB.Query(`SELECT `+callColumns+` FROM calls
		WHERE source = ? AND category = ? AND substr(call_time, 1, 10) BETWEEN ? AND ?
		ORDER BY call_time ASC, source_system_id ASC`,
		source, category, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying %s calls for window: %w", source, err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// MatchedCallsForWindow returns Feed-B records in the window that already
// carry a counterpart link; these are the only candidates the adjustment
// matcher considers.
func (s *CallStore) MatchedCallsForWindow(window models.DateWindow) ([]*models.CallRecord, error) {
	start, end := windowBounds(window)
	rows, err := DB.Query(`SELECT `+callColumns+` FROM calls
		WHERE source = ? AND matched_counterpart_id IS NOT NULL AND matched_counterpart_id != ''
		AND substr(call_time, 1, 10) BETWEEN ? AND ?
		ORDER BY call_time ASC, source_system_id ASC`,
		models.SourceFeedB, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying matched calls for window: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// PersistMatch writes the counterpart link and the counterpart's amounts onto
// one call row. The WHERE clause only fills an empty link: a row linked by a
// prior run is left untouched. Returns whether a row was actually written, so
// callers can tell a fill from a skip.
func (s *CallStore) PersistMatch(callID int64, counterpartSystemID string, payout, revenue decimal.Decimal) (bool, error) {
	res, err := DB.Exec(`UPDATE calls
		SET matched_counterpart_id = ?, matched_payout = ?, matched_revenue = ?
		WHERE id = ? AND (matched_counterpart_id IS NULL OR matched_counterpart_id = '')`,
		counterpartSystemID, payout.String(), revenue.String(), callID)
	if err != nil {
		return false, fmt.Errorf("error persisting match for call %d: %w", callID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected for call %d: %w", callID, err)
	}
	if n == 0 {
		logger.L.Debug("PersistMatch skipped already-linked call", "callID", callID)
		return false, nil
	}
	return true, nil
}

// PersistAdjustment writes the adjustment amount/time onto one call row,
// exactly once. Returns whether a row was actually written.
func (s *CallStore) PersistAdjustment(callID int64, amount decimal.Decimal, adjTime string) (bool, error) {
	res, err := DB.Exec(`UPDATE calls
		SET adjustment_amount = ?, adjustment_time = ?
		WHERE id = ? AND adjustment_amount IS NULL`,
		amount.String(), adjTime, callID)
	if err != nil {
		return false, fmt.Errorf("error persisting adjustment for call %d: %w", callID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected for call %d: %w", callID, err)
	}
	if n == 0 {
		logger.L.Debug("PersistAdjustment skipped already-adjusted call", "callID", callID)
		return false, nil
	}
	return true, nil
}

// PersistUnmatched records a no-match outcome with its reason so reporting
// can diagnose it; unmatched records are never silently dropped.
func (s *CallStore) PersistUnmatched(runID string, rec *models.CallRecord, reason models.UnmatchedReason) error {
	_, err := DB.Exec(`INSERT INTO unmatched_calls
		(run_id, source, source_system_id, category, caller_id, call_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Source, rec.SourceSystemID, rec.Category, rec.CallerID, rec.CallTime, reason)
	if err != nil {
		return fmt.Errorf("error persisting unmatched record (sourceSystemID: %s): %w", rec.SourceSystemID, err)
	}
	return nil
}

// InsertRunSummary persists the per-run summary row. The error list is stored
// as a JSON array so error messages can contain any characters.
func (s *CallStore) InsertRunSummary(summary *models.RunSummary) error {
	var errsText string
	if len(summary.Errors) > 0 {
		encoded, err := json.Marshal(summary.Errors)
		if err != nil {
			return fmt.Errorf("error encoding run errors for %s: %w", summary.RunID, err)
		}
		errsText = string(encoded)
	}

	_, err := DB.Exec(`INSERT INTO sync_runs
		(run_id, category, window_start, window_end, matched_count, unmatched_count, updated_count, errors, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.Category, summary.WindowStart, summary.WindowEnd,
		summary.MatchedCount, summary.UnmatchedCount, summary.UpdatedCount,
		errsText, summary.StartedAt, summary.DurationMillis)
	if err != nil {
		return fmt.Errorf("error inserting run summary %s: %w", summary.RunID, err)
	}
	return nil
}

// RecentRunSummaries returns the latest run summaries, newest first.
func (s *CallStore) RecentRunSummaries(limit int) ([]models.RunSummary, error) {
	rows, err := DB.Query(`SELECT run_id, category, window_start, window_end,
		matched_count, unmatched_count, updated_count, errors, started_at, duration_ms
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.RunSummary
	for rows.Next() {
		var summary models.RunSummary
		var errsText sql.NullString
		if err := rows.Scan(&summary.RunID, &summary.Category, &summary.WindowStart, &summary.WindowEnd,
			&summary.MatchedCount, &summary.UnmatchedCount, &summary.UpdatedCount,
			&errsText, &summary.StartedAt, &summary.DurationMillis); err != nil {
			return nil, fmt.Errorf("error scanning run summary row: %w", err)
		}
		if errsText.String != "" {
			if err := json.Unmarshal([]byte(errsText.String), &summary.Errors); err != nil {
				// Rows written before the JSON encoding hold a plain string.
				summary.Errors = []string{errsText.String}
			}
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over run summary rows: %w", err)
	}
	return summaries, nil
}

// RecentUnmatched returns the latest unmatched records with their reasons.
func (s *CallStore) RecentUnmatched(limit int) ([]models.UnmatchedCall, error) {
	rows, err := DB.Query(`SELECT run_id, source, source_system_id, category, caller_id, call_time, reason
		FROM unmatched_calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying unmatched calls: %w", err)
	}
	defer rows.Close()

	var entries []models.UnmatchedCall
	for rows.Next() {
		var e models.UnmatchedCall
		var category, callerID, callTime sql.NullString
		if err := rows.Scan(&e.RunID, &e.Source, &e.SourceSystemID, &category, &callerID, &callTime, &e.Reason); err != nil {
			return nil, fmt.Errorf("error scanning unmatched call row: %w", err)
		}
		e.Category = category.String
		e.CallerID = callerID.String
		e.CallTime = callTime.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over unmatched call rows: %w", err)
	}
	return entries, nil
}

func scanCalls(rows *sql.Rows) ([]*models.CallRecord, error) {
	var calls []*models.CallRecord
	for rows.Next() {
		var (
			rec                 models.CallRecord
			callerID            sql.NullString
			normalizedCallerID  sql.NullString
			matchedCounterpart  sql.NullString
			matchedPayoutStr    sql.NullString
			matchedRevenueStr   sql.NullString
			adjustmentAmountStr sql.NullString
			adjustmentTime      sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.SourceSystemID, &rec.Category,
			&callerID, &normalizedCallerID, &rec.CallTime, &rec.Payout, &rec.Revenue,
			&matchedCounterpart, &matchedPayoutStr, &matchedRevenueStr,
			&adjustmentAmountStr, &adjustmentTime); err != nil {
			return nil, fmt.Errorf("error scanning call row: %w", err)
		}

		rec.CallerID = callerID.String
		rec.NormalizedCallerID = normalizedCallerID.String
		rec.MatchedCounterpartID = matchedCounterpart.String
		rec.AdjustmentTime = adjustmentTime.String
		if matchedPayoutStr.Valid {
			if d, err := decimal.NewFromString(matchedPayoutStr.String); err == nil {
				rec.MatchedPayout = d
			}
		}
		if matchedRevenueStr.Valid {
			if d, err := decimal.NewFromString(matchedRevenueStr.String); err == nil {
				rec.MatchedRevenue = d
			}
		}
		if adjustmentAmountStr.Valid {
			if d, err := decimal.NewFromString(adjustmentAmountStr.String); err == nil {
				rec.AdjustmentAmount = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		}
		if t, ok := utils.ParseTimestamp(rec.CallTime); ok {
			rec.ParsedCallTime = t
		}
		calls = append(calls, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over call rows: %w", err)
	}
	return calls, nil
}

func windowBounds(window models.DateWindow) (string, string) {
	return window.Start.Format("2006-01-02"), window.End.Format("2006-01-02")
}
