package matching

import (
	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

// AdjustmentMatcher links Feed-A rate corrections onto already-matched calls.
// The window is narrower than call matching, and a candidate that already
// carries an adjustment close to the incoming amount is excluded: that is the
// overlapping-window re-fetch case, and the adjustment must not be applied
// twice.
type AdjustmentMatcher struct {
	windowMinutes      float64
	amountTolerance    decimal.Decimal
	countryCallingCode string
}

func NewAdjustmentMatcher(windowMinutes float64, amountTolerance decimal.Decimal, countryCallingCode string) *AdjustmentMatcher {
	return &AdjustmentMatcher{
		windowMinutes:      windowMinutes,
		amountTolerance:    amountTolerance,
		countryCallingCode: countryCallingCode,
	}
}

// Match selects among matchedCalls the best same-day call for adj, scored
// purely by minute distance, first-seen breaking ties. The winner is
// consumed for the rest of the run.
func (m *AdjustmentMatcher) Match(adj *models.AdjustmentRecord, matchedCalls []*models.CallRecord, consumed ConsumedSet) models.MatchDecision {
	normalized := utils.NormalizeCallerID(adj.CallerID, m.countryCallingCode)
	if normalized == "" {
		return unmatched(models.ReasonInvalidCallerID)
	}

	var (
		best         *models.CallRecord
		bestTimeDiff float64
		candidates   int
		unavailable  int
	)

	for _, call := range matchedCalls {
		if !call.Linked() {
			continue
		}
		callNormalized := call.NormalizedCallerID
		if callNormalized == "" {
			// Rows stored before normalization-at-ingest carry no canonical id.
			callNormalized = utils.NormalizeCallerID(call.CallerID, m.countryCallingCode)
		}
		if callNormalized != normalized {
			continue
		}
		if !utils.SameDay(call.CallTime, adj.Timestamp) {
			continue
		}
		candidates++

		if m.alreadyApplied(call, adj) || consumed.Contains(call.ID) {
			unavailable++
			continue
		}

		timeDiff := utils.MinutesApart(
			utils.TruncateToMinute(call.ParsedCallTime),
			utils.TruncateToMinute(adj.ParsedTime),
		)
		if timeDiff > m.windowMinutes {
			continue
		}

		if best == nil || timeDiff < bestTimeDiff {
			best = call
			bestTimeDiff = timeDiff
		}
	}

	if best == nil {
		switch {
		case candidates == 0:
			return unmatched(models.ReasonNoCandidates)
		case unavailable == candidates:
			return unmatched(models.ReasonAllCandidatesConsumed)
		default:
			return unmatched(models.ReasonNoCandidateInWindow)
		}
	}

	consumed.Add(best.ID)
	return models.MatchDecision{
		Matched:         true,
		Candidate:       best,
		Score:           bestTimeDiff,
		TimeDiffMinutes: bestTimeDiff,
	}
}

// alreadyApplied reports whether call carries an adjustment whose amount is
// within tolerance of adj's, meaning adj was applied by a previous run over
// an overlapping window.
func (m *AdjustmentMatcher) alreadyApplied(call *models.CallRecord, adj *models.AdjustmentRecord) bool {
	if !call.AdjustmentAmount.Valid {
		return false
	}
	return call.AdjustmentAmount.Decimal.Sub(adj.Amount).Abs().LessThanOrEqual(m.amountTolerance)
}
