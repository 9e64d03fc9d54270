package matching

import (
	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

const fullDayMinutes = 1440

// ConsumedSet tracks candidate row ids consumed within a single run. A
// candidate consumed by one winner is never offered to a later record in the
// same run.
type ConsumedSet map[int64]struct{}

func (s ConsumedSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s ConsumedSet) Add(id int64) {
	s[id] = struct{}{}
}

// MatcherConfig carries the deployment-specific matching knobs.
type MatcherConfig struct {
	// WindowMinutes is the same-day time window. Candidates on a
	// neighbouring day get a relaxed full-day window instead, to absorb
	// midnight boundary effects.
	WindowMinutes      float64
	PayoutTolerance    decimal.Decimal
	CountryCallingCode string
}

// CallMatcher selects the best unconsumed Feed-A candidate for an incoming
// Feed-B call. Greedy, single pass, consume on match: a later record cannot
// steal a candidate from an earlier winner, even at a lower score.
type CallMatcher struct {
	cfg MatcherConfig
}

func NewCallMatcher(cfg MatcherConfig) *CallMatcher {
	return &CallMatcher{cfg: cfg}
}

// Match scores the candidates for b and consumes the winner. Ordinary
// no-match outcomes are decisions with a reason, never errors.
func (m *CallMatcher) Match(b *models.CallRecord, idx *CandidateIndex, consumed ConsumedSet) models.MatchDecision {
	if _, ok := models.ResolveCategory(string(b.Category)); !ok {
		return unmatched(models.ReasonInvalidCategory)
	}

	if b.NormalizedCallerID == "" {
		b.NormalizedCallerID = utils.NormalizeCallerID(b.CallerID, m.cfg.CountryCallingCode)
	}
	if b.NormalizedCallerID == "" {
		return unmatched(models.ReasonInvalidCallerID)
	}

	candidates := idx.Lookup(b.Category, b.NormalizedCallerID)
	if len(candidates) == 0 {
		return unmatched(models.ReasonNoCandidates)
	}

	var (
		best         *models.CallRecord
		bestScore    float64
		bestTimeDiff float64
		unavailable  int
	)

	for _, a := range candidates {
		// A candidate linked by a prior run is excluded outright, not
		// merely deprioritized. Same for candidates consumed earlier in
		// this run.
		if a.Linked() || consumed.Contains(a.ID) {
			unavailable++
			continue
		}

		daysDiff := utils.DaysApart(a.CallTime, b.CallTime)
		if daysDiff < 0 || daysDiff > 1 {
			continue
		}

		timeDiff := utils.MinutesApart(
			utils.TruncateToMinute(a.ParsedCallTime),
			utils.TruncateToMinute(b.ParsedCallTime),
		)

		effectiveWindow := m.cfg.WindowMinutes
		if daysDiff > 0 {
			effectiveWindow = fullDayMinutes
		}
		if timeDiff > effectiveWindow {
			continue
		}

		score := m.score(a, b, timeDiff)
		if best == nil || score < bestScore {
			best = a
			bestScore = score
			bestTimeDiff = timeDiff
		}
	}

	if best == nil {
		if unavailable == len(candidates) {
			return unmatched(models.ReasonAllCandidatesConsumed)
		}
		return unmatched(models.ReasonNoCandidateInWindow)
	}

	consumed.Add(best.ID)
	return models.MatchDecision{
		Matched:         true,
		Candidate:       best,
		Score:           bestScore,
		TimeDiffMinutes: bestTimeDiff,
	}
}

// score combines temporal proximity and payout agreement, lower is better.
// An amount-confirmed match is strongly preferred over a closer-in-time
// candidate whose amount disagrees or is absent.
func (m *CallMatcher) score(a, b *models.CallRecord, timeDiff float64) float64 {
	bothPositive := a.Payout.IsPositive() && b.Payout.IsPositive()
	if !bothPositive {
		return timeDiff
	}
	payoutDiff := a.Payout.Sub(b.Payout).Abs()
	if payoutDiff.LessThanOrEqual(m.cfg.PayoutTolerance) {
		return timeDiff * 0.1
	}
	diff, _ := payoutDiff.Float64()
	return timeDiff + diff*10
}

func unmatched(reason models.UnmatchedReason) models.MatchDecision {
	return models.MatchDecision{Reason: reason}
}
