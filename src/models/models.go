package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CallSource identifies which feed a call record was observed from.
type CallSource string

const (
	SourceFeedA CallSource = "feed_a"
	SourceFeedB CallSource = "feed_b"
)

// Category partitions call campaigns. Calls from different categories must
// never match each other, even for the same caller.
type Category string

const (
	CategoryInbound  Category = "inbound"
	CategoryTransfer Category = "transfer"
)

// categoryLabels maps the labels the feeds use to a Category. Feed A reports
// campaign types, Feed B reports billing buckets; both collapse onto the same
// two categories.
var categoryLabels = map[string]Category{
	"inbound":       CategoryInbound,
	"inbound_call":  CategoryInbound,
	"call":          CategoryInbound,
	"transfer":      CategoryTransfer,
	"warm_transfer": CategoryTransfer,
	"live_transfer": CategoryTransfer,
}

// ResolveCategory maps a feed-reported label onto a Category.
func ResolveCategory(label string) (Category, bool) {
	c, ok := categoryLabels[label]
	return c, ok
}

// CallRecord is one call as recorded by either feed.
//
// CallTime preserves the feed-local timestamp string exactly as received;
// ParsedCallTime is its parsed value (zero when unparsable). Day-level
// comparisons must use the string form, not the parsed one.
type CallRecord struct {
	ID                 int64
	Source             CallSource
	SourceSystemID     string
	Category           Category
	CallerID           string
	NormalizedCallerID string // empty when normalization failed
	CallTime           string
	ParsedCallTime     time.Time
	Payout             decimal.Decimal
	Revenue            decimal.Decimal // Feed B only

	// Set exactly once by the call matcher; once non-empty with a non-zero
	// linked payout it is never overwritten by a later run.
	MatchedCounterpartID string
	MatchedPayout        decimal.Decimal
	MatchedRevenue       decimal.Decimal

	// Set exactly once by the adjustment matcher.
	AdjustmentAmount decimal.NullDecimal
	AdjustmentTime   string
}

// Linked reports whether this record already carries a counterpart link from
// a prior run.
func (c *CallRecord) Linked() bool {
	return c.MatchedCounterpartID != ""
}

// AdjustmentRecord is a post-hoc rate correction issued by Feed A, to be
// folded into exactly one already-matched call.
type AdjustmentRecord struct {
	CallerID       string
	Timestamp      string
	ParsedTime     time.Time
	Amount         decimal.Decimal // signed
	Classification string
}

// UnmatchedReason explains why a matching attempt produced no link.
type UnmatchedReason string

const (
	ReasonInvalidCategory       UnmatchedReason = "invalid_category"
	ReasonInvalidCallerID       UnmatchedReason = "invalid_caller_id"
	ReasonNoCandidates          UnmatchedReason = "no_candidates"
	ReasonNoCandidateInWindow   UnmatchedReason = "no_candidate_in_window"
	ReasonAllCandidatesConsumed UnmatchedReason = "all_candidates_consumed"
)

// MatchDecision is the outcome of one matching attempt.
type MatchDecision struct {
	Matched         bool
	Candidate       *CallRecord
	Score           float64
	TimeDiffMinutes float64
	Reason          UnmatchedReason
}

// UnmatchedCall is a persisted no-match outcome, kept for diagnosis.
type UnmatchedCall struct {
	RunID          string `json:"run_id"`
	Source         string `json:"source"`
	SourceSystemID string `json:"source_system_id"`
	Category       string `json:"category"`
	CallerID       string `json:"caller_id"`
	CallTime       string `json:"call_time"`
	Reason         string `json:"reason"`
}

// DateWindow is an inclusive date range a reconciliation run covers.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// RunSummary is reported to schedulers and dashboards after each run.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Category       Category  `json:"category"`
	WindowStart    string    `json:"window_start"`
	WindowEnd      string    `json:"window_end"`
	MatchedCount   int       `json:"matched_count"`
	UnmatchedCount int       `json:"unmatched_count"`
	UpdatedCount   int       `json:"updated_count"` // adjustments applied
	Errors         []string  `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	DurationMillis int64     `json:"duration_millis"`
}
