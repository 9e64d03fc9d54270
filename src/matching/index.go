package matching

import (
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

type indexKey struct {
	category models.Category
	callerID string
}

// CandidateIndex groups Feed-A call records by (category, normalized caller
// id) for O(1) candidate lookup. It is rebuilt for every reconciliation run
// and never persisted; groups keep insertion order, which is the matcher's
// tie-break order.
type CandidateIndex struct {
	groups      map[indexKey][]*models.CallRecord
	unindexable int
}

// BuildCandidateIndex builds the index for one run. Records whose caller id
// cannot be normalized are skipped and counted; they can never match.
func BuildCandidateIndex(records []*models.CallRecord, countryCode string) *CandidateIndex {
	idx := &CandidateIndex{groups: make(map[indexKey][]*models.CallRecord, len(records))}

	for _, rec := range records {
		if rec.NormalizedCallerID == "" {
			rec.NormalizedCallerID = utils.NormalizeCallerID(rec.CallerID, countryCode)
		}
		if rec.NormalizedCallerID == "" {
			idx.unindexable++
			if logger.L != nil {
				logger.L.Debug("Skipping unindexable call record",
					"sourceSystemID", rec.SourceSystemID,
					"callerID", rec.CallerID)
			}
			continue
		}
		key := indexKey{category: rec.Category, callerID: rec.NormalizedCallerID}
		idx.groups[key] = append(idx.groups[key], rec)
	}

	return idx
}

// Lookup returns the insertion-ordered candidate group for the key, or nil.
func (idx *CandidateIndex) Lookup(category models.Category, normalizedCallerID string) []*models.CallRecord {
	return idx.groups[indexKey{category: category, callerID: normalizedCallerID}]
}

// UnindexableCount reports how many records were dropped at build time
// because their caller id failed normalization.
func (idx *CandidateIndex) UnindexableCount() int {
	return idx.unindexable
}

// GroupCount reports the number of distinct (category, caller) keys.
func (idx *CandidateIndex) GroupCount() int {
	return len(idx.groups)
}
