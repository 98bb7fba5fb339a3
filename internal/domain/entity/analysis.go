package entity

import "time"

// AnalysisCategory classifies a stored analysis entry.
type AnalysisCategory string

const (
	CategoryNote       AnalysisCategory = "note"
	CategoryFinding    AnalysisCategory = "finding"
	CategoryHypothesis AnalysisCategory = "hypothesis"
	CategoryQuestion   AnalysisCategory = "question"
	CategoryAnalysis   AnalysisCategory = "analysis"
)

// DetailLevel records how thoroughly a function-scoped analysis has been
// worked. Additive supplement (original_source/src/memory.h): not required
// by any invariant, purely descriptive metadata an agent may attach.
type DetailLevel int

const (
	DetailSummary DetailLevel = iota
	DetailContextual
	DetailAnalytical
	DetailComprehensive
)

// AnalysisEntry is a unique-keyed, typed, timestamped record in the Memory
// Store. Address is optional; RelatedAddresses is an ordered list.
type AnalysisEntry struct {
	Key              string
	Content          string
	Category         AnalysisCategory
	Address          *uint64
	RelatedAddresses []uint64
	Timestamp        time.Time
	DetailLevel      *DetailLevel

	// Version is a monotonic counter bumped on every mutation of this key's
	// logical history (store, or a snapshot restore touching it).
	Version uint64
}
