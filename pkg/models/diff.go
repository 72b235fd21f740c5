// Package models holds the BOM diff domain types shared across services, handlers and exports.
package models

import (
	"github.com/ekaya-inc/bomdiff-engine/pkg/jsonutil"
)

// DiffContractVersion is embedded in every diff payload so consumers can detect
// incompatible contract changes.
const DiffContractVersion = "v1"

// ============================================================================
// Match Strategies
// ============================================================================

// MatchStrategy identifies which rule paired a source row with a target row.
type MatchStrategy string

const (
	MatchStrategyInternalID         MatchStrategy = "INTERNAL_ID"
	MatchStrategyPartNumberRevision MatchStrategy = "PART_NUMBER_REVISION"
	MatchStrategyPartNumber         MatchStrategy = "PART_NUMBER"
	MatchStrategyFuzzy              MatchStrategy = "FUZZY"
	MatchStrategyNoMatch            MatchStrategy = "NO_MATCH"
)

// ValidMatchStrategies lists the strategies in evaluation priority order.
var ValidMatchStrategies = []MatchStrategy{
	MatchStrategyInternalID,
	MatchStrategyPartNumberRevision,
	MatchStrategyPartNumber,
	MatchStrategyFuzzy,
	MatchStrategyNoMatch,
}

// IsValidMatchStrategy checks if the given strategy is valid.
func IsValidMatchStrategy(s MatchStrategy) bool {
	for _, v := range ValidMatchStrategies {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Tie-break Steps
// ============================================================================

// TieBreakStep names one resolution step applied while choosing between candidates.
type TieBreakStep string

const (
	TieBreakUniquenessFirst      TieBreakStep = "UNIQUENESS_FIRST"
	TieBreakHighestScore         TieBreakStep = "HIGHEST_SCORE"
	TieBreakAttributeConcordance TieBreakStep = "ATTRIBUTE_CONCORDANCE"
	TieBreakStableFallbackIndex  TieBreakStep = "STABLE_FALLBACK_INDEX"
	TieBreakNearTieReview        TieBreakStep = "NEAR_TIE_REVIEW_REQUIRED"
)

// ValidTieBreakSteps contains all valid tie-break step values.
var ValidTieBreakSteps = []TieBreakStep{
	TieBreakUniquenessFirst,
	TieBreakHighestScore,
	TieBreakAttributeConcordance,
	TieBreakStableFallbackIndex,
	TieBreakNearTieReview,
}

// IsValidTieBreakStep checks if the given step is valid.
func IsValidTieBreakStep(s TieBreakStep) bool {
	for _, v := range ValidTieBreakSteps {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Change Taxonomy
// ============================================================================

// ChangeType is the classification label of one diff row.
type ChangeType string

const (
	ChangeTypeAdded          ChangeType = "added"
	ChangeTypeRemoved        ChangeType = "removed"
	ChangeTypeReplaced       ChangeType = "replaced"
	ChangeTypeModified       ChangeType = "modified"
	ChangeTypeMoved          ChangeType = "moved"
	ChangeTypeQuantityChange ChangeType = "quantity_change"
	ChangeTypeNoChange       ChangeType = "no_change"
)

// ValidChangeTypes contains all valid change type values.
var ValidChangeTypes = []ChangeType{
	ChangeTypeAdded,
	ChangeTypeRemoved,
	ChangeTypeReplaced,
	ChangeTypeModified,
	ChangeTypeMoved,
	ChangeTypeQuantityChange,
	ChangeTypeNoChange,
}

// IsValidChangeType checks if the given change type is valid.
func IsValidChangeType(c ChangeType) bool {
	for _, v := range ValidChangeTypes {
		if v == c {
			return true
		}
	}
	return false
}

// ============================================================================
// Rows
// ============================================================================

// ComparableRow is one BOM line as supplied by the ingestion collaborator.
// Only RowID is required; it is unique within its snapshot but not across snapshots.
type ComparableRow struct {
	RowID       string           `json:"rowId"`
	InternalID  string           `json:"internalId,omitempty"`
	PartNumber  string           `json:"partNumber,omitempty"`
	Revision    string           `json:"revision,omitempty"`
	Description string           `json:"description,omitempty"`
	Quantity    *jsonutil.Number `json:"quantity,omitempty"`
	Supplier    string           `json:"supplier,omitempty"`
	Color       string           `json:"color,omitempty"`
	Units       string           `json:"units,omitempty"`
	Cost        *jsonutil.Number `json:"cost,omitempty"`
	Category    string           `json:"category,omitempty"`
	ParentPath  string           `json:"parentPath,omitempty"`
	Position    string           `json:"position,omitempty"`
}

// NormalizedRow is a ComparableRow after canonicalization.
// Empty text means null; nil numerics mean null or unparsable input.
type NormalizedRow struct {
	RowID       string   `json:"rowId"`
	InternalID  string   `json:"internalId,omitempty"`
	PartNumber  string   `json:"partNumber,omitempty"`
	Revision    string   `json:"revision,omitempty"`
	Description string   `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Supplier    string   `json:"supplier,omitempty"`
	Color       string   `json:"color,omitempty"`
	Units       string   `json:"units,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	Category    string   `json:"category,omitempty"`
	ParentPath  string   `json:"parentPath,omitempty"`
	Position    string   `json:"position,omitempty"`
}

// Comparable converts the normalized row back into an input row.
func (r NormalizedRow) Comparable() ComparableRow {
	row := ComparableRow{
		RowID:       r.RowID,
		InternalID:  r.InternalID,
		PartNumber:  r.PartNumber,
		Revision:    r.Revision,
		Description: r.Description,
		Supplier:    r.Supplier,
		Color:       r.Color,
		Units:       r.Units,
		Category:    r.Category,
		ParentPath:  r.ParentPath,
		Position:    r.Position,
	}
	if r.Quantity != nil {
		row.Quantity = jsonutil.NumberFromFloat(*r.Quantity)
	}
	if r.Cost != nil {
		row.Cost = jsonutil.NumberFromFloat(*r.Cost)
	}
	return row
}

// ============================================================================
// Match Decisions
// ============================================================================

// MatchDecision is the matcher outcome for one source row.
type MatchDecision struct {
	SourceRowID    string         `json:"sourceRowId"`
	TargetRowID    *string        `json:"targetRowId"`
	Strategy       MatchStrategy  `json:"strategy"`
	Score          float64        `json:"score"`
	ReviewRequired bool           `json:"reviewRequired"`
	TieBreakTrace  []TieBreakStep `json:"tieBreakTrace"`
	ReasonCode     string         `json:"reasonCode"`
}

// Committed returns true when the decision holds a target and needs no review.
func (d MatchDecision) Committed() bool {
	return d.TargetRowID != nil && !d.ReviewRequired
}

// ============================================================================
// Classified Rows
// ============================================================================

// DiffCellChange is one field-level change between a source and a target row.
// Before and After hold a string, a float64, or nil.
type DiffCellChange struct {
	Field      string `json:"field"`
	Before     any    `json:"before"`
	After      any    `json:"after"`
	ReasonCode string `json:"reasonCode"`
}

// ClassifiedRow is one diff-result row before ordering metadata is attached.
type ClassifiedRow struct {
	SourceRowID *string          `json:"sourceRowId"`
	TargetRowID *string          `json:"targetRowId"`
	ChangeType  ChangeType       `json:"changeType"`
	ReasonCode  string           `json:"reasonCode"`
	MatchedBy   MatchStrategy    `json:"matchedBy,omitempty"`
	Cells       []DiffCellChange `json:"cells"`
}

// DiffKeyFields is the display projection of a diff row.
type DiffKeyFields struct {
	PartNumber  *string `json:"partNumber"`
	Revision    *string `json:"revision"`
	Description *string `json:"description"`
}

// DiffRationale explains why a row was classified the way it was.
type DiffRationale struct {
	ClassificationReason string         `json:"classificationReason"`
	MatchReason          string         `json:"matchReason,omitempty"`
	TieBreakTrace        []TieBreakStep `json:"tieBreakTrace,omitempty"`
	Score                *float64       `json:"score,omitempty"`
	ReviewRequired       *bool          `json:"reviewRequired,omitempty"`
	ChangedFields        []string       `json:"changedFields"`
}

// PersistedDiffRow is a ClassifiedRow with ordering, display and rationale metadata.
type PersistedDiffRow struct {
	ClassifiedRow
	RowID          string         `json:"rowId"`
	SourceIndex    int64          `json:"sourceIndex"`
	TargetIndex    int64          `json:"targetIndex"`
	KeyFields      DiffKeyFields  `json:"keyFields"`
	Rationale      DiffRationale  `json:"rationale"`
	SourceSnapshot *NormalizedRow `json:"sourceSnapshot,omitempty"`
	TargetSnapshot *NormalizedRow `json:"targetSnapshot,omitempty"`
}

// DiffJobCounters tallies rows by change type.
type DiffJobCounters struct {
	Total          int `json:"total"`
	Added          int `json:"added"`
	Removed        int `json:"removed"`
	Replaced       int `json:"replaced"`
	Modified       int `json:"modified"`
	Moved          int `json:"moved"`
	QuantityChange int `json:"quantity_change"`
	NoChange       int `json:"no_change"`
}

// Add counts one row of the given change type.
func (c *DiffJobCounters) Add(changeType ChangeType) {
	c.Total++
	switch changeType {
	case ChangeTypeAdded:
		c.Added++
	case ChangeTypeRemoved:
		c.Removed++
	case ChangeTypeReplaced:
		c.Replaced++
	case ChangeTypeModified:
		c.Modified++
	case ChangeTypeMoved:
		c.Moved++
	case ChangeTypeQuantityChange:
		c.QuantityChange++
	case ChangeTypeNoChange:
		c.NoChange++
	}
}

// Sum returns the sum of all per-type counters. It equals Total for any
// counters built through Add with valid change types.
func (c DiffJobCounters) Sum() int {
	return c.Added + c.Removed + c.Replaced + c.Modified + c.Moved + c.QuantityChange + c.NoChange
}
