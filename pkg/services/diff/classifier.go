package diff

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// Classification reason codes.
const (
	ReasonReplacement     = "unmatched_pair_replacement"
	ReasonUnmatchedSource = "unmatched_source_row"
	ReasonUnmatchedTarget = "unmatched_target_row"
)

// missingRowKey sorts rows without a source or target id after those with one.
const missingRowKey = "~"

// ClassificationInput carries the matcher outcome together with the rows it was computed from.
type ClassificationInput struct {
	SourceRows         []models.ComparableRow
	TargetRows         []models.ComparableRow
	Decisions          []models.MatchDecision
	UnmatchedSourceIDs []string
	UnmatchedTargetIDs []string
}

// comparableField is one entry of the fixed cell-diff field order.
type comparableField struct {
	name  string
	value func(models.NormalizedRow) any
}

func textValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// comparableFields is the order cells appear in every diff row.
var comparableFields = []comparableField{
	{"internalId", func(r models.NormalizedRow) any { return textValue(r.InternalID) }},
	{"partNumber", func(r models.NormalizedRow) any { return textValue(r.PartNumber) }},
	{"revision", func(r models.NormalizedRow) any { return textValue(r.Revision) }},
	{"description", func(r models.NormalizedRow) any { return textValue(r.Description) }},
	{"quantity", func(r models.NormalizedRow) any { return nullableFloat(r.Quantity) }},
	{"supplier", func(r models.NormalizedRow) any { return textValue(r.Supplier) }},
	{"color", func(r models.NormalizedRow) any { return textValue(r.Color) }},
	{"units", func(r models.NormalizedRow) any { return textValue(r.Units) }},
	{"cost", func(r models.NormalizedRow) any { return nullableFloat(r.Cost) }},
	{"category", func(r models.NormalizedRow) any { return textValue(r.Category) }},
	{"parentPath", func(r models.NormalizedRow) any { return textValue(r.ParentPath) }},
	{"position", func(r models.NormalizedRow) any { return textValue(r.Position) }},
}

// Classify labels matched pairs and leftover rows with a change type.
func Classify(input ClassificationInput) []models.ClassifiedRow {
	return classifyNormalized(
		NormalizeRows(input.SourceRows),
		NormalizeRows(input.TargetRows),
		MatchResult{
			Decisions:          input.Decisions,
			UnmatchedSourceIDs: input.UnmatchedSourceIDs,
			UnmatchedTargetIDs: input.UnmatchedTargetIDs,
		},
	)
}

func classifyNormalized(source, target []models.NormalizedRow, match MatchResult) []models.ClassifiedRow {
	sourceByID := indexByID(source)
	targetByID := indexByID(target)

	var rows []models.ClassifiedRow
	for _, decision := range match.Decisions {
		if !decision.Committed() {
			continue
		}
		s, okSource := sourceByID[decision.SourceRowID]
		t, okTarget := targetByID[*decision.TargetRowID]
		if !okSource || !okTarget {
			continue
		}
		cells := cellDiffs(s, t)
		changeType := matchedChangeType(s, t, cells)
		rows = append(rows, models.ClassifiedRow{
			SourceRowID: stringPtr(s.RowID),
			TargetRowID: stringPtr(t.RowID),
			ChangeType:  changeType,
			ReasonCode:  "matched_" + string(changeType),
			MatchedBy:   decision.Strategy,
			Cells:       cells,
		})
	}

	removed := lookupRows(match.UnmatchedSourceIDs, sourceByID)
	added := lookupRows(match.UnmatchedTargetIDs, targetByID)

	pairedSource := make(map[string]bool)
	pairedTarget := make(map[string]bool)
	for _, pair := range pairReplacements(removed, added) {
		pairedSource[pair.source.RowID] = true
		pairedTarget[pair.target.RowID] = true
		rows = append(rows, models.ClassifiedRow{
			SourceRowID: stringPtr(pair.source.RowID),
			TargetRowID: stringPtr(pair.target.RowID),
			ChangeType:  models.ChangeTypeReplaced,
			ReasonCode:  ReasonReplacement,
			Cells:       cellDiffs(pair.source, pair.target),
		})
	}

	for _, row := range removed {
		if pairedSource[row.RowID] {
			continue
		}
		rows = append(rows, models.ClassifiedRow{
			SourceRowID: stringPtr(row.RowID),
			ChangeType:  models.ChangeTypeRemoved,
			ReasonCode:  ReasonUnmatchedSource,
			Cells:       []models.DiffCellChange{},
		})
	}
	for _, row := range added {
		if pairedTarget[row.RowID] {
			continue
		}
		rows = append(rows, models.ClassifiedRow{
			TargetRowID: stringPtr(row.RowID),
			ChangeType:  models.ChangeTypeAdded,
			ReasonCode:  ReasonUnmatchedTarget,
			Cells:       []models.DiffCellChange{},
		})
	}

	slices.SortStableFunc(rows, func(a, b models.ClassifiedRow) int {
		return strings.Compare(classificationSortKey(a), classificationSortKey(b))
	})
	return rows
}

func classificationSortKey(row models.ClassifiedRow) string {
	return orMissing(row.SourceRowID) + "::" + orMissing(row.TargetRowID) + "::" + string(row.ChangeType)
}

func orMissing(id *string) string {
	if id == nil || *id == "" {
		return missingRowKey
	}
	return *id
}

func matchedChangeType(source, target models.NormalizedRow, cells []models.DiffCellChange) models.ChangeType {
	if len(cells) == 0 {
		return models.ChangeTypeNoChange
	}
	if len(cells) == 1 && cells[0].Field == "quantity" {
		return models.ChangeTypeQuantityChange
	}
	if source.ParentPath != target.ParentPath || source.Position != target.Position {
		return models.ChangeTypeMoved
	}
	return models.ChangeTypeModified
}

// cellDiffs lists every comparable field whose value differs, in field order.
func cellDiffs(source, target models.NormalizedRow) []models.DiffCellChange {
	cells := []models.DiffCellChange{}
	for _, f := range comparableFields {
		before, after := f.value(source), f.value(target)
		if before == after {
			continue
		}
		cells = append(cells, models.DiffCellChange{
			Field:      f.name,
			Before:     before,
			After:      after,
			ReasonCode: "field_changed_" + f.name,
		})
	}
	return cells
}

type replacementPair struct {
	source models.NormalizedRow
	target models.NormalizedRow
}

// pairReplacements greedily claims, for each removed row in order, the most similar
// unclaimed added row scoring at least ReplacementThreshold.
func pairReplacements(removed, added []models.NormalizedRow) []replacementPair {
	claimed := make([]bool, len(added))
	var pairs []replacementPair

	for _, source := range removed {
		best := -1
		bestScore := 0.0
		for i, target := range added {
			if claimed[i] {
				continue
			}
			score := replacementSimilarity(source, target)
			if score < ReplacementThreshold {
				continue
			}
			if best < 0 || score > bestScore ||
				(score == bestScore && cmp.Less(target.RowID, added[best].RowID)) {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			continue
		}
		claimed[best] = true
		pairs = append(pairs, replacementPair{source: source, target: added[best]})
	}
	return pairs
}

func indexByID(rows []models.NormalizedRow) map[string]models.NormalizedRow {
	out := make(map[string]models.NormalizedRow, len(rows))
	for _, row := range rows {
		if _, exists := out[row.RowID]; !exists {
			out[row.RowID] = row
		}
	}
	return out
}

func lookupRows(ids []string, byID map[string]models.NormalizedRow) []models.NormalizedRow {
	out := make([]models.NormalizedRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
