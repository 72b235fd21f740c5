package diff

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

const (
	// AddedRowIndexOffset is added to the target index of rows with no source side,
	// so they sort after every positioned source row.
	AddedRowIndexOffset int64 = 1_000_000
	// UnplacedIndex is the index of a side a row does not have.
	UnplacedIndex int64 = 9007199254740991

	missingSideID = "none"
)

// ComputeResult is the fully ordered diff for one comparison.
type ComputeResult struct {
	ContractVersion string
	Rows            []models.PersistedDiffRow
	Counters        models.DiffJobCounters
}

// Compute normalizes, matches and classifies both snapshots, then attaches ordering
// and rationale metadata. Rows are sorted by (SourceIndex, TargetIndex, RowID).
func Compute(sourceRows, targetRows []models.ComparableRow) ComputeResult {
	source := NormalizeRows(sourceRows)
	target := NormalizeRows(targetRows)

	match := matchNormalized(source, target)
	classified := classifyNormalized(source, target, match)

	sourcePos := positionByID(source)
	targetPos := positionByID(target)
	decisionBySource := make(map[string]models.MatchDecision, len(match.Decisions))
	for _, d := range match.Decisions {
		if _, exists := decisionBySource[d.SourceRowID]; !exists {
			decisionBySource[d.SourceRowID] = d
		}
	}

	rows := make([]models.PersistedDiffRow, 0, len(classified))
	var counters models.DiffJobCounters
	for _, row := range classified {
		persisted := models.PersistedDiffRow{
			ClassifiedRow: row,
			RowID:         orSentinel(row.SourceRowID) + "::" + orSentinel(row.TargetRowID),
			SourceIndex:   UnplacedIndex,
			TargetIndex:   UnplacedIndex,
		}

		if row.SourceRowID != nil {
			if pos, ok := sourcePos[*row.SourceRowID]; ok {
				snapshot := source[pos]
				persisted.SourceSnapshot = &snapshot
				persisted.SourceIndex = int64(pos)
			}
		}
		if row.TargetRowID != nil {
			if pos, ok := targetPos[*row.TargetRowID]; ok {
				snapshot := target[pos]
				persisted.TargetSnapshot = &snapshot
				persisted.TargetIndex = int64(pos)
			}
		}
		if persisted.SourceIndex == UnplacedIndex {
			persisted.SourceIndex = AddedRowIndexOffset + persisted.TargetIndex
		}

		keyRow := persisted.TargetSnapshot
		if keyRow == nil {
			keyRow = persisted.SourceSnapshot
		}
		if keyRow != nil {
			persisted.KeyFields = models.DiffKeyFields{
				PartNumber:  optionalText(keyRow.PartNumber),
				Revision:    optionalText(keyRow.Revision),
				Description: optionalText(keyRow.Description),
			}
		}

		persisted.Rationale = rationaleFor(row, decisionBySource)
		counters.Add(row.ChangeType)
		rows = append(rows, persisted)
	}

	slices.SortStableFunc(rows, func(a, b models.PersistedDiffRow) int {
		if c := cmp.Compare(a.SourceIndex, b.SourceIndex); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TargetIndex, b.TargetIndex); c != 0 {
			return c
		}
		return strings.Compare(a.RowID, b.RowID)
	})

	return ComputeResult{
		ContractVersion: models.DiffContractVersion,
		Rows:            rows,
		Counters:        counters,
	}
}

func rationaleFor(row models.ClassifiedRow, decisions map[string]models.MatchDecision) models.DiffRationale {
	changed := make([]string, 0, len(row.Cells))
	for _, cell := range row.Cells {
		changed = append(changed, cell.Field)
	}
	rationale := models.DiffRationale{
		ClassificationReason: row.ReasonCode,
		ChangedFields:        changed,
	}
	if row.SourceRowID == nil {
		return rationale
	}
	decision, ok := decisions[*row.SourceRowID]
	if !ok {
		return rationale
	}
	score := decision.Score
	review := decision.ReviewRequired
	rationale.MatchReason = decision.ReasonCode
	rationale.TieBreakTrace = decision.TieBreakTrace
	rationale.Score = &score
	rationale.ReviewRequired = &review
	return rationale
}

func positionByID(rows []models.NormalizedRow) map[string]int {
	out := make(map[string]int, len(rows))
	for i, row := range rows {
		if _, exists := out[row.RowID]; !exists {
			out[row.RowID] = i
		}
	}
	return out
}

func orSentinel(id *string) string {
	if id == nil || *id == "" {
		return missingSideID
	}
	return *id
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
