package diff

import (
	"math"
	"slices"
	"strings"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// Match reason codes.
const (
	ReasonNoCandidate     = "no_candidate_found"
	ReasonUniqueCandidate = "unique_candidate"
	ReasonNearTie         = "near_tie_review_required"
	ReasonScoredCandidate = "scored_candidate_selected"
)

// MatchResult is the matcher outcome for one comparison.
type MatchResult struct {
	// Decisions has one entry per source row, in source order.
	Decisions          []models.MatchDecision
	UnmatchedSourceIDs []string
	// UnmatchedTargetIDs is the unlocked pool left after all source rows, in target order.
	UnmatchedTargetIDs []string
}

// strategy pairs a match strategy with its candidate predicate.
type strategy struct {
	name      models.MatchStrategy
	predicate func(source, target models.NormalizedRow) bool
}

var strategies = []strategy{
	{
		name: models.MatchStrategyInternalID,
		predicate: func(s, t models.NormalizedRow) bool {
			return s.InternalID != "" && s.InternalID == t.InternalID
		},
	},
	{
		name: models.MatchStrategyPartNumberRevision,
		predicate: func(s, t models.NormalizedRow) bool {
			return s.PartNumber != "" && s.Revision != "" &&
				s.PartNumber == t.PartNumber && s.Revision == t.Revision
		},
	},
	{
		name: models.MatchStrategyPartNumber,
		predicate: func(s, t models.NormalizedRow) bool {
			return s.PartNumber != "" && s.PartNumber == t.PartNumber
		},
	},
	{
		name: models.MatchStrategyFuzzy,
		predicate: func(s, t models.NormalizedRow) bool {
			if s.Description == "" && s.PartNumber == "" {
				return false
			}
			return fuzzyScore(s, t) >= FuzzyMatchThreshold
		},
	},
}

// Match pairs source rows with target rows. Both sides are normalized first.
func Match(sourceRows, targetRows []models.ComparableRow) MatchResult {
	return matchNormalized(NormalizeRows(sourceRows), NormalizeRows(targetRows))
}

func matchNormalized(source, target []models.NormalizedRow) MatchResult {
	unlocked := make([]bool, len(target))
	for i := range unlocked {
		unlocked[i] = true
	}

	result := MatchResult{
		Decisions:          make([]models.MatchDecision, 0, len(source)),
		UnmatchedSourceIDs: []string{},
		UnmatchedTargetIDs: []string{},
	}

	for _, row := range source {
		decision, targetIdx := matchRow(row, target, unlocked)
		result.Decisions = append(result.Decisions, decision)
		if targetIdx >= 0 {
			unlocked[targetIdx] = false
		} else {
			result.UnmatchedSourceIDs = append(result.UnmatchedSourceIDs, row.RowID)
		}
	}

	for i, row := range target {
		if unlocked[i] {
			result.UnmatchedTargetIDs = append(result.UnmatchedTargetIDs, row.RowID)
		}
	}
	return result
}

// candidate is one unlocked target under evaluation for a source row.
type candidate struct {
	index       int
	row         models.NormalizedRow
	score       float64
	concordance int
}

// matchRow returns the decision for one source row and the index of the committed
// target, or -1 when nothing was committed.
func matchRow(source models.NormalizedRow, targets []models.NormalizedRow, unlocked []bool) (models.MatchDecision, int) {
	for _, s := range strategies {
		var candidates []candidate
		for i, t := range targets {
			if unlocked[i] && s.predicate(source, t) {
				candidates = append(candidates, candidate{index: i, row: t})
			}
		}
		if len(candidates) > 0 {
			return resolveCandidates(source, candidates, s.name)
		}
	}

	return models.MatchDecision{
		SourceRowID:   source.RowID,
		Strategy:      models.MatchStrategyNoMatch,
		TieBreakTrace: []models.TieBreakStep{models.TieBreakUniquenessFirst},
		ReasonCode:    ReasonNoCandidate,
	}, -1
}

func resolveCandidates(source models.NormalizedRow, candidates []candidate, name models.MatchStrategy) (models.MatchDecision, int) {
	if len(candidates) == 1 {
		chosen := candidates[0]
		targetID := chosen.row.RowID
		return models.MatchDecision{
			SourceRowID:   source.RowID,
			TargetRowID:   &targetID,
			Strategy:      name,
			Score:         strategyScore(name, source, chosen.row),
			TieBreakTrace: []models.TieBreakStep{models.TieBreakUniquenessFirst},
			ReasonCode:    ReasonUniqueCandidate,
		}, chosen.index
	}

	for i := range candidates {
		candidates[i].score = strategyScore(name, source, candidates[i].row)
		candidates[i].concordance = attributeConcordance(source, candidates[i].row)
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.score != b.score:
			if a.score > b.score {
				return -1
			}
			return 1
		case a.concordance != b.concordance:
			return b.concordance - a.concordance
		case a.index != b.index:
			return a.index - b.index
		}
		return strings.Compare(a.row.RowID, b.row.RowID)
	})

	top, second := candidates[0], candidates[1]
	if round6(math.Abs(top.score-second.score)) <= NearTieDelta {
		return models.MatchDecision{
			SourceRowID:    source.RowID,
			Strategy:       name,
			Score:          top.score,
			ReviewRequired: true,
			TieBreakTrace: []models.TieBreakStep{
				models.TieBreakHighestScore,
				models.TieBreakAttributeConcordance,
				models.TieBreakNearTieReview,
			},
			ReasonCode: ReasonNearTie,
		}, -1
	}

	targetID := top.row.RowID
	return models.MatchDecision{
		SourceRowID: source.RowID,
		TargetRowID: &targetID,
		Strategy:    name,
		Score:       top.score,
		TieBreakTrace: []models.TieBreakStep{
			models.TieBreakHighestScore,
			models.TieBreakAttributeConcordance,
			models.TieBreakStableFallbackIndex,
		},
		ReasonCode: ReasonScoredCandidate,
	}, top.index
}

func strategyScore(name models.MatchStrategy, source, target models.NormalizedRow) float64 {
	switch name {
	case models.MatchStrategyInternalID:
		if source.InternalID != "" && source.InternalID == target.InternalID {
			return 1
		}
	case models.MatchStrategyPartNumberRevision:
		if source.PartNumber == target.PartNumber && source.Revision == target.Revision {
			return round6(0.97 + float64(attributeConcordance(source, target))*0.005)
		}
	case models.MatchStrategyPartNumber:
		if source.PartNumber == target.PartNumber {
			return round6(0.9 + float64(attributeConcordance(source, target))*0.01)
		}
	case models.MatchStrategyFuzzy:
		return fuzzyScore(source, target)
	}
	return 0
}
