package diff

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

const (
	// FuzzyMatchThreshold is the minimum composite score for a FUZZY candidate.
	FuzzyMatchThreshold = 0.75
	// NearTieDelta is the largest top-two score gap that still requires review.
	NearTieDelta = 0.01
	// ReplacementThreshold is the minimum similarity for pairing leftovers as replaced.
	ReplacementThreshold = 0.80

	identicalDescriptionScore = 0.9
	fuzzyPartNumberBonus      = 0.15
	fuzzyQuantityBonus        = 0.05
	fuzzyScoreCap             = 0.99
)

// concordanceFields lists attribute concordance fields in descending priority.
// A field at index i contributes len(concordanceFields)-i when both sides agree.
var concordanceFields = []string{"description", "quantity", "supplier"}

func round6(f float64) float64 {
	return decimal.NewFromFloat(f).Round(numericPlaces).InexactFloat64()
}

// levenshteinDistance counts single-rune edits between two strings.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// stringSimilarity returns 1 - distance/maxLen. Identical strings score 0.9 so an
// exact description alone never outranks a structural match.
func stringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return identicalDescriptionScore
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	distance := levenshteinDistance(ra, rb)
	return round6(1 - float64(distance)/float64(maxLen))
}

// fuzzyScore is the composite FUZZY score: description similarity plus part number
// and quantity bonuses, capped at 0.99.
func fuzzyScore(source, target models.NormalizedRow) float64 {
	score := stringSimilarity(source.Description, target.Description)
	if source.PartNumber != "" && target.PartNumber != "" && source.PartNumber == target.PartNumber {
		score += fuzzyPartNumberBonus
	}
	if source.Quantity != nil && target.Quantity != nil && *source.Quantity == *target.Quantity {
		score += fuzzyQuantityBonus
	}
	return round6(math.Min(fuzzyScoreCap, score))
}

// attributeConcordance is the weighted count of agreeing description, quantity and supplier.
func attributeConcordance(source, target models.NormalizedRow) int {
	score := 0
	for i, field := range concordanceFields {
		if fieldsAgree(field, source, target) {
			score += len(concordanceFields) - i
		}
	}
	return score
}

func fieldsAgree(field string, source, target models.NormalizedRow) bool {
	switch field {
	case "description":
		return source.Description != "" && source.Description == target.Description
	case "quantity":
		return source.Quantity != nil && target.Quantity != nil && *source.Quantity == *target.Quantity
	case "supplier":
		return source.Supplier != "" && source.Supplier == target.Supplier
	}
	return false
}

// replacementSimilarity scores how likely an unmatched target replaced an unmatched
// source. Text attributes must be present on both sides to count; quantities count
// when equal, including when both are absent.
func replacementSimilarity(a, b models.NormalizedRow) float64 {
	score := 0.0
	if a.ParentPath != "" && a.ParentPath == b.ParentPath {
		score += 0.35
	}
	if a.Position != "" && a.Position == b.Position {
		score += 0.20
	}
	if a.Description != "" && a.Description == b.Description {
		score += 0.35
	}
	if floatsEqual(a.Quantity, b.Quantity) {
		score += 0.10
	}
	return round6(math.Min(1, score))
}

func floatsEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
