// Package diff implements the BOM comparison core: row normalization, the
// multi-strategy matcher, change classification and result assembly.
// Everything here is pure and total over well-typed input.
package diff

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ekaya-inc/bomdiff-engine/pkg/jsonutil"
	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// Normalization rule names recorded in change metadata.
const (
	RuleTextTrimSpace       = "text_trim_space"
	RuleTextUpperTrimSpace  = "text_upper_trim_space"
	RulePartNumberCaseStrip = "part_number_case_strip"
	RuleNumeric             = "numeric_normalization"
)

const numericPlaces = 6

// NormalizationChange records one field whose value changed during normalization.
type NormalizationChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
	Rule   string `json:"rule"`
}

// NormalizationResult is the canonical row plus what normalization altered.
type NormalizationResult struct {
	Row     models.NormalizedRow
	Changes []NormalizationChange
}

// Normalize canonicalizes a raw row. It never fails: unparsable numerics become nil.
func Normalize(input models.ComparableRow) NormalizationResult {
	row := models.NormalizedRow{
		RowID:       input.RowID,
		InternalID:  NormalizeText(input.InternalID, false),
		PartNumber:  NormalizePartNumber(input.PartNumber),
		Revision:    NormalizeText(input.Revision, true),
		Description: NormalizeText(input.Description, true),
		Supplier:    NormalizeText(input.Supplier, true),
		Color:       NormalizeText(input.Color, true),
		Units:       NormalizeText(input.Units, true),
		Category:    NormalizeText(input.Category, true),
		ParentPath:  NormalizeText(input.ParentPath, false),
		Position:    NormalizeText(input.Position, false),
		Quantity:    normalizeNumberInput(input.Quantity),
		Cost:        normalizeNumberInput(input.Cost),
	}

	var changes []NormalizationChange
	text := func(field, before, after, rule string) {
		if before != after {
			changes = append(changes, NormalizationChange{
				Field:  field,
				Before: nullableText(before),
				After:  nullableText(after),
				Rule:   rule,
			})
		}
	}
	text("internalId", input.InternalID, row.InternalID, RuleTextTrimSpace)
	text("partNumber", input.PartNumber, row.PartNumber, RulePartNumberCaseStrip)
	text("revision", input.Revision, row.Revision, RuleTextUpperTrimSpace)
	text("description", input.Description, row.Description, RuleTextUpperTrimSpace)
	text("supplier", input.Supplier, row.Supplier, RuleTextUpperTrimSpace)
	text("color", input.Color, row.Color, RuleTextUpperTrimSpace)
	text("units", input.Units, row.Units, RuleTextUpperTrimSpace)
	text("category", input.Category, row.Category, RuleTextUpperTrimSpace)
	text("parentPath", input.ParentPath, row.ParentPath, RuleTextTrimSpace)
	text("position", input.Position, row.Position, RuleTextTrimSpace)

	numeric := func(field string, before *jsonutil.Number, after *float64) {
		if before == nil && after == nil {
			return
		}
		if before != nil && after != nil && formatFloat(*after) == before.String() {
			return
		}
		var beforeVal any
		if before != nil {
			beforeVal = before.String()
		}
		changes = append(changes, NormalizationChange{
			Field:  field,
			Before: beforeVal,
			After:  nullableFloat(after),
			Rule:   RuleNumeric,
		})
	}
	numeric("quantity", input.Quantity, row.Quantity)
	numeric("cost", input.Cost, row.Cost)

	return NormalizationResult{Row: row, Changes: changes}
}

// NormalizeRows normalizes a snapshot, preserving order.
func NormalizeRows(rows []models.ComparableRow) []models.NormalizedRow {
	out := make([]models.NormalizedRow, len(rows))
	for i, row := range rows {
		out[i] = Normalize(row).Row
	}
	return out
}

// NormalizeText decomposes, strips combining marks, collapses whitespace and trims.
// Returns "" (null) when nothing is left.
func NormalizeText(value string, upper bool) string {
	if value == "" {
		return ""
	}
	// Transformers are stateful, so each call builds its own chain.
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(stripMarks, value)
	if err != nil {
		stripped = value
	}
	collapsed := strings.Join(strings.Fields(stripped), " ")
	if collapsed == "" {
		return ""
	}
	if upper {
		return strings.ToUpper(collapsed)
	}
	return collapsed
}

// NormalizePartNumber upper-cases a part number and removes separators so
// "PN-100", "pn 100" and "PN.100" compare equal.
func NormalizePartNumber(value string) string {
	text := NormalizeText(value, true)
	if text == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || r == '/' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}

// NormalizeNumber rounds a finite value to six decimal places. Non-finite input yields nil.
func NormalizeNumber(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	rounded := decimal.NewFromFloat(value).Round(numericPlaces).InexactFloat64()
	return &rounded
}

func normalizeNumberInput(n *jsonutil.Number) *float64 {
	f, ok := n.Float64()
	if !ok {
		return nil
	}
	return NormalizeNumber(f)
}

var (
	lengthToMillimetres = map[string]decimal.Decimal{
		"MM": decimal.NewFromInt(1),
		"CM": decimal.NewFromInt(10),
		"M":  decimal.NewFromInt(1000),
		"IN": decimal.RequireFromString("25.4"),
	}
	massToGrams = map[string]decimal.Decimal{
		"G":  decimal.NewFromInt(1),
		"KG": decimal.NewFromInt(1000),
	}
)

// NormalizeWithUnit converts lengths to millimetres and masses to grams.
// Unknown units pass through with the value rounded and the unit upper-cased.
func NormalizeWithUnit(value *float64, unit string) (*float64, string) {
	var n *float64
	if value != nil {
		n = NormalizeNumber(*value)
	}
	u := NormalizeText(unit, true)
	if n == nil || u == "" {
		return n, u
	}

	if factor, ok := lengthToMillimetres[u]; ok {
		return convert(*n, factor), "MM"
	}
	if factor, ok := massToGrams[u]; ok {
		return convert(*n, factor), "G"
	}
	return n, u
}

func convert(value float64, factor decimal.Decimal) *float64 {
	out := decimal.NewFromFloat(value).Mul(factor).Round(numericPlaces).InexactFloat64()
	return &out
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}
