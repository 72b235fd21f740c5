package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric cell value that may arrive as a JSON number or as a string.
// Spreadsheet exports routinely quote quantities and costs, so the raw text is kept
// as-is and interpreted later by Float64. A nil *Number means the value was absent.
type Number struct {
	text string
}

// NumberFromFloat wraps a float value.
func NumberFromFloat(f float64) *Number {
	return &Number{text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NumberFromString wraps a textual value without validating it.
func NumberFromString(s string) *Number {
	return &Number{text: s}
}

// String returns the raw text of the value.
func (n *Number) String() string {
	if n == nil {
		return ""
	}
	return n.text
}

// Float64 parses the value. Returns false for empty or non-numeric text.
// Non-finite values parse successfully; callers decide how to treat them.
func (n *Number) Float64() (float64, bool) {
	if n == nil {
		return 0, false
	}
	text := strings.TrimSpace(n.text)
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// UnmarshalJSON accepts numbers, strings and booleans. null leaves the value empty.
func (n *Number) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		n.text = ""
		return nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		n.text = strVal
		return nil
	}

	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		n.text = numVal.String()
		return nil
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		n.text = fmt.Sprintf("%t", boolVal)
		return nil
	}

	return fmt.Errorf("jsonutil: cannot decode %s as number", string(raw))
}

// MarshalJSON writes a JSON number when the text parses to a finite value,
// otherwise the raw text as a string.
func (n Number) MarshalJSON() ([]byte, error) {
	if f, ok := n.Float64(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return json.Marshal(n.text)
}
