package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

const utf8BOM = "\uFEFF"

var csvHeaders = []string{
	"comparisonId",
	"rowId",
	"changeType",
	"sourceIndex",
	"targetIndex",
	"partNumber",
	"revision",
	"description",
	"classificationReason",
	"matchReason",
	"reviewRequired",
	"score",
	"changedFields",
	"cellsJson",
}

// BuildCSV renders every row of the payload, in payload order, as a BOM-prefixed CRLF CSV document.
func BuildCSV(payload *models.DiffExportPayload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range payload.Rows {
		record, err := csvRecord(payload.JobID, &payload.Rows[i])
		if err != nil {
			return nil, err
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row %s: %w", payload.Rows[i].RowID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRecord(jobID string, row *models.PersistedDiffRow) ([]string, error) {
	cells, err := cellsJSON(row.Cells)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cells for row %s: %w", row.RowID, err)
	}

	score := ""
	if row.Rationale.Score != nil {
		score = strconv.FormatFloat(*row.Rationale.Score, 'f', -1, 64)
	}
	reviewRequired := row.Rationale.ReviewRequired != nil && *row.Rationale.ReviewRequired

	return []string{
		jobID,
		row.RowID,
		string(row.ChangeType),
		strconv.FormatInt(row.SourceIndex, 10),
		strconv.FormatInt(row.TargetIndex, 10),
		deref(row.KeyFields.PartNumber),
		deref(row.KeyFields.Revision),
		deref(row.KeyFields.Description),
		row.Rationale.ClassificationReason,
		row.Rationale.MatchReason,
		strconv.FormatBool(reviewRequired),
		score,
		strings.Join(row.Rationale.ChangedFields, ";"),
		cells,
	}, nil
}

// cellsJSON encodes cell changes compactly without HTML escaping; no cells encode as [].
func cellsJSON(cells []models.DiffCellChange) (string, error) {
	if cells == nil {
		cells = []models.DiffCellChange{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cells); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
