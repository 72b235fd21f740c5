package exports

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// SheetName is the name of the single worksheet in an Excel export.
const SheetName = "Comparison Results"

type excelColumn struct {
	header string
	value  func(*models.NormalizedRow) any
}

func numberValue(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

var bomColumns = []excelColumn{
	{"Part Number", func(r *models.NormalizedRow) any { return r.PartNumber }},
	{"Revision", func(r *models.NormalizedRow) any { return r.Revision }},
	{"Description", func(r *models.NormalizedRow) any { return r.Description }},
	{"Quantity", func(r *models.NormalizedRow) any { return numberValue(r.Quantity) }},
	{"Supplier", func(r *models.NormalizedRow) any { return r.Supplier }},
	{"Color", func(r *models.NormalizedRow) any { return r.Color }},
	{"Units", func(r *models.NormalizedRow) any { return r.Units }},
	{"Cost", func(r *models.NormalizedRow) any { return numberValue(r.Cost) }},
	{"Category", func(r *models.NormalizedRow) any { return r.Category }},
}

var metadataHeaders = []string{"Change Type", "Changed Fields", "Classification Reason"}

// BuildExcel renders the payload as an .xlsx workbook. BOM columns come from the target
// snapshot when present, otherwise the source snapshot.
func BuildExcel(payload *models.DiffExportPayload) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, 0, len(bomColumns)+len(metadataHeaders))
	for _, col := range bomColumns {
		header = append(header, col.header)
	}
	for _, h := range metadataHeaders {
		header = append(header, h)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i := range payload.Rows {
		row := &payload.Rows[i]
		values := excelRow(row)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %s: %w", row.RowID, err)
		}
	}

	lastCell, err := excelize.CoordinatesToCellName(len(header), max(1, len(payload.Rows)+1))
	if err != nil {
		return nil, err
	}
	if err := f.AutoFilter(SheetName, "A1:"+lastCell, nil); err != nil {
		return nil, fmt.Errorf("failed to set autofilter: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func excelRow(row *models.PersistedDiffRow) []any {
	snapshot := row.TargetSnapshot
	if snapshot == nil {
		snapshot = row.SourceSnapshot
	}

	values := make([]any, 0, len(bomColumns)+len(metadataHeaders))
	for _, col := range bomColumns {
		if snapshot == nil {
			values = append(values, "")
			continue
		}
		values = append(values, col.value(snapshot))
	}
	return append(values,
		string(row.ChangeType),
		strings.Join(row.Rationale.ChangedFields, ";"),
		row.Rationale.ClassificationReason,
	)
}
