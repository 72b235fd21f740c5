// Package exports renders completed diff jobs as downloadable files.
package exports

import (
	"fmt"
	"regexp"
)

// Content types for the rendered files.
const (
	CSVContentType   = "text/csv; charset=utf-8"
	ExcelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var unsafeFileToken = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CSVFileName returns the download name for a job's CSV export.
func CSVFileName(jobID string) string {
	return fileName(jobID, "csv")
}

// ExcelFileName returns the download name for a job's workbook export.
func ExcelFileName(jobID string) string {
	return fileName(jobID, "xlsx")
}

func fileName(jobID, ext string) string {
	return fmt.Sprintf("bomcompare_%s_results.%s", unsafeFileToken.ReplaceAllString(jobID, "_"), ext)
}
