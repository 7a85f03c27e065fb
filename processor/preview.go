package processor

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// IsPreviewOnly reports whether a content type is stored without text
// extraction. These uploads skip indexing and graph extraction entirely.
func IsPreviewOnly(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		return true
	}
	switch ct {
	case "text/csv", "application/csv", "application/json":
		return true
	}
	if strings.Contains(ct, "presentation") || strings.Contains(ct, "powerpoint") ||
		strings.Contains(ct, "slideshow") {
		return true
	}
	if strings.Contains(ct, "spreadsheet") || strings.Contains(ct, "excel") ||
		ct == "application/vnd.ms-excel" {
		return true
	}
	if strings.Contains(ct, "macroenabled") {
		return true
	}
	return false
}

// SheetInfo describes one worksheet of a preview-only spreadsheet.
type SheetInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// SpreadsheetPreview reads sheet names and row counts from workbook
// bytes. It is best-effort metadata for preview-only uploads; callers
// treat any error as "no preview".
func SpreadsheetPreview(data []byte) ([]SheetInfo, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []SheetInfo
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		sheets = append(sheets, SheetInfo{Name: name, Rows: len(rows)})
	}
	return sheets, nil
}
