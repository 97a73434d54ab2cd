package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"labelbot/internal/labeling"

	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	sheetName = "labels"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Header is the column order of every export.
var Header = []string{"instruction", "output", "label", "labeled_by", "timestamp"}

// FileName returns labeling_results_<YYYYMMDD_HHMMSS>.<ext>.
func FileName(format string, now time.Time) string {
	return fmt.Sprintf("labeling_results_%s.%s", now.Format("20060102_150405"), format)
}

// ParseFormat normalizes a user-supplied format; empty means fallback.
func ParseFormat(s, fallback string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, ".")))
	if f == "" {
		f = fallback
	}
	switch f {
	case FormatXLSX, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (xlsx, csv)", ErrUnsupportedFormat, s)
}

// Write renders rows in format under dir and returns the file path.
func Write(rows []labeling.ExportRow, format, dir string, now time.Time) (string, error) {
	switch format {
	case FormatXLSX:
		return WriteXLSX(rows, dir, now)
	case FormatCSV:
		return WriteCSV(rows, dir, now)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func record(row labeling.ExportRow) []string {
	return []string{row.Instruction, row.Output, string(row.Label), row.LabeledBy, row.Timestamp}
}

func WriteXLSX(rows []labeling.ExportRow, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", err
	}
	if err := setRow(f, 1, Header); err != nil {
		return "", err
	}
	for i, row := range rows {
		if err := setRow(f, i+2, record(row)); err != nil {
			return "", err
		}
	}
	_ = f.SetColWidth(sheetName, "A", "B", 60)
	_ = f.SetColWidth(sheetName, "C", "E", 22)

	path := filepath.Join(dir, FileName(FormatXLSX, now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save xlsx: %w", err)
	}
	return path, nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheetName, cell, &cells)
}

func WriteCSV(rows []labeling.ExportRow, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(FormatCSV, now))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// UTF-8 BOM so spreadsheet apps detect the encoding of non-ASCII text.
	if _, err := file.WriteString("\ufeff"); err != nil {
		return "", err
	}
	w := csv.NewWriter(file)
	if err := w.Write(Header); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := w.Write(record(row)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, file.Close()
}
