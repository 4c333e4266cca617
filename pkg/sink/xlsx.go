package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

const defaultSheet = "Sheet1"

// XLSX writes one worksheet per record kind, with a header row. The
// workbook is saved on Close.
type XLSX struct {
	mu      sync.Mutex
	path    string
	file    *excelize.File
	layouts layouts
	rows    map[string]int
	sheets  int
}

// NewXLSX creates a workbook sink saved to path
func NewXLSX(path string) *XLSX {
	return &XLSX{
		path:    path,
		file:    excelize.NewFile(),
		layouts: make(layouts),
		rows:    make(map[string]int),
	}
}

func (x *XLSX) Emit(_ context.Context, record models.Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	kind := record.Kind()
	l, created := x.layouts.lookup(record)
	if created {
		if err := x.addSheet(kind, l); err != nil {
			delete(x.layouts, kind)
			return err
		}
	}

	row := l.row(record)
	cells := make([]any, len(row))
	for i, v := range row {
		cells[i] = cellValue(v)
	}
	next := x.rows[kind] + 1
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := x.file.SetSheetRow(kind, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row: %w", kind, err)
	}
	x.rows[kind] = next
	return nil
}

func (x *XLSX) addSheet(kind string, l *layout) error {
	if x.sheets == 0 {
		if err := x.file.SetSheetName(defaultSheet, kind); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", kind, err)
		}
	} else if _, err := x.file.NewSheet(kind); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", kind, err)
	}
	x.sheets++

	header := make([]any, 0, len(l.columns))
	for _, name := range l.names() {
		header = append(header, name)
	}
	if err := x.file.SetSheetRow(kind, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", kind, err)
	}
	x.rows[kind] = 1
	return nil
}

// Close saves the workbook
func (x *XLSX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return multierr.Combine(
		x.file.SaveAs(x.path),
		x.file.Close(),
	)
}

func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(v, "\n")
	default:
		return v
	}
}
