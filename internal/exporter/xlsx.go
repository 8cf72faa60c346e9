package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"keyforge/pkg/contracts/domain"
)

const (
	keysSheet    = "Keys"
	summarySheet = "Summary"
)

var columnWidths = map[string]float64{
	"A": 36, "B": 12, "C": 8, "D": 28, "E": 12,
	"F": 22, "G": 22, "H": 22, "I": 22,
}

// WriteXLSX writes keys to w as a workbook. A Summary sheet is added when
// stats is non-nil.
func WriteXLSX(w io.Writer, keys []domain.KeyRecord, stats *domain.KeyStats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", keysSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, keysSheet, 1, toCells(Headers)); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	if err := f.SetCellStyle(keysSheet, "A1", lastCol+"1", header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range keys {
		row := toCells(keyRow(rec))
		row[2] = rec.Active
		row[4] = rec.HWIDResets
		if err := writeRow(f, keysSheet, i+2, row); err != nil {
			return err
		}
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(keysSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if len(keys) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(keys)+1)
		if err := f.AutoFilter(keysSheet, ref, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	if err := f.SetPanes(keysSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if stats != nil {
		if err := writeSummary(f, *stats, header); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, st domain.KeyStats, header int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Total Keys", st.TotalKeys},
		{"Permanent Keys", st.Permanent},
		{"Temporary Keys", st.Temporary},
		{"Active Keys", st.Active},
		{"Expired Keys", st.Expired},
		{"Bound", st.Bound},
		{"Unbound", st.Unbound},
		{"HWID Resets", st.HWIDResets},
	}
	for i, row := range rows {
		if err := writeRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "B1", header); err != nil {
		return fmt.Errorf("failed to style summary header: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "A", 20)
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
