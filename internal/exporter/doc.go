// Package exporter renders key collections as CSV or XLSX reports.
//
// CSV output carries a UTF-8 BOM by default so spreadsheet tools detect the
// encoding. XLSX output holds a Keys sheet and, when stats are supplied, a
// Summary sheet.
//
// Example usage:
//
//	err := exporter.Write(w, exporter.FormatXLSX, keys, &stats)
//
//	// or to a file, creating parent directories
//	err = exporter.WriteFile("reports/keys.csv", exporter.FormatCSV, keys, nil)
package exporter
