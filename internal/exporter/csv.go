package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"keyforge/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures CSV output
type CSVOptions struct {
	// OmitBOM skips the UTF-8 byte order mark
	OmitBOM bool
	// OmitHeaders skips the header row
	OmitHeaders bool
}

// WriteCSV writes keys to w as CSV
func WriteCSV(w io.Writer, keys []domain.KeyRecord, opts CSVOptions) error {
	if !opts.OmitBOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if !opts.OmitHeaders {
		if err := writer.Write(Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, rec := range keys {
		if err := writer.Write(keyRow(rec)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Write renders keys in format f to w. stats only feeds the XLSX summary sheet.
func Write(w io.Writer, f Format, keys []domain.KeyRecord, stats *domain.KeyStats) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, keys, CSVOptions{})
	case FormatXLSX:
		return WriteXLSX(w, keys, stats)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// WriteFile writes an export to path, creating its directory
func WriteFile(path string, f Format, keys []domain.KeyRecord, stats *domain.KeyStats) (err error) {
	slog.Info("Writing key export",
		slog.String("file_path", path),
		slog.String("format", string(f)),
		slog.Int("record_count", len(keys)))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Write(file, f, keys, stats)
}
