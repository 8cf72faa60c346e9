package exporter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"keyforge/pkg/contracts/domain"
)

// ErrUnsupportedFormat is returned for an unknown export format
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a user supplied name to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns the download name for an export taken at t
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("keys-%s.%s", t.UTC().Format("20060102-150405"), f)
}

// Headers are the export columns, in order
var Headers = []string{
	"Key", "Type", "Active", "HWID", "HWID Resets",
	"Created", "Expires At", "Revoked At", "Last HWID Reset",
}

// keyRow renders rec as one row of text cells matching Headers
func keyRow(rec domain.KeyRecord) []string {
	return []string{
		rec.ID,
		string(rec.Kind),
		formatBool(rec.Active),
		rec.BoundTo(),
		formatInt(int64(rec.HWIDResets)),
		formatTime(&rec.CreatedAt),
		formatTime(rec.ExpiresAt),
		formatTime(rec.RevokedAt),
		formatTime(rec.LastHWIDReset),
	}
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatTime renders t in RFC 3339 UTC; nil and zero times are empty
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
