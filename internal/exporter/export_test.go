package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"keyforge/internal/keys"
	"keyforge/internal/shared/testutil"
	"keyforge/pkg/contracts/domain"
)

func fixtureKeys() ([]domain.KeyRecord, domain.KeyStats) {
	c := testutil.NewKeyFixtures().Collection()
	return c.Keys, keys.ComputeStats(c)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Metadata(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)
	assert.Equal(t, "keys-20240301-123005.csv", FormatCSV.FileName(at))
	assert.Equal(t, "keys-20240301-123005.xlsx", FormatXLSX.FileName(at))
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestWriteCSV(t *testing.T) {
	recs, _ := fixtureKeys()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs, CSVOptions{}))
	require.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(recs)+1)
	assert.Equal(t, Headers, rows[0])

	bound := rows[2]
	assert.Equal(t, recs[1].ID, bound[0])
	assert.Equal(t, "permanent", bound[1])
	assert.Equal(t, "true", bound[2])
	assert.Equal(t, testutil.FixtureHWID, bound[3])

	temp := rows[3]
	assert.Equal(t, "temporary", temp[1])
	assert.Equal(t, "2024-03-01T13:00:00Z", temp[6])

	revoked := rows[4]
	assert.Equal(t, "false", revoked[2])
	assert.NotEmpty(t, revoked[7])
}

func TestWriteCSV_Options(t *testing.T) {
	recs, _ := fixtureKeys()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs[:1], CSVOptions{OmitBOM: true, OmitHeaders: true}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, recs[0].ID, rows[0][0])
}

func TestWriteCSV_SpecialCharacters(t *testing.T) {
	hwid := `DESK,"TOP"`
	rec := domain.KeyRecord{ID: "K1", Kind: domain.KeyKindPermanent, Active: true, HWID: &hwid}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []domain.KeyRecord{rec}, CSVOptions{OmitBOM: true}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, hwid, rows[1][3])
}

func TestWriteXLSX(t *testing.T) {
	recs, stats := fixtureKeys()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, recs, &stats))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{keysSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(keysSheet)
	require.NoError(t, err)
	require.Len(t, rows, len(recs)+1)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, recs[1].ID, rows[2][0])
	assert.Equal(t, testutil.FixtureHWID, rows[2][3])

	total, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "4", total)
}

func TestWriteXLSX_NoStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{keysSheet}, f.GetSheetList())
	rows, err := f.GetRows(keysSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Format("pdf"), nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteFile(t *testing.T) {
	recs, stats := fixtureKeys()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "reports", "keys.csv")
	require.NoError(t, WriteFile(csvPath, FormatCSV, recs, nil))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), recs[0].ID)

	xlsxPath := filepath.Join(dir, "reports", "keys.xlsx")
	require.NoError(t, WriteFile(xlsxPath, FormatXLSX, recs, &stats))
	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), summarySheet)
}
