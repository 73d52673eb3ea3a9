package record_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/record"
)

func TestParseCSV(t *testing.T) {
	data := []byte("patent_number, assignee ,filing_date\nUS-1, Acme Pharma ,2024-01-15\nUS-2,Nova Bio,2024-02-01\n")

	records, err := record.ParseBytes(data, record.FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Headers and values are trimmed.
	assert.Equal(t, "Acme Pharma", records[0].String("assignee"))
	assert.Equal(t, "US-1", records[0].String("patent_number"))
	assert.Equal(t, "2024-02-01", records[1].String("filing_date"))
}

func TestParseCSVEmpty(t *testing.T) {
	records, err := record.ParseBytes([]byte("a,b,c\n"), record.FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseJSON(t *testing.T) {
	data := []byte(`[{"trial_id":"NCT-1","sponsor":"Acme Pharma","enrollment":250}]`)

	records, err := record.ParseBytes(data, record.FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "NCT-1", records[0].String("trial_id"))
	assert.Equal(t, 250.0, records[0].Float("enrollment"))
}

func TestParseJSONNotAnArray(t *testing.T) {
	_, err := record.ParseBytes([]byte(`{"trial_id":"NCT-1"}`), record.FormatJSON)
	assert.Error(t, err)
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := record.ParseBytes([]byte("x"), record.Format("xml"))
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeUnsupportedFormat))
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected record.Format
		wantErr  bool
	}{
		{path: "data/patents.csv", expected: record.FormatCSV},
		{path: "trials.JSON", expected: record.FormatJSON},
		{path: "report.xlsx", wantErr: true},
		{path: "noextension", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, err := record.FormatForPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patents.csv")
	require.NoError(t, os.WriteFile(path, []byte("patent_number,assignee\nUS-1,Acme\n"), 0o644))

	records, err := record.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme", records[0].String("assignee"))
}
