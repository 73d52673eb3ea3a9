package record

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucidrx/fusion/fuserr"
)

// Format identifies a supported file format.
type Format string

const (
	// FormatCSV is comma-separated values with a header row defining fields.
	FormatCSV Format = "csv"

	// FormatJSON is a JSON array of flat objects.
	FormatJSON Format = "json"
)

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is supported.
func (f Format) IsValid() bool {
	return f == FormatCSV || f == FormatJSON
}

// FormatForPath infers the format from a file extension.
// Returns an UNSUPPORTED_FORMAT error for unknown extensions.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fuserr.New("", "record.FormatForPath", fuserr.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(path)))
	}
}

// Parse reads raw bytes in the given format and returns one record per row
// or array element. Field values from CSV are strings; JSON values keep
// their decoded types. Returns an UNSUPPORTED_FORMAT error for unknown
// formats.
func Parse(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSON:
		return parseJSON(r)
	default:
		return nil, fuserr.New("", "record.Parse", fuserr.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported format %q", format))
	}
}

// ParseBytes is a convenience wrapper over Parse for in-memory payloads.
func ParseBytes(data []byte, format Format) ([]Record, error) {
	return Parse(bytes.NewReader(data), format)
}

// ParseFile opens the file at path, infers the format from its extension,
// and parses it.
func ParseFile(path string) ([]Record, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, format)
}

func parseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		rec := make(Record, len(header))
		for i, field := range header {
			if i < len(row) {
				rec[field] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseJSON(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON input: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON array: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, obj := range raw {
		records = append(records, Record(obj))
	}
	return records, nil
}
