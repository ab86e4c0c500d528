package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Supported formats.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

type row interface {
	FractalRow | NarrowRangeRow | CrossRow | DivergenceRow
	header() []string
	record() []string
}

// ParseFormat normalises a format name.
func ParseFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q (use csv, json or parquet)", format)
}

func save[T row](format, path string, rows []T) error {
	switch format {
	case FormatCSV:
		return saveCSV(path, rows)
	case FormatJSON:
		return saveJSON(path, rows)
	case FormatParquet:
		return parquet.WriteFile(path, rows)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func saveCSV[T row](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	var zero T
	if err := w.Write(zero.header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func saveJSON[T row](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if rows == nil {
		rows = []T{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
