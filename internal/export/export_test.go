package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/store"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeReader struct{}

func (fakeReader) Fractals(context.Context, store.Query) ([]model.FractalEvent, error) {
	return []model.FractalEvent{
		{Symbol: "AAA", Date: day0, Polarity: model.PolarityHigh, RangeHigh: 12, RangeLow: 9, CenterRSI: model.Float(61.5), CenterClose: 11},
		{Symbol: "AAA", Date: day0.AddDate(0, 0, 3), Polarity: model.PolarityLow, RangeHigh: 10, RangeLow: 8, CenterClose: 8.5},
	}, nil
}

func (fakeReader) NarrowRanges(context.Context, store.Query) ([]model.NarrowRangeEvent, error) {
	return []model.NarrowRangeEvent{{Symbol: "AAA", Date: day0, WindowSize: 7, RangeValue: 0.4, Rank: 1}}, nil
}

func (fakeReader) Crosses(context.Context, store.Query) ([]model.CrossEvent, error) {
	return nil, nil
}

func (fakeReader) Divergences(context.Context, store.Query) ([]model.DivergenceSignal, error) {
	return []model.DivergenceSignal{{
		Symbol: "AAA", SignalDate: day0.AddDate(0, 0, 4), Type: model.HiddenBullish,
		CurrentFractalDate: day0.AddDate(0, 0, 3), CurrentClose: 8.5, CurrentRSI: 30,
		ComparedFractalDate: day0, ComparedClose: 8, ComparedRSI: 35,
		BuyAboveLevel: 10, SellBelowLevel: 8, Rank: 1,
	}}, nil
}

func (fakeReader) Runs(context.Context, int) ([]model.RunSummary, error) { return nil, nil }

func runExport(t *testing.T, format string) (string, []File) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "out")
	e, err := NewExporter(fakeReader{}, format, dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	files, err := e.Export(context.Background(), store.Query{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return dir, files
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" JSON ", FormatJSON, false},
		{"Parquet", FormatParquet, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q): unexpected error state %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestExport_OneFilePerKind(t *testing.T) {
	_, files := runExport(t, FormatCSV)
	want := map[string]int{"fractals": 2, "narrow_ranges": 1, "crosses": 0, "divergences": 1}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for _, f := range files {
		if f.Rows != want[f.Kind] {
			t.Errorf("%s: expected %d rows, got %d", f.Kind, want[f.Kind], f.Rows)
		}
		if _, err := os.Stat(f.Path); err != nil {
			t.Errorf("%s: %v", f.Kind, err)
		}
	}
}

func TestExport_CSV(t *testing.T) {
	dir, _ := runExport(t, FormatCSV)
	f, err := os.Open(filepath.Join(dir, "fractals.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[1][1] != "2024-01-01" || records[1][5] != "61.5" {
		t.Errorf("unexpected first row %v", records[1])
	}
	if records[2][5] != "" {
		t.Errorf("missing RSI should export empty, got %q", records[2][5])
	}

	f2, err := os.Open(filepath.Join(dir, "crosses.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	records, err = csv.NewReader(f2).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("empty kind should still have a header, got %d records", len(records))
	}
}

func TestExport_JSON(t *testing.T) {
	dir, _ := runExport(t, FormatJSON)
	data, err := os.ReadFile(filepath.Join(dir, "divergences.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rows []DivergenceRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BuyAboveLevel != 10 || rows[0].ComparedFractalDate != "2024-01-01" {
		t.Errorf("unexpected rows %+v", rows)
	}

	data, err = os.ReadFile(filepath.Join(dir, "crosses.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]\n" {
		t.Errorf("empty kind should export [], got %q", data)
	}
}

func TestExport_Parquet(t *testing.T) {
	dir, _ := runExport(t, FormatParquet)
	rows, err := parquet.ReadFile[FractalRow](filepath.Join(dir, "fractals.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].CenterRSI == nil || *rows[0].CenterRSI != 61.5 {
		t.Errorf("expected center_rsi 61.5, got %v", rows[0].CenterRSI)
	}
	if rows[1].CenterRSI != nil {
		t.Errorf("expected null center_rsi, got %v", *rows[1].CenterRSI)
	}
}

func TestNewExporter_RejectsUnknownFormat(t *testing.T) {
	if _, err := NewExporter(fakeReader{}, "xml", t.TempDir(), zerolog.Nop()); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
