package detector

import (
	"math"
	"testing"

	"SignalScanner/internal/model"
)

func TestCrosses_EntryOnlyOnce(t *testing.T) {
	rsi := []float64{50, 70, 81, 85, 90, 88, 82, 70}
	bars := barsFromCloses("X", make([]float64, len(rsi)))
	got := Crosses(bars, rsi, 14, DefaultBands)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 cross, got %d: %+v", len(got), got)
	}
	c := got[0]
	if c.Type != model.CrossAboveUpper || !c.Date.Equal(dayN(2)) {
		t.Errorf("expected ABOVE_UPPER at day 2, got %s at %s", c.Type, model.FormatDay(c.Date))
	}
	if c.PrevRSI != 70 || c.CurrRSI != 81 || c.Threshold != 80 || c.Period != 14 {
		t.Errorf("unexpected cross fields %+v", c)
	}
	if c.ReferenceHigh != bars[2].High {
		t.Errorf("expected reference high %.2f, got %.2f", bars[2].High, c.ReferenceHigh)
	}
}

func TestCrosses_Strictness(t *testing.T) {
	tests := []struct {
		name string
		rsi  []float64
		want []model.CrossType
	}{
		{"touch upper from below", []float64{79.9, 80}, []model.CrossType{model.CrossAboveUpper}},
		{"already at upper", []float64{80, 81}, nil},
		{"touch lower from above", []float64{20.1, 20}, []model.CrossType{model.CrossBelowLower}},
		{"already at lower", []float64{20, 19}, nil},
		{"two separate entries", []float64{30, 20, 25, 19}, []model.CrossType{model.CrossBelowLower, model.CrossBelowLower}},
		{"gap breaks the pair", []float64{70, math.NaN(), 85}, nil},
	}
	for _, tt := range tests {
		bars := barsFromCloses("X", make([]float64, len(tt.rsi)))
		got := Crosses(bars, tt.rsi, 14, DefaultBands)
		if len(got) != len(tt.want) {
			t.Errorf("%s: expected %d crosses, got %d", tt.name, len(tt.want), len(got))
			continue
		}
		for i := range got {
			if got[i].Type != tt.want[i] {
				t.Errorf("%s: cross %d expected %s, got %s", tt.name, i, tt.want[i], got[i].Type)
			}
		}
	}
}

func TestCrosses_ChecksBothBands(t *testing.T) {
	// Inverted bands: each test is still evaluated on its own.
	bands := Bands{Upper: 40, Lower: 60}
	bars := barsFromCloses("X", make([]float64, 2))
	got := Crosses(bars, []float64{30, 50}, 14, bands)
	if len(got) != 1 || got[0].Type != model.CrossAboveUpper {
		t.Fatalf("expected ABOVE_UPPER only, got %+v", got)
	}
	got = Crosses(bars, []float64{70, 50}, 14, bands)
	if len(got) != 1 || got[0].Type != model.CrossBelowLower {
		t.Fatalf("expected BELOW_LOWER only, got %+v", got)
	}
}
