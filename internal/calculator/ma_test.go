package calculator

import (
	"math"
	"testing"

	"SignalScanner/internal/model"
)

func TestSMASeries(t *testing.T) {
	got := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("index %d: expected undefined, got %.2f", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: expected %.2f, got %.2f", i, want[i], got[i])
		}
	}
}

func TestSMASeries_Gap(t *testing.T) {
	got := SMASeries([]float64{1, 2, math.NaN(), 4, 5, 6}, 2)
	if !math.IsNaN(got[2]) || !math.IsNaN(got[3]) {
		t.Errorf("windows touching the gap should be undefined: %v", got)
	}
	if math.Abs(got[5]-5.5) > 1e-9 {
		t.Errorf("expected 5.5 after the gap, got %.2f", got[5])
	}
}

func TestEnvelope(t *testing.T) {
	bars := []model.Bar{
		{High: 10, Low: 8},
		{High: 12, Low: 9},
		{High: 11, Low: 7},
	}
	h, l := Envelope(bars, 0, 2)
	if h != 12 || l != 7 {
		t.Errorf("expected 12/7, got %.1f/%.1f", h, l)
	}
	bars[1].Low = math.NaN()
	h, _ = Envelope(bars, 0, 2)
	if !math.IsNaN(h) {
		t.Errorf("expected NaN envelope with a gap, got %.1f", h)
	}
}

func TestWindowMin(t *testing.T) {
	v := []float64{3, 1, 2}
	if got := WindowMin(v, 0, 2); got != 1 {
		t.Errorf("expected 1, got %.1f", got)
	}
	if got := WindowMin(v, 1, 5); !math.IsNaN(got) {
		t.Errorf("expected NaN for out of range, got %.1f", got)
	}
}
