package calculator

import (
	"math"
	"testing"

	talib "github.com/markcheno/go-talib"
)

func TestRSISeries_Fixture(t *testing.T) {
	closes := []float64{10, 12, 11, 9, 8, 10, 13}
	got := RSISeries(closes, 3)

	for i := 0; i < 3; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("index %d: expected undefined, got %.4f", i, got[i])
		}
	}
	want := map[int]float64{3: 40, 4: 30.7692, 5: 59.0909, 6: 78.6982}
	for i, w := range want {
		if math.Abs(got[i]-w) > 1e-3 {
			t.Errorf("index %d: expected %.4f, got %.4f", i, w, got[i])
		}
	}
}

func TestRSISeries_Deterministic(t *testing.T) {
	closes := walk(200)
	a := RSISeries(closes, 14)
	b := RSISeries(closes, 14)
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			t.Fatalf("index %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRSISeries_Boundaries(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	flat := make([]float64, 60)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
		flat[i] = 42
	}
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"all gains", up, 100},
		{"all losses", down, 0},
		{"flat", flat, 0},
	}
	for _, tt := range tests {
		got := RSISeries(tt.closes, 14)
		last := got[len(got)-1]
		if math.Abs(last-tt.want) > 1e-9 {
			t.Errorf("%s: expected %.1f, got %.4f", tt.name, tt.want, last)
		}
	}
}

func TestRSISeries_MatchesTalib(t *testing.T) {
	closes := walk(300)
	got := RSISeries(closes, 14)
	ref := talib.Rsi(closes, 14)
	for i := 14; i < len(closes); i++ {
		if math.Abs(got[i]-ref[i]) > 1e-6 {
			t.Fatalf("index %d: expected %.8f, got %.8f", i, ref[i], got[i])
		}
	}
}

func TestRSISeries_SkipsGaps(t *testing.T) {
	closes := []float64{10, 12, math.NaN(), 11, 9, 8, 10, 13}
	got := RSISeries(closes, 3)
	if !math.IsNaN(got[2]) {
		t.Errorf("gap slot should stay undefined, got %.4f", got[2])
	}
	compact := RSISeries([]float64{10, 12, 11, 9, 8, 10, 13}, 3)
	if math.Abs(got[7]-compact[6]) > 1e-12 {
		t.Errorf("expected gap to be skipped: %.6f vs %.6f", got[7], compact[6])
	}
}

func TestRSISeries_ShortInput(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		got := RSISeries(walk(n), 3)
		for i, v := range got {
			if !math.IsNaN(v) {
				t.Errorf("len %d index %d: expected undefined, got %.4f", n, i, v)
			}
		}
	}
}

func TestValidCount(t *testing.T) {
	v := []float64{1, math.NaN(), 2, 3}
	if got := ValidCount(v, 2); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := ValidCount(v, 10); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

// walk builds a deterministic zig-zag price path.
func walk(n int) []float64 {
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p += math.Sin(float64(i)*0.7)*2 + math.Cos(float64(i)*0.31)
		out[i] = p
	}
	return out
}
