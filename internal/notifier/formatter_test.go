package notifier

import (
	"strings"
	"testing"
	"time"

	"SignalScanner/internal/model"
)

func TestFormatSummary(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		sum  model.RunSummary
		want []string
		not  []string
	}{
		{
			name: "clean run",
			sum:  model.RunSummary{RunID: "r1", Mode: model.ModeIncremental, StartedAt: start, FinishedAt: start.Add(90 * time.Second), Attempted: 5, Succeeded: 5},
			want: []string{"✅", "incremental", "Attempted: 5", "Succeeded: 5", "Failed: 0", "Took: 1m30s"},
			not:  []string{"Degraded", "Cancelled"},
		},
		{
			name: "failures and gaps",
			sum:  model.RunSummary{RunID: "r2", Mode: model.ModeFull, Attempted: 5, Succeeded: 3, Failed: 2, Degraded: 1},
			want: []string{"⚠️", "Failed: 2", "Degraded (gaps in bars): 1"},
		},
		{
			name: "cancelled",
			sum:  model.RunSummary{RunID: "r3", Mode: model.ModeFull, Attempted: 1, Succeeded: 1, Cancelled: true},
			want: []string{"⏹", "Cancelled before all symbols started"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSummary(tt.sum)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("expected %q in:\n%s", w, got)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("did not expect %q in:\n%s", n, got)
				}
			}
		})
	}
}

func TestRenderSummaryTable(t *testing.T) {
	out := RenderSummaryTable([]model.RunSummary{
		{RunID: "0123456789abcdef", Mode: model.ModeFull, StartedAt: time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC), Attempted: 4, Succeeded: 3, Failed: 1},
	})
	for _, w := range []string{"RUN", "01234567", "full", "2024-03-01 18:30"} {
		if !strings.Contains(out, w) {
			t.Errorf("expected %q in table:\n%s", w, out)
		}
	}
	if strings.Contains(out, "89abcdef") {
		t.Errorf("run id should be shortened:\n%s", out)
	}
}
