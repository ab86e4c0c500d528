package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"SignalScanner/internal/model"
)

// FormatSummary formats one scan run for Telegram.
func FormatSummary(sum model.RunSummary) string {
	var b strings.Builder

	icon := "✅"
	switch {
	case sum.Cancelled:
		icon = "⏹"
	case sum.Failed > 0:
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>Signal scan</b> | %s\n\n", icon, html.EscapeString(string(sum.Mode))))
	b.WriteString(fmt.Sprintf("Attempted: %d\n", sum.Attempted))
	b.WriteString(fmt.Sprintf("Succeeded: %d\n", sum.Succeeded))
	b.WriteString(fmt.Sprintf("Failed: %d\n", sum.Failed))
	if sum.Degraded > 0 {
		b.WriteString(fmt.Sprintf("Degraded (gaps in bars): %d\n", sum.Degraded))
	}
	if sum.Cancelled {
		b.WriteString("Cancelled before all symbols started\n")
	}
	if !sum.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("\nStarted: %s\n", sum.StartedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("Took: %s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second)))
	}
	b.WriteString(fmt.Sprintf("<code>%s</code>\n", html.EscapeString(sum.RunID)))
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "<b>Commands</b>\n/incremental - run an incremental scan\n/last - show the last scan summary\n/help - this message"
}

// RenderSummaryTable renders runs as a console table, newest first as given.
func RenderSummaryTable(runs []model.RunSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Mode", "Started", "Attempted", "Succeeded", "Failed", "Degraded", "Cancelled"})
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		t.AppendRow(table.Row{
			id, r.Mode, r.StartedAt.Format("2006-01-02 15:04"),
			r.Attempted, r.Succeeded, r.Failed, r.Degraded, r.Cancelled,
		})
	}
	return t.Render()
}
