package provider

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"SignalScanner/internal/model"
)

// Normalize sorts bars by (date, symbol) and drops repeated (symbol, date)
// pairs, keeping the last one seen. bars is left untouched.
func Normalize(bars []model.Bar) []model.Bar {
	type key struct {
		symbol string
		date   time.Time
	}
	last := make(map[key]int, len(bars))
	for i, b := range bars {
		last[key{b.Symbol, model.Day(b.Date)}] = i
	}
	out := make([]model.Bar, 0, len(last))
	for i, b := range bars {
		b.Date = model.Day(b.Date)
		if last[key{b.Symbol, b.Date}] == i {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// BySymbol splits normalized bars into per-symbol series, each still sorted
// by date.
func BySymbol(bars []model.Bar) map[string][]model.Bar {
	out := make(map[string][]model.Bar)
	for _, b := range bars {
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	return out
}

// Value coerces a loosely typed price field to float64. Anything that is
// not a finite number becomes NaN so detectors treat it as a gap.
func Value(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		f = p
	case string:
		return parseString(x)
	case []byte:
		return parseString(string(x))
	default:
		return math.NaN()
	}
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func parseString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

// Date parses the date forms upstream feeds send: "2006-01-02", RFC 3339,
// or a time.Time from a driver.
func Date(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return model.Day(x), true
	case string:
		return parseDate(x)
	case []byte:
		return parseDate(string(x))
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := model.ParseDay(s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return model.Day(t), true
	}
	if len(s) >= len(model.DateLayout) {
		if t, err := model.ParseDay(s[:len(model.DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
