package export

import (
	"strconv"

	"SignalScanner/internal/model"
)

// FractalRow is the export DTO for fractal events.
type FractalRow struct {
	Symbol      string   `json:"symbol" parquet:"symbol"`
	Date        string   `json:"date" parquet:"date"`
	Polarity    string   `json:"polarity" parquet:"polarity"`
	RangeHigh   float64  `json:"range_high" parquet:"range_high"`
	RangeLow    float64  `json:"range_low" parquet:"range_low"`
	CenterRSI   *float64 `json:"center_rsi" parquet:"center_rsi,optional"`
	CenterClose float64  `json:"center_close" parquet:"center_close"`
}

func (FractalRow) header() []string {
	return []string{"symbol", "date", "polarity", "range_high", "range_low", "center_rsi", "center_close"}
}

func (r FractalRow) record() []string {
	return []string{r.Symbol, r.Date, r.Polarity, floatStr(r.RangeHigh), floatStr(r.RangeLow), optStr(r.CenterRSI), floatStr(r.CenterClose)}
}

// NarrowRangeRow is the export DTO for narrow-range events.
type NarrowRangeRow struct {
	Symbol     string  `json:"symbol" parquet:"symbol"`
	Date       string  `json:"date" parquet:"date"`
	WindowSize int32   `json:"window_size" parquet:"window_size"`
	RangeValue float64 `json:"range_value" parquet:"range_value"`
	Rank       int32   `json:"rank" parquet:"rank"`
}

func (NarrowRangeRow) header() []string {
	return []string{"symbol", "date", "window_size", "range_value", "rank"}
}

func (r NarrowRangeRow) record() []string {
	return []string{r.Symbol, r.Date, strconv.Itoa(int(r.WindowSize)), floatStr(r.RangeValue), strconv.Itoa(int(r.Rank))}
}

// CrossRow is the export DTO for RSI threshold crosses.
type CrossRow struct {
	Symbol        string  `json:"symbol" parquet:"symbol"`
	Date          string  `json:"date" parquet:"date"`
	Period        int32   `json:"period" parquet:"period"`
	Type          string  `json:"type" parquet:"type"`
	Threshold     float64 `json:"threshold" parquet:"threshold"`
	PrevRSI       float64 `json:"prev_rsi" parquet:"prev_rsi"`
	CurrRSI       float64 `json:"curr_rsi" parquet:"curr_rsi"`
	ReferenceHigh float64 `json:"reference_high" parquet:"reference_high"`
}

func (CrossRow) header() []string {
	return []string{"symbol", "date", "period", "type", "threshold", "prev_rsi", "curr_rsi", "reference_high"}
}

func (r CrossRow) record() []string {
	return []string{r.Symbol, r.Date, strconv.Itoa(int(r.Period)), r.Type, floatStr(r.Threshold),
		floatStr(r.PrevRSI), floatStr(r.CurrRSI), floatStr(r.ReferenceHigh)}
}

// DivergenceRow is the export DTO for hidden divergence signals.
type DivergenceRow struct {
	Symbol              string  `json:"symbol" parquet:"symbol"`
	SignalDate          string  `json:"signal_date" parquet:"signal_date"`
	Type                string  `json:"type" parquet:"type"`
	CurrentFractalDate  string  `json:"current_fractal_date" parquet:"current_fractal_date"`
	CurrentClose        float64 `json:"current_close" parquet:"current_close"`
	CurrentRSI          float64 `json:"current_rsi" parquet:"current_rsi"`
	ComparedFractalDate string  `json:"compared_fractal_date" parquet:"compared_fractal_date"`
	ComparedClose       float64 `json:"compared_close" parquet:"compared_close"`
	ComparedRSI         float64 `json:"compared_rsi" parquet:"compared_rsi"`
	BuyAboveLevel       float64 `json:"buy_above_level" parquet:"buy_above_level"`
	SellBelowLevel      float64 `json:"sell_below_level" parquet:"sell_below_level"`
	Rank                int32   `json:"rank" parquet:"rank"`
}

func (DivergenceRow) header() []string {
	return []string{"symbol", "signal_date", "type", "current_fractal_date", "current_close", "current_rsi",
		"compared_fractal_date", "compared_close", "compared_rsi", "buy_above_level", "sell_below_level", "rank"}
}

func (r DivergenceRow) record() []string {
	return []string{r.Symbol, r.SignalDate, r.Type, r.CurrentFractalDate, floatStr(r.CurrentClose), floatStr(r.CurrentRSI),
		r.ComparedFractalDate, floatStr(r.ComparedClose), floatStr(r.ComparedRSI),
		floatStr(r.BuyAboveLevel), floatStr(r.SellBelowLevel), strconv.Itoa(int(r.Rank))}
}

// FractalRows converts events to export rows.
func FractalRows(events []model.FractalEvent) []FractalRow {
	out := make([]FractalRow, len(events))
	for i, e := range events {
		out[i] = FractalRow{
			Symbol:      e.Symbol,
			Date:        model.FormatDay(e.Date),
			Polarity:    string(e.Polarity),
			RangeHigh:   e.RangeHigh,
			RangeLow:    e.RangeLow,
			CenterRSI:   e.CenterRSI,
			CenterClose: e.CenterClose,
		}
	}
	return out
}

func NarrowRangeRows(events []model.NarrowRangeEvent) []NarrowRangeRow {
	out := make([]NarrowRangeRow, len(events))
	for i, e := range events {
		out[i] = NarrowRangeRow{
			Symbol:     e.Symbol,
			Date:       model.FormatDay(e.Date),
			WindowSize: int32(e.WindowSize),
			RangeValue: e.RangeValue,
			Rank:       int32(e.Rank),
		}
	}
	return out
}

func CrossRows(events []model.CrossEvent) []CrossRow {
	out := make([]CrossRow, len(events))
	for i, e := range events {
		out[i] = CrossRow{
			Symbol:        e.Symbol,
			Date:          model.FormatDay(e.Date),
			Period:        int32(e.Period),
			Type:          string(e.Type),
			Threshold:     e.Threshold,
			PrevRSI:       e.PrevRSI,
			CurrRSI:       e.CurrRSI,
			ReferenceHigh: e.ReferenceHigh,
		}
	}
	return out
}

func DivergenceRows(events []model.DivergenceSignal) []DivergenceRow {
	out := make([]DivergenceRow, len(events))
	for i, e := range events {
		out[i] = DivergenceRow{
			Symbol:              e.Symbol,
			SignalDate:          model.FormatDay(e.SignalDate),
			Type:                string(e.Type),
			CurrentFractalDate:  model.FormatDay(e.CurrentFractalDate),
			CurrentClose:        e.CurrentClose,
			CurrentRSI:          e.CurrentRSI,
			ComparedFractalDate: model.FormatDay(e.ComparedFractalDate),
			ComparedClose:       e.ComparedClose,
			ComparedRSI:         e.ComparedRSI,
			BuyAboveLevel:       e.BuyAboveLevel,
			SellBelowLevel:      e.SellBelowLevel,
			Rank:                int32(e.Rank),
		}
	}
	return out
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optStr(f *float64) string {
	if f == nil {
		return ""
	}
	return floatStr(*f)
}
