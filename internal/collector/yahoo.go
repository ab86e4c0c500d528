package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooOptions configure a YahooFetcher.
type YahooOptions struct {
	// Symbols is the universe served by Symbols.
	Symbols []string
	// SymbolMap maps internal symbols to Yahoo tickers.
	SymbolMap      map[string]string
	BaseURL        string
	Proxy          string
	Timeout        time.Duration
	RequestsPerSec int
	MaxRetries     int
}

// YahooFetcher serves daily bars from the Yahoo Finance chart API for a
// fixed symbol list.
type YahooFetcher struct {
	opts    YahooOptions
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts YahooOptions, log zerolog.Logger) *YahooFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = yahooBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.SymbolMap == nil {
		opts.SymbolMap = map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		}
	}
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		log:     log.With().Str("component", "yahoo").Logger(),
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// Symbols returns the configured universe, sorted.
func (f *YahooFetcher) Symbols(_ context.Context) ([]string, error) {
	out := append([]string(nil), f.opts.Symbols...)
	sort.Strings(out)
	return out, nil
}

// FetchBars requests each symbol's chart over [start, end]. A zero start
// asks for the whole history.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error) {
	if symbols == nil {
		symbols = f.opts.Symbols
	}
	if end.IsZero() {
		end = time.Now()
	}
	var out []model.Bar
	for _, sym := range symbols {
		bars, err := f.fetchChart(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		out = append(out, bars...)
	}
	return provider.Normalize(out), nil
}

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.opts.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []any `json:"open"`
					High   []any `json:"high"`
					Low    []any `json:"low"`
					Close  []any `json:"close"`
					Volume []any `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	if start.IsZero() {
		q.Set("period1", "0")
	}
	// period2 is exclusive.
	q.Set("period2", strconv.FormatInt(model.Day(end).AddDate(0, 0, 1).Unix(), 10))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", strings.TrimRight(f.opts.BaseURL, "/"),
		url.PathEscape(f.yahooSymbol(symbol)), q.Encode())

	var chart yahooChart
	op := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return f.get(ctx, u, &chart)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(f.opts.MaxRetries, 0))), ctx)
	notify := func(err error, d time.Duration) {
		f.log.Warn().Err(err).Str("symbol", symbol).Dur("retry_in", d).Msg("yahoo request failed")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}

	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	at := func(vals []any, i int) float64 {
		if i >= len(vals) {
			return math.NaN()
		}
		return provider.Value(vals[i])
	}
	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bar := model.Bar{
			Symbol: symbol,
			Date:   model.Day(time.Unix(ts+result.Meta.GMTOffset, 0).UTC()),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		}
		// Holidays come back as all-null rows.
		if math.IsNaN(bar.Open) && math.IsNaN(bar.High) && math.IsNaN(bar.Low) && math.IsNaN(bar.Close) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (f *YahooFetcher) get(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yahoo read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown ticker: the body still carries a chart error.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("yahoo: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body, 200)))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return backoff.Permanent(fmt.Errorf("yahoo decode: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
