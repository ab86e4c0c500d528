package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"SignalScanner/internal/model"
)

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// HTTPProvider reads bars from a remote bar service:
//
//	GET {base}/api/v1/symbols                       -> ["AAA", "BBB"]
//	GET {base}/api/v1/bars?symbols=A,B&start=&end=  -> [{symbol,date,open,...}]
//
// Price fields may be numbers, numeric strings or null.
type HTTPProvider struct {
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewHTTPProvider applies defaults and builds the rate-limited client.
func NewHTTPProvider(opts HTTPOptions, log zerolog.Logger) *HTTPProvider {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &HTTPProvider{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RequestsPerSec)), opts.RequestsPerSec),
		log:     log.With().Str("component", "http_provider").Logger(),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

// wireBar is the expected JSON shape from the bar service.
type wireBar struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Open   any    `json:"open"`
	High   any    `json:"high"`
	Low    any    `json:"low"`
	Close  any    `json:"close"`
	Volume any    `json:"volume"`
}

func (p *HTTPProvider) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := p.getJSON(ctx, "/api/v1/symbols", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch symbols: %w", err)
	}
	return out, nil
}

func (p *HTTPProvider) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error) {
	q := url.Values{}
	if len(symbols) > 0 {
		q.Set("symbols", strings.Join(symbols, ","))
	}
	if !start.IsZero() {
		q.Set("start", model.FormatDay(start))
	}
	if !end.IsZero() {
		q.Set("end", model.FormatDay(end))
	}
	var rows []wireBar
	if err := p.getJSON(ctx, "/api/v1/bars", q, &rows); err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		d, ok := Date(r.Date)
		if !ok || r.Symbol == "" {
			p.log.Debug().Str("symbol", r.Symbol).Str("date", r.Date).Msg("dropping row without a usable key")
			continue
		}
		bars = append(bars, model.Bar{
			Symbol: r.Symbol,
			Date:   d,
			Open:   Value(r.Open),
			High:   Value(r.High),
			Low:    Value(r.Low),
			Close:  Value(r.Close),
			Volume: Value(r.Volume),
		})
	}
	return Normalize(bars), nil
}

// StatusError is a non-200 reply from the bar service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	endpoint := p.opts.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body []byte
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if p.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(serr)
			}
			return serr
		}
		body = b
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.opts.MaxRetryTimeout
	var policy backoff.BackOff = b
	if p.opts.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(p.opts.MaxRetries))
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Msg("bar service request failed")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
