// Package cache holds the shared RSI cache used when several scanner
// processes work against the same symbols.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/store"
)

// RedisOptions configure the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires a symbol's hash after the last write. Zero keeps it.
	TTL time.Duration
}

// RedisRSI stores RSI values in one hash per (symbol, period), with the day
// as field and the value as a decimal string.
type RedisRSI struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

var _ store.RSICache = (*RedisRSI)(nil)

// NewRedisRSI connects and pings the server.
func NewRedisRSI(opts RedisOptions, log zerolog.Logger) (*RedisRSI, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}

	l := log.With().Str("component", "redis").Logger()
	l.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return &RedisRSI{client: client, ttl: opts.TTL, log: l}, nil
}

func rsiKey(symbol string, period int) string {
	return fmt.Sprintf("rsi:%s:%d", symbol, period)
}

// GetRSI returns the cached values in [from, to]. Day strings sort
// chronologically, so the window is a string comparison.
func (r *RedisRSI) GetRSI(ctx context.Context, symbol string, period int, from, to time.Time) (map[string]float64, error) {
	fields, err := r.client.HGetAll(ctx, rsiKey(symbol, period)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make(map[string]float64, len(fields))
	for day, raw := range fields {
		if !inWindow(day, from, to) {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			r.log.Warn().Str("symbol", symbol).Str("day", day).Str("value", raw).Msg("dropping unparseable cached rsi")
			continue
		}
		out[day] = v
	}
	return out, nil
}

// PutRSI writes all points in one pipeline.
func (r *RedisRSI) PutRSI(ctx context.Context, points []model.RSIPoint) error {
	if len(points) == 0 {
		return nil
	}
	grouped := make(map[string][]any)
	for _, p := range points {
		k := rsiKey(p.Symbol, p.Period)
		grouped[k] = append(grouped[k], model.FormatDay(p.Date), strconv.FormatFloat(p.Value, 'g', -1, 64))
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, fv := range grouped {
			pipe.HSet(ctx, k, fv...)
			if r.ttl > 0 {
				pipe.Expire(ctx, k, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (r *RedisRSI) Close() error {
	return r.client.Close()
}

func inWindow(day string, from, to time.Time) bool {
	if !from.IsZero() && day < model.FormatDay(from) {
		return false
	}
	if !to.IsZero() && day > model.FormatDay(to) {
		return false
	}
	return true
}
