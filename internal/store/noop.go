package store

import (
	"context"
	"time"

	"SignalScanner/internal/model"
)

// NoopCache never hits and drops writes. Used when rsi_cache is "none".
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (NoopCache) GetRSI(_ context.Context, _ string, _ int, _, _ time.Time) (map[string]float64, error) {
	return nil, nil
}
func (NoopCache) PutRSI(_ context.Context, _ []model.RSIPoint) error { return nil }

// NoopRecorder drops run log entries.
type NoopRecorder struct{}

func (NoopRecorder) RecordRun(_ context.Context, _ model.RunSummary) error { return nil }
