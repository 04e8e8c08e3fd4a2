package cache

import (
	"time"

	"StockCache/internal/model"
)

// NoopStore is used when caching is disabled: every read misses and
// writes are discarded, so the pipeline fetches fresh data each run.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (*NoopStore) Read(_ string, _, _ time.Time, _ time.Duration) Result {
	return invalid(ReasonAbsent)
}

func (*NoopStore) Write(_ string, _ model.Series) error { return nil }

func (*NoopStore) Close() error { return nil }
