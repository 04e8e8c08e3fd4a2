package cache

import (
	"fmt"
	"strings"
	"time"

	"StockCache/internal/model"
)

// Invalidity reasons reported by Read.
const (
	ReasonAbsent     = "absent"
	ReasonUnreadable = "unreadable"
	ReasonEmpty      = "empty"
	ReasonStale      = "stale"
	ReasonNaive      = "naive timestamps"
	ReasonCoverage   = "coverage gap"
)

// Result is the outcome of a cache read. A read never fails hard: I/O and
// parse problems surface as Invalid with a reason, and the pipeline falls
// back to a fresh fetch.
type Result struct {
	Bars   model.Series
	Valid  bool
	Reason string
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Store persists one series per instrument. Writes replace the whole
// entry; there is no incremental merge. A write must never be observable
// half-done by a concurrent read of the same symbol.
type Store interface {
	// Read returns the cached series for symbol when the entry is fresh
	// within maxAge, carries timezone-aware timestamps, and fully covers
	// [start, end]. Anything else comes back Invalid with a reason.
	Read(symbol string, start, end time.Time, maxAge time.Duration) Result
	// Write replaces the entry for symbol and stamps it with the current
	// time.
	Write(symbol string, bars model.Series) error
	Close() error
}

// NewStore creates a store implementation by backend name. loc is the
// zone cached series are served in; only the sqlite backend needs it.
func NewStore(backend, dir, sqlitePath string, loc *time.Location) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "csv":
		return NewCSVStore(dir), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath, loc)
	case "none":
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// checkEntry applies the freshness, timezone and coverage rules shared by
// all backends. It returns "" when the entry is usable.
func checkEntry(now, written time.Time, maxAge time.Duration, aware bool, min, max, start, end time.Time) string {
	if now.Sub(written) > maxAge {
		return ReasonStale
	}
	if !aware {
		return ReasonNaive
	}
	if min.After(start) || max.Before(end) {
		return ReasonCoverage
	}
	return ""
}

// SafeKey normalizes an instrument id into a filesystem- and
// primary-key-safe form ("0700.HK" stays, "BRK/B" becomes "BRK_B").
func SafeKey(symbol string) string {
	var b strings.Builder
	for _, r := range symbol {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
