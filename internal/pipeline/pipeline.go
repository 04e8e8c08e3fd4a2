package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"StockCache/internal/cache"
	"StockCache/internal/fetcher"
	"StockCache/internal/model"
	"StockCache/internal/series"
)

// Pipeline stages, used to label failures.
const (
	StageCheckCache = "check-cache"
	StageFetch      = "fetch"
	StageClean      = "clean"
	StageStore      = "store"
)

// Error ties a failure to the instrument and the stage that produced it.
type Error struct {
	Symbol string
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %s stage: %v", e.Symbol, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Pipeline composes cache, fetch and cleaning into a single operation:
// give me a validated daily series for a symbol and date range. It holds
// no series state of its own; the store owns everything persisted.
type Pipeline struct {
	Store  cache.Store
	Client *fetcher.Client
	Loc    *time.Location
	MaxAge time.Duration
}

// New creates a pipeline serving series in loc, trusting cache entries up
// to maxAge old.
func New(store cache.Store, client *fetcher.Client, loc *time.Location, maxAge time.Duration) *Pipeline {
	return &Pipeline{Store: store, Client: client, Loc: loc, MaxAge: maxAge}
}

// GetSeries returns a clean, ascending series covering [start, end].
// A valid cache entry is served as-is; otherwise the series is fetched,
// cleaned, written back, and returned. A failed write-back is logged and
// swallowed: the caller still gets the series it asked for.
func (p *Pipeline) GetSeries(ctx context.Context, symbol string, start, end time.Time) (model.Series, error) {
	res := p.Store.Read(symbol, start, end, p.MaxAge)
	if res.Valid {
		log.Printf("[INFO] %s: cache hit, %d bars", symbol, len(res.Bars))
		return res.Bars, nil
	}
	log.Printf("[INFO] %s: cache miss (%s), fetching", symbol, res.Reason)

	records, err := p.Client.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		return nil, &Error{Symbol: symbol, Stage: StageFetch, Err: err}
	}

	bars, report, err := series.Clean(records, p.Loc)
	if err != nil {
		return nil, &Error{Symbol: symbol, Stage: StageClean, Err: err}
	}
	if report.Dropped() > 0 {
		log.Printf("[INFO] %s: %s", symbol, report)
	}

	if err := p.Store.Write(symbol, bars); err != nil {
		// A fetched-and-cleaned series is still worth returning.
		log.Printf("[WARN] %s: cache write failed: %v", symbol, err)
	}

	log.Printf("[INFO] %s: fetched %d bars from %s", symbol, len(bars), p.Client.Remote.Name())
	return bars, nil
}
