package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockCache/internal/cache"
	"StockCache/internal/fetcher"
	"StockCache/internal/model"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t.UTC()
}

func newPipeline(t *testing.T, remote fetcher.Remote) (*Pipeline, cache.Store) {
	t.Helper()
	store := cache.NewCSVStore(t.TempDir())
	client := fetcher.NewClient(remote, 3, 0)
	return New(store, client, time.UTC, time.Hour), store
}

func TestGetSeries_FetchThenCacheHit(t *testing.T) {
	remote := &fetcher.StubRemote{
		Rows: fetcher.GenerateRows(100, day("2024-01-01"), 5),
	}
	pipe, _ := newPipeline(t, remote)

	start, end := day("2024-01-01"), day("2024-01-05")

	first, err := pipe.GetSeries(context.Background(), "0700.HK", start, end)
	require.NoError(t, err)
	assert.Len(t, first, 5)
	assert.Equal(t, 1, remote.Calls, "first call performs exactly one remote fetch")
	assert.True(t, first.Ascending())

	second, err := pipe.GetSeries(context.Background(), "0700.HK", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.Calls, "second call within the staleness window must not fetch")
	assert.True(t, first.Equal(second))
}

func TestGetSeries_OpenTimeStampsStillHitCache(t *testing.T) {
	// Live providers stamp daily bars at the market-open instant, not
	// midnight; the cached entry must still cover a midnight-to-midnight
	// request instead of re-fetching every run.
	rows := make([]map[string]any, 0, 3)
	for d := 1; d <= 3; d++ {
		rows = append(rows, map[string]any{
			"Date":   time.Date(2024, 1, d, 1, 30, 0, 0, time.UTC).Unix(),
			"Open":   10.0,
			"High":   11.0,
			"Low":    9.0,
			"Close":  10.5,
			"Volume": int64(1000),
		})
	}
	remote := &fetcher.StubRemote{Rows: rows}
	pipe, _ := newPipeline(t, remote)

	start, end := day("2024-01-01"), day("2024-01-03")
	first, err := pipe.GetSeries(context.Background(), "0700.HK", start, end)
	require.NoError(t, err)
	second, err := pipe.GetSeries(context.Background(), "0700.HK", start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, remote.Calls, "second call within the staleness window must not fetch")
	assert.True(t, first.Equal(second))
}

func TestGetSeries_FetchExhaustedPropagates(t *testing.T) {
	remote := &fetcher.StubRemote{Err: errors.New("provider down")}
	pipe, _ := newPipeline(t, remote)

	_, err := pipe.GetSeries(context.Background(), "0700.HK", day("2024-01-01"), day("2024-01-05"))
	require.Error(t, err)

	var pipeErr *Error
	require.True(t, errors.As(err, &pipeErr))
	assert.Equal(t, "0700.HK", pipeErr.Symbol)
	assert.Equal(t, StageFetch, pipeErr.Stage)

	var exhausted *fetcher.ExhaustedError
	assert.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, remote.Calls)
}

func TestGetSeries_CleanFailurePropagates(t *testing.T) {
	// One usable row is below the two-row minimum.
	remote := &fetcher.StubRemote{
		Rows: fetcher.GenerateRows(100, day("2024-01-01"), 1),
	}
	pipe, _ := newPipeline(t, remote)

	_, err := pipe.GetSeries(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-01"))
	require.Error(t, err)

	var pipeErr *Error
	require.True(t, errors.As(err, &pipeErr))
	assert.Equal(t, StageClean, pipeErr.Stage)
}

// failingStore misses every read and refuses every write.
type failingStore struct{}

func (failingStore) Read(string, time.Time, time.Time, time.Duration) cache.Result {
	return cache.Result{Valid: false, Reason: cache.ReasonAbsent}
}
func (failingStore) Write(string, model.Series) error { return errors.New("disk full") }
func (failingStore) Close() error                     { return nil }

func TestGetSeries_StoreFailureIsSwallowed(t *testing.T) {
	remote := &fetcher.StubRemote{
		Rows: fetcher.GenerateRows(100, day("2024-01-01"), 5),
	}
	client := fetcher.NewClient(remote, 1, 0)
	pipe := New(failingStore{}, client, time.UTC, time.Hour)

	bars, err := pipe.GetSeries(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err, "a fetched-and-cleaned series is returned even when persisting fails")
	assert.Len(t, bars, 5)
}

func TestGetSeries_StaleCacheTriggersRefetch(t *testing.T) {
	remote := &fetcher.StubRemote{
		Rows: fetcher.GenerateRows(100, day("2024-01-01"), 5),
	}
	store := cache.NewCSVStore(t.TempDir())
	client := fetcher.NewClient(remote, 3, 0)
	pipe := New(store, client, time.UTC, 0) // zero staleness window: nothing is ever fresh

	start, end := day("2024-01-01"), day("2024-01-05")
	_, err := pipe.GetSeries(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // let the entry age past the zero window
	_, err = pipe.GetSeries(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.Calls, "a stale entry must be re-fetched, never served")
}
