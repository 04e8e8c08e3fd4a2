package cache

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"StockCache/internal/model"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVStore keeps one CSV file per instrument under a cache directory.
// Timestamps are written in RFC3339 with their UTC offset; the offset is
// what marks an entry timezone-aware on the way back in. Last-written
// time is the file's mtime. Writes go to a temp file first and are moved
// into place with an atomic rename.
type CSVStore struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCSVStore creates a store rooted at dir. The directory is created
// lazily on first write.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-symbol mutex, creating it on first use.
// Different symbols never contend with each other.
func (s *CSVStore) lockFor(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	return l
}

func (s *CSVStore) path(symbol string) string {
	return filepath.Join(s.dir, SafeKey(symbol)+".csv")
}

func (s *CSVStore) Read(symbol string, start, end time.Time, maxAge time.Duration) Result {
	l := s.lockFor(symbol)
	l.Lock()
	defer l.Unlock()

	path := s.path(symbol)
	info, err := os.Stat(path)
	if err != nil {
		return invalid(ReasonAbsent)
	}

	f, err := os.Open(path)
	if err != nil {
		return invalid(ReasonUnreadable)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return invalid(ReasonUnreadable)
	}
	if len(rows) == 0 || !headerMatches(rows[0]) {
		return invalid(ReasonUnreadable)
	}
	rows = rows[1:]
	if len(rows) == 0 {
		return invalid(ReasonEmpty)
	}

	bars := make(model.Series, 0, len(rows))
	for _, row := range rows {
		bar, aware, err := parseCSVRow(row)
		if err != nil {
			return invalid(ReasonUnreadable)
		}
		if !aware {
			return invalid(ReasonNaive)
		}
		bars = append(bars, bar)
	}

	min, max, _ := bars.Coverage()
	if reason := checkEntry(s.now(), info.ModTime(), maxAge, true, min, max, start, end); reason != "" {
		return invalid(reason)
	}
	return Result{Bars: bars, Valid: true}
}

func (s *CSVStore) Write(symbol string, bars model.Series) error {
	l := s.lockFor(symbol)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, SafeKey(symbol)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once the rename succeeds

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, b := range bars {
		row := []string{
			b.Time.Format(time.RFC3339),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(symbol)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }

func headerMatches(row []string) bool {
	if len(row) != len(csvHeader) {
		return false
	}
	for i, col := range csvHeader {
		if row[i] != col {
			return false
		}
	}
	return true
}

// parseCSVRow decodes one persisted bar. aware reports whether the
// timestamp carried an explicit UTC offset; a row without one means the
// entry predates timezone normalization and poisons the whole read.
func parseCSVRow(row []string) (bar model.Bar, aware bool, err error) {
	if len(row) != len(csvHeader) {
		return model.Bar{}, false, fmt.Errorf("want %d columns, got %d", len(csvHeader), len(row))
	}
	t, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		// Distinguish a naive-but-valid timestamp from garbage.
		if _, naiveErr := time.Parse("2006-01-02 15:04:05", row[0]); naiveErr == nil {
			return model.Bar{}, false, nil
		}
		if _, naiveErr := time.Parse("2006-01-02", row[0]); naiveErr == nil {
			return model.Bar{}, false, nil
		}
		return model.Bar{}, false, fmt.Errorf("parse timestamp: %w", err)
	}
	prices := make([]float64, 4)
	for i := 0; i < 4; i++ {
		prices[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Bar{}, false, fmt.Errorf("parse %s: %w", csvHeader[i+1], err)
		}
	}
	vol, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return model.Bar{}, false, fmt.Errorf("parse volume: %w", err)
	}
	return model.Bar{Time: t, Open: prices[0], High: prices[1], Low: prices[2], Close: prices[3], Volume: vol}, true, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
