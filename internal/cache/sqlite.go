package cache

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"StockCache/internal/model"
)

// SQLiteStore persists all instruments in one SQLite database. The
// timezone column on the meta row is the aware marker: entries stored
// with an empty zone are never served. A write replaces the whole entry
// inside one transaction, so readers see either the old or the new
// series, never a mix.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
	mu  sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
// Entries are stamped with loc's IANA name; bar locations themselves are
// not persisted, because a parsed fixed-offset zone has no name that
// LoadLocation could resolve on the way back.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so daemon-mode readers don't block the refresh writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, loc: loc, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite cache opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_meta (
			symbol     TEXT PRIMARY KEY,
			written_at INTEGER NOT NULL,
			timezone   TEXT NOT NULL,
			min_ts     INTEGER NOT NULL,
			max_ts     INTEGER NOT NULL,
			row_count  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS series_bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (symbol, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_series_bars_ts ON series_bars(symbol, ts)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Read(symbol string, start, end time.Time, maxAge time.Duration) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SafeKey(symbol)
	var (
		writtenAt, minTS, maxTS int64
		zone                    string
		rowCount                int
	)
	err := s.db.QueryRow(
		`SELECT written_at, timezone, min_ts, max_ts, row_count FROM series_meta WHERE symbol = ?`, key,
	).Scan(&writtenAt, &zone, &minTS, &maxTS, &rowCount)
	if err == sql.ErrNoRows {
		return invalid(ReasonAbsent)
	}
	if err != nil {
		return invalid(ReasonUnreadable)
	}
	if rowCount == 0 {
		return invalid(ReasonEmpty)
	}

	aware := zone != ""
	reason := checkEntry(s.now(), time.Unix(writtenAt, 0), maxAge, aware,
		time.Unix(minTS, 0), time.Unix(maxTS, 0), start, end)
	if reason != "" {
		return invalid(reason)
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return invalid(ReasonUnreadable)
	}

	rows, err := s.db.Query(
		`SELECT ts, open, high, low, close, volume FROM series_bars WHERE symbol = ? ORDER BY ts`, key)
	if err != nil {
		return invalid(ReasonUnreadable)
	}
	defer rows.Close()

	bars := make(model.Series, 0, rowCount)
	for rows.Next() {
		var ts, vol int64
		var o, h, l, c float64
		if err := rows.Scan(&ts, &o, &h, &l, &c, &vol); err != nil {
			return invalid(ReasonUnreadable)
		}
		bars = append(bars, model.Bar{Time: time.Unix(ts, 0).In(loc), Open: o, High: h, Low: l, Close: c, Volume: vol})
	}
	if err := rows.Err(); err != nil {
		return invalid(ReasonUnreadable)
	}
	if len(bars) == 0 {
		return invalid(ReasonEmpty)
	}
	return Result{Bars: bars, Valid: true}
}

func (s *SQLiteStore) Write(symbol string, bars model.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SafeKey(symbol)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM series_bars WHERE symbol = ?`, key); err != nil {
		return fmt.Errorf("clear bars: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM series_meta WHERE symbol = ?`, key); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}

	ins, err := tx.Prepare(`INSERT INTO series_bars (symbol, ts, open, high, low, close, volume) VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	zone := s.loc.String()
	var minTS, maxTS int64
	for i, b := range bars {
		if i == 0 {
			minTS = b.Time.Unix()
		}
		maxTS = b.Time.Unix()
		if _, err := ins.Exec(key, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO series_meta (symbol, written_at, timezone, min_ts, max_ts, row_count) VALUES (?,?,?,?,?,?)`,
		key, s.now().Unix(), zone, minTS, maxTS, len(bars),
	); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite cache")
	return s.db.Close()
}
