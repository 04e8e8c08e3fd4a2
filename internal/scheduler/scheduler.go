package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"StockCache/internal/cache"
	"StockCache/internal/config"
	"StockCache/internal/export"
	"StockCache/internal/fetcher"
	"StockCache/internal/pipeline"
)

// Scheduler refreshes the cached series for every configured ticker on a
// cron schedule and re-exports the artifacts the renderer consumes.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline *pipeline.Pipeline
	Cfg      *config.Config
	Saver    export.Saver // nil disables export
	Ctx      context.Context
}

// New creates a scheduler. Saver may be nil when no export is configured.
func New(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, saver export.Saver) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Pipeline: p,
		Cfg:      cfg,
		Saver:    saver,
		Ctx:      ctx,
	}
}

// Register installs the refresh task.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.refreshAll); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the refresh task immediately (manual trigger /
// RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.refreshAll()
}

// refreshAll runs the pipeline per ticker. One failing ticker never
// blocks the rest; a stale-but-covered cache entry simply triggers its
// own re-fetch on the next tick.
func (s *Scheduler) refreshAll() {
	log.Println("[INFO] running cache refresh")
	loc, err := s.Cfg.Location()
	if err != nil {
		log.Printf("[ERROR] refresh: %v", err)
		return
	}
	start, end, err := s.Cfg.Range(loc)
	if err != nil {
		log.Printf("[ERROR] refresh: %v", err)
		return
	}

	for _, ticker := range s.Cfg.Tickers {
		bars, err := s.Pipeline.GetSeries(s.Ctx, ticker, start, end)
		if err != nil {
			var exhausted *fetcher.ExhaustedError
			if errors.As(err, &exhausted) {
				log.Printf("[ERROR] refresh %s: provider exhausted after %d attempts: %v", ticker, exhausted.Attempts, exhausted.Err)
			} else {
				log.Printf("[ERROR] refresh %s: %v", ticker, err)
			}
			continue
		}
		if s.Saver == nil {
			continue
		}
		path := filepath.Join(s.Cfg.Export.Directory, cache.SafeKey(ticker)+"."+s.Saver.Extension())
		if err := s.Saver.Save(bars, path); err != nil {
			log.Printf("[ERROR] export %s: %v", ticker, err)
			continue
		}
		log.Printf("[INFO] %s: exported %d bars to %s", ticker, len(bars), path)
	}
}
