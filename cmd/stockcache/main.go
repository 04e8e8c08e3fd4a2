package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"StockCache/internal/cache"
	"StockCache/internal/config"
	"StockCache/internal/export"
	"StockCache/internal/fetcher"
	"StockCache/internal/pipeline"
	"StockCache/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] StockCache starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	start, end, err := cfg.Range(loc)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	// Init cache store
	store, err := cache.NewStore(cfg.Cache.Backend, cfg.Cache.Directory, cfg.Cache.SQLitePath, loc)
	if err != nil {
		log.Fatalf("[FATAL] init cache store: %v", err)
	}
	defer store.Close()
	log.Printf("[INFO] cache backend: %s", cfg.Cache.Backend)

	// Init remote
	var remote fetcher.Remote
	if os.Getenv("STOCKCACHE_OFFLINE") == "true" {
		remote = &fetcher.StubRemote{}
	} else {
		remote = fetcher.NewYahooRemote(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", remote.Name())

	client := fetcher.NewClient(remote, cfg.Fetch.MaxRetries, cfg.RetryDelay())
	pipe := pipeline.New(store, client, loc, cfg.MaxStaleness())

	// Init export sink
	var saver export.Saver
	if cfg.Export.Format != "" {
		saver = export.NewSaver(cfg.Export.Format)
		if saver == nil {
			log.Fatalf("[FATAL] unsupported export format %q", cfg.Export.Format)
		}
		if err := os.MkdirAll(cfg.Export.Directory, 0o755); err != nil {
			log.Fatalf("[FATAL] create export dir: %v", err)
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if os.Getenv("STOCKCACHE_DAEMON") != "true" {
		if failed := runOnce(ctx, pipe, cfg, start, end, saver); failed > 0 {
			store.Close()
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(ctx, pipe, cfg, saver)
	if err := sched.Register(cfg.Schedule.RefreshCron); err != nil {
		log.Fatalf("[FATAL] register cron task: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, refreshing now")
		go sched.RunNow()
	}

	log.Println("[INFO] StockCache is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] StockCache stopped")
}

// runOnce runs the pipeline for every ticker and returns how many of
// them failed. A failing ticker is logged and skipped, never aborts the
// rest of the run. It must not exit the process itself: main still has
// the store to close.
func runOnce(ctx context.Context, pipe *pipeline.Pipeline, cfg *config.Config, start, end time.Time, saver export.Saver) int {
	failed := 0
	for _, ticker := range cfg.Tickers {
		bars, err := pipe.GetSeries(ctx, ticker, start, end)
		if err != nil {
			log.Printf("[ERROR] %s: %v", ticker, err)
			failed++
			continue
		}
		if saver == nil {
			continue
		}
		path := filepath.Join(cfg.Export.Directory, cache.SafeKey(ticker)+"."+saver.Extension())
		if err := saver.Save(bars, path); err != nil {
			log.Printf("[ERROR] export %s: %v", ticker, err)
			failed++
			continue
		}
		log.Printf("[INFO] %s: exported %d bars to %s", ticker, len(bars), path)
	}
	return failed
}
