package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wesleyyjpark/506MBTAProject/aggregate"
	"github.com/wesleyyjpark/506MBTAProject/config"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/pipeline"
	"github.com/wesleyyjpark/506MBTAProject/services"
	"github.com/wesleyyjpark/506MBTAProject/sources"
	"github.com/wesleyyjpark/506MBTAProject/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := os.Getenv("PIPELINE_CONFIG")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid pipeline options: %v", err)
	}

	var st *store.Store
	if cfg.Database.Enabled {
		pool, err := store.Connect(ctx, cfg.Database.GetDSN())
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		st = store.New(pool)
		if err := st.Migrate(ctx); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		log.Printf("db connected")
	}

	cache := services.NewCacheFromClient(nil)
	if cfg.Redis.Enabled {
		c, err := services.NewCacheService(cfg.Redis)
		if err != nil {
			log.Printf("redis unavailable, skipping publish: %v", err)
		} else {
			log.Printf("redis connected")
		}
		cache = c
	}
	defer cache.Close()

	var reader sources.AlertReader
	if st != nil {
		reader = st
	} else if cfg.Sources.AlertsFromDB {
		log.Printf("warning: alerts_from_db set without a database, falling back to %q", cfg.Sources.Alerts)
	}
	required, optional, err := pipeline.Loaders(cfg, reader)
	if err != nil {
		log.Fatalf("invalid sources: %v", err)
	}

	res, err := pipeline.Run(ctx, required, optional, opts)
	if err != nil {
		pushMetrics(cfg)
		log.Fatalf("pipeline failed: %v", err)
	}
	rep := res.Report

	names := aggregate.StopNames{}
	if cfg.Sources.StopNames != "" {
		if names, err = aggregate.LoadStopNames(cfg.Sources.StopNames); err != nil {
			log.Printf("warning: stop names unavailable: %v", err)
		}
	}
	views, err := aggregate.Build(res.Features, res.Sources, cfg.Pipeline.HeatmapTopN, names)
	if err != nil {
		log.Fatalf("views failed: %v", err)
	}

	if cfg.Output.CSVPath != "" {
		if err := exportCSV(cfg.Output.CSVPath, res.Wide); err != nil {
			log.Fatalf("csv export failed: %v", err)
		}
		log.Printf("wrote %d rows to %s", res.Wide.Len(), cfg.Output.CSVPath)
	}

	if st != nil {
		stored, err := persist(ctx, st, rep, res.Wide)
		if err != nil {
			log.Fatalf("store run failed: %v", err)
		}
		log.Printf("stored run %s: %d/%d feature rows", rep.RunID, stored, res.Wide.Len())
	}

	published := publish(ctx, cache, cfg.Output, rep, views)
	pushMetrics(cfg)

	log.Printf("run %s completed: rows=%d selected=%d accuracy=%.3f baseline=%.3f published=%t (%.2fs)",
		rep.RunID, rep.Rows, len(rep.Selection.Selected), rep.Evaluation.Accuracy, rep.Evaluation.Baseline,
		published, rep.Duration.Seconds())
}

type runStore interface {
	SaveRun(ctx context.Context, rep *pipeline.Report) error
	SaveFeatures(ctx context.Context, runID string, tbl *daily.Table) (int, error)
}

func persist(ctx context.Context, st runStore, rep *pipeline.Report, wide *daily.Table) (int, error) {
	if err := st.SaveRun(ctx, rep); err != nil {
		return 0, err
	}
	return st.SaveFeatures(ctx, rep.RunID, wide)
}

type publisher interface {
	Available() bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message any) error
}

// publish caches the latest report and views and announces the run. It
// reports whether the announcement went out.
func publish(ctx context.Context, cache publisher, out config.OutputConfig, rep *pipeline.Report, views *aggregate.Views) bool {
	if !cache.Available() {
		return false
	}
	if err := cache.Set(ctx, services.LatestRunKey, rep, 0); err != nil {
		log.Printf("cache latest run failed: %v", err)
	}
	if err := cache.Set(ctx, services.LatestViewKey, views, 0); err != nil {
		log.Printf("cache views failed: %v", err)
	}
	if !out.Publish {
		return false
	}
	channel := out.Channel
	if channel == "" {
		channel = services.RunsChannel
	}
	if err := cache.Publish(ctx, channel, rep); err != nil {
		log.Printf("publish run failed: %v", err)
		return false
	}
	return true
}

func exportCSV(path string, tbl *daily.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := aggregate.WriteCSV(f, tbl); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func pushMetrics(cfg *config.Config) {
	if err := pipeline.PushMetrics(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Printf("metrics push failed: %v", err)
	}
}
