package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/bootstrap"
	"github.com/Domenick1991/flightsync/internal/kafka"
	"github.com/Domenick1991/flightsync/internal/logger"
	"github.com/Domenick1991/flightsync/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("build app", zap.Error(err))
	}
	defer app.Close()

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.SyncRequestsTopic, zl.Named("kafka"))
		defer consumer.Close()

		go func() {
			err := consumer.ConsumeSyncRequests(ctx, func(ctx context.Context, req kafka.SyncRequest) error {
				handleRequest(ctx, app.Pool, req, zl)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				zl.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	runPopular(ctx, app.Pool, cfg, zl)

	ticker := time.NewTicker(cfg.Sync.ScheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runPopular(ctx, app.Pool, cfg, zl)
		case <-ctx.Done():
			zl.Info("shutting down")
			return
		}
	}
}

func handleRequest(ctx context.Context, pool *scheduler.Pool, req kafka.SyncRequest, log *zap.Logger) {
	var jobs []scheduler.Job
	if req.Kind == kafka.RequestKindReference {
		jobs = []scheduler.Job{{Kind: scheduler.KindReference}}
	} else {
		from, _ := req.StartDate()
		jobs = scheduler.RangeJobs(req.Route(), from, req.Days)
	}
	results, failed := scheduler.Results(pool.Run(ctx, jobs))
	log.Info("sync request handled",
		zap.String("kind", req.Kind),
		zap.Int("jobs", len(jobs)),
		zap.Int("succeeded", len(results)),
		zap.Int("failed", failed))
}

// runPopular syncs the configured routes for today and the next days_ahead days.
// A failed job is retried on the next tick only.
func runPopular(ctx context.Context, pool *scheduler.Pool, cfg *config.Config, log *zap.Logger) {
	if len(cfg.Sync.Routes) == 0 {
		return
	}
	jobs := scheduler.PopularJobs(cfg.Sync.Routes, time.Now(), cfg.Sync.DaysAhead)
	results, failed := scheduler.Results(pool.Run(ctx, jobs))
	log.Info("scheduled sync finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("succeeded", len(results)),
		zap.Int("failed", failed))
}
