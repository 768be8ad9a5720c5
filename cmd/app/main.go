package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightsync/api"
	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/bootstrap"
	"github.com/Domenick1991/flightsync/internal/logger"
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

	go reloadTranslations(ctx, app, cfg.Cache.ReferenceTTL, zl)

	handler := api.NewFlightHandler(app.Service, app.Pool, app.Search).WithDelays(app.Delays)
	if err := bootstrap.Run(ctx, cfg, bootstrap.NewRouter(handler, zl), zl); err != nil {
		zl.Error("server error", zap.Error(err))
	}
}

// reloadTranslations picks up names written by other processes, such as the worker.
func reloadTranslations(ctx context.Context, app *bootstrap.App, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := app.Persist.LoadTranslations(ctx); err != nil {
				log.Warn("reload translations", zap.Error(err))
			}
		}
	}
}
