package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/bootstrap"
	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/logger"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Run flight syncs and searches from the command line",
	Long: `syncctl drives the same sync service as the worker, one job at a time.
It is meant for backfills, debugging upstream payloads and operating the search cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		l, logErr := logger.New(config.LogConfig{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "path to config file")
}

// setup loads config and wires the service. The returned func releases connections.
func setup(ctx context.Context) (*config.Config, *bootstrap.App, *zap.Logger, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	app, err := bootstrap.Build(ctx, cfg, l)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, app, l, func() {
		app.Close()
		_ = l.Sync()
	}, nil
}

func parseArgs(dep, arr, date string) (domain.Route, time.Time, error) {
	route := domain.NewRoute(dep, arr)
	if len(route.Departure) != 3 || len(route.Arrival) != 3 {
		return route, time.Time{}, fmt.Errorf("invalid route %s", route)
	}
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return route, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return route, d, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
