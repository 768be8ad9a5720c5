package main

import (
	"fmt"

	"github.com/Domenick1991/flightsync/internal/kafka"
	"github.com/Domenick1991/flightsync/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rangeDays int
	enqueue   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync DEP ARR DATE",
	Short: "Sync one route for one day (DATE is YYYY-MM-DD)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, date, err := parseArgs(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		_, app, _, closeFn, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := app.Service.SyncRoute(cmd.Context(), route, date)
		if perr := printJSON(res); perr != nil {
			return perr
		}
		return err
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range DEP ARR FROM",
	Short: "Sync one route for --days consecutive days",
	Long: `Sync one route for several days on the bounded worker pool.

With --enqueue the request is published to the sync requests topic
and handled by a worker instead.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, from, err := parseArgs(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		cfg, app, l, closeFn, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		if enqueue {
			if app.Producer == nil {
				return fmt.Errorf("no kafka brokers configured")
			}
			req := kafka.SyncRequest{Kind: kafka.RequestKindRoute, Departure: route.Departure, Arrival: route.Arrival, Date: args[2], Days: rangeDays}
			if err := app.Producer.PublishSyncRequest(cmd.Context(), cfg.Kafka.SyncRequestsTopic, req); err != nil {
				return err
			}
			l.Info("sync request enqueued", zap.String("route", route.String()), zap.Int("days", rangeDays))
			return nil
		}

		outcomes := app.Pool.SyncRange(cmd.Context(), route, from, rangeDays)
		results, failed := scheduler.Results(outcomes)
		for _, o := range outcomes {
			if o.Err != nil {
				l.Warn("job failed", zap.String("job", o.Job.String()), zap.Error(o.Err))
			}
		}
		if err := printJSON(results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d jobs failed", failed, len(outcomes))
		}
		return nil
	},
}

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Refresh airports and airlines from both upstreams",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, app, _, closeFn, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := app.Service.SyncReference(cmd.Context())
		if perr := printJSON(res); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	rangeCmd.Flags().IntVar(&rangeDays, "days", 7, "number of days to sync")
	rangeCmd.Flags().BoolVar(&enqueue, "enqueue", false, "publish a sync request instead of running it here")

	rootCmd.AddCommand(syncCmd, rangeCmd, referenceCmd)
}
