package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/livesync"
)

type snapshotLine[T any] struct {
	Time  time.Time `json:"time"`
	Model string    `json:"model"`
	Count int       `json:"count"`
	Items []T       `json:"items"`
}

func newWatchCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "watch <model>",
		Short:     "Follow a collection through the live sync client and print each snapshot",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{changefeed.ModelWeatherStationData, changefeed.ModelWeatherStation, changefeed.ModelDevices, changefeed.ModelTelemetry},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := livesync.Options{
				Endpoint: e.cfg.APIEndpoint,
				APIKey:   e.cfg.APIKey,
				Logger:   e.logger,
			}
			if limit > 0 {
				opts.ListVars = map[string]any{"limit": limit}
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case changefeed.ModelWeatherStationData:
				return watch(ctx, opts, livesync.WeatherStationData, out)
			case changefeed.ModelWeatherStation:
				return watch(ctx, opts, livesync.WeatherStations, out)
			case changefeed.ModelDevices:
				return watch(ctx, opts, livesync.Devices, out)
			case changefeed.ModelTelemetry:
				return watch(ctx, opts, livesync.Telemetry, out)
			default:
				return fmt.Errorf("unknown model %q", args[0])
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "limit passed to the initial list query")
	return cmd
}

func watch[T any](ctx context.Context, opts livesync.Options, model livesync.Model[T], out io.Writer) error {
	sub, err := livesync.Subscribe(ctx, opts, model)
	if err != nil {
		return err
	}
	defer sub.Close()

	enc := json.NewEncoder(out)
	for snap := range sub.Snapshots() {
		line := snapshotLine[T]{Time: time.Now().UTC(), Model: model.Name, Count: len(snap), Items: snap}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return sub.Err()
}
