package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"weatherdash/internal/app"
	"weatherdash/internal/ingest"
)

type ingestResult struct {
	StationKey string          `json:"stationKey"`
	Envelope   ingest.Envelope `json:"envelope"`
}

func newIngestCmd(e *env) *cobra.Command {
	var local bool
	var parallel int

	cmd := &cobra.Command{
		Use:   "ingest [stationKey...]",
		Short: "Run one ingestion invocation per station and print the envelopes",
		Long: "Runs the weather pipeline once per station (the default station when none is given)\n" +
			"and prints one JSON envelope per line. Exits non-zero if any invocation failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stations := args
			if len(stations) == 0 {
				stations = []string{e.cfg.DefaultStationKey}
			}

			cfg := e.cfg
			cfg.PollStations = nil
			cfg.MQTTBroker = ""

			var ln net.Listener
			if local {
				var err error
				ln, err = net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					return err
				}
				cfg.HTTPAddr = ln.Addr().String()
				cfg.APIEndpoint = "http://" + ln.Addr().String() + "/graphql"
			}

			a, err := app.New(ctx, cfg, e.logger, version)
			if err != nil {
				if ln != nil {
					_ = ln.Close()
				}
				return err
			}
			defer a.Close()

			serveCtx, stopServe := context.WithCancel(ctx)
			serveDone := make(chan error, 1)
			if ln != nil {
				go func() { serveDone <- a.ServeListener(serveCtx, ln) }()
			} else {
				close(serveDone)
			}
			defer func() {
				stopServe()
				<-serveDone
			}()

			results := make([]ingestResult, len(stations))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(parallel, 1))
			for i, key := range stations {
				g.Go(func() error {
					results[i] = ingestResult{StationKey: key, Envelope: a.Weather.Run(gctx, key)}
					return nil
				})
			}
			_ = g.Wait()

			return printResults(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "serve the data API in-process instead of calling API_ENDPOINT")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "maximum concurrent invocations")
	return cmd
}

func printResults(cmd *cobra.Command, results []ingestResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
		if r.Envelope.StatusCode >= http.StatusBadRequest {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d invocations failed", failed, len(results))
	}
	return nil
}
