package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"weatherdash/internal/ingest"
)

const pollConcurrency = 4

// StationRunner runs one ingestion invocation for a station.
// *ingest.WeatherPipeline implements it.
type StationRunner interface {
	Run(ctx context.Context, stationKey string) ingest.Envelope
}

// Poller replaces the external scheduler for local runs: every interval it
// runs one invocation per station. A failed invocation is logged and waits
// for the next tick.
type Poller struct {
	runner   StationRunner
	stations []string
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(runner StationRunner, stations []string, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{runner: runner, stations: stations, interval: interval, logger: logger}
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "stations", p.stations, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one round and reports how many invocations ended in a failure
// envelope.
func (p *Poller) Poll(ctx context.Context) int {
	statuses := make([]int, len(p.stations))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for i, key := range p.stations {
		g.Go(func() error {
			statuses[i] = p.runner.Run(ctx, key).StatusCode
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, status := range statuses {
		if status >= http.StatusBadRequest {
			failed++
			p.logger.Warn("poll invocation failed", "stationKey", p.stations[i], "status", status)
		}
	}
	return failed
}
