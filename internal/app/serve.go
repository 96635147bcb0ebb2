package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"weatherdash/internal/httpapi"
)

// Serve runs the HTTP server, the MQTT subscriber and the poller until ctx is
// done, then shuts them down.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := httpapi.NewServer(a.cfg, a.mux, a.metrics, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.broker != nil {
		// A broker that is down must not keep HTTP ingestion from starting.
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.broker.Connect(connectCtx); err != nil {
			a.logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
		cancel()
	}

	if len(a.cfg.PollStations) > 0 {
		poller := NewPoller(a.Weather, a.cfg.PollStations, a.cfg.PollInterval, a.logger)
		g.Go(func() error { return poller.Run(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if a.broker != nil {
			a.logger.Info("mqtt disconnecting")
			a.broker.Disconnect()
		}
		a.logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
