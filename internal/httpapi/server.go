package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weatherdash/internal/config"
)

// NewServer wraps handler with request metrics and logging. reg may be nil.
func NewServer(cfg config.Config, handler http.Handler, reg prometheus.Registerer, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(logger, instrument(reg, handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
