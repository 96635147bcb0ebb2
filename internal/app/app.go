// Package app assembles the store, the data API, the ingestion pipelines and
// their transports into one process.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/config"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/db"
	"weatherdash/internal/db/migrate"
	"weatherdash/internal/httpapi"
	"weatherdash/internal/ingest"
	"weatherdash/internal/modules/devices"
	"weatherdash/internal/modules/weather"
	"weatherdash/internal/mqtt"
	"weatherdash/internal/sink"
	"weatherdash/internal/source"
)

// App owns every long-lived dependency. Build it with New and release it
// with Close.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	db      *sql.DB
	hub     *changefeed.Hub
	api     *dataapi.Server
	metrics *prometheus.Registry
	mux     *http.ServeMux
	broker  *mqtt.Subscriber

	Weather   *ingest.WeatherPipeline
	Telemetry *ingest.TelemetryPipeline
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"apiEndpoint", cfg.APIEndpoint,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"sourceBaseURL", cfg.SourceBaseURL,
		"defaultStation", cfg.DefaultStationKey,
		"pollStations", cfg.PollStations,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
		"thingsboard", cfg.ThingsBoardURL != "",
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, version: version, db: dbConn}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	if err := migrate.Run(ctx, a.db, cfg.Tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.hub = changefeed.NewHub(a.logger, 0)
	a.api = dataapi.NewServer(cfg.APIKey, a.logger)

	if cfg.MQTTBroker != "" {
		a.broker = mqtt.NewSubscriber(cfg, a.logger)
	}
	a.mux = httpapi.NewMux(a.db, a.brokerStatus())

	if _, err := weather.RegisterFeature(a.mux, a.api, a.db, cfg.Tables, a.hub, a.logger); err != nil {
		return fmt.Errorf("weather feature: %w", err)
	}
	if _, err := devices.RegisterFeature(a.api, a.db, cfg.Tables, a.hub, a.logger); err != nil {
		return fmt.Errorf("devices feature: %w", err)
	}

	registry, err := source.LoadRegistry(cfg.StationRegistryFile)
	if err != nil {
		return err
	}
	if _, ok := registry.Lookup(cfg.DefaultStationKey); !ok {
		a.logger.Warn("default station is not in the registry", "stationKey", cfg.DefaultStationKey)
	}

	client := dataapi.NewClient(dataapi.ClientOptions{
		Endpoint:  cfg.APIEndpoint,
		APIKey:    cfg.APIKey,
		UserAgent: "weatherdash/" + a.version,
	})
	envelopes := ingest.EnvelopeBuilder{Dev: cfg.AppEnv == "dev"}
	metrics := ingest.NewMetrics(a.metrics)

	a.Weather = ingest.NewWeatherPipeline(ingest.WeatherOptions{
		Source: source.NewClient(source.Options{
			BaseURL:  cfg.SourceBaseURL,
			Registry: registry,
			Logger:   a.logger,
		}),
		API:            client,
		Envelopes:      envelopes,
		Metrics:        metrics,
		Logger:         a.logger,
		DefaultStation: cfg.DefaultStationKey,
		Timeout:        cfg.IngestTimeout,
	})

	// A nil *sink.ThingsBoard must not become a non-nil ingest.Sink.
	var telemetrySink ingest.Sink
	if tb := sink.NewThingsBoard(cfg.ThingsBoardURL, cfg.ThingsBoardAccessToken, nil); tb != nil {
		telemetrySink = tb
	}
	a.Telemetry = ingest.NewTelemetryPipeline(ingest.TelemetryOptions{
		API:       client,
		Sink:      telemetrySink,
		Envelopes: envelopes,
		Metrics:   metrics,
		Logger:    a.logger,
		Timeout:   cfg.IngestTimeout,
	})

	httpapi.RegisterDataAPI(a.mux, a.api, "")
	httpapi.RegisterIngest(a.mux, a.Weather, a.Telemetry)
	httpapi.RegisterSync(a.mux, a.api, a.hub, a.logger)
	httpapi.RegisterMetrics(a.mux, a.metrics)

	if a.broker != nil {
		a.broker.SetTelemetryHandler(func(ctx context.Context, body []byte) error {
			env := a.Telemetry.Trigger(ctx, body)
			if env.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("telemetry ingest: status %d: %s", env.StatusCode, env.Body)
			}
			return nil
		})
	}
	return nil
}

// brokerStatus keeps a nil subscriber from becoming a non-nil interface.
func (a *App) brokerStatus() httpapi.BrokerStatus {
	if a.broker == nil {
		return nil
	}
	return a.broker
}

// Handler serves every HTTP route of the process.
func (a *App) Handler() http.Handler { return a.mux }

func (a *App) Hub() *changefeed.Hub { return a.hub }

func (a *App) Metrics() *prometheus.Registry { return a.metrics }

func (a *App) Close() error {
	var errs []error
	if a.broker != nil {
		a.broker.Disconnect()
	}
	if err := db.Close(a.db); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	return errors.Join(errs...)
}
