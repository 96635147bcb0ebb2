package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// APIEndpoint is the data API URL the ingestion pipeline and the live sync
	// client talk to. When empty it defaults to this process's own /graphql.
	APIEndpoint string
	APIKey      string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	Tables Tables

	SourceBaseURL       string
	StationRegistryFile string
	DefaultStationKey   string
	IngestTimeout       time.Duration

	PollStations []string
	PollInterval time.Duration

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	ThingsBoardURL         string
	ThingsBoardAccessToken string
}

// Tables names the store collections. They are injected by provisioning and
// interpolated into SQL, so each must be a plain identifier.
type Tables struct {
	WeatherStation     string
	WeatherStationData string
	Devices            string
	Telemetry          string
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	apiEndpoint := strings.TrimSpace(os.Getenv("API_ENDPOINT"))
	if apiEndpoint == "" {
		apiEndpoint = "http://" + loopbackAddr(httpAddr) + "/graphql"
	}
	if _, err := url.ParseRequestURI(apiEndpoint); err != nil {
		return Config{}, fmt.Errorf("invalid API_ENDPOINT %q: %w", apiEndpoint, err)
	}
	apiKey := strings.TrimSpace(os.Getenv("API_KEY"))
	if apiKey == "" && appEnv == "prod" {
		return Config{}, fmt.Errorf("API_KEY is required when APP_ENV=prod")
	}
	if apiKey == "" {
		apiKey = "dev-api-key"
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	switch driver {
	case "sqlite3", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, postgres)", driver)
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if driver == "postgres" && dsn == "" {
		return Config{}, fmt.Errorf("DB_DSN is required when DB_DRIVER=postgres")
	}
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "dev/sqlite/weatherdash.db"
	}

	maxOpenConns, err := intFromEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intFromEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationFromEnv("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	logSQL, err := boolFromEnv("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	tables := Tables{
		WeatherStation:     stringFromEnv("WEATHER_STATION_TABLENAME", "weather_station"),
		WeatherStationData: stringFromEnv("WEATHER_DATA_TABLENAME", "weather_station_data"),
		Devices:            stringFromEnv("DEVICES_TABLENAME", "devices"),
		Telemetry:          stringFromEnv("TELEMETRY_TABLENAME", "telemetry"),
	}
	if err := tables.Validate(); err != nil {
		return Config{}, err
	}

	sourceBaseURL := strings.TrimRight(stringFromEnv("SOURCE_BASE_URL", "https://opendata-download-metobs.smhi.se"), "/")
	if _, err := url.ParseRequestURI(sourceBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid SOURCE_BASE_URL %q: %w", sourceBaseURL, err)
	}

	ingestTimeout, err := durationFromEnv("INGEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	if ingestTimeout <= 0 {
		return Config{}, fmt.Errorf("INGEST_TIMEOUT must be positive, got %v", ingestTimeout)
	}

	pollInterval, err := durationFromEnv("POLL_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	if pollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL must be positive, got %v", pollInterval)
	}

	mqttPort, err := intFromEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:                 appEnv,
		LogLevel:               level,
		HTTPAddr:               httpAddr,
		APIEndpoint:            apiEndpoint,
		APIKey:                 apiKey,
		Driver:                 driver,
		DSN:                    dsn,
		Path:                   path,
		MaxOpenConns:           maxOpenConns,
		MaxIdleConns:           maxIdleConns,
		ConnMaxLifetime:        connMaxLifetime,
		LogSQL:                 logSQL,
		Tables:                 tables,
		SourceBaseURL:          sourceBaseURL,
		StationRegistryFile:    strings.TrimSpace(os.Getenv("STATION_REGISTRY_FILE")),
		DefaultStationKey:      stringFromEnv("DEFAULT_STATION_KEY", "97200"),
		IngestTimeout:          ingestTimeout,
		PollStations:           splitList(os.Getenv("POLL_STATIONS")),
		PollInterval:           pollInterval,
		MQTTBroker:             strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:               mqttPort,
		MQTTClientID:           stringFromEnv("MQTT_CLIENT_ID", "weatherdash"),
		MQTTTopic:              stringFromEnv("MQTT_TOPIC", "devices/+/telemetry"),
		ThingsBoardURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("THINGSBOARD_URL")), "/"),
		ThingsBoardAccessToken: strings.TrimSpace(os.Getenv("THINGSBOARD_ACCESS_TOKEN")),
	}, nil
}

// Validate rejects table names that are not safe to interpolate into SQL.
func (t Tables) Validate() error {
	for env, name := range map[string]string{
		"WEATHER_STATION_TABLENAME": t.WeatherStation,
		"WEATHER_DATA_TABLENAME":    t.WeatherStationData,
		"DEVICES_TABLENAME":         t.Devices,
		"TELEMETRY_TABLENAME":       t.Telemetry,
	} {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("invalid %s %q (must be a SQL identifier)", env, name)
		}
	}
	return nil
}

// DefaultTables returns the table names used when nothing is injected.
func DefaultTables() Tables {
	return Tables{
		WeatherStation:     "weather_station",
		WeatherStationData: "weather_station_data",
		Devices:            "devices",
		Telemetry:          "telemetry",
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func boolFromEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loopbackAddr turns a listen address such as ":8080" into a dialable one.
func loopbackAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}
