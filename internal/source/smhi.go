// Package source fetches the latest observation for a weather station from
// the SMHI open data API and normalizes it to a WeatherSample.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"weatherdash/internal/types"
)

var (
	ErrInvalidStationKey = errors.New("invalid station key")
	ErrUnavailable       = errors.New("source unavailable")
	ErrInvalidData       = errors.New("source data invalid")
)

const (
	DefaultBaseURL  = "https://opendata-download-metobs.smhi.se"
	maxPayloadBytes = 1 << 20
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Registry   *Registry
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	registry   *Registry
	logger     *slog.Logger
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, registry: registry, logger: logger}
}

func (c *Client) Registry() *Registry { return c.registry }

// StationURL is the latest-hour air temperature document for key.
func (c *Client) StationURL(key string) string {
	return c.baseURL + "/api/version/latest/parameter/1/station/" + url.PathEscape(key) + "/period/latest-hour/data.json"
}

type observation struct {
	Value []struct {
		Date    int64      `json:"date"`
		Value   *flexFloat `json:"value"`
		Quality string     `json:"quality"`
	} `json:"value"`
	Position []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Height    *float64 `json:"height"`
	} `json:"position"`
	Station struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"station"`
}

// flexFloat accepts a JSON number or a numeric string; SMHI serves values as
// strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

// Fetch returns the newest observation for stationKey. Unknown keys fail with
// ErrInvalidStationKey before any request is made. The sample has no owner.
func (c *Client) Fetch(ctx context.Context, stationKey string) (types.WeatherSample, error) {
	station, ok := c.registry.Lookup(stationKey)
	if !ok {
		return types.WeatherSample{}, fmt.Errorf("%w: %q is not a registered station", ErrInvalidStationKey, stationKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StationURL(stationKey), nil)
	if err != nil {
		return types.WeatherSample{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.WeatherSample{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadBytes))
		return types.WeatherSample{}, fmt.Errorf("%w: station %s: status %d", ErrUnavailable, stationKey, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return types.WeatherSample{}, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	c.logger.Debug("source fetched", "station_key", stationKey, "bytes", len(raw), "duration_ms", time.Since(start).Milliseconds())

	return parseObservation(stationKey, station, raw)
}

func parseObservation(stationKey string, station Station, raw []byte) (types.WeatherSample, error) {
	if err := observationSchema.Validate(raw); err != nil {
		return types.WeatherSample{}, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	var obs observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return types.WeatherSample{}, fmt.Errorf("%w: decode: %w", ErrInvalidData, err)
	}
	if len(obs.Value) == 0 {
		return types.WeatherSample{}, fmt.Errorf("%w: no values", ErrInvalidData)
	}
	if len(obs.Position) == 0 {
		return types.WeatherSample{}, fmt.Errorf("%w: no position", ErrInvalidData)
	}
	if obs.Station.Key != stationKey {
		return types.WeatherSample{}, fmt.Errorf("%w: payload is for station %q, requested %q", ErrInvalidData, obs.Station.Key, stationKey)
	}

	latest := 0
	for i, v := range obs.Value {
		if v.Date >= obs.Value[latest].Date {
			latest = i
		}
	}
	value := obs.Value[latest]
	pos := obs.Position[0]

	sample := types.WeatherSample{
		StationKey: stationKey,
		Timestamp:  value.Date / 1000,
		Latitude:   types.Float(pos.Latitude),
		Longitude:  types.Float(pos.Longitude),
		Height:     pos.Height,
	}
	if value.Value != nil {
		sample.Temperature = types.Float(float64(*value.Value))
	}
	if value.Quality != "" {
		sample.Quality = types.String(value.Quality)
	}
	switch {
	case obs.Station.Name != "":
		sample.StationName = types.String(obs.Station.Name)
	case station.Name != "":
		sample.StationName = types.String(station.Name)
	}
	return sample, nil
}
