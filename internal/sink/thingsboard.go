// Package sink forwards committed device telemetry to a ThingsBoard-style
// HTTP telemetry endpoint.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"weatherdash/internal/types"
)

type ThingsBoard struct {
	endpoint   string
	httpClient *http.Client
}

// NewThingsBoard returns nil when baseURL or token is empty so that callers
// can treat the sink as disabled.
func NewThingsBoard(baseURL, token string, httpClient *http.Client) *ThingsBoard {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)
	if baseURL == "" || token == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &ThingsBoard{
		endpoint:   baseURL + "/api/v1/" + url.PathEscape(token) + "/telemetry",
		httpClient: httpClient,
	}
}

type payload struct {
	TS     int64          `json:"ts"`
	Values map[string]any `json:"values"`
}

// Forward posts t with its owner. ThingsBoard expects milliseconds.
func (s *ThingsBoard) Forward(ctx context.Context, t types.Telemetry) error {
	if s == nil {
		return errors.New("thingsboard sink is not configured")
	}
	values := map[string]any{"owner": t.Owner}
	if t.Temperature != nil {
		values["temperature"] = *t.Temperature
	}
	if t.Humidity != nil {
		values["humidity"] = *t.Humidity
	}
	body, err := json.Marshal(payload{TS: t.Timestamp * 1000, Values: values})
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post telemetry: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post telemetry: status %d", resp.StatusCode)
	}
	return nil
}
