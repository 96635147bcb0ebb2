package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdash/internal/config"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/ingest"
	"weatherdash/internal/logging"
	"weatherdash/internal/types"
)

const smhiPayload = `{
  "value": [
    {"date": 1699996400000, "value": "1.9", "quality": "G"},
    {"date": 1700000000000, "value": "2.5", "quality": "G"}
  ],
  "position": [{"latitude": 59.35, "longitude": 17.95, "height": 15}],
  "station": {"key": "97200", "name": "Stockholm-Bromma"}
}`

func testConfig(t *testing.T, ln net.Listener, sourceURL, thingsboardURL string) config.Config {
	t.Helper()
	return config.Config{
		AppEnv:                 "dev",
		HTTPAddr:               ln.Addr().String(),
		APIEndpoint:            "http://" + ln.Addr().String() + "/graphql",
		APIKey:                 "test-key",
		Driver:                 "sqlite3",
		Path:                   filepath.Join(t.TempDir(), "weatherdash.db"),
		MaxOpenConns:           1,
		MaxIdleConns:           1,
		Tables:                 config.DefaultTables(),
		SourceBaseURL:          sourceURL,
		DefaultStationKey:      "97200",
		IngestTimeout:          5 * time.Second,
		PollInterval:           time.Minute,
		ThingsBoardURL:         thingsboardURL,
		ThingsBoardAccessToken: "tb-token",
	}
}

type running struct {
	base   string
	client *dataapi.Client
}

func startApp(t *testing.T, sourceURL, thingsboardURL string) running {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := testConfig(t, ln, sourceURL, thingsboardURL)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, cfg, logging.Discard(), "test")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, a.ServeListener(ctx, ln))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		assert.NoError(t, a.Close())
	})

	return running{
		base:   "http://" + ln.Addr().String(),
		client: dataapi.NewClient(dataapi.ClientOptions{Endpoint: cfg.APIEndpoint, APIKey: cfg.APIKey}),
	}
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestApp_WeatherIngestOverHTTP(t *testing.T) {
	smhi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(smhiPayload))
	}))
	defer smhi.Close()
	app := startApp(t, smhi.URL, "")
	ctx := context.Background()

	status, body := post(t, app.base+"/ingest/weather", "")
	assert.Equal(t, http.StatusNotFound, status, "station has no record yet: %s", body)

	_, err := app.client.Execute(ctx, dataapi.CreateWeatherStation, map[string]any{
		"input": types.WeatherStation{StationKey: "97200", Owner: "user-1"},
	})
	require.NoError(t, err)

	status, body = post(t, app.base+"/ingest/weather", "")
	require.Equal(t, http.StatusCreated, status, body)
	var sample types.WeatherSample
	require.NoError(t, json.Unmarshal([]byte(body), &sample))
	assert.Equal(t, int64(1700000000), sample.Timestamp)
	assert.Equal(t, "user-1", sample.Owner)

	status, body = post(t, app.base+"/ingest/weather", `{"stationKey":"97200"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Data already exists")

	status, _ = post(t, app.base+"/ingest/weather", `{"stationKey":"00000"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(app.base + "/api/v1/stations/97200/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	var latest []types.WeatherSample
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	require.Len(t, latest, 1)
	assert.Equal(t, 2.5, *latest[0].Temperature)

	metrics, err := http.Get(app.base + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	raw, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(raw), `weatherdash_ingest_invocations_total{outcome="created",pipeline="weather"} 1`)
	assert.Contains(t, string(raw), `weatherdash_ingest_invocations_total{outcome="exists",pipeline="weather"} 1`)
}

func TestApp_TelemetryIngestForwardsToSink(t *testing.T) {
	var forwarded atomic.Int32
	var lastBody atomic.Value
	tb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		lastBody.Store(raw)
		forwarded.Add(1)
	}))
	defer tb.Close()
	app := startApp(t, "http://127.0.0.1:1", tb.URL)

	_, err := app.client.Execute(context.Background(), dataapi.CreateDevices, map[string]any{
		"input": types.Device{DeviceID: "pico-1", Owner: "user-1"},
	})
	require.NoError(t, err)

	push := `{"device_id":"pico-1","timestamp":1700000000,"temperature":21.5,"humidity":40}`
	status, body := post(t, app.base+"/ingest/telemetry", push)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Contains(t, body, `"forwarded":true`)
	assert.Contains(t, body, `"owner":"user-1"`)
	assert.EqualValues(t, 1, forwarded.Load())
	assert.True(t, bytes.Contains(lastBody.Load().([]byte), []byte(`"ts":1700000000000`)))

	status, _ = post(t, app.base+"/ingest/telemetry", push)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, forwarded.Load(), "duplicates are not forwarded")
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, key string) ingest.Envelope {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.fail[key] {
		return ingest.Envelope{StatusCode: http.StatusBadGateway}
	}
	return ingest.Envelope{StatusCode: http.StatusCreated}
}

func TestPoller_PollRunsEveryStation(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"71420": true}}
	p := NewPoller(runner, []string{"97200", "71420", "53430"}, time.Hour, logging.Discard())

	failed := p.Poll(context.Background())

	assert.Equal(t, 1, failed)
	assert.ElementsMatch(t, []string{"97200", "71420", "53430"}, runner.calls)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPoller(runner, []string{"97200"}, 10*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
