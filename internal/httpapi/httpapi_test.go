package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/config"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/db/dbtest"
	"weatherdash/internal/ingest"
	"weatherdash/internal/logging"
)

type fakeBroker bool

func (b fakeBroker) IsConnected() bool { return bool(b) }

type fakeTrigger struct {
	bodies [][]byte
	env    ingest.Envelope
}

func (f *fakeTrigger) Trigger(_ context.Context, body []byte) ingest.Envelope {
	f.bodies = append(f.bodies, body)
	return f.env
}

func (f *fakeTrigger) Envelopes() ingest.EnvelopeBuilder { return ingest.EnvelopeBuilder{} }

func newTestServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := NewServer(config.Config{HTTPAddr: ":0"}, mux, prometheus.NewRegistry(), logging.Discard())
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, NewMux(dbtest.Open(t), fakeBroker(false)))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["mqtt"] != "disconnected" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthz_DatabaseDown(t *testing.T) {
	db := dbtest.Open(t)
	mux := NewMux(db, nil)
	_ = db.Close()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestIngestRoutes(t *testing.T) {
	weather := &fakeTrigger{env: ingest.EnvelopeBuilder{}.Created(map[string]string{"stationKey": "97200"})}
	mux := http.NewServeMux()
	RegisterIngest(mux, weather, nil)
	ts := newTestServer(t, mux)

	resp, err := http.Post(ts.URL+"/ingest/weather", "application/json", strings.NewReader(`{"stationKey":"97200"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if len(weather.bodies) != 1 || string(weather.bodies[0]) != `{"stationKey":"97200"}` {
		t.Errorf("trigger bodies = %q", weather.bodies)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/ingest/weather", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "OPTIONS,POST" {
		t.Errorf("allow-methods = %q", got)
	}

	resp, err = http.Post(ts.URL+"/ingest/telemetry", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST telemetry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unregistered pipeline status = %d, want 404", resp.StatusCode)
	}
}

func TestIngestRoutes_BodyTooLarge(t *testing.T) {
	weather := &fakeTrigger{}
	mux := http.NewServeMux()
	RegisterIngest(mux, weather, nil)

	rec := httptest.NewRecorder()
	big := strings.Repeat("x", maxTriggerBytes+1)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/weather", strings.NewReader(big)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(weather.bodies) != 0 {
		t.Error("pipeline triggered for an oversized body")
	}
	if !strings.Contains(rec.Body.String(), `"kind":"InvalidRequest"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDataAPIRoute_CORSAndAuth(t *testing.T) {
	mux := http.NewServeMux()
	RegisterDataAPI(mux, dataapi.NewServer("secret", logging.Discard()), "https://dash.example.com")
	ts := newTestServer(t, mux)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/graphql", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	resp, err = http.Post(ts.URL+"/graphql", "application/json", strings.NewReader(`{"query":"query ListDevices { listDevices { items { device_id } } }"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	mux := http.NewServeMux()
	RegisterMetrics(mux, reg)
	srv := NewServer(config.Config{}, mux, reg, logging.Discard())
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	// The scrape itself is in flight while it is being served.
	if !strings.Contains(string(raw), "weatherdash_http_requests_in_flight 1") {
		t.Errorf("metrics output missing in-flight gauge:\n%s", raw)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func newSyncServer(t *testing.T) (*httptest.Server, *changefeed.Hub) {
	t.Helper()
	hub := changefeed.NewHub(logging.Discard(), 2)
	mux := http.NewServeMux()
	RegisterSync(mux, dataapi.NewServer("secret", logging.Discard()), hub, logging.Discard())
	return newTestServer(t, mux), hub
}

func waitForSubscribers(t *testing.T, hub *changefeed.Hub, model string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(model) != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers(%s) = %d, want %d", model, hub.Subscribers(model), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSync_StreamsChanges(t *testing.T) {
	ts, hub := newSyncServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync/devices?apiKey=secret"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	waitForSubscribers(t, hub, changefeed.ModelDevices, 1)

	if _, err := hub.Publish(changefeed.ModelTelemetry, changefeed.OpCreate, "other#1", map[string]string{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := hub.Publish(changefeed.ModelDevices, changefeed.OpCreate, "pico-1", map[string]string{"device_id": "pico-1", "owner": "user-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got changefeed.Change
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Model != changefeed.ModelDevices || got.Op != changefeed.OpCreate || got.Key != "pico-1" {
		t.Errorf("change = %+v", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitForSubscribers(t, hub, changefeed.ModelDevices, 0)
}

func TestSync_DeliversChangeCommittedRightAfterHandshake(t *testing.T) {
	ts, hub := newSyncServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync/devices?apiKey=secret"

	for round := range 50 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			cancel()
			t.Fatalf("round %d: dial: %v", round, err)
		}
		key := fmt.Sprintf("pico-%d", round)
		if _, err := hub.Publish(changefeed.ModelDevices, changefeed.OpCreate, key, map[string]string{"device_id": key}); err != nil {
			t.Fatalf("round %d: publish: %v", round, err)
		}

		var got changefeed.Change
		err = wsjson.Read(ctx, conn, &got)
		conn.CloseNow()
		cancel()
		if err != nil {
			t.Fatalf("round %d: change published right after the handshake was lost: %v", round, err)
		}
		if got.Key != key {
			t.Fatalf("round %d: key = %q, want %q", round, got.Key, key)
		}
		waitForSubscribers(t, hub, changefeed.ModelDevices, 0)
	}
}

func TestSync_FailedUpgradeReleasesSubscription(t *testing.T) {
	ts, hub := newSyncServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/sync/devices?apiKey=secret", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Fatal("plain GET was upgraded")
	}
	waitForSubscribers(t, hub, changefeed.ModelDevices, 0)
}

func TestSync_RejectsBadRequests(t *testing.T) {
	ts, _ := newSyncServer(t)
	ctx := context.Background()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync/"

	_, resp, err := websocket.Dial(ctx, base+"devices?apiKey=wrong", nil)
	if err == nil {
		t.Fatal("dial with a wrong key succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key response = %v", resp)
	}

	_, resp, err = websocket.Dial(ctx, base+"unknown", &websocket.DialOptions{
		HTTPHeader: http.Header{dataapi.APIKeyHeader: []string{"secret"}},
	})
	if err == nil {
		t.Fatal("dial for an unknown model succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown model response = %v", resp)
	}
}

func TestSync_SlowSubscriberIsClosed(t *testing.T) {
	ts, hub := newSyncServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/sync/telemetry", &websocket.DialOptions{
		HTTPHeader: http.Header{dataapi.APIKeyHeader: []string{"secret"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	waitForSubscribers(t, hub, changefeed.ModelTelemetry, 1)

	// Publish far more than the hub buffer without reading; the server either
	// drains them in time or drops the subscriber and closes the stream.
	for i := range 1000 {
		_, _ = hub.Publish(changefeed.ModelTelemetry, changefeed.OpCreate, "pico-1#"+string(rune('a'+i%26)), map[string]int{"i": i})
	}

	for {
		var c changefeed.Change
		err := wsjson.Read(ctx, conn, &c)
		if err == nil {
			continue
		}
		if websocket.CloseStatus(err) != websocket.StatusTryAgainLater {
			t.Fatalf("stream ended with %v, want StatusTryAgainLater", err)
		}
		return
	}
}
