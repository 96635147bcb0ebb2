package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdash/internal/types"
)

func TestForward_PostsMillisecondsAndOwner(t *testing.T) {
	var gotPath string
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer ts.Close()

	s := NewThingsBoard(ts.URL+"/", "tok", nil)
	require.NotNil(t, s)
	err := s.Forward(context.Background(), types.Telemetry{
		DeviceID: "pico-1", Timestamp: 1700000000, Temperature: types.Float(21.5), Owner: "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/tok/telemetry", gotPath)
	assert.EqualValues(t, 1700000000000, got["ts"])
	values := got["values"].(map[string]any)
	assert.Equal(t, "user-1", values["owner"])
	assert.EqualValues(t, 21.5, values["temperature"])
	assert.NotContains(t, values, "humidity")
}

func TestForward_Non2xxIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	err := NewThingsBoard(ts.URL, "tok", nil).Forward(context.Background(), types.Telemetry{DeviceID: "d", Timestamp: 1, Owner: "u"})
	assert.ErrorContains(t, err, "status 401")
}

func TestNewThingsBoard_DisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, NewThingsBoard("", "tok", nil))
	assert.Nil(t, NewThingsBoard("http://tb", "", nil))

	var s *ThingsBoard
	assert.Error(t, s.Forward(context.Background(), types.Telemetry{}))
}
