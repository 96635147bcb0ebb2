package dataapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdash/internal/logging"
)

type station struct {
	StationKey string `json:"stationKey"`
	Owner      string `json:"owner"`
}

func newTestAPI(t *testing.T) (*Server, *Client) {
	t.Helper()
	srv := NewServer("k1", logging.Discard())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, NewClient(ClientOptions{Endpoint: ts.URL, APIKey: "k1"})
}

func TestExecute_DecodesField(t *testing.T) {
	srv, client := newTestAPI(t)
	srv.Register(GetWeatherStation, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			StationKey string `json:"stationKey"`
		}
		if err := DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		if in.StationKey != "97200" {
			return (*station)(nil), nil
		}
		return station{StationKey: in.StationKey, Owner: "user-1"}, nil
	})

	resp, err := client.Execute(context.Background(), GetWeatherStation, map[string]any{"stationKey": "97200"})
	require.NoError(t, err)
	var got station
	found, err := resp.Field(GetWeatherStation.Field, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "user-1", got.Owner)

	resp, err = client.Execute(context.Background(), GetWeatherStation, map[string]any{"stationKey": "00000"})
	require.NoError(t, err)
	found, err = resp.Field(GetWeatherStation.Field, &got)
	require.NoError(t, err)
	assert.False(t, found, "null field must read as not found")
}

func TestExecute_ExistingRecordSetsExtension(t *testing.T) {
	srv, client := newTestAPI(t)
	stored := false
	srv.Register(CreateWeatherStation, func(ctx context.Context, vars json.RawMessage) (any, error) {
		st := station{StationKey: "97200", Owner: "user-1"}
		if stored {
			return Existing{Record: st}, nil
		}
		stored = true
		return st, nil
	})

	resp, err := client.Execute(context.Background(), CreateWeatherStation, nil)
	require.NoError(t, err)
	assert.False(t, resp.AlreadyExists())

	resp, err = client.Execute(context.Background(), CreateWeatherStation, nil)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyExists())
	var got station
	found, err := resp.Field(CreateWeatherStation.Field, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "97200", got.StationKey)
}

func TestExecute_ResolverErrorIsResponseErrors(t *testing.T) {
	srv, client := newTestAPI(t)
	srv.Register(CreateWeatherStation, func(ctx context.Context, vars json.RawMessage) (any, error) {
		return nil, Invalid("owner is required")
	})

	resp, err := client.Execute(context.Background(), CreateWeatherStation, map[string]any{"input": map[string]any{}})
	require.Error(t, err)
	var gqlErrs ResponseErrors
	require.True(t, errors.As(err, &gqlErrs))
	assert.Equal(t, "ValidationError", gqlErrs[0].ErrorType)
	assert.Contains(t, err.Error(), "owner is required")
	require.NotNil(t, resp)

	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

func TestExecute_InternalErrorsAreMasked(t *testing.T) {
	srv, client := newTestAPI(t)
	srv.Register(ListDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		return nil, errors.New("disk I/O error at /var/lib/secret.db")
	})

	_, err := client.Execute(context.Background(), ListDevices, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret.db")
	assert.Contains(t, err.Error(), "InternalFailure")
}

func TestExecute_WrongAPIKeyIsTransportError(t *testing.T) {
	srv, _ := newTestAPI(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := NewClient(ClientOptions{Endpoint: ts.URL, APIKey: "wrong"})

	_, err := client.Execute(context.Background(), ListDevices, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
}

func TestExecute_UnreachableEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	client := NewClient(ClientOptions{Endpoint: url, APIKey: "k1"})

	_, err := client.Execute(context.Background(), ListDevices, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
}

func TestExecute_NonJSONSuccessIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer ts.Close()
	client := NewClient(ClientOptions{Endpoint: ts.URL})

	_, err := client.Execute(context.Background(), ListDevices, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te))
}

func TestExecute_SendsAPIKeyAndOperation(t *testing.T) {
	var gotKey string
	var gotReq Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"data":{"listDevices":{"items":[]}}}`))
	}))
	defer ts.Close()
	client := NewClient(ClientOptions{Endpoint: ts.URL, APIKey: "secret"})

	_, err := client.Execute(context.Background(), ListDevices, nil)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "ListDevices", gotReq.OperationName)
	assert.True(t, strings.HasPrefix(gotReq.Query, "query ListDevices"))
}

func TestServer_OperationNameFromDocument(t *testing.T) {
	srv, _ := newTestAPI(t)
	srv.Register(ListDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		return Page[station]{Items: []station{}}, nil
	})

	body := `{"query":"query ListDevices { listDevices { items { device_id } } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set(APIKeyHeader, "k1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"listDevices"`)
}

func TestServer_RejectsUnknownOperationAndMethod(t *testing.T) {
	srv, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"query Nope { nope }"}`))
	req.Header.Set(APIKeyHeader, "k1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown operation")

	req = httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_DuplicateRegistrationPanics(t *testing.T) {
	srv := NewServer("k", logging.Discard())
	noop := func(ctx context.Context, vars json.RawMessage) (any, error) { return nil, nil }
	srv.Register(ListDevices, noop)
	assert.Panics(t, func() { srv.Register(ListDevices, noop) })
}
