package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

type handler func(vars map[string]any) (*dataapi.Response, error)

// fakeAPI answers operations from per-operation handlers and records every
// call. Unknown operations fail the way a real transport would.
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    []string
	vars     map[string][]map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]handler{}, vars: map[string][]map[string]any{}}
}

func (f *fakeAPI) on(op dataapi.Operation, h handler) *fakeAPI {
	f.handlers[op.Name] = h
	return f
}

func (f *fakeAPI) Execute(ctx context.Context, op dataapi.Operation, vars map[string]any) (*dataapi.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op.Name)
	f.vars[op.Name] = append(f.vars[op.Name], vars)
	h := f.handlers[op.Name]
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, &dataapi.TransportError{Operation: op.Name, Err: err}
	}
	if h == nil {
		return nil, &dataapi.TransportError{Operation: op.Name, Err: errors.New("no handler")}
	}
	return h(vars)
}

func (f *fakeAPI) count(op dataapi.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op.Name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func field(op dataapi.Operation, v any) handler {
	return func(map[string]any) (*dataapi.Response, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &dataapi.Response{Data: map[string]json.RawMessage{op.Field: raw}}, nil
	}
}

func null(op dataapi.Operation) handler {
	return func(map[string]any) (*dataapi.Response, error) {
		return &dataapi.Response{Data: map[string]json.RawMessage{op.Field: json.RawMessage("null")}}, nil
	}
}

func gqlError(errorType, msg string) handler {
	return func(map[string]any) (*dataapi.Response, error) {
		errs := []dataapi.Error{{Message: msg, ErrorType: errorType}}
		return &dataapi.Response{Errors: errs}, dataapi.ResponseErrors(errs)
	}
}

func transportError(op dataapi.Operation, status int) handler {
	return func(map[string]any) (*dataapi.Response, error) {
		return nil, &dataapi.TransportError{Operation: op.Name, StatusCode: status, Err: errors.New("upstream failed")}
	}
}

// echoInput answers a create mutation with the record it was sent.
func echoInput(op dataapi.Operation) handler {
	return func(vars map[string]any) (*dataapi.Response, error) {
		raw, err := json.Marshal(vars["input"])
		if err != nil {
			return nil, err
		}
		return &dataapi.Response{Data: map[string]json.RawMessage{op.Field: raw}}, nil
	}
}

// storedInput answers a create mutation the way the store answers a racing
// duplicate: the record comes back flagged as already stored.
func storedInput(op dataapi.Operation) handler {
	return func(vars map[string]any) (*dataapi.Response, error) {
		raw, err := json.Marshal(vars["input"])
		if err != nil {
			return nil, err
		}
		return &dataapi.Response{
			Data:       map[string]json.RawMessage{op.Field: raw},
			Extensions: &dataapi.Extensions{AlreadyExists: true},
		}, nil
	}
}

type fakeFetcher struct {
	sample types.WeatherSample
	err    error
	calls  int
	keys   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, stationKey string) (types.WeatherSample, error) {
	f.calls++
	f.keys = append(f.keys, stationKey)
	if err := ctx.Err(); err != nil {
		return types.WeatherSample{}, err
	}
	if f.err != nil {
		return types.WeatherSample{}, f.err
	}
	s := f.sample
	s.StationKey = stationKey
	return s, nil
}

type fakeSink struct {
	mu  sync.Mutex
	got []types.Telemetry
	err error
}

func (s *fakeSink) Forward(_ context.Context, t types.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
	return s.err
}
