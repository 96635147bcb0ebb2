package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

// Executor runs one data API operation. *dataapi.Client implements it.
type Executor interface {
	Execute(ctx context.Context, op dataapi.Operation, vars map[string]any) (*dataapi.Response, error)
}

type Existence int

const (
	Absent Existence = iota
	Present
	// LookupFailed means the store could not answer; the record must not be
	// assumed absent.
	LookupFailed
)

func (e Existence) String() string {
	switch e {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return "lookup_failed"
	}
}

// Gate answers whether a record with a given identity is already stored. It
// is a point lookup and is not atomic with the following commit; the store's
// identity key is what keeps a racing duplicate from being written twice.
type Gate struct {
	api Executor
}

func NewGate(api Executor) *Gate {
	return &Gate{api: api}
}

func (g *Gate) Sample(ctx context.Context, key types.SampleKey) (Existence, error) {
	return g.check(ctx, dataapi.GetWeatherStationData, map[string]any{
		"stationKey": key.StationKey,
		"timestamp":  key.Timestamp,
	}, key.String())
}

func (g *Gate) Telemetry(ctx context.Context, key types.TelemetryKey) (Existence, error) {
	return g.check(ctx, dataapi.GetTelemetry, map[string]any{
		"device_id": key.DeviceID,
		"timestamp": key.Timestamp,
	}, key.String())
}

func (g *Gate) check(ctx context.Context, op dataapi.Operation, vars map[string]any, key string) (Existence, error) {
	const stage = "existence check"
	resp, err := g.api.Execute(ctx, op, vars)
	if err != nil {
		return LookupFailed, newError(KindLookupFailed, stage, fmt.Errorf("%s: %w", key, err))
	}
	var record json.RawMessage
	found, err := resp.Field(op.Field, &record)
	if err != nil {
		return LookupFailed, newError(KindLookupFailed, stage, err)
	}
	if found {
		return Present, nil
	}
	return Absent, nil
}
