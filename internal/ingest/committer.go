package ingest

import (
	"context"
	"errors"
	"fmt"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

// Committer submits one fully enriched record per call through the mutation
// API. It never retries.
type Committer struct {
	api Executor
}

func NewCommitter(api Executor) *Committer {
	return &Committer{api: api}
}

// CommitSample returns the server-confirmed record and whether this call
// created it. A racing duplicate gets the stored record and created == false.
func (c *Committer) CommitSample(ctx context.Context, s types.WeatherSample) (types.WeatherSample, bool, error) {
	if s.Owner == "" {
		return types.WeatherSample{}, false, newError(KindMutationRejected, "commit", fmt.Errorf("refusing to commit %s without an owner", s.Key()))
	}
	var out types.WeatherSample
	created, err := c.commit(ctx, dataapi.CreateWeatherStationData, s, &out, s.Key().String())
	if err != nil {
		return types.WeatherSample{}, false, err
	}
	return out, created, nil
}

func (c *Committer) CommitTelemetry(ctx context.Context, t types.Telemetry) (types.Telemetry, bool, error) {
	if t.Owner == "" {
		return types.Telemetry{}, false, newError(KindMutationRejected, "commit", fmt.Errorf("refusing to commit %s without an owner", t.Key()))
	}
	var out types.Telemetry
	created, err := c.commit(ctx, dataapi.CreateTelemetry, t, &out, t.Key().String())
	if err != nil {
		return types.Telemetry{}, false, err
	}
	return out, created, nil
}

func (c *Committer) commit(ctx context.Context, op dataapi.Operation, input, out any, key string) (bool, error) {
	const stage = "commit"
	resp, err := c.api.Execute(ctx, op, map[string]any{"input": input})
	if err != nil {
		var gqlErrs dataapi.ResponseErrors
		if errors.As(err, &gqlErrs) {
			return false, newError(KindMutationRejected, stage, fmt.Errorf("%s: %w", key, err))
		}
		return false, newError(KindTransportError, stage, fmt.Errorf("%s: %w", key, err))
	}
	found, err := resp.Field(op.Field, out)
	if err != nil {
		return false, newError(KindMutationRejected, stage, fmt.Errorf("%s: %w", key, err))
	}
	if !found {
		return false, newError(KindMutationRejected, stage, fmt.Errorf("%s: %s returned no record", key, op.Name))
	}
	return !resp.AlreadyExists(), nil
}
