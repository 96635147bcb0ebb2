package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"weatherdash/internal/source"
	"weatherdash/internal/types"
)

// Fetcher returns the latest observation for a station. *source.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, stationKey string) (types.WeatherSample, error)
}

type WeatherOptions struct {
	Source         Fetcher
	API            Executor
	Envelopes      EnvelopeBuilder
	Metrics        *Metrics
	Logger         *slog.Logger
	DefaultStation string
	Timeout        time.Duration
}

// WeatherPipeline ingests the latest observation of one station per call.
// It holds no state between invocations.
type WeatherPipeline struct {
	source         Fetcher
	gate           *Gate
	owners         *OwnerResolver
	committer      *Committer
	envelopes      EnvelopeBuilder
	metrics        *Metrics
	logger         *slog.Logger
	defaultStation string
	timeout        time.Duration
}

func NewWeatherPipeline(opts WeatherOptions) *WeatherPipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherPipeline{
		source:         opts.Source,
		gate:           NewGate(opts.API),
		owners:         NewOwnerResolver(opts.API),
		committer:      NewCommitter(opts.API),
		envelopes:      opts.Envelopes,
		metrics:        opts.Metrics,
		logger:         logger,
		defaultStation: opts.DefaultStation,
		timeout:        opts.Timeout,
	}
}

func (p *WeatherPipeline) Envelopes() EnvelopeBuilder { return p.envelopes }

// Trigger handles an inbound request body: {"stationKey": "..."} or empty,
// which selects the default station.
func (p *WeatherPipeline) Trigger(ctx context.Context, body []byte) Envelope {
	stationKey := p.defaultStation
	if len(bytes.TrimSpace(body)) > 0 {
		if err := weatherTriggerSchema.Validate(body); err != nil {
			return p.reject(newError(KindInvalidRequest, "decode trigger", err))
		}
		var in struct {
			StationKey string `json:"stationKey"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return p.reject(newError(KindInvalidRequest, "decode trigger", err))
		}
		if in.StationKey != "" {
			stationKey = in.StationKey
		}
	}
	return p.Run(ctx, stationKey)
}

func (p *WeatherPipeline) reject(err error) Envelope {
	p.metrics.observe(pipelineWeather, string(KindOf(err)), time.Now())
	p.logger.Warn("weather trigger rejected", "error", err)
	return p.envelopes.Failure(err)
}

// Run executes one invocation for stationKey.
func (p *WeatherPipeline) Run(ctx context.Context, stationKey string) Envelope {
	started := time.Now()
	logger := p.logger.With("invocation_id", uuid.NewString(), "pipeline", pipelineWeather, "station_key", stationKey)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	env, outcome, err := p.run(ctx, stationKey, logger)
	p.metrics.observe(pipelineWeather, outcome, started)
	if err != nil {
		logger.Error("weather ingest failed", "kind", KindOf(err), "error", err, "duration_ms", time.Since(started).Milliseconds())
		return env
	}
	logger.Info("weather ingest finished", "outcome", outcome, "duration_ms", time.Since(started).Milliseconds())
	return env
}

func (p *WeatherPipeline) run(ctx context.Context, stationKey string, logger *slog.Logger) (Envelope, string, error) {
	fail := func(err error) (Envelope, string, error) {
		return p.envelopes.Failure(err), string(KindOf(err)), err
	}

	if err := checkContext(ctx, "fetch"); err != nil {
		return fail(err)
	}
	sample, err := p.source.Fetch(ctx, stationKey)
	if err != nil {
		return fail(classifySource(err))
	}
	logger.Debug("sample fetched", "timestamp", sample.Timestamp)

	if err := checkContext(ctx, "existence check"); err != nil {
		return fail(err)
	}
	existence, err := p.gate.Sample(ctx, sample.Key())
	if err != nil {
		return fail(err)
	}
	if existence == Present {
		return p.envelopes.AlreadyExists(sample.Key()), outcomeExists, nil
	}

	if err := checkContext(ctx, "owner lookup"); err != nil {
		return fail(err)
	}
	owner, err := p.owners.StationOwner(ctx, sample.StationKey)
	if err != nil {
		return fail(err)
	}
	sample.Owner = owner

	if err := checkContext(ctx, "commit"); err != nil {
		return fail(err)
	}
	committed, created, err := p.committer.CommitSample(ctx, sample)
	if err != nil {
		return fail(err)
	}
	if !created {
		logger.Info("sample committed concurrently by another invocation")
		return p.envelopes.AlreadyExists(committed.Key()), outcomeExists, nil
	}
	return p.envelopes.Created(committed), outcomeCreated, nil
}

func classifySource(err error) error {
	const stage = "fetch"
	switch {
	case errors.Is(err, source.ErrInvalidStationKey):
		return newError(KindInvalidStationKey, stage, err)
	case errors.Is(err, source.ErrInvalidData):
		return newError(KindSourceDataInvalid, stage, err)
	default:
		return newError(KindSourceUnavailable, stage, err)
	}
}
