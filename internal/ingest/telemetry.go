package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"weatherdash/internal/types"
)

// Sink receives committed telemetry downstream. *sink.ThingsBoard implements it.
type Sink interface {
	Forward(ctx context.Context, t types.Telemetry) error
}

// TelemetryInput is a device push. It never carries an owner.
type TelemetryInput struct {
	DeviceID    string   `json:"device_id"`
	Timestamp   int64    `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (in TelemetryInput) Key() types.TelemetryKey {
	return types.TelemetryKey{DeviceID: in.DeviceID, Timestamp: in.Timestamp}
}

// TelemetryResult is the success body of the telemetry pipeline. A sink
// failure after the commit does not undo the commit; it is reported here.
type TelemetryResult struct {
	types.Telemetry
	Forwarded    bool   `json:"forwarded"`
	ForwardError string `json:"forwardError,omitempty"`
}

type TelemetryOptions struct {
	API       Executor
	Sink      Sink
	Envelopes EnvelopeBuilder
	Metrics   *Metrics
	Logger    *slog.Logger
	Timeout   time.Duration
}

type TelemetryPipeline struct {
	gate      *Gate
	owners    *OwnerResolver
	committer *Committer
	sink      Sink
	envelopes EnvelopeBuilder
	metrics   *Metrics
	logger    *slog.Logger
	timeout   time.Duration
}

func NewTelemetryPipeline(opts TelemetryOptions) *TelemetryPipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryPipeline{
		gate:      NewGate(opts.API),
		owners:    NewOwnerResolver(opts.API),
		committer: NewCommitter(opts.API),
		sink:      opts.Sink,
		envelopes: opts.Envelopes,
		metrics:   opts.Metrics,
		logger:    logger,
		timeout:   opts.Timeout,
	}
}

func (p *TelemetryPipeline) Envelopes() EnvelopeBuilder { return p.envelopes }

// DecodeTelemetry validates and decodes a device push.
func DecodeTelemetry(body []byte) (TelemetryInput, error) {
	const stage = "decode telemetry"
	if err := telemetrySchema.Validate(body); err != nil {
		return TelemetryInput{}, newError(KindInvalidRequest, stage, err)
	}
	var in TelemetryInput
	if err := json.Unmarshal(body, &in); err != nil {
		return TelemetryInput{}, newError(KindInvalidRequest, stage, err)
	}
	return in, nil
}

// Trigger decodes body and runs the pipeline on it.
func (p *TelemetryPipeline) Trigger(ctx context.Context, body []byte) Envelope {
	in, err := DecodeTelemetry(body)
	if err != nil {
		p.metrics.observe(pipelineTelemetry, string(KindOf(err)), time.Now())
		p.logger.Warn("telemetry rejected", "error", err)
		return p.envelopes.Failure(err)
	}
	return p.Run(ctx, in)
}

func (p *TelemetryPipeline) Run(ctx context.Context, in TelemetryInput) Envelope {
	started := time.Now()
	logger := p.logger.With("invocation_id", uuid.NewString(), "pipeline", pipelineTelemetry, "device_id", in.DeviceID, "timestamp", in.Timestamp)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	env, outcome, err := p.run(ctx, in, logger)
	p.metrics.observe(pipelineTelemetry, outcome, started)
	if err != nil {
		logger.Error("telemetry ingest failed", "kind", KindOf(err), "error", err, "duration_ms", time.Since(started).Milliseconds())
		return env
	}
	logger.Info("telemetry ingest finished", "outcome", outcome, "duration_ms", time.Since(started).Milliseconds())
	return env
}

func (p *TelemetryPipeline) run(ctx context.Context, in TelemetryInput, logger *slog.Logger) (Envelope, string, error) {
	fail := func(err error) (Envelope, string, error) {
		return p.envelopes.Failure(err), string(KindOf(err)), err
	}

	if err := checkContext(ctx, "existence check"); err != nil {
		return fail(err)
	}
	existence, err := p.gate.Telemetry(ctx, in.Key())
	if err != nil {
		return fail(err)
	}
	if existence == Present {
		return p.envelopes.AlreadyExists(in.Key()), outcomeExists, nil
	}

	if err := checkContext(ctx, "owner lookup"); err != nil {
		return fail(err)
	}
	owner, err := p.owners.DeviceOwner(ctx, in.DeviceID)
	if err != nil {
		return fail(err)
	}

	if err := checkContext(ctx, "commit"); err != nil {
		return fail(err)
	}
	committed, created, err := p.committer.CommitTelemetry(ctx, types.Telemetry{
		DeviceID:    in.DeviceID,
		Timestamp:   in.Timestamp,
		Temperature: in.Temperature,
		Humidity:    in.Humidity,
		Owner:       owner,
	})
	if err != nil {
		return fail(err)
	}
	if !created {
		logger.Info("telemetry committed concurrently by another invocation")
		return p.envelopes.AlreadyExists(committed.Key()), outcomeExists, nil
	}

	result := TelemetryResult{Telemetry: committed}
	if p.sink != nil {
		if err := p.sink.Forward(ctx, committed); err != nil {
			logger.Warn("sink forward failed after commit", "error", err)
			result.ForwardError = err.Error()
		} else {
			result.Forwarded = true
		}
		p.metrics.forwarded(result.Forwarded)
	}
	return p.envelopes.Created(result), outcomeCreated, nil
}
