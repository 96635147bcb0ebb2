package httpapi

import (
	"context"
	"net/http"

	"weatherdash/internal/ingest"
	"weatherdash/internal/utils"
)

const maxTriggerBytes = 64 << 10

// Trigger runs one pipeline invocation for a raw request body.
// *ingest.WeatherPipeline and *ingest.TelemetryPipeline implement it.
type Trigger interface {
	Trigger(ctx context.Context, body []byte) ingest.Envelope
	Envelopes() ingest.EnvelopeBuilder
}

// RegisterIngest mounts the ingestion triggers. Each request is one
// invocation; the answer is always a response envelope.
func RegisterIngest(mux *http.ServeMux, weather, telemetry Trigger) {
	if weather != nil {
		mux.Handle("POST /ingest/weather", ingestHandler(weather))
		mux.Handle("OPTIONS /ingest/weather", preflightHandler(weather))
	}
	if telemetry != nil {
		mux.Handle("POST /ingest/telemetry", ingestHandler(telemetry))
		mux.Handle("OPTIONS /ingest/telemetry", preflightHandler(telemetry))
	}
}

func ingestHandler(p Trigger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := utils.ReadBody(w, r, maxTriggerBytes)
		if err != nil {
			p.Envelopes().Failure(&ingest.Error{Kind: ingest.KindInvalidRequest, Op: "read trigger", Err: err}).Write(w)
			return
		}
		p.Trigger(r.Context(), body).Write(w)
	})
}

func preflightHandler(p Trigger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Envelopes().Preflight().Write(w)
	})
}
