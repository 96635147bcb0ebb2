package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Envelope is the transport independent answer to one invocation. Body is a
// JSON document encoded as a string.
type Envelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Write copies the envelope onto w.
func (e Envelope) Write(w http.ResponseWriter) {
	for k, v := range e.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(e.StatusCode)
	if _, err := w.Write([]byte(e.Body)); err != nil {
		slog.Error("write envelope failed", "error", err)
	}
}

const alreadyExistsMessage = "Data already exists"

type FailureDetail struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	Stack   string `json:"stack,omitempty"`
}

type FailureBody struct {
	Errors []FailureDetail `json:"errors"`
}

// EnvelopeBuilder maps terminal pipeline states to envelopes. Every envelope
// carries the same CORS headers. Dev adds the wrapped error chain to failures.
type EnvelopeBuilder struct {
	AllowOrigin string
	Dev         bool
}

func (b EnvelopeBuilder) Headers() map[string]string {
	origin := b.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	return map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Headers": "x-api-key,Content-Type",
		"Access-Control-Allow-Methods": "OPTIONS,POST",
		"Content-Type":                 "application/json",
	}
}

// Created answers 201 with the committed record.
func (b EnvelopeBuilder) Created(record any) Envelope {
	body, err := json.Marshal(record)
	if err != nil {
		return b.Failure(newError(KindInternal, "encode response", err))
	}
	return b.envelope(http.StatusCreated, body)
}

// AlreadyExists answers 200 with a notice carrying the identity fields of key.
func (b EnvelopeBuilder) AlreadyExists(key any) Envelope {
	fields := map[string]any{}
	raw, err := json.Marshal(key)
	if err == nil {
		err = json.Unmarshal(raw, &fields)
	}
	if err != nil {
		fields = map[string]any{}
	}
	fields["message"] = alreadyExistsMessage
	body, _ := json.Marshal(fields)
	return b.envelope(http.StatusOK, body)
}

func (b EnvelopeBuilder) Failure(err error) Envelope {
	kind := KindOf(err)
	detail := FailureDetail{Message: err.Error(), Kind: kind}
	if b.Dev {
		detail.Stack = errorChain(err)
	}
	body, _ := json.Marshal(FailureBody{Errors: []FailureDetail{detail}})
	return b.envelope(kind.StatusCode(), body)
}

// Preflight answers a CORS preflight request.
func (b EnvelopeBuilder) Preflight() Envelope {
	return Envelope{StatusCode: http.StatusNoContent, Headers: b.Headers()}
}

func (b EnvelopeBuilder) envelope(status int, body []byte) Envelope {
	return Envelope{StatusCode: status, Headers: b.Headers(), Body: string(body)}
}

func errorChain(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %v", e, e))
	}
	return strings.Join(lines, "\n")
}
