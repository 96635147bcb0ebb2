// Package ingest is the telemetry ingestion pipeline: fetch or accept a
// reading, skip it when it is already stored, resolve its owner from the
// parent record, commit it once through the data API and describe the
// outcome as a response envelope.
package ingest

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies why an invocation failed. Each kind maps to one status code.
type Kind string

const (
	KindSourceUnavailable Kind = "SourceUnavailable"
	KindSourceDataInvalid Kind = "SourceDataInvalid"
	KindInvalidStationKey Kind = "InvalidStationKey"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindLookupFailed      Kind = "LookupFailed"
	KindOwnerNotFound     Kind = "OwnerNotFound"
	KindOwnerUnassigned   Kind = "OwnerUnassigned"
	KindMutationRejected  Kind = "MutationRejected"
	KindTransportError    Kind = "TransportError"
	KindCanceled          Kind = "Canceled"
	KindInternal          Kind = "Internal"
)

func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidStationKey, KindInvalidRequest:
		return http.StatusBadRequest
	case KindOwnerNotFound:
		return http.StatusNotFound
	case KindOwnerUnassigned:
		return http.StatusConflict
	case KindMutationRejected:
		return http.StatusUnprocessableEntity
	case KindSourceUnavailable, KindSourceDataInvalid, KindTransportError:
		return http.StatusBadGateway
	case KindLookupFailed:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure. Op names the stage that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Context cancellation wins over any other
// classification; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// checkContext stops the pipeline between stages once ctx is done so that a
// cancelled invocation never reaches the commit.
func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return newError(KindCanceled, op, err)
	}
	return nil
}
