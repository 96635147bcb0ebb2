// Package dataapi speaks the backend's GraphQL-shaped data API: a single POST
// endpoint that takes {query, operationName, variables} and answers
// {data, errors?}. It holds both the client used by the ingestion pipeline and
// the live sync client, and the server that executes registered operations
// against the store.
package dataapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIKeyHeader carries the shared data API key.
const APIKeyHeader = "x-api-key"

type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Response struct {
	Data       map[string]json.RawMessage `json:"data"`
	Errors     []Error                    `json:"errors,omitempty"`
	Extensions *Extensions                `json:"extensions,omitempty"`
}

// Extensions carries out-of-band facts about a successful operation.
type Extensions struct {
	// AlreadyExists is set by a create that found the record stored.
	AlreadyExists bool `json:"alreadyExists,omitempty"`
}

// AlreadyExists reports whether a create returned a record that was already
// stored instead of inserting it.
func (r *Response) AlreadyExists() bool {
	return r != nil && r.Extensions != nil && r.Extensions.AlreadyExists
}

type Error struct {
	Message   string   `json:"message"`
	ErrorType string   `json:"errorType,omitempty"`
	Path      []string `json:"path,omitempty"`
}

// Field decodes data[name] into out. It reports false when the field is
// missing or null, which is how a get operation says "no such record".
func (r *Response) Field(name string, out any) (bool, error) {
	if r == nil || r.Data == nil {
		return false, nil
	}
	raw, ok := r.Data[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// ResponseErrors is a well-formed response that carried an error list. The
// request reached the API; the API refused it.
type ResponseErrors []Error

func (e ResponseErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		if item.ErrorType != "" {
			msgs = append(msgs, item.ErrorType+": "+item.Message)
			continue
		}
		msgs = append(msgs, item.Message)
	}
	return "graphql errors: " + strings.Join(msgs, "; ")
}

// TransportError means no well-formed response came back: the request could
// not be sent, the connection failed, or the status was not 2xx.
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("data api %s: status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("data api %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
