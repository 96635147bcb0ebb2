package dataapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"weatherdash/internal/utils"
)

const maxRequestBytes = 1 << 20

// Resolver executes one registered operation. vars is the raw variables
// object; the returned value is encoded under the operation's root field.
type Resolver func(ctx context.Context, vars json.RawMessage) (any, error)

// ResolverError is reported to the caller in the errors list. Any other
// error is logged and reported as an internal failure.
type ResolverError struct {
	Type    string
	Message string
}

func (e *ResolverError) Error() string { return e.Type + ": " + e.Message }

// Existing wraps the result of a create that found its record already
// stored. The record is returned as usual and the response says so in its
// extensions.
type Existing struct {
	Record any
}

func Invalid(format string, args ...any) error {
	return &ResolverError{Type: "ValidationError", Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) error {
	return &ResolverError{Type: "Unauthorized", Message: fmt.Sprintf(format, args...)}
}

var operationNameRe = regexp.MustCompile(`^\s*(?:query|mutation)\s+([A-Za-z_][A-Za-z0-9_]*)`)

type registration struct {
	op      Operation
	resolve Resolver
}

// Server executes documents by matching their operation name against the
// registered set (persisted-operation style). It does not interpret the
// selection set; each resolver returns the full record.
type Server struct {
	apiKey string
	logger *slog.Logger

	mu  sync.RWMutex
	ops map[string]registration
}

func NewServer(apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{apiKey: apiKey, logger: logger, ops: make(map[string]registration)}
}

func (s *Server) Register(op Operation, resolve Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ops[op.Name]; exists {
		panic(fmt.Sprintf("dataapi: operation %s registered twice", op.Name))
	}
	s.ops[op.Name] = registration{op: op, resolve: resolve}
}

// Authorized reports whether key matches the configured API key.
func (s *Server) Authorized(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeErrors(w, http.StatusMethodNotAllowed, Error{ErrorType: "MethodNotAllowed", Message: "use POST"})
		return
	}
	if !s.Authorized(r.Header.Get(APIKeyHeader)) {
		writeErrors(w, http.StatusUnauthorized, Error{ErrorType: "UnauthorizedException", Message: "You are not authorized to make this call."})
		return
	}

	var req struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, Error{ErrorType: "MalformedHttpRequestException", Message: "invalid JSON body"})
		return
	}

	name := req.OperationName
	if name == "" {
		if m := operationNameRe.FindStringSubmatch(req.Query); m != nil {
			name = m[1]
		}
	}
	s.mu.RLock()
	reg, ok := s.ops[name]
	s.mu.RUnlock()
	if !ok {
		writeErrors(w, http.StatusBadRequest, Error{ErrorType: "ValidationError", Message: fmt.Sprintf("unknown operation %q", name)})
		return
	}
	if len(req.Variables) == 0 || string(req.Variables) == "null" {
		req.Variables = json.RawMessage(`{}`)
	}

	result, err := reg.resolve(r.Context(), req.Variables)
	if err != nil {
		var rerr *ResolverError
		if !errors.As(err, &rerr) {
			s.logger.Error("data api resolver failed", "operation", name, "error", err)
			rerr = &ResolverError{Type: "InternalFailure", Message: "internal error"}
		}
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"data":   map[string]any{reg.op.Field: nil},
			"errors": []Error{{Message: rerr.Message, ErrorType: rerr.Type, Path: []string{reg.op.Field}}},
		})
		return
	}

	if existing, ok := result.(Existing); ok {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"data":       map[string]any{reg.op.Field: existing.Record},
			"extensions": Extensions{AlreadyExists: true},
		})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{reg.op.Field: result},
	})
}

func writeErrors(w http.ResponseWriter, status int, errs ...Error) {
	utils.WriteJSON(w, status, map[string]any{"data": nil, "errors": errs})
}

// DecodeVars unmarshals the variables object into out, reporting a
// validation error on malformed input.
func DecodeVars(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return Invalid("invalid variables: %v", err)
	}
	return nil
}
