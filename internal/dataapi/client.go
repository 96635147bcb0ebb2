package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

type ClientOptions struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

// Client posts operation documents to the data API. It never retries: a
// failed call is reported to the caller, which decides what happens next.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSpace(opts.Endpoint),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) APIKey() string { return c.apiKey }

// Execute sends op with vars. A transport fault is returned as
// *TransportError. A 2xx answer carrying an error list is returned together
// with a ResponseErrors error so callers can tell the two apart.
func (c *Client) Execute(ctx context.Context, op Operation, vars map[string]any) (*Response, error) {
	if c == nil || c.endpoint == "" {
		return nil, &TransportError{Operation: op.Name, Err: errors.New("data api endpoint is not configured")}
	}
	body, err := json.Marshal(Request{Query: op.Document, OperationName: op.Name, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Operation: op.Name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: op.Name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Operation: op.Name, StatusCode: resp.StatusCode, Err: err}
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && len(out.Errors) > 0 {
			msg = ResponseErrors(out.Errors).Error()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{Operation: op.Name, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return nil, &TransportError{Operation: op.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if len(out.Errors) > 0 {
		return &out, ResponseErrors(out.Errors)
	}
	return &out, nil
}
