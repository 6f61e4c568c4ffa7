// Package api is the typed request/response client for the chat
// backend's REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/observability"
)

// APIError is a backend failure normalized to an HTTP-status-like code
// and a human-readable detail decoded from the response body.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

// Client issues calls against the chat backend. The zero base URL
// defaults to the local development backend.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
}

// NewClient builds a Client. deviceID, when non-empty, is attached to
// every request as the X-Device-Id header.
func NewClient(baseURL, deviceID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8001/api"
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// do performs one request. Responses with status >= 400 are normalized
// into *APIError; transport failures are wrapped with method and path.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := otel.Tracer("chat-client/api").Start(ctx, method+" "+path,
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("http.route", path)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncAPIRequest(method, "transport_error")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	observability.IncAPIRequest(method, strconv.Itoa(resp.StatusCode))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	}
	return apiErr
}
