package delivery

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

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

// TrackPath is the ingestion endpoint batches are posted to.
const TrackPath = "/api/track"

// ErrBatchRejected marks a 4xx answer other than 429. Resending the same
// batch cannot succeed, so the pipeline drops it instead of retrying.
var ErrBatchRejected = errors.New("batch rejected by server")

// Transport delivers one batch. A nil error means the server acknowledged it.
type Transport interface {
	Send(ctx context.Context, batch *v1.Batch) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, batch *v1.Batch) error

func (f TransportFunc) Send(ctx context.Context, batch *v1.Batch) error {
	return f(ctx, batch)
}

// HTTPTransport posts batches as JSON to the tracking server.
type HTTPTransport struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPTransport creates a transport for the server at endpoint. A nil
// client uses one with a 10s timeout.
func NewHTTPTransport(endpoint, apiKey string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{
		url:    strings.TrimRight(endpoint, "/") + TrackPath,
		apiKey: apiKey,
		client: client,
	}
}

type trackResponse struct {
	Success         bool   `json:"success"`
	EventsProcessed int    `json:"eventsProcessed"`
	TotalEvents     int    `json:"totalEvents"`
	Message         string `json:"message"`
}

func (t *HTTPTransport) Send(ctx context.Context, batch *v1.Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBatchRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("X-API-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("track request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed trackResponse
	_ = json.Unmarshal(payload, &parsed)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("track endpoint returned %d: %s", resp.StatusCode, parsed.Message)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrBatchRejected, resp.StatusCode, parsed.Message)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("track endpoint returned unexpected status %d", resp.StatusCode)
	case !parsed.Success:
		return fmt.Errorf("track endpoint reported failure: %s", parsed.Message)
	}
	return nil
}
