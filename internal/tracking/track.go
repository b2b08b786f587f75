package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/storage"
	"github.com/tejasgit/nylo/internal/dedup"
)

// APIKeyHeader optionally identifies the customer sending a batch.
const APIKeyHeader = "X-API-Key"

type trackResponse struct {
	Success         bool `json:"success"`
	EventsProcessed int  `json:"eventsProcessed"`
	TotalEvents     int  `json:"totalEvents"`
	Duplicates      int  `json:"duplicates,omitempty"`
	Invalid         int  `json:"invalid,omitempty"`
}

// ingestResult counts what happened to each event of one request.
type ingestResult struct {
	total      int
	stored     int
	duplicates int
	invalid    int
}

// TrackHandler accepts a single event, a plain {events: [...]} list or a
// compressed batch.
func (s *Service) TrackHandler(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	events, batched, err := decodeTrackBody(body)
	if err != nil {
		slog.Warn("Invalid track payload", "error", err, "payload_size", len(body))
		httperr.Write(c, err)
		return
	}

	if err := s.stampCustomer(c, events); err != nil {
		httperr.Write(c, err)
		return
	}

	// A lone event that fails validation is a client error; inside a batch
	// it is skipped so the rest can land.
	if !batched {
		if err := events[0].Validate(); err != nil {
			metrics.EventsReceived.WithLabelValues(metrics.OutcomeInvalid).Inc()
			httperr.Write(c, httperr.Validation(err.Error(), nil))
			return
		}
	}

	result, err := s.ingest(c.Request.Context(), events)
	if err != nil {
		if !s.policy.SoftFail(EndpointTrack) {
			httperr.Write(c, httperr.Internal("Failed to persist events", err))
			return
		}
		slog.Error("Failed to persist events, answering success", "error", err, "events", len(events))
	}

	c.JSON(http.StatusOK, trackResponse{
		Success:         true,
		EventsProcessed: result.stored,
		TotalEvents:     result.total,
		Duplicates:      result.duplicates,
		Invalid:         result.invalid,
	})
}

// ingest validates, dedups and persists events. The dedup cache is the only
// authority on the window; keys admitted for events that were not stored are
// released so the client's retry is accepted.
func (s *Service) ingest(ctx context.Context, events []v1.Event) (ingestResult, error) {
	result := ingestResult{total: len(events)}
	now := s.now()

	admitted := make([]*v1.Event, 0, len(events))
	keys := make([]string, 0, len(events))
	for i := range events {
		evt := &events[i]
		if err := evt.Validate(); err != nil {
			result.invalid++
			metrics.EventsReceived.WithLabelValues(metrics.OutcomeInvalid).Inc()
			continue
		}

		key := dedup.KeyFor(evt)
		if !s.dedup.Admit(key) {
			result.duplicates++
			metrics.EventsReceived.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			continue
		}
		evt.DedupKey = key
		evt.IngestedAt = now
		admitted = append(admitted, evt)
		keys = append(keys, key)
	}

	if len(admitted) == 0 {
		return result, nil
	}

	stored, err := s.events.SaveEvents(ctx, admitted)
	result.stored = stored
	metrics.EventsReceived.WithLabelValues(metrics.OutcomeStored).Add(float64(stored))
	if err != nil {
		s.dedup.Forget(keys[stored:]...)
		metrics.EventsReceived.WithLabelValues(metrics.OutcomeFailed).Add(float64(len(admitted) - stored))
		return result, err
	}

	slog.Debug("Ingested events",
		"total", result.total,
		"stored", result.stored,
		"duplicates", result.duplicates,
		"invalid", result.invalid,
	)
	return result, nil
}

// readBody enforces the body size limit and returns the raw payload.
func (s *Service) readBody(c *gin.Context) ([]byte, error) {
	limited := io.LimitReader(c.Request.Body, s.maxBodySizeBytes+1) // +1 to detect oversized requests
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, httperr.Internal("Failed to read request body", err)
	}
	if int64(len(body)) > s.maxBodySizeBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(body), "max", s.maxBodySizeBytes)
		return nil, httperr.PayloadTooLarge(s.maxBodySizeBytes)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// decodeTrackBody reports batched=true for the {events: [...]} shapes.
func decodeTrackBody(body []byte) (events []v1.Event, batched bool, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false, httperr.InvalidJSON(err)
	}

	if _, ok := probe["events"]; ok {
		var batch v1.Batch
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, true, httperr.InvalidJSON(err)
		}
		if batch.Len() == 0 {
			return nil, true, httperr.Validation("events must not be empty", nil)
		}
		events, err := batch.Expand()
		if err != nil {
			return nil, true, httperr.Validation(fmt.Sprintf("invalid event in batch: %v", err), nil)
		}
		return events, true, nil
	}

	var evt v1.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, false, httperr.Validation(err.Error(), nil)
	}
	return []v1.Event{evt}, false, nil
}

// stampCustomer resolves the API key header, when present, and fills the
// customer on events that do not name one.
func (s *Service) stampCustomer(c *gin.Context, events []v1.Event) error {
	apiKey := c.GetHeader(APIKeyHeader)
	if apiKey == "" {
		return nil
	}
	customer, err := s.customers.GetCustomerByAPIKey(c.Request.Context(), apiKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return httperr.NotFound("no customer for API key")
		}
		return httperr.Internal("Failed to look up customer", err)
	}
	for i := range events {
		if events[i].CustomerID == 0 {
			events[i].CustomerID = customer.ID
		}
	}
	return nil
}
