package tracking

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/identity"
)

const (
	msgEventTracked   = "Event tracked"
	msgEventDuplicate = "Duplicate event ignored"
)

type eventRequest struct {
	EventType  string                 `json:"eventType"`
	WaiTag     string                 `json:"waiTag"`
	SessionID  string                 `json:"sessionId"`
	Domain     string                 `json:"domain"`
	URL        string                 `json:"url"`
	APIKey     string                 `json:"apiKey"`
	CustomerID v1.CustomerID          `json:"customerId"`
	Timestamp  v1.Timestamp           `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type eventResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EventHandler records one event from a known customer carrying a
// well-formed identifier.
func (s *Service) EventHandler(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	if !identity.IsValid(req.WaiTag) {
		httperr.Write(c, httperr.Validation("invalid waiTag format", map[string]interface{}{"waiTag": req.WaiTag}))
		return
	}

	customer, err := s.resolveCustomer(c.Request.Context(), req.APIKey, req.CustomerID)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	evt := v1.Event{
		EventType:  req.EventType,
		Timestamp:  req.Timestamp,
		SessionID:  req.SessionID,
		WaiTag:     req.WaiTag,
		Domain:     strings.ToLower(strings.TrimSpace(req.Domain)),
		URL:        req.URL,
		CustomerID: customer.ID,
		Metadata:   req.Metadata,
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = v1.NewTimestamp(s.now())
	}
	// Without a session the identifier scopes deduplication.
	if evt.SessionID == "" {
		evt.SessionID = evt.WaiTag
	}
	if err := evt.Validate(); err != nil {
		httperr.Write(c, httperr.Validation(err.Error(), nil))
		return
	}

	result, err := s.ingest(c.Request.Context(), []v1.Event{evt})
	if err != nil {
		if !s.policy.SoftFail(EndpointEvent) {
			httperr.Write(c, httperr.Internal("Failed to persist event", err))
			return
		}
		slog.Error("Failed to persist event, answering success", "error", err, "customer_id", customer.ID)
	}

	msg := msgEventTracked
	if result.duplicates > 0 {
		msg = msgEventDuplicate
	}
	c.JSON(http.StatusOK, eventResponse{Success: true, Message: msg})
}
