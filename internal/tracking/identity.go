package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/storage"
	"github.com/tejasgit/nylo/internal/identity"
)

// RegisterRequest is the register-waitag body. APIKey takes precedence over CustomerID.
type RegisterRequest struct {
	WaiTag     string        `json:"waiTag"`
	SessionID  string        `json:"sessionId"`
	Domain     string        `json:"domain"`
	APIKey     string        `json:"apiKey"`
	CustomerID v1.CustomerID `json:"customerId"`
}

type registerResponse struct {
	Success    bool          `json:"success"`
	WaiTag     string        `json:"waiTag"`
	SessionID  string        `json:"sessionId"`
	Domain     string        `json:"domain"`
	CustomerID v1.CustomerID `json:"customerId"`
}

type verifyWaiTagRequest struct {
	WaiTag string `json:"waiTag"`
	Domain string `json:"domain"`
}

// RegisterWaiTagHandler records an identifier for a domain, issuing one when
// the caller has none yet.
func (s *Service) RegisterWaiTagHandler(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	registered, err := s.Register(c.Request.Context(), req)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusOK, registerResponse{
		Success:    true,
		WaiTag:     registered.WaiTag,
		SessionID:  registered.SessionID,
		Domain:     registered.Domain,
		CustomerID: registered.CustomerID,
	})
}

// Register resolves the customer, fills in a missing identifier or session
// and stores the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*v1.Identity, error) {
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return nil, httperr.Validation("domain is required", nil)
	}

	customer, err := s.resolveCustomer(ctx, req.APIKey, req.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	waiTag := req.WaiTag
	switch {
	case waiTag == "":
		id, err := identity.Issue(domain, now)
		if err != nil {
			return nil, httperr.Internal("Failed to issue identifier", err)
		}
		waiTag = id.String()
	case !identity.IsValid(waiTag):
		return nil, httperr.Validation("invalid waiTag format", map[string]interface{}{"waiTag": waiTag})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = identity.NewSessionID()
	}

	registered := &v1.Identity{
		ID:         uuid.NewString(),
		WaiTag:     waiTag,
		SessionID:  sessionID,
		Domain:     domain,
		CustomerID: customer.ID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.identities.SaveIdentity(ctx, registered); err != nil {
		if !s.policy.SoftFail(EndpointRegister) {
			return nil, httperr.Internal("Failed to register identifier", err)
		}
		slog.Error("Failed to register identifier, answering success",
			"error", err,
			"customer_id", customer.ID,
			"domain", domain,
		)
	}
	return registered, nil
}

// VerifyWaiTagHandler is a shallow format check; it does not consult storage.
func (s *Service) VerifyWaiTagHandler(c *gin.Context) {
	var req verifyWaiTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}
	if req.WaiTag == "" {
		httperr.Write(c, httperr.Validation("waiTag is required", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"isValid": identity.IsValid(req.WaiTag),
	})
}

// resolveCustomer prefers the API key over a bare customer id.
func (s *Service) resolveCustomer(ctx context.Context, apiKey string, customerID v1.CustomerID) (*v1.Customer, error) {
	var (
		customer *v1.Customer
		err      error
	)
	switch {
	case apiKey != "":
		customer, err = s.customers.GetCustomerByAPIKey(ctx, apiKey)
	case customerID > 0:
		customer, err = s.customers.GetCustomer(ctx, customerID)
	default:
		return nil, httperr.Validation("apiKey or customerId is required", nil)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if apiKey != "" {
				return nil, httperr.NotFound("no customer for API key")
			}
			return nil, httperr.NotFound(fmt.Sprintf("customer %d not found", customerID))
		}
		return nil, httperr.Internal("Failed to look up customer", err)
	}
	return customer, nil
}
