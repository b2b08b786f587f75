package identity

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

// VerifyPath is the server endpoint that validates handoff tokens.
const VerifyPath = "/api/tracking/verify-cross-domain-token"

// ErrRejected means the server refused the token (bad shape, unverified domain...).
var ErrRejected = errors.New("handoff token rejected")

// VerifiedIdentity is the canonical identity the server returns for a token.
type VerifiedIdentity struct {
	WaiTag    string `json:"waiTag"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// TokenVerifier asks an authority whether a handoff token is acceptable for domain.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token, domain string, customerID v1.CustomerID) (*VerifiedIdentity, error)
}

// HTTPVerifier calls the tracking server's verify endpoint.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier for the server at baseURL. A nil client
// uses one with a 10s timeout.
func NewHTTPVerifier(baseURL string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPVerifier{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type verifyRequest struct {
	Token      string        `json:"token"`
	Domain     string        `json:"domain"`
	CustomerID v1.CustomerID `json:"customerId,omitempty"`
}

type verifyResponse struct {
	Success  bool              `json:"success"`
	Identity *VerifiedIdentity `json:"identity"`
	Message  string            `json:"message"`
}

func (v *HTTPVerifier) VerifyToken(ctx context.Context, token, domain string, customerID v1.CustomerID) (*VerifiedIdentity, error) {
	body, err := json.Marshal(verifyRequest{Token: token, Domain: domain, CustomerID: customerID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+VerifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read verify response: %w", err)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("invalid verify response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("verify endpoint returned %d: %s", resp.StatusCode, parsed.Message)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success || parsed.Identity == nil {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, parsed.Message)
	}
	return parsed.Identity, nil
}
