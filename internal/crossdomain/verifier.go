package crossdomain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/storage"
	"github.com/tejasgit/nylo/internal/dedup"
	"github.com/tejasgit/nylo/internal/identity"
)

const (
	MethodToken       = "token"
	MethodFingerprint = "fingerprint"
)

// DomainGate reports whether a domain has passed ownership verification for a
// customer. verification.Service implements it.
type DomainGate interface {
	IsVerified(ctx context.Context, domain string, customerID v1.CustomerID) (bool, error)
}

// SyncRequest is one fingerprint sighting.
type SyncRequest struct {
	CustomerID v1.CustomerID
	WaiTag     string
	Site       string
	Domain     string
	UserAgent  string
	RemoteAddr string
}

// Service validates handoff tokens on the receiving domain and falls back to
// fingerprint correlation when no token is present.
type Service struct {
	customers  storage.CustomerStore
	identities storage.IdentityStore
	events     storage.EventStore
	gate       DomainGate
	index      *FingerprintIndex
	codec      identity.TokenCodec
	now        func() time.Time
}

func NewService(
	customers storage.CustomerStore,
	identities storage.IdentityStore,
	events storage.EventStore,
	gate DomainGate,
	index *FingerprintIndex,
	codec identity.TokenCodec,
) *Service {
	if customers == nil {
		panic("crossdomain: customer store must not be nil")
	}
	if identities == nil {
		panic("crossdomain: identity store must not be nil")
	}
	if events == nil {
		panic("crossdomain: event store must not be nil")
	}
	if gate == nil {
		panic("crossdomain: domain gate must not be nil")
	}
	if index == nil {
		panic("crossdomain: fingerprint index must not be nil")
	}
	return &Service{
		customers:  customers,
		identities: identities,
		events:     events,
		gate:       gate,
		index:      index,
		codec:      codec,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Verify validates token for domain. When the customer requires domain
// verification an unverified domain is rejected before the token is looked at,
// even when it is missing.
// No signature is checked on legacy tokens: a well-formed token is authoritative.
func (s *Service) Verify(ctx context.Context, token, domain string, customerID v1.CustomerID) (*identity.VerifiedIdentity, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, httperr.Validation("domain is required", nil)
	}

	customer, err := s.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if customer.RequireDomainVerification {
		verified, err := s.gate.IsVerified(ctx, domain, customerID)
		if err != nil {
			return nil, httperr.Internal("Failed to check domain verification", err)
		}
		if !verified {
			metrics.CrossDomainCorrelations.WithLabelValues(MethodToken, "domain_unverified").Inc()
			slog.Warn("Cross-domain token refused for unverified domain",
				"domain", domain,
				"customer_id", customerID,
			)
			return nil, httperr.DomainUnverified(domain)
		}
	}

	if strings.TrimSpace(token) == "" {
		return nil, httperr.Validation("token is required", nil)
	}

	tok, err := s.codec.Decode(token)
	if err != nil {
		metrics.CrossDomainCorrelations.WithLabelValues(MethodToken, "invalid").Inc()
		if errors.Is(err, identity.ErrExpiredToken) {
			return nil, httperr.Validation("cross-domain token expired", nil)
		}
		return nil, httperr.Validation("invalid cross-domain token", map[string]interface{}{"reason": err.Error()})
	}

	result := &identity.VerifiedIdentity{WaiTag: tok.WaiTag, SessionID: tok.SessionID}
	registered, err := s.identities.GetIdentity(ctx, customerID, tok.WaiTag)
	switch {
	case err == nil:
		result.UserID = registered.ID
	case !errors.Is(err, storage.ErrNotFound):
		slog.Warn("Failed to look up registered identity", "error", err, "customer_id", customerID)
	}

	s.audit(ctx, customerID, domain, tok.WaiTag, tok.SessionID, map[string]interface{}{
		"method": MethodToken,
	})
	metrics.CrossDomainCorrelations.WithLabelValues(MethodToken, "accepted").Inc()
	return result, nil
}

// SyncByFingerprint records a sighting and reports whether the fingerprint is
// now shared across sites, in which case the first-seen identifier is canonical.
func (s *Service) SyncByFingerprint(ctx context.Context, req SyncRequest) (Match, error) {
	if !identity.IsValid(req.WaiTag) {
		return Match{}, httperr.Validation("invalid waiTag format", map[string]interface{}{"waiTag": req.WaiTag})
	}
	site := strings.TrimSpace(req.Site)
	if site == "" {
		site = strings.ToLower(strings.TrimSpace(req.Domain))
	}
	if site == "" {
		return Match{}, httperr.Validation("currentSite or domain is required", nil)
	}
	if _, err := s.customer(ctx, req.CustomerID); err != nil {
		return Match{}, err
	}

	match := s.index.Record(req.CustomerID, Fingerprint(req.UserAgent, req.RemoteAddr), site, req.WaiTag)
	if !match.Shared {
		metrics.CrossDomainCorrelations.WithLabelValues(MethodFingerprint, "recorded").Inc()
		return match, nil
	}

	s.audit(ctx, req.CustomerID, req.Domain, match.WaiTag, "", map[string]interface{}{
		"method":         MethodFingerprint,
		"currentSite":    site,
		"sites":          match.Sites,
		"observedWaiTag": req.WaiTag,
	})
	metrics.CrossDomainCorrelations.WithLabelValues(MethodFingerprint, "matched").Inc()
	return match, nil
}

func (s *Service) customer(ctx context.Context, customerID v1.CustomerID) (*v1.Customer, error) {
	if customerID <= 0 {
		return nil, httperr.Validation("customerId is required", nil)
	}
	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, httperr.NotFound(fmt.Sprintf("customer %d not found", customerID))
		}
		return nil, httperr.Internal("Failed to look up customer", err)
	}
	return customer, nil
}

// audit stores a correlation record as an ordinary event. Failures are
// logged; the correlation itself still succeeds.
func (s *Service) audit(ctx context.Context, customerID v1.CustomerID, domain, waiTag, sessionID string, metadata map[string]interface{}) {
	now := s.now()
	if sessionID == "" {
		sessionID = "correlation"
	}
	evt := &v1.Event{
		EventType:  identity.CorrelationEventType,
		Timestamp:  v1.NewTimestamp(now),
		SessionID:  sessionID,
		WaiTag:     waiTag,
		Domain:     domain,
		CustomerID: customerID,
		Metadata:   metadata,
		IngestedAt: now,
	}
	evt.DedupKey = dedup.Key(waiTag+"|"+domain, evt.EventType, evt.Timestamp.String())

	if _, err := s.events.SaveEvents(ctx, []*v1.Event{evt}); err != nil {
		slog.Error("Failed to store correlation record",
			"error", err,
			"method", metadata["method"],
			"customer_id", customerID,
		)
	}
}
