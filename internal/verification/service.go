package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/storage"
)

const (
	DefaultLookupTimeout = 10 * time.Second
	DefaultCacheSize     = 1024

	tokenBytes = 16
)

// Config tunes the verification service.
type Config struct {
	// LookupTimeout bounds one Verify call's DNS work, independent of the caller's context.
	LookupTimeout time.Duration

	// CacheSize is the number of verified (domain, customer) pairs kept in memory.
	// Zero disables the cache.
	CacheSize int
}

// Challenge is what a caller must publish to prove control of a domain.
type Challenge struct {
	Record *v1.DomainVerification
	Host   string
	Value  string
}

// Service drives the DNS ownership state machine:
// pending -> verified | failed, failed -> (re-check), verified -> (re-check).
type Service struct {
	store     storage.VerificationStore
	customers storage.CustomerStore
	resolver  Resolver
	timeout   time.Duration
	cache     *verifiedCache
	group     singleflight.Group
	now       func() time.Time
}

func NewService(store storage.VerificationStore, customers storage.CustomerStore, resolver Resolver, cfg Config) *Service {
	if store == nil {
		panic("verification: store must not be nil")
	}
	if customers == nil {
		panic("verification: customer store must not be nil")
	}
	if resolver == nil {
		panic("verification: resolver must not be nil")
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.CacheSize < 0 {
		cfg.CacheSize = 0
	}
	return &Service{
		store:     store,
		customers: customers,
		resolver:  resolver,
		timeout:   cfg.LookupTimeout,
		cache:     newVerifiedCache(cfg.CacheSize),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RequestVerification starts (or restarts) a challenge. A verified record is
// returned unchanged; otherwise any existing token is reused and the record
// is (re)written as pending.
func (s *Service) RequestVerification(ctx context.Context, rawDomain string, customerID v1.CustomerID) (*Challenge, error) {
	domain, err := s.validateRequest(ctx, rawDomain, customerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.lookup(ctx, domain, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == v1.StatusVerified {
		return newChallenge(existing), nil
	}

	now := s.now()
	record := &v1.DomainVerification{
		Domain:     domain,
		CustomerID: customerID,
		Status:     v1.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil && existing.Token != "" {
		record.Token = existing.Token
		record.CreatedAt = existing.CreatedAt
		record.LastCheckedAt = existing.LastCheckedAt
	} else {
		token, err := newToken()
		if err != nil {
			return nil, httperr.Internal("Failed to generate verification token", err)
		}
		record.Token = token
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	slog.Info("Domain verification requested",
		"domain", domain,
		"customer_id", customerID,
		"reused_token", existing != nil)
	return newChallenge(record), nil
}

// Verify checks the challenge against DNS. Concurrent calls for the same pair
// share one lookup. The DNS work is detached from ctx cancellation and bounded
// by the configured timeout only.
func (s *Service) Verify(ctx context.Context, rawDomain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	domain, err := NormalizeDomain(rawDomain)
	if err != nil {
		return nil, httperr.Validation(err.Error(), map[string]interface{}{"domain": rawDomain})
	}
	if customerID <= 0 {
		return nil, httperr.Validation("customerId is required", nil)
	}

	detached := context.WithoutCancel(ctx)
	key := domain + "|" + customerID.String()
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.verify(detached, domain, customerID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*v1.DomainVerification), nil
}

func (s *Service) verify(ctx context.Context, domain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	record, err := s.lookup(ctx, domain, customerID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, httperr.NotFound(fmt.Sprintf("no verification requested for %s; call request-verification first", domain))
	}
	if record.Status == v1.StatusVerified {
		s.cache.add(cacheKey{domain, customerID})
		return record, nil
	}

	verifiedParent, err := s.verifiedAncestor(ctx, domain, customerID)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	matched, reason := s.checkTXT(lookupCtx, domain, record.ExpectedRecord())
	cancel()

	now := s.now()
	record.LastCheckedAt = &now
	record.UpdatedAt = now

	switch {
	case matched:
		record.Status = v1.StatusVerified
		record.Method = v1.MethodDNS
		record.VerifiedAt = &now
		record.FailureReason = ""
	case verifiedParent != "":
		record.Status = v1.StatusVerified
		record.Method = v1.MethodInherited
		record.VerifiedAt = &now
		record.FailureReason = ""
	default:
		record.Status = v1.StatusFailed
		record.Method = ""
		record.VerifiedAt = nil
		record.FailureReason = reason
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	if record.Status == v1.StatusVerified {
		s.cache.add(cacheKey{domain, customerID})
	}

	metrics.VerificationChecks.WithLabelValues(string(record.Status), string(record.Method)).Inc()
	slog.Info("Domain verification checked",
		"domain", domain,
		"customer_id", customerID,
		"status", record.Status,
		"method", record.Method,
		"parent", verifiedParent,
		"reason", record.FailureReason)

	return record, nil
}

// verifiedAncestor returns the nearest parent zone verified for the same
// customer, or "" when there is none.
func (s *Service) verifiedAncestor(ctx context.Context, domain string, customerID v1.CustomerID) (string, error) {
	for _, parent := range Ancestors(domain) {
		ok, err := s.isVerified(ctx, parent, customerID)
		if err != nil {
			return "", err
		}
		if ok {
			return parent, nil
		}
	}
	return "", nil
}

// checkTXT reports whether any TXT record at domain equals expected, ignoring
// surrounding whitespace and case. On a miss it returns the failure reason.
func (s *Service) checkTXT(ctx context.Context, domain, expected string) (bool, string) {
	records, err := s.resolver.LookupTXT(ctx, domain)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoRecords):
			return false, fmt.Sprintf("no TXT records found for %s", domain)
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return false, fmt.Sprintf("DNS lookup timed out after %s", s.timeout)
		default:
			slog.Warn("DNS lookup failed", "domain", domain, "error", err)
			return false, fmt.Sprintf("DNS lookup failed: %v", err)
		}
	}

	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r), expected) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("TXT record mismatch: expected %q at %s", expected, domain)
}

// Status is a read-only projection. A pair without a record reports
// StatusUnverified.
func (s *Service) Status(ctx context.Context, rawDomain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	domain, err := s.validateRequest(ctx, rawDomain, customerID)
	if err != nil {
		return nil, err
	}

	record, err := s.lookup(ctx, domain, customerID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &v1.DomainVerification{Domain: domain, CustomerID: customerID, Status: v1.StatusUnverified}, nil
	}
	return record, nil
}

// IsVerified reports whether the pair is verified, consulting the LRU first.
// Malformed domains are simply not verified.
func (s *Service) IsVerified(ctx context.Context, rawDomain string, customerID v1.CustomerID) (bool, error) {
	domain, err := NormalizeDomain(rawDomain)
	if err != nil {
		return false, nil
	}
	return s.isVerified(ctx, domain, customerID)
}

func (s *Service) isVerified(ctx context.Context, domain string, customerID v1.CustomerID) (bool, error) {
	key := cacheKey{domain, customerID}
	if s.cache.contains(key) {
		return true, nil
	}
	record, err := s.lookup(ctx, domain, customerID)
	if err != nil {
		return false, err
	}
	if record == nil || record.Status != v1.StatusVerified {
		return false, nil
	}
	s.cache.add(key)
	return true, nil
}

func (s *Service) validateRequest(ctx context.Context, rawDomain string, customerID v1.CustomerID) (string, error) {
	domain, err := NormalizeDomain(rawDomain)
	if err != nil {
		return "", httperr.Validation(err.Error(), map[string]interface{}{"domain": rawDomain})
	}
	if customerID <= 0 {
		return "", httperr.Validation("customerId is required", nil)
	}
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", httperr.NotFound(fmt.Sprintf("customer %d not found", customerID))
		}
		return "", httperr.Internal("Failed to look up customer", err)
	}
	return domain, nil
}

// lookup returns nil without error when no record exists.
func (s *Service) lookup(ctx context.Context, domain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	record, err := s.store.GetVerification(ctx, domain, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, httperr.Internal("Failed to load domain verification", err)
	}
	return record, nil
}

func (s *Service) save(ctx context.Context, record *v1.DomainVerification) error {
	s.cache.invalidate(cacheKey{record.Domain, record.CustomerID})
	if err := s.store.SaveVerification(ctx, record); err != nil {
		return httperr.Internal("Failed to save domain verification", err)
	}
	return nil
}

func newChallenge(record *v1.DomainVerification) *Challenge {
	return &Challenge{Record: record, Host: record.Domain, Value: record.ExpectedRecord()}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
