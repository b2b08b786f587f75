package memory

import (
	"context"
	"sync"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/core/storage"
)

type identityKey struct {
	customerID v1.CustomerID
	waiTag     string
}

type verificationKey struct {
	domain     string
	customerID v1.CustomerID
}

// Store is an in-memory implementation of storage.Store.
// Useful for testing and for `database.type: memory` development runs.
type Store struct {
	mu            sync.RWMutex
	events        []*v1.Event
	identities    map[identityKey]*v1.Identity
	customers     map[v1.CustomerID]*v1.Customer
	verifications map[verificationKey]*v1.DomainVerification
}

// NewStore creates an empty in-memory store seeded with the given customers.
func NewStore(customers ...v1.Customer) *Store {
	s := &Store{
		identities:    make(map[identityKey]*v1.Identity),
		customers:     make(map[v1.CustomerID]*v1.Customer),
		verifications: make(map[verificationKey]*v1.DomainVerification),
	}
	for _, c := range customers {
		s.PutCustomer(c)
	}
	return s
}

// PutCustomer adds or replaces a customer.
func (s *Store) PutCustomer(c v1.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := c
	s.customers[c.ID] = &copy
}

func (s *Store) SaveEvents(ctx context.Context, events []*v1.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range events {
		copy := *evt
		s.events = append(s.events, &copy)
	}
	return len(events), nil
}

// Events returns a snapshot of every stored event in insertion order.
func (s *Store) Events() []v1.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.Event, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, *evt)
	}
	return out
}

func (s *Store) SaveIdentity(ctx context.Context, identity *v1.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{customerID: identity.CustomerID, waiTag: identity.WaiTag}
	if existing, ok := s.identities[key]; ok {
		existing.SessionID = identity.SessionID
		existing.LastSeenAt = identity.LastSeenAt
		identity.ID = existing.ID
		identity.CreatedAt = existing.CreatedAt
		return nil
	}
	copy := *identity
	s.identities[key] = &copy
	return nil
}

func (s *Store) GetIdentity(ctx context.Context, customerID v1.CustomerID, waiTag string) (*v1.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[identityKey{customerID: customerID, waiTag: waiTag}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *identity
	return &copy, nil
}

func (s *Store) GetCustomer(ctx context.Context, id v1.CustomerID) (*v1.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (s *Store) GetCustomerByAPIKey(ctx context.Context, apiKey string) (*v1.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if apiKey == "" {
		return nil, storage.ErrNotFound
	}
	for _, c := range s.customers {
		if c.APIKey == apiKey {
			copy := *c
			return &copy, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetVerification(ctx context.Context, domain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.verifications[verificationKey{domain: domain, customerID: customerID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneVerification(record), nil
}

func (s *Store) SaveVerification(ctx context.Context, record *v1.DomainVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.verifications[verificationKey{domain: record.Domain, customerID: record.CustomerID}] = cloneVerification(record)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// cloneVerification deep-copies the optional timestamps so callers cannot mutate stored state.
func cloneVerification(record *v1.DomainVerification) *v1.DomainVerification {
	copy := *record
	if record.VerifiedAt != nil {
		t := *record.VerifiedAt
		copy.VerifiedAt = &t
	}
	if record.LastCheckedAt != nil {
		t := *record.LastCheckedAt
		copy.LastCheckedAt = &t
	}
	return &copy
}

var _ storage.Store = (*Store)(nil)
