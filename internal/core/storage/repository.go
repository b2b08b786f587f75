package storage

import (
	"context"
	"errors"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
)

// EventStore persists accepted interactions.
type EventStore interface {
	// SaveEvents stores events in order and returns how many were written.
	// On error the first n events are stored and the rest are not. Stores do
	// not deduplicate: suppression within the window is the dedup cache's job.
	SaveEvents(ctx context.Context, events []*v1.Event) (int, error)
}

// IdentityStore keeps server-side registrations of pseudonymous identifiers.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, identity *v1.Identity) error

	// GetIdentity returns ErrNotFound when the waiTag was never registered for the customer.
	GetIdentity(ctx context.Context, customerID v1.CustomerID, waiTag string) (*v1.Identity, error)
}

// CustomerStore resolves tenants by id or API key.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id v1.CustomerID) (*v1.Customer, error)
	GetCustomerByAPIKey(ctx context.Context, apiKey string) (*v1.Customer, error)
}

// VerificationStore persists DNS ownership challenges keyed by (domain, customer).
type VerificationStore interface {
	GetVerification(ctx context.Context, domain string, customerID v1.CustomerID) (*v1.DomainVerification, error)

	// SaveVerification inserts or replaces the record for its (domain, customer) key.
	SaveVerification(ctx context.Context, record *v1.DomainVerification) error
}

// Store is the full persistence surface the server needs.
type Store interface {
	EventStore
	IdentityStore
	CustomerStore
	VerificationStore
	Ping(ctx context.Context) error
	Close() error
}

// WithCustomers returns store with customer lookups served by customers,
// e.g. a YAML registry in front of the database.
func WithCustomers(store Store, customers CustomerStore) Store {
	if customers == nil {
		return store
	}
	return &customerOverlay{Store: store, customers: customers}
}

type customerOverlay struct {
	Store
	customers CustomerStore
}

func (o *customerOverlay) GetCustomer(ctx context.Context, id v1.CustomerID) (*v1.Customer, error) {
	return o.customers.GetCustomer(ctx, id)
}

func (o *customerOverlay) GetCustomerByAPIKey(ctx context.Context, apiKey string) (*v1.Customer, error) {
	return o.customers.GetCustomerByAPIKey(ctx, apiKey)
}
