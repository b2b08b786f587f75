package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/core/storage"
)

// SaveIdentity upserts a registration. On conflict the stored id and
// created_at win and are written back into identity.
func (a *Adapter) SaveIdentity(ctx context.Context, identity *v1.Identity) error {
	err := a.stmtSaveIdentity.QueryRowContext(
		ctx,
		identity.ID,
		identity.WaiTag,
		identity.SessionID,
		identity.Domain,
		int64(identity.CustomerID),
		identity.CreatedAt,
		identity.LastSeenAt,
	).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (a *Adapter) GetIdentity(ctx context.Context, customerID v1.CustomerID, waiTag string) (*v1.Identity, error) {
	row := a.stmtGetIdentity.QueryRowContext(ctx, int64(customerID), waiTag)
	identity, err := scanIdentityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

func (a *Adapter) GetCustomer(ctx context.Context, id v1.CustomerID) (*v1.Customer, error) {
	customer, err := scanCustomerRow(a.stmtGetCustomer.QueryRowContext(ctx, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}

func (a *Adapter) GetCustomerByAPIKey(ctx context.Context, apiKey string) (*v1.Customer, error) {
	if apiKey == "" {
		return nil, storage.ErrNotFound
	}
	customer, err := scanCustomerRow(a.stmtGetCustomerByAPIKey.QueryRowContext(ctx, apiKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer by api key: %w", err)
	}
	return customer, nil
}

func (a *Adapter) GetVerification(ctx context.Context, domain string, customerID v1.CustomerID) (*v1.DomainVerification, error) {
	record, err := scanVerificationRow(a.stmtGetVerification.QueryRowContext(ctx, domain, int64(customerID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get domain verification: %w", err)
	}
	return record, nil
}

func (a *Adapter) SaveVerification(ctx context.Context, record *v1.DomainVerification) error {
	_, err := a.stmtSaveVerification.ExecContext(
		ctx,
		record.Domain,
		int64(record.CustomerID),
		record.Token,
		string(record.Status),
		nullString(string(record.Method)),
		nullTime(record.VerifiedAt),
		nullTime(record.LastCheckedAt),
		nullString(record.FailureReason),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save domain verification: %w", err)
	}
	return nil
}
