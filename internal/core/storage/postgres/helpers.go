package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

// marshalMetadata marshals an event's metadata to JSON.
// Nil or empty metadata produces nil (SQL NULL) rather than JSON "null".
func marshalMetadata(event *v1.Event) ([]byte, error) {
	if len(event.Metadata) == 0 {
		return nil, nil
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return metadataJSON, nil
}

// nullCustomerID maps the zero customer to SQL NULL.
func nullCustomerID(id v1.CustomerID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomerRow(row scanner) (*v1.Customer, error) {
	var c v1.Customer
	var apiKey sql.NullString
	var id int64

	if err := row.Scan(&id, &c.Name, &apiKey, &c.RequireDomainVerification, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ID = v1.CustomerID(id)
	c.APIKey = apiKey.String
	return &c, nil
}

func scanIdentityRow(row scanner) (*v1.Identity, error) {
	var identity v1.Identity
	var customerID int64

	err := row.Scan(
		&identity.ID,
		&identity.WaiTag,
		&identity.SessionID,
		&identity.Domain,
		&customerID,
		&identity.CreatedAt,
		&identity.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	identity.CustomerID = v1.CustomerID(customerID)
	return &identity, nil
}

// scanVerificationRow scans a domain_verifications row, lifting nullable
// columns into the optional fields of the model.
func scanVerificationRow(row scanner) (*v1.DomainVerification, error) {
	var record v1.DomainVerification
	var customerID int64
	var status string
	var method, failureReason sql.NullString
	var verifiedAt, lastCheckedAt sql.NullTime

	err := row.Scan(
		&record.Domain,
		&customerID,
		&record.Token,
		&status,
		&method,
		&verifiedAt,
		&lastCheckedAt,
		&failureReason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.CustomerID = v1.CustomerID(customerID)
	record.Status = v1.VerificationStatus(status)
	record.Method = v1.VerificationMethod(method.String)
	record.FailureReason = failureReason.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		record.VerifiedAt = &t
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		record.LastCheckedAt = &t
	}
	return &record, nil
}
