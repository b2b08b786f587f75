package postgres

// SQL queries for the tracking store.

const (
	// querySaveEvent inserts one interaction. dedup_key is indexed, not unique:
	// the same event resent after the dedup window is a new row.
	querySaveEvent = `
		INSERT INTO events (
			dedup_key, event_type, session_id, wai_tag, domain, url,
			customer_id, client_timestamp, client_timestamp_raw, ingested_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	// querySaveIdentity registers a waiTag for a customer, refreshing the session
	// of an existing registration. RETURNING yields the original id and created_at.
	querySaveIdentity = `
		INSERT INTO identities (
			id, wai_tag, session_id, domain, customer_id, created_at, last_seen_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (customer_id, wai_tag) DO UPDATE
		SET session_id = EXCLUDED.session_id,
		    last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, created_at
	`

	queryGetIdentity = `
		SELECT id, wai_tag, session_id, domain, customer_id, created_at, last_seen_at
		FROM identities
		WHERE customer_id = $1 AND wai_tag = $2
	`

	queryGetCustomer = `
		SELECT id, name, api_key, require_domain_verification, created_at
		FROM customers
		WHERE id = $1
	`

	queryGetCustomerByAPIKey = `
		SELECT id, name, api_key, require_domain_verification, created_at
		FROM customers
		WHERE api_key = $1
	`

	queryGetVerification = `
		SELECT
			domain, customer_id, token, status, method,
			verified_at, last_checked_at, failure_reason, created_at, updated_at
		FROM domain_verifications
		WHERE domain = $1 AND customer_id = $2
	`

	// querySaveVerification upserts on the composite (domain, customer_id) key.
	// created_at is only written on first insert.
	querySaveVerification = `
		INSERT INTO domain_verifications (
			domain, customer_id, token, status, method,
			verified_at, last_checked_at, failure_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (domain, customer_id) DO UPDATE
		SET token = EXCLUDED.token,
		    status = EXCLUDED.status,
		    method = EXCLUDED.method,
		    verified_at = EXCLUDED.verified_at,
		    last_checked_at = EXCLUDED.last_checked_at,
		    failure_reason = EXCLUDED.failure_reason,
		    updated_at = EXCLUDED.updated_at
	`
)
