package v1

import "time"

// Customer is a tenant that owns one or more tracked domains.
type Customer struct {
	ID     CustomerID `json:"id" yaml:"id"`
	Name   string     `json:"name" yaml:"name"`
	APIKey string     `json:"-" yaml:"api_key"`

	// RequireDomainVerification gates cross-domain identity hand-off on DNS proof.
	RequireDomainVerification bool `json:"requireDomainVerification" yaml:"require_domain_verification"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
}

// Identity is a server-side registration of a pseudonymous identifier on a domain.
type Identity struct {
	ID         string     `json:"id"`
	WaiTag     string     `json:"waiTag"`
	SessionID  string     `json:"sessionId"`
	Domain     string     `json:"domain"`
	CustomerID CustomerID `json:"customerId"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
}

// VerificationStatus is the state of a DNS ownership challenge.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusFailed   VerificationStatus = "failed"

	// StatusUnverified is a read-only pseudo status reported when no challenge exists.
	StatusUnverified VerificationStatus = "unverified"
)

// VerificationMethod records how a domain reached the verified state.
type VerificationMethod string

const (
	MethodDNS       VerificationMethod = "dns"
	MethodInherited VerificationMethod = "inherited"
)

// VerifyRecordPrefix prefixes the TXT value a customer publishes.
const VerifyRecordPrefix = "nylo-verify="

// DomainVerification is the persisted challenge for one (domain, customer) pair.
type DomainVerification struct {
	Domain        string             `json:"domain"`
	CustomerID    CustomerID         `json:"customerId"`
	Token         string             `json:"token"`
	Status        VerificationStatus `json:"status"`
	Method        VerificationMethod `json:"method,omitempty"`
	VerifiedAt    *time.Time         `json:"verifiedAt,omitempty"`
	LastCheckedAt *time.Time         `json:"lastCheckedAt,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// ExpectedRecord is the exact TXT value that proves ownership.
func (d *DomainVerification) ExpectedRecord() string {
	return VerifyRecordPrefix + d.Token
}
