package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	mathrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	identifierPrefix = "wai_"
	randomBytes      = 16
	domainHashChars  = 8
)

var identifierPattern = regexp.MustCompile(`^wai_[0-9a-z]{1,13}_[0-9a-f]{32}_[0-9a-f]{8}$`)

// Identifier is the pseudonymous cross-domain identifier, on the wire "waiTag":
//
//	wai_<base36 ms timestamp>_<32 hex random>_<8 hex sha256(domain)>
//
// It carries no personal data; the domain suffix only records where it was minted.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// Valid reports whether id has the identifier shape.
func (id Identifier) Valid() bool {
	return IsValid(string(id))
}

// IssuedAt decodes the embedded mint time.
func (id Identifier) IssuedAt() (time.Time, bool) {
	if !id.Valid() {
		return time.Time{}, false
	}
	parts := strings.SplitN(string(id), "_", 4)
	ms, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// IsValid is the shallow format check shared by client recovery and the
// server's verify-waitag endpoint.
func IsValid(s string) bool {
	return identifierPattern.MatchString(s)
}

// Parse validates s and returns it as an Identifier.
func Parse(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if !IsValid(s) {
		return "", fmt.Errorf("invalid waiTag %q", s)
	}
	return Identifier(s), nil
}

// DomainHash is the 8 hex character sha256 prefix embedded in identifiers.
func DomainHash(domain string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(domain))))
	return hex.EncodeToString(sum[:])[:domainHashChars]
}

// Issue mints an identifier for domain from crypto/rand.
func Issue(domain string, now time.Time) (Identifier, error) {
	return issueFrom(rand.Reader, domain, now)
}

func issueFrom(entropy io.Reader, domain string, now time.Time) (Identifier, error) {
	b := make([]byte, randomBytes)
	if _, err := io.ReadFull(entropy, b); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	return format(b, domain, now), nil
}

// issueFallback mints from a non-cryptographic source. Used only when the
// system entropy source fails, so tracking keeps working.
func issueFallback(domain string, now time.Time) Identifier {
	b := make([]byte, randomBytes)
	for i := 0; i < randomBytes; i += 8 {
		v := mathrand.Uint64()
		for j := 0; j < 8 && i+j < randomBytes; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	return format(b, domain, now)
}

func format(random []byte, domain string, now time.Time) Identifier {
	return Identifier(identifierPrefix +
		strconv.FormatInt(now.UnixMilli(), 36) + "_" +
		hex.EncodeToString(random) + "_" +
		DomainHash(domain))
}
