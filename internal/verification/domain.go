package verification

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

var errInvalidDomain = errors.New("invalid domain")

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(true),
	idna.ValidateLabels(true),
)

// NormalizeDomain reduces user input ("https://Shop.Example.com:443/x",
// "shop.example.com.") to a lower-case ASCII hostname. IP addresses and
// single-label names are rejected since neither can carry a TXT challenge.
func NormalizeDomain(raw string) (string, error) {
	d := strings.TrimSpace(raw)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", fmt.Errorf("%w: empty", errInvalidDomain)
	}
	if net.ParseIP(d) != nil {
		return "", fmt.Errorf("%w: %q is an IP address", errInvalidDomain, raw)
	}

	ascii, err := domainProfile.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", errInvalidDomain, raw, err)
	}
	ascii = strings.ToLower(ascii)
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("%w: %q has no parent zone", errInvalidDomain, raw)
	}
	return ascii, nil
}

// Ancestors lists the parent zones of domain from nearest to the two-label
// apex. "a.blog.example.com" yields ["blog.example.com", "example.com"];
// an apex yields nothing.
func Ancestors(domain string) []string {
	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return nil
	}
	out := make([]string, 0, len(labels)-2)
	for i := 1; i <= len(labels)-2; i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}
