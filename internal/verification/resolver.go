package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrNoRecords means the name resolved but publishes no TXT records.
	ErrNoRecords = errors.New("no TXT records found")

	// ErrLookupFailed wraps resolver transport failures and timeouts.
	ErrLookupFailed = errors.New("DNS lookup failed")
)

// DefaultResolvers are queried in order until one answers.
var DefaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53", "9.9.9.9:53"}

// Resolver looks up TXT records for a name.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSResolver queries public recursive resolvers directly so results do not
// depend on the host's resolv.conf or a local cache.
type DNSResolver struct {
	servers []string
	client  *dns.Client
}

// NewDNSResolver creates a resolver for the given "host:port" servers.
// An empty list uses DefaultResolvers.
func NewDNSResolver(servers []string, perQueryTimeout time.Duration) *DNSResolver {
	if len(servers) == 0 {
		servers = DefaultResolvers
	}
	if perQueryTimeout <= 0 {
		perQueryTimeout = 3 * time.Second
	}
	return &DNSResolver{
		servers: servers,
		client:  &dns.Client{Net: "udp", Timeout: perQueryTimeout},
	}
}

// LookupTXT returns the TXT strings of name, each record's character strings
// joined. NXDOMAIN and an empty answer both map to ErrNoRecords.
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}

		resp, _, err := r.exchange(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, ErrNoRecords
		default:
			lastErr = fmt.Errorf("%s: rcode %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		var records []string
		for _, rr := range resp.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				records = append(records, strings.Join(txt.Txt, ""))
			}
		}
		if len(records) == 0 {
			return nil, ErrNoRecords
		}
		return records, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrLookupFailed, lastErr)
}

func (r *DNSResolver) exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, time.Duration, error) {
	resp, rtt, err := r.client.ExchangeContext(ctx, msg, server)
	if err == nil && resp != nil && resp.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
		return tcp.ExchangeContext(ctx, msg, server)
	}
	return resp, rtt, err
}
