package crossdomain

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/partition"
)

// DefaultFingerprintTTL is how long an idle fingerprint is remembered.
const DefaultFingerprintTTL = 24 * time.Hour

// Fingerprint derives the coarse client fingerprint from the user agent and
// network address. The port is ignored.
func Fingerprint(userAgent, remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent) + "|" + host))
	return hex.EncodeToString(sum[:])
}

// Match is the outcome of recording a sighting.
type Match struct {
	// Shared is true once the fingerprint has been seen on two or more sites.
	Shared bool

	// WaiTag is the canonical identifier: the first one seen for the
	// fingerprint when Shared, otherwise the identifier just recorded.
	WaiTag string

	// Sites lists every site seen for the fingerprint, sorted.
	Sites []string
}

type fingerprintEntry struct {
	first    string
	sites    map[string]string
	lastSeen time.Time
}

type fingerprintShard struct {
	mu      sync.Mutex
	entries map[string]*fingerprintEntry
}

// FingerprintIndex is the process-local correlation table used when no
// handoff token is available. Entries are scoped per customer and expire
// after the TTL without sightings.
type FingerprintIndex struct {
	ttl    time.Duration
	now    func() time.Time
	shards *partition.Sharded[*fingerprintShard]
}

// NewFingerprintIndex creates an index. A non-positive ttl uses DefaultFingerprintTTL.
func NewFingerprintIndex(ttl time.Duration) *FingerprintIndex {
	if ttl <= 0 {
		ttl = DefaultFingerprintTTL
	}
	x := &FingerprintIndex{
		ttl: ttl,
		now: time.Now,
		shards: partition.NewSharded(func() *fingerprintShard {
			return &fingerprintShard{entries: make(map[string]*fingerprintEntry)}
		}),
	}
	metrics.RegisterGauge("crossdomain", "fingerprints", "Fingerprints held in the correlation index.",
		func() float64 { return float64(x.Len()) })
	return x
}

func indexKey(customerID v1.CustomerID, fingerprint string) string {
	return customerID.String() + ":" + fingerprint
}

// Record notes that fingerprint was seen on site carrying waiTag.
func (x *FingerprintIndex) Record(customerID v1.CustomerID, fingerprint, site, waiTag string) Match {
	key := indexKey(customerID, fingerprint)
	s := x.shards.Get(key)
	now := x.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.lastSeen) >= x.ttl {
		entry = &fingerprintEntry{first: waiTag, sites: make(map[string]string)}
		s.entries[key] = entry
	}
	entry.sites[site] = waiTag
	entry.lastSeen = now

	sites := make([]string, 0, len(entry.sites))
	for site := range entry.sites {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	if len(sites) < 2 {
		return Match{WaiTag: waiTag, Sites: sites}
	}
	return Match{Shared: true, WaiTag: entry.first, Sites: sites}
}

// Sweep drops fingerprints idle for longer than the TTL.
func (x *FingerprintIndex) Sweep() int {
	now := x.now()
	removed := 0
	x.shards.Each(func(_ int, s *fingerprintShard) bool {
		s.mu.Lock()
		for key, entry := range s.entries {
			if now.Sub(entry.lastSeen) >= x.ttl {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
		return true
	})
	if removed > 0 {
		slog.Debug("[Fingerprint] Swept idle entries", "removed", removed)
	}
	return removed
}

// Len returns the number of fingerprints held.
func (x *FingerprintIndex) Len() int {
	total := 0
	x.shards.Each(func(_ int, s *fingerprintShard) bool {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
		return true
	})
	return total
}
