package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

// CorrelationEventType is emitted when an identity is adopted from another domain.
const CorrelationEventType = "cross_domain_correlation"

// EventSink receives events stamped by the manager, usually a delivery.Pipeline.
type EventSink interface {
	Enqueue(evt v1.Event)
}

// Config describes the site the manager runs on.
type Config struct {
	Domain     string
	CustomerID v1.CustomerID

	// Tiers in read priority order. Every tier is written on persist.
	Tiers []Tier

	SessionTimeout time.Duration
	Codec          TokenCodec
}

// Manager owns the identifier and session for one site and implements the
// handoff protocol. It favours availability: any storage, entropy or network
// failure results in a usable identifier rather than an error that blocks tracking.
type Manager struct {
	cfg      Config
	sessions *sessionTracker
	verifier TokenVerifier
	sink     EventSink
	now      func() time.Time
	issue    func(domain string, now time.Time) (Identifier, error)

	mu      sync.Mutex
	current Identifier
}

// NewManager creates a manager. verifier is required to consume handoff
// tokens; sink may be nil when the caller does not track events.
func NewManager(cfg Config, verifier TokenVerifier, sink EventSink) *Manager {
	if cfg.Domain == "" {
		panic("identity: domain must not be empty")
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = []Tier{NewMemoryTier()}
	}
	return &Manager{
		cfg:      cfg,
		sessions: newSessionTracker(cfg.SessionTimeout),
		verifier: verifier,
		sink:     sink,
		now:      time.Now,
		issue:    Issue,
	}
}

// Identifier returns the current identifier, recovering it from storage or
// issuing a new one on first use. A recovered value is written back to every
// tier so a cleared tier heals.
func (m *Manager) Identifier() Identifier {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != "" {
		return m.current
	}
	if id, ok := m.Recover(); ok {
		m.current = id
	} else {
		m.current = m.Issue()
		slog.Info("Issued new identifier", "domain", m.cfg.Domain)
	}
	m.Persist(m.current)
	return m.current
}

// Issue mints a fresh identifier for the manager's domain.
func (m *Manager) Issue() Identifier {
	now := m.now()
	id, err := m.issue(m.cfg.Domain, now)
	if err != nil {
		slog.Warn("Entropy source failed, using fallback generator", "error", err)
		return issueFallback(m.cfg.Domain, now)
	}
	return id
}

// Persist writes id to every tier. Failures are logged and ignored.
func (m *Manager) Persist(id Identifier) {
	for _, tier := range m.cfg.Tiers {
		if err := tier.Store(string(id)); err != nil {
			slog.Warn("Failed to persist identifier", "tier", tier.Name(), "error", err)
		}
	}
}

// Recover returns the first stored value that parses as an identifier.
func (m *Manager) Recover() (Identifier, bool) {
	for _, tier := range m.cfg.Tiers {
		value, err := tier.Load()
		if err != nil {
			if !errors.Is(err, ErrEmpty) {
				slog.Warn("Failed to read identifier", "tier", tier.Name(), "error", err)
			}
			continue
		}
		id, err := Parse(value)
		if err != nil {
			slog.Warn("Discarding malformed stored identifier", "tier", tier.Name())
			continue
		}
		return id, true
	}
	return "", false
}

// Session returns the live session, rotating it after the idle timeout.
func (m *Manager) Session() Session {
	return m.sessions.touch(m.now())
}

// Stamp fills the identity fields of evt that the caller left empty.
func (m *Manager) Stamp(evt *v1.Event) {
	if evt.WaiTag == "" {
		evt.WaiTag = string(m.Identifier())
	}
	if evt.SessionID == "" {
		evt.SessionID = m.Session().ID
	}
	if evt.Domain == "" {
		evt.Domain = m.cfg.Domain
	}
	if evt.CustomerID == 0 {
		evt.CustomerID = m.cfg.CustomerID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = v1.NewTimestamp(m.now())
	}
}

// Track stamps and enqueues an event. It is a no-op without a sink.
func (m *Manager) Track(eventType, pageURL string, metadata map[string]interface{}) v1.Event {
	evt := v1.Event{EventType: eventType, URL: pageURL, Metadata: metadata}
	m.Stamp(&evt)
	if m.sink != nil {
		m.sink.Enqueue(evt)
	}
	return evt
}

// CreateHandoffToken serialises the current identity for another domain.
func (m *Manager) CreateHandoffToken() (string, error) {
	return m.cfg.Codec.Encode(HandoffToken{
		WaiTag:    string(m.Identifier()),
		SessionID: m.Session().ID,
		Timestamp: m.now().UnixMilli(),
	})
}

// DecorateURL appends a handoff token to links that leave the current host.
// Same-host and relative links are returned unchanged.
func (m *Manager) DecorateURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" || strings.EqualFold(u.Hostname(), m.cfg.Domain) {
		return raw, nil
	}

	token, err := m.CreateHandoffToken()
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(TokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConsumeHandoffToken validates token with the server and adopts the
// canonical identity it returns. On any failure the current identifier is
// kept and returned alongside the error.
func (m *Manager) ConsumeHandoffToken(ctx context.Context, token, referrer string) (Identifier, error) {
	if m.verifier == nil {
		return m.Identifier(), errors.New("identity: no token verifier configured")
	}

	verified, err := m.verifier.VerifyToken(ctx, token, m.cfg.Domain, m.cfg.CustomerID)
	if err != nil {
		slog.Warn("Handoff token not adopted", "domain", m.cfg.Domain, "error", err)
		return m.Identifier(), err
	}

	adopted, err := Parse(verified.WaiTag)
	if err != nil {
		return m.Identifier(), fmt.Errorf("%w: server returned %v", ErrRejected, err)
	}

	previous := m.Identifier()

	m.mu.Lock()
	m.current = adopted
	m.mu.Unlock()
	m.Persist(adopted)

	if verified.SessionID != "" {
		m.sessions.adopt(verified.SessionID, m.now())
	}

	metadata := map[string]interface{}{
		"method":         "token",
		"referrerDomain": referrerDomain(referrer),
	}
	if previous != adopted {
		metadata["previousWaiTag"] = string(previous)
	}
	m.Track(CorrelationEventType, "", metadata)

	slog.Info("Adopted cross-domain identity",
		"domain", m.cfg.Domain,
		"referrer", metadata["referrerDomain"])
	return adopted, nil
}

// ConsumeResult is the outcome of ConsumeURL.
type ConsumeResult struct {
	Identifier Identifier
	Adopted    bool

	// CleanURL is the input with the handoff token removed.
	CleanURL string
}

// ConsumeURL looks for a handoff token in the query string or fragment of
// raw and consumes it. Without a token the current identifier is returned.
func (m *Manager) ConsumeURL(ctx context.Context, raw, referrer string) (ConsumeResult, error) {
	token, clean, err := ExtractToken(raw)
	if err != nil {
		return ConsumeResult{Identifier: m.Identifier(), CleanURL: raw}, err
	}
	if token == "" {
		return ConsumeResult{Identifier: m.Identifier(), CleanURL: raw}, nil
	}

	id, err := m.ConsumeHandoffToken(ctx, token, referrer)
	return ConsumeResult{Identifier: id, Adopted: err == nil, CleanURL: clean}, err
}

// ExtractToken finds a handoff token in the query string or fragment of raw,
// preferring the query, and returns raw with the token removed.
func ExtractToken(raw string) (token, clean string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw, fmt.Errorf("invalid url %q: %w", raw, err)
	}

	q := u.Query()
	if token = q.Get(TokenParam); token != "" {
		q.Del(TokenParam)
		u.RawQuery = q.Encode()
		return token, u.String(), nil
	}

	if u.Fragment != "" {
		frag, ferr := url.ParseQuery(u.Fragment)
		if ferr == nil {
			if token = frag.Get(TokenParam); token != "" {
				frag.Del(TokenParam)
				u.Fragment = frag.Encode()
				u.RawFragment = ""
				return token, u.String(), nil
			}
		}
	}
	return "", raw, nil
}

func referrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	if u, err := url.Parse(referrer); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return referrer
}
