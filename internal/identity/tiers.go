package identity

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// ErrEmpty is returned by a tier that holds no identifier.
var ErrEmpty = errors.New("tier is empty")

// Tier is one storage location for the identifier. Writes are best-effort
// and independent; the manager tolerates any tier failing.
type Tier interface {
	Name() string
	Load() (string, error)
	Store(value string) error
}

// MemoryTier lives for the process, like session-scoped browser storage.
type MemoryTier struct {
	mu    sync.RWMutex
	value string
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{}
}

func (t *MemoryTier) Name() string { return "session" }

func (t *MemoryTier) Load() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.value == "" {
		return "", ErrEmpty
	}
	return t.value, nil
}

func (t *MemoryTier) Store(value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = value
	return nil
}

// FileTier persists the identifier across runs, like durable local storage.
type FileTier struct {
	path string
}

func NewFileTier(path string) *FileTier {
	return &FileTier{path: path}
}

func (t *FileTier) Name() string { return "local" }

func (t *FileTier) Load() (string, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}
	value := strings.TrimSpace(string(b))
	if value == "" {
		return "", ErrEmpty
	}
	return value, nil
}

// Store writes via a temp file and rename so a crash never leaves a torn value.
func (t *FileTier) Store(value string) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nylo-identity-*")
	if err != nil {
		return fmt.Errorf("failed to create temp identity file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close identity file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod identity file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("failed to replace identity file: %w", err)
	}
	return nil
}

// CookieName is the first-party cookie mirroring the identifier.
const CookieName = "nylo_wai"

// CookieMaxAge is how long the cookie mirror lives.
const CookieMaxAge = 365 * 24 * time.Hour

// CookieTier mirrors the identifier into a first-party cookie scoped to the
// registrable domain, so every subdomain of the site shares it.
type CookieTier struct {
	jar    http.CookieJar
	site   *url.URL
	domain string
}

// NewCookieJar returns a public-suffix-aware jar, suitable for sharing
// between a CookieTier and the HTTP client that talks to the site.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// DefaultTiers returns the standard storage tiers in read priority order:
// the cookie mirror, the durable file at stateFile, then process memory.
// A nil jar gets a fresh one.
func DefaultTiers(domain, stateFile string, jar http.CookieJar) ([]Tier, error) {
	cookie, err := NewCookieTier(domain, jar)
	if err != nil {
		return nil, err
	}
	return []Tier{cookie, NewFileTier(stateFile), NewMemoryTier()}, nil
}

// NewCookieTier creates a cookie tier for domain. A nil jar gets a fresh
// public-suffix-aware jar.
func NewCookieTier(domain string, jar http.CookieJar) (*CookieTier, error) {
	if jar == nil {
		j, err := NewCookieJar()
		if err != nil {
			return nil, err
		}
		jar = j
	}
	site, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid cookie domain %q: %w", domain, err)
	}
	cookieDomain, err := publicsuffix.EffectiveTLDPlusOne(site.Hostname())
	if err != nil {
		cookieDomain = site.Hostname()
	}
	return &CookieTier{jar: jar, site: site, domain: cookieDomain}, nil
}

// Jar exposes the underlying jar so an HTTP client can send the cookie.
func (t *CookieTier) Jar() http.CookieJar { return t.jar }

func (t *CookieTier) Name() string { return "cookie" }

func (t *CookieTier) Load() (string, error) {
	for _, c := range t.jar.Cookies(t.site) {
		if c.Name == CookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrEmpty
}

func (t *CookieTier) Store(value string) error {
	t.jar.SetCookies(t.site, []*http.Cookie{{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   t.domain,
		MaxAge:   int(CookieMaxAge / time.Second),
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}
