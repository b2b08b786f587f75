package identity

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

type recordingSink struct {
	mu     sync.Mutex
	events []v1.Event
}

func (s *recordingSink) Enqueue(evt v1.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type stubVerifier struct {
	identity *VerifiedIdentity
	err      error
	tokens   []string
}

func (v *stubVerifier) VerifyToken(ctx context.Context, token, domain string, customerID v1.CustomerID) (*VerifiedIdentity, error) {
	v.tokens = append(v.tokens, token)
	return v.identity, v.err
}

type brokenTier struct{ name string }

func (b brokenTier) Name() string             { return b.name }
func (b brokenTier) Load() (string, error)    { return "", errors.New("storage disabled") }
func (b brokenTier) Store(value string) error { return errors.New("storage disabled") }

func newTestManager(t *testing.T, tiers []Tier, verifier TokenVerifier, sink EventSink) *Manager {
	t.Helper()
	return NewManager(Config{
		Domain:     "shop.example.com",
		CustomerID: 7,
		Tiers:      tiers,
	}, verifier, sink)
}

func TestManager_IssuesOnceAndPersistsEverywhere(t *testing.T) {
	cookie, local, session := NewMemoryTier(), NewMemoryTier(), NewMemoryTier()
	m := newTestManager(t, []Tier{cookie, local, session}, nil, nil)

	id := m.Identifier()
	require.True(t, id.Valid())
	require.Equal(t, id, m.Identifier())

	for _, tier := range []Tier{cookie, local, session} {
		v, err := tier.Load()
		require.NoError(t, err)
		require.Equal(t, string(id), v)
	}

	// A new manager over the same storage never regenerates.
	again := newTestManager(t, []Tier{cookie, local, session}, nil, nil)
	require.Equal(t, id, again.Identifier())
}

func TestManager_RecoverPriorityAndHealing(t *testing.T) {
	cookie, local, session := NewMemoryTier(), NewMemoryTier(), NewMemoryTier()
	fromCookie := Identifier("wai_loyw3v28_cccccccccccccccccccccccccccccccc_0123abcd")
	fromLocal := Identifier("wai_loyw3v28_dddddddddddddddddddddddddddddddd_0123abcd")

	require.NoError(t, cookie.Store("garbage"))
	require.NoError(t, local.Store(string(fromLocal)))

	m := newTestManager(t, []Tier{cookie, local, session}, nil, nil)
	require.Equal(t, fromLocal, m.Identifier())

	// Malformed and empty tiers are rewritten with the recovered value.
	v, _ := cookie.Load()
	require.Equal(t, string(fromLocal), v)
	v, _ = session.Load()
	require.Equal(t, string(fromLocal), v)

	require.NoError(t, cookie.Store(string(fromCookie)))
	m2 := newTestManager(t, []Tier{cookie, local, session}, nil, nil)
	require.Equal(t, fromCookie, m2.Identifier())
}

func TestManager_DefaultTiersRecoverAcrossClearedStorage(t *testing.T) {
	state := filepath.Join(t.TempDir(), "nylo", "identifier")
	jar, err := NewCookieJar()
	require.NoError(t, err)

	tiers, err := DefaultTiers("shop.example.com", state, jar)
	require.NoError(t, err)
	names := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		names = append(names, tier.Name())
	}
	require.Equal(t, []string{"cookie", "local", "session"}, names)

	id := newTestManager(t, tiers, nil, nil).Identifier()

	// Cookies cleared: the file restores the identifier and re-mirrors it.
	fresh, err := DefaultTiers("shop.example.com", state, nil)
	require.NoError(t, err)
	require.Equal(t, id, newTestManager(t, fresh, nil, nil).Identifier())
	v, err := fresh[0].Load()
	require.NoError(t, err)
	require.Equal(t, string(id), v)

	// File removed: the cookie restores it and the file is rewritten.
	require.NoError(t, os.Remove(state))
	tiers, err = DefaultTiers("shop.example.com", state, jar)
	require.NoError(t, err)
	require.Equal(t, id, newTestManager(t, tiers, nil, nil).Identifier())
	raw, err := os.ReadFile(state)
	require.NoError(t, err)
	require.Equal(t, string(id)+"\n", string(raw))

	// The cookie outranks the file when they disagree.
	other, err := Issue("shop.example.com", time.Now())
	require.NoError(t, err)
	require.NoError(t, tiers[1].Store(string(other)))
	tiers, err = DefaultTiers("shop.example.com", state, jar)
	require.NoError(t, err)
	require.Equal(t, id, newTestManager(t, tiers, nil, nil).Identifier())
}

func TestManager_TierFailuresDoNotBlock(t *testing.T) {
	m := newTestManager(t, []Tier{brokenTier{"cookie"}, brokenTier{"local"}}, nil, nil)

	id := m.Identifier()
	require.True(t, id.Valid())
	require.Equal(t, id, m.Identifier())
}

func TestManager_EntropyFailureFallsBack(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	m.issue = func(string, time.Time) (Identifier, error) { return "", errors.New("no entropy") }

	require.True(t, m.Identifier().Valid())
}

func TestManager_TrackStampsEvents(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(t, nil, nil, sink)

	evt := m.Track("page_view", "https://shop.example.com/", nil)
	require.NoError(t, evt.Validate())
	require.Equal(t, string(m.Identifier()), evt.WaiTag)
	require.Equal(t, "shop.example.com", evt.Domain)
	require.Equal(t, v1.CustomerID(7), evt.CustomerID)
	require.Len(t, sink.events, 1)

	second := m.Track("click", "", nil)
	require.Equal(t, evt.SessionID, second.SessionID)
}

func TestManager_DecorateURL(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)

	same, err := m.DecorateURL("https://shop.example.com/cart")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com/cart", same)

	relative, err := m.DecorateURL("/checkout")
	require.NoError(t, err)
	require.Equal(t, "/checkout", relative)

	decorated, err := m.DecorateURL("https://blog.partner.org/post?id=3")
	require.NoError(t, err)
	u, err := url.Parse(decorated)
	require.NoError(t, err)
	require.Equal(t, "3", u.Query().Get("id"))

	tok, err := DecodeLegacy(u.Query().Get(TokenParam))
	require.NoError(t, err)
	require.Equal(t, string(m.Identifier()), tok.WaiTag)
	require.Equal(t, m.Session().ID, tok.SessionID)
}

func TestManager_ConsumeURL_AdoptsCanonicalIdentity(t *testing.T) {
	canonical := "wai_loyw3v28_eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee_0123abcd"
	verifier := &stubVerifier{identity: &VerifiedIdentity{WaiTag: canonical, SessionID: "sess_remote"}}
	sink := &recordingSink{}
	local := NewMemoryTier()
	m := newTestManager(t, []Tier{local}, verifier, sink)
	before := m.Identifier()

	tests := []struct {
		name      string
		url       string
		wantClean string
	}{
		{"query", "https://shop.example.com/landing?utm=x&nylo_token=abc", "https://shop.example.com/landing?utm=x"},
		{"fragment", "https://shop.example.com/landing#nylo_token=abc", "https://shop.example.com/landing"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := m.ConsumeURL(context.Background(), tc.url, "https://Blog.Partner.org/post")
			require.NoError(t, err)
			require.True(t, result.Adopted)
			require.Equal(t, Identifier(canonical), result.Identifier)
			require.Equal(t, tc.wantClean, result.CleanURL)
			require.Equal(t, "abc", verifier.tokens[len(verifier.tokens)-1])
		})
	}

	require.Equal(t, Identifier(canonical), m.Identifier())
	stored, _ := local.Load()
	require.Equal(t, canonical, stored)
	require.Equal(t, "sess_remote", m.Session().ID)

	require.NotEmpty(t, sink.events)
	correlation := sink.events[0]
	require.Equal(t, CorrelationEventType, correlation.EventType)
	require.Equal(t, canonical, correlation.WaiTag)
	require.Equal(t, "blog.partner.org", correlation.Metadata["referrerDomain"])
	require.Equal(t, string(before), correlation.Metadata["previousWaiTag"])
}

func TestManager_ConsumeURL_NoToken(t *testing.T) {
	verifier := &stubVerifier{}
	m := newTestManager(t, nil, verifier, nil)

	result, err := m.ConsumeURL(context.Background(), "https://shop.example.com/?a=1", "")
	require.NoError(t, err)
	require.False(t, result.Adopted)
	require.Equal(t, m.Identifier(), result.Identifier)
	require.Empty(t, verifier.tokens)
}

func TestManager_ConsumeHandoffToken_FailureKeepsIdentity(t *testing.T) {
	tests := []struct {
		name     string
		verifier *stubVerifier
		wantErr  error
	}{
		{"server rejects", &stubVerifier{err: ErrRejected}, ErrRejected},
		{"network failure", &stubVerifier{err: errors.New("connection refused")}, nil},
		{"server returns malformed identity", &stubVerifier{identity: &VerifiedIdentity{WaiTag: "bogus"}}, ErrRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			m := newTestManager(t, nil, tc.verifier, sink)
			before := m.Identifier()

			id, err := m.ConsumeHandoffToken(context.Background(), "tok", "")
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			require.Equal(t, before, id)
			require.Equal(t, before, m.Identifier())
			require.Empty(t, sink.events)
		})
	}
}

func TestExtractToken(t *testing.T) {
	token, clean, err := ExtractToken("https://a.example/x?nylo_token=q1#nylo_token=f1")
	require.NoError(t, err)
	require.Equal(t, "q1", token)
	require.Equal(t, "https://a.example/x#nylo_token=f1", clean)

	token, clean, err = ExtractToken("https://a.example/x#section=2&nylo_token=f1")
	require.NoError(t, err)
	require.Equal(t, "f1", token)
	require.Equal(t, "https://a.example/x#section=2", clean)

	token, _, err = ExtractToken("https://a.example/x#top")
	require.NoError(t, err)
	require.Empty(t, token)
}
