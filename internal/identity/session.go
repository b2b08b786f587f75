package identity

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// DefaultSessionTimeout ends a session after this much inactivity.
const DefaultSessionTimeout = 30 * time.Minute

// Session scopes events to one visit. It expires independently of the identifier.
type Session struct {
	ID           string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"-"`
}

// NewSessionID returns "sess_" followed by a time-ordered ksuid.
func NewSessionID() string {
	return "sess_" + ksuid.New().String()
}

// sessionTracker rotates the session after the idle timeout.
type sessionTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	current *Session
}

func newSessionTracker(timeout time.Duration) *sessionTracker {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &sessionTracker{timeout: timeout}
}

// touch returns the live session at now, starting a new one when none exists
// or the previous one has been idle for the timeout.
func (t *sessionTracker) touch(now time.Time) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || now.Sub(t.current.LastActivity) >= t.timeout {
		t.current = &Session{ID: NewSessionID(), CreatedAt: now, LastActivity: now}
	} else {
		t.current.LastActivity = now
	}
	return *t.current
}

// adopt continues a session handed over from another domain.
func (t *sessionTracker) adopt(id string, now time.Time) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = &Session{ID: id, CreatedAt: now, LastActivity: now}
	return *t.current
}
