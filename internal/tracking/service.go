package tracking

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejasgit/nylo/internal/core/storage"
	"github.com/tejasgit/nylo/internal/dedup"
)

// Endpoint names used as Policy keys.
const (
	EndpointTrack    = "track"
	EndpointEvent    = "event"
	EndpointRegister = "register-waitag"
)

// Policy lists the endpoints that answer success when persistence fails.
// Tracking is fire-and-forget for browsers, so a storage outage must not
// surface as client errors on those endpoints.
type Policy map[string]bool

// DefaultPolicy soft-fails every ingestion endpoint.
func DefaultPolicy() Policy {
	return Policy{EndpointTrack: true, EndpointEvent: true, EndpointRegister: true}
}

// SoftFail reports whether endpoint swallows storage errors.
func (p Policy) SoftFail(endpoint string) bool {
	return p[endpoint]
}

// Config tunes the tracking service.
type Config struct {
	MaxBodySizeMB int
	Policy        Policy
}

type Service struct {
	events           storage.EventStore
	identities       storage.IdentityStore
	customers        storage.CustomerStore
	dedup            *dedup.Cache
	policy           Policy
	maxBodySizeBytes int64
	now              func() time.Time
}

func NewService(
	events storage.EventStore,
	identities storage.IdentityStore,
	customers storage.CustomerStore,
	cache *dedup.Cache,
	cfg Config,
) *Service {
	if events == nil {
		panic("tracking: event store must not be nil")
	}
	if identities == nil {
		panic("tracking: identity store must not be nil")
	}
	if customers == nil {
		panic("tracking: customer store must not be nil")
	}
	if cache == nil {
		panic("tracking: dedup cache must not be nil")
	}
	if cfg.MaxBodySizeMB <= 0 {
		cfg.MaxBodySizeMB = 1 // default to 1MB
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	return &Service{
		events:           events,
		identities:       identities,
		customers:        customers,
		dedup:            cache,
		policy:           cfg.Policy,
		maxBodySizeBytes: int64(cfg.MaxBodySizeMB) * 1024 * 1024,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers the ingestion and identity routes. The
// cross-domain routes under /api/tracking are registered by crossdomain.Service.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/track", s.TrackHandler)

	tracking := r.Group("/api/tracking")
	tracking.POST("/register-waitag", s.RegisterWaiTagHandler)
	tracking.POST("/verify-waitag", s.VerifyWaiTagHandler)
	tracking.POST("/event", s.EventHandler)
}
