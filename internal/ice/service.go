package ice

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/logger"
)

// Resolution sources reported to Config.Observe.
const (
	SourceProvider = "provider"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Config holds Service configuration.
type Config struct {
	// Source is the relay-token provider. Nil always serves the fallback.
	Source TokenSource

	// TTL is how long a provider list is reused (default: 600s).
	TTL time.Duration

	// FallbackTTL is how long a fallback list is reused before the provider is retried (default: 30s).
	FallbackTTL time.Duration

	// Timeout bounds one provider call (default: 5s).
	Timeout time.Duration

	// FallbackURL is the public STUN server used when the provider fails.
	FallbackURL string

	// Observe, if set, is called with the source of every resolution.
	Observe func(source string)

	now func() time.Time
}

// Service returns ICE servers, cached for a TTL, falling back to public STUN on any failure.
// It is safe for concurrent use.
type Service struct {
	config Config

	mu      sync.Mutex
	cached  Resolution
	expires time.Time
}

// NewService creates a Service.
func NewService(config Config) *Service {
	if config.TTL <= 0 {
		config.TTL = 600 * time.Second
	}
	if config.FallbackTTL <= 0 {
		config.FallbackTTL = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.FallbackURL == "" {
		config.FallbackURL = "stun:stun.l.google.com:19302"
	}
	if config.now == nil {
		config.now = time.Now
	}
	return &Service{config: config}
}

// Servers returns the current ICE server list. It never fails and never returns an empty list.
//
// Calls inside the cache window return the cached list without contacting the provider.
// Concurrent callers after expiry wait for a single provider call.
func (s *Service) Servers(ctx context.Context) Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.now()
	if len(s.cached.Servers) > 0 && now.Before(s.expires) {
		s.observe(SourceCache)
		return s.cached.clone()
	}

	res, ttl := s.resolve(ctx)
	s.cached = res
	s.expires = s.config.now().Add(ttl)
	return res.clone()
}

// Invalidate drops the cached list.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = Resolution{}
	s.expires = time.Time{}
}

func (s *Service) resolve(ctx context.Context) (Resolution, time.Duration) {
	if s.config.Source == nil {
		return s.fallback(ErrNoCredentials), s.config.FallbackTTL
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	servers, err := s.config.Source.Fetch(ctx)
	if err == nil && len(servers) == 0 {
		err = ErrNoServers
	}
	if err != nil {
		return s.fallback(err), s.config.FallbackTTL
	}

	s.observe(SourceProvider)
	logger.Log().Debug("ice servers resolved", zap.Int("count", len(servers)))
	return Resolution{Servers: servers}, s.config.TTL
}

func (s *Service) fallback(cause error) Resolution {
	s.observe(SourceFallback)
	logger.Log().Warn("using public stun fallback", zap.Error(cause))
	return Resolution{
		Servers:  []Server{{URLs: []string{s.config.FallbackURL}}},
		Degraded: true,
		Warning:  warning(cause),
	}
}

// warning is the browser-facing reason for a fallback. It names a category only.
func warning(cause error) string {
	if errors.Is(cause, ErrNoCredentials) {
		return "relay credentials not configured, using public STUN only"
	}
	return "relay token service unavailable, using public STUN only"
}

func (s *Service) observe(source string) {
	if s.config.Observe != nil {
		s.config.Observe(source)
	}
}

func (r Resolution) clone() Resolution {
	out := r
	out.Servers = make([]Server, len(r.Servers))
	for i, srv := range r.Servers {
		srv.URLs = append([]string(nil), srv.URLs...)
		out.Servers[i] = srv
	}
	return out
}
