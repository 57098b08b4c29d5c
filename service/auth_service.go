package service

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/obs"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

// Rate limit buckets guarded by the service
const (
	BucketChallengeAddress = "challenge:address"
	BucketChallengeIP      = "challenge:ip"
	BucketVerifyAddress    = "verify:address"
	BucketVerifyIP         = "verify:ip"
)

// Config holds the protocol parameters of the service
type Config struct {
	Domain    string  // Relying party every challenge is bound to
	URI       string  // Origin shown in the sign-in message
	Statement string  // Optional text shown in the sign-in message
	ChainIDs  []int64 // Accepted chain ids, any positive id when empty

	ChallengeTTL       time.Duration
	ChallengeRetention time.Duration // Audit retention after expiry or consumption
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshGrace       time.Duration // Window in which a repeated rotation returns the same pair
	MaxSessionLifetime time.Duration // Absolute cap measured from login, zero disables it

	// StrictAccessCheck makes CheckAccess consult the shared revocation store
	StrictAccessCheck bool
}

// DefaultConfig returns the protocol defaults for domain
func DefaultConfig(domain string) Config {
	return Config{
		Domain:             domain,
		URI:                "https://" + domain,
		ChallengeTTL:       5 * time.Minute,
		ChallengeRetention: time.Hour,
		AccessTTL:          5 * time.Minute,
		RefreshTTL:         5 * 24 * time.Hour, // 5 days
		RefreshGrace:       5 * time.Second,
		MaxSessionLifetime: 30 * 24 * time.Hour,
	}
}

// AuthService handles authentication business logic
type AuthService struct {
	cfg Config

	tokenizer  ports.Tokenizer
	challenges ports.ChallengeStore
	sessions   ports.SessionStore
	verifier   ports.SignatureVerifier
	limiter    ports.RateLimiter
	eventPub   ports.EventPublisher

	// local is the in-process denylist consulted by CheckAccess
	local *store.MemoryStore

	logger  *zap.Logger
	metrics *obs.Metrics
	now     func() time.Time
}

// Option configures optional collaborators of the service
type Option func(*AuthService)

// WithRateLimiter guards issuance and verification with limiter
func WithRateLimiter(limiter ports.RateLimiter) Option {
	return func(s *AuthService) { s.limiter = limiter }
}

// WithEventPublisher announces revocations to other instances
func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *AuthService) { s.eventPub = pub }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg Config,
	tokenizer ports.Tokenizer,
	challenges ports.ChallengeStore,
	sessions ports.SessionStore,
	verifier ports.SignatureVerifier,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		cfg:        cfg,
		tokenizer:  tokenizer,
		challenges: challenges,
		sessions:   sessions,
		verifier:   verifier,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.local = store.NewMemoryStore(store.WithClock(s.now))
	return s
}

// Run prunes the local denylist every interval until ctx is done
func (s *AuthService) Run(ctx context.Context, interval time.Duration) {
	s.local.Run(ctx, interval)
}

// ApplyRevocation adds a revocation announced by another instance to the
// local denylist
func (s *AuthService) ApplyRevocation(ctx context.Context, entry core.RevocationEntry) error {
	return s.local.MarkRevoked(ctx, entry)
}

func (s *AuthService) allow(ctx context.Context, bucket, key string) error {
	if s.limiter == nil || key == "" {
		return nil
	}

	ok, err := s.limiter.Allow(ctx, key, bucket)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing request", zap.String("bucket", bucket), zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.Limited(bucket)
		return core.ErrRateLimited
	}
	return nil
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(core.CodeOf(err))
}
