package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/adapters/signature"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/obs"
	"github.com/layer-3/walletauth/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testDomain = "app.example.com"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []core.RevocationEntry
}

func (p *recordingPublisher) PublishRevocation(_ context.Context, entry core.RevocationEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) Entries() []core.RevocationEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.RevocationEntry(nil), p.entries...)
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// sign produces a personal_sign signature with a legacy v value
func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

type harness struct {
	svc       *AuthService
	store     *store.MemoryStore
	clock     *fakeClock
	metrics   *obs.Metrics
	events    *recordingPublisher
	tokenizer ports.Tokenizer
	wallet    wallet
}

func newHarness(t *testing.T, configure func(*Config), opts ...Option) *harness {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	tk := tokenizer.NewJWTTokenizer(signKey, testDomain)
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	events := &recordingPublisher{}

	cfg := DefaultConfig(testDomain)
	cfg.Statement = "Sign in to Example"
	if configure != nil {
		configure(&cfg)
	}

	opts = append([]Option{
		WithClock(clock.Now),
		WithMetrics(metrics),
		WithEventPublisher(events),
	}, opts...)

	return &harness{
		svc:       NewAuthService(cfg, tk, st, st, signature.NewVerifier(), opts...),
		store:     st,
		clock:     clock,
		metrics:   metrics,
		events:    events,
		tokenizer: tk,
		wallet:    newWallet(t),
	}
}

func (h *harness) challenge(t *testing.T) (*core.Challenge, string) {
	t.Helper()
	ch, msg, err := h.svc.IssueChallenge(context.Background(), ChallengeRequest{
		Address:  h.wallet.address,
		Domain:   testDomain,
		ChainID:  1,
		ClientIP: "203.0.113.7",
	})
	require.NoError(t, err)
	return ch, msg
}

func (h *harness) login(t *testing.T) *core.TokenPair {
	t.Helper()
	ch, msg := h.challenge(t)
	pair, err := h.svc.Login(context.Background(), ch.ID, h.wallet.sign(t, msg), "203.0.113.7")
	require.NoError(t, err)
	return pair
}
