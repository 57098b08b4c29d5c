package store

import (
	"time"

	"github.com/layer-3/walletauth/core"
)

// minRevocationTTL keeps entries for already expired targets around long
// enough to absorb clock skew between instances
const minRevocationTTL = time.Minute

// Option configures a store
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the clock used for housekeeping
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPrefix sets the key namespace of the Redis store
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "walletauth:"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func revocationTTL(entry core.RevocationEntry, now time.Time) time.Duration {
	ttl := entry.ExpiresAt.Sub(now)
	if ttl < minRevocationTTL {
		return minRevocationTTL
	}
	return ttl
}
