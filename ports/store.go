package ports

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/walletauth/core"
)

// ErrStoreUnavailable wraps backend failures of a store
var ErrStoreUnavailable = errors.New("store unavailable")

// ChallengeStore holds outstanding challenges
type ChallengeStore interface {
	// SaveChallenge persists a new challenge for ttl
	SaveChallenge(ctx context.Context, challenge *core.Challenge, ttl time.Duration) error

	// GetChallenge returns core.ErrChallengeNotFound when absent
	GetChallenge(ctx context.Context, id string) (*core.Challenge, error)

	// ConsumeChallenge atomically flips the challenge to consumed. It fails with
	// core.ErrChallengeNotFound, core.ErrChallengeExpired or
	// core.ErrChallengeAlreadyConsumed. The record is then retained for retention.
	ConsumeChallenge(ctx context.Context, id string, now time.Time, retention time.Duration) error
}

// RevocationStore is the shared denylist of refresh and family ids
type RevocationStore interface {
	IsRevoked(ctx context.Context, id string) (bool, error)

	// MarkRevoked is idempotent: the first entry is kept and its retention is
	// extended when entry.ExpiresAt is later.
	MarkRevoked(ctx context.Context, entry core.RevocationEntry) error

	// MarkSuperseded atomically records that sup.RefreshID has been rotated.
	// It returns a nil prior when this call won, otherwise the record written
	// by the winner. The successor pair is retained for grace only.
	MarkSuperseded(ctx context.Context, sup core.Supersession, ttl, grace time.Duration) (prior *core.Supersession, err error)
}

// FamilyIndex tracks the live session families of a subject
type FamilyIndex interface {
	TrackFamily(ctx context.Context, subject, familyID string, expiresAt time.Time) error
	Families(ctx context.Context, subject string) ([]string, error)
}

// SessionStore bundles everything the session manager persists
type SessionStore interface {
	RevocationStore
	FamilyIndex
}
