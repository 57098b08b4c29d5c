package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
)

type challengeRecord struct {
	challenge core.Challenge
	expiresAt time.Time
}

type supersededRecord struct {
	sup        core.Supersession
	expiresAt  time.Time
	graceUntil time.Time
}

// MemoryStore is an in-memory implementation of the challenge and session
// stores. Every mutation runs under one mutex, which makes consume and
// supersede atomic. Expired records are invisible immediately and dropped by
// Prune.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	challenges map[string]challengeRecord
	revoked    map[string]core.RevocationEntry
	revokedTTL map[string]time.Time
	superseded map[string]supersededRecord
	families   map[string]map[string]time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		now:        o.now,
		challenges: make(map[string]challengeRecord),
		revoked:    make(map[string]core.RevocationEntry),
		revokedTTL: make(map[string]time.Time),
		superseded: make(map[string]supersededRecord),
		families:   make(map[string]map[string]time.Time),
	}
}

// SaveChallenge stores a challenge until ttl elapses
func (s *MemoryStore) SaveChallenge(ctx context.Context, challenge *core.Challenge, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.ID] = challengeRecord{
		challenge: *challenge,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// GetChallenge returns a copy of the stored challenge
func (s *MemoryStore) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.challenges[id]
	if !ok || !s.now().Before(rec.expiresAt) {
		return nil, core.ErrChallengeNotFound
	}
	c := rec.challenge
	return &c, nil
}

// ConsumeChallenge marks the challenge consumed if it is still usable at now
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, id string, now time.Time, retention time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.challenges[id]
	if !ok || !s.now().Before(rec.expiresAt) {
		return core.ErrChallengeNotFound
	}
	if rec.challenge.Expired(now) {
		return core.ErrChallengeExpired
	}
	if rec.challenge.Consumed {
		return core.ErrChallengeAlreadyConsumed
	}

	rec.challenge.Consumed = true
	rec.challenge.ConsumedAt = now
	rec.expiresAt = s.now().Add(retention)
	s.challenges[id] = rec
	return nil
}

// IsRevoked checks if an id is on the denylist
func (s *MemoryStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revokedTTL[id]
	return ok && s.now().Before(until), nil
}

// MarkRevoked adds an entry to the denylist
func (s *MemoryStore) MarkRevoked(ctx context.Context, entry core.RevocationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	until := now.Add(revocationTTL(entry, now))

	if current, ok := s.revokedTTL[entry.ID]; ok && now.Before(current) {
		if until.After(current) {
			s.revokedTTL[entry.ID] = until
		}
		return nil
	}

	s.revoked[entry.ID] = entry
	s.revokedTTL[entry.ID] = until
	return nil
}

// Revocation returns the stored entry for id
func (s *MemoryStore) Revocation(id string) (core.RevocationEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revokedTTL[id]
	if !ok || !s.now().Before(until) {
		return core.RevocationEntry{}, false
	}
	return s.revoked[id], true
}

// MarkSuperseded records a rotation unless one was already recorded
func (s *MemoryStore) MarkSuperseded(ctx context.Context, sup core.Supersession, ttl, grace time.Duration) (*core.Supersession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.superseded[sup.RefreshID]; ok && now.Before(rec.expiresAt) {
		prior := rec.sup
		if !now.Before(rec.graceUntil) {
			prior.Successor = nil
		}
		return &prior, nil
	}

	if ttl < grace {
		ttl = grace
	}
	s.superseded[sup.RefreshID] = supersededRecord{
		sup:        sup,
		expiresAt:  now.Add(ttl),
		graceUntil: now.Add(grace),
	}
	return nil, nil
}

// TrackFamily records a live family of subject until expiresAt
func (s *MemoryStore) TrackFamily(ctx context.Context, subject, familyID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fams, ok := s.families[subject]
	if !ok {
		fams = make(map[string]time.Time)
		s.families[subject] = fams
	}
	if expiresAt.After(fams[familyID]) {
		fams[familyID] = expiresAt
	}
	return nil
}

// Families returns the live families of subject
func (s *MemoryStore) Families(ctx context.Context, subject string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []string
	for id, until := range s.families[subject] {
		if now.Before(until) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Prune drops every record whose retention has elapsed
func (s *MemoryStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, rec := range s.challenges {
		if !now.Before(rec.expiresAt) {
			delete(s.challenges, id)
		}
	}
	for id, until := range s.revokedTTL {
		if !now.Before(until) {
			delete(s.revokedTTL, id)
			delete(s.revoked, id)
		}
	}
	for id, rec := range s.superseded {
		if !now.Before(rec.expiresAt) {
			delete(s.superseded, id)
		}
	}
	for subject, fams := range s.families {
		for id, until := range fams {
			if !now.Before(until) {
				delete(fams, id)
			}
		}
		if len(fams) == 0 {
			delete(s.families, subject)
		}
	}
}

// Run prunes the store every interval until ctx is done
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
		}
	}
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges = make(map[string]challengeRecord)
	s.revoked = make(map[string]core.RevocationEntry)
	s.revokedTTL = make(map[string]time.Time)
	s.superseded = make(map[string]supersededRecord)
	s.families = make(map[string]map[string]time.Time)
}
