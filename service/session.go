package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

// Scope selects what RevokeAssertion revokes
type Scope string

const (
	ScopeThisSession Scope = "this-session"
	ScopeAllSessions Scope = "all-sessions"
)

// RevokeRequest denylists a refresh id or a family id
type RevokeRequest struct {
	TargetID  string
	Kind      core.RevocationKind
	Subject   string
	ExpiresAt time.Time // Natural expiry of the target
	Reason    core.RevocationReason
}

// IssueSession opens a new session family for a verified address
func (s *AuthService) IssueSession(ctx context.Context, address string) (*core.TokenPair, error) {
	now := s.now().Truncate(time.Second)

	session := &core.Session{
		Subject:  address,
		FamilyID: uuid.New().String(),
		AuthTime: now,
	}
	s.fillRotation(session, now)

	pair, err := s.tokenizer.EncodePair(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens: %w", err)
	}

	if err := s.sessions.TrackFamily(ctx, address, session.FamilyID, session.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to track session family: %w", err)
	}

	s.logger.Info("session opened", zap.String("address", address), zap.String("family_id", session.FamilyID))
	return pair, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens.
// A rotated refresh token presented again outside the grace window revokes
// its whole family.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *core.TokenPair, err error) {
	defer func() { s.metrics.Refresh(result(err)) }()

	now := s.now()

	old, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return nil, err
	}
	if !now.Before(old.RefreshExpiresAt) {
		return nil, core.ErrAssertionExpired
	}

	revoked, err := s.anyRevoked(ctx, s.sessions, old.FamilyID, old.RefreshID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, core.ErrAssertionRevoked
	}

	issuedAt := now.Truncate(time.Second)
	next := &core.Session{
		Subject:         old.Subject,
		FamilyID:        old.FamilyID,
		AuthTime:        old.AuthTime,
		RotationCounter: old.RotationCounter + 1,
	}
	s.fillRotation(next, issuedAt)

	pair, err := s.tokenizer.EncodePair(next)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens: %w", err)
	}

	if err := s.sessions.TrackFamily(ctx, next.Subject, next.FamilyID, next.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to track session family: %w", err)
	}

	prior, err := s.sessions.MarkSuperseded(ctx, core.Supersession{
		RefreshID:    old.RefreshID,
		FamilyID:     old.FamilyID,
		SupersededAt: now,
		Successor:    pair,
	}, old.RefreshExpiresAt.Sub(now), s.cfg.RefreshGrace)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	if prior == nil {
		return pair, nil
	}

	// A retry inside the grace window gets the pair the first rotation issued
	if prior.Successor != nil {
		s.logger.Debug("refresh retried within grace window",
			zap.String("family_id", old.FamilyID),
			zap.String("refresh_id", old.RefreshID),
		)
		return prior.Successor, nil
	}

	s.metrics.ReuseDetected()
	s.logger.Warn("refresh token reuse detected, revoking session family",
		zap.String("address", old.Subject),
		zap.String("family_id", old.FamilyID),
		zap.String("refresh_id", old.RefreshID),
		zap.Int("rotation", old.RotationCounter),
		zap.Time("superseded_at", prior.SupersededAt),
	)

	if err := s.markSpent(ctx, old, now); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRefreshReuseDetected, err)
	}
	if err := s.Revoke(ctx, RevokeRequest{
		TargetID:  old.FamilyID,
		Kind:      core.RevokeFamily,
		Subject:   old.Subject,
		ExpiresAt: s.refreshExpiry(old.AuthTime, now),
		Reason:    core.ReasonReuseDetected,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRefreshReuseDetected, err)
	}

	return nil, core.ErrRefreshReuseDetected
}

// Revoke denylists a refresh id or a family id. Revoking the same target
// again is a no-op.
func (s *AuthService) Revoke(ctx context.Context, req RevokeRequest) error {
	if req.TargetID == "" || (req.Kind != core.RevokeRefresh && req.Kind != core.RevokeFamily) {
		return core.ErrInvalidRequest
	}

	entry := core.RevocationEntry{
		ID:        req.TargetID,
		Kind:      req.Kind,
		Subject:   req.Subject,
		Reason:    req.Reason,
		RevokedAt: s.now(),
		ExpiresAt: req.ExpiresAt,
	}

	if err := s.sessions.MarkRevoked(ctx, entry); err != nil {
		return fmt.Errorf("failed to revoke %s: %w", entry.Kind, err)
	}
	if err := s.local.MarkRevoked(ctx, entry); err != nil {
		return err
	}
	s.metrics.Revoked(string(entry.Kind), string(entry.Reason))

	// Publish revocation event for cross-instance notifications. The store
	// already holds the entry, so a failed publish only delays other
	// instances' denylists.
	if s.eventPub != nil {
		if err := s.eventPub.PublishRevocation(ctx, entry); err != nil {
			s.logger.Warn("failed to publish revocation event", zap.String("id", entry.ID), zap.Error(err))
		}
	}

	s.logger.Info("revoked",
		zap.String("kind", string(entry.Kind)),
		zap.String("id", entry.ID),
		zap.String("address", entry.Subject),
		zap.String("reason", string(entry.Reason)),
	)
	return nil
}

// RevokeAssertion revokes the session behind an access or refresh token.
// Expired tokens are accepted as long as their signature holds.
func (s *AuthService) RevokeAssertion(ctx context.Context, token string, scope Scope, reason core.RevocationReason) error {
	session, err := s.sessionOf(token)
	if err != nil {
		return err
	}

	now := s.now()
	switch scope {
	case ScopeThisSession:
		return s.Revoke(ctx, RevokeRequest{
			TargetID:  session.FamilyID,
			Kind:      core.RevokeFamily,
			Subject:   session.Subject,
			ExpiresAt: s.refreshExpiry(session.AuthTime, now),
			Reason:    reason,
		})

	case ScopeAllSessions:
		families, err := s.sessions.Families(ctx, session.Subject)
		if err != nil {
			return fmt.Errorf("failed to list session families: %w", err)
		}
		if !slices.Contains(families, session.FamilyID) {
			families = append(families, session.FamilyID)
		}

		// Other families may have started later, so they get the full horizon
		horizon := now.Add(s.cfg.RefreshTTL)
		for _, familyID := range families {
			if err := s.Revoke(ctx, RevokeRequest{
				TargetID:  familyID,
				Kind:      core.RevokeFamily,
				Subject:   session.Subject,
				ExpiresAt: horizon,
				Reason:    reason,
			}); err != nil {
				return err
			}
		}
		return nil

	default:
		return core.ErrInvalidRequest
	}
}

// CheckAccess resolves an access token to the wallet address it was issued
// to. Only the local denylist is consulted unless StrictAccessCheck is set,
// so a revocation this instance has not heard of yet stays usable for at
// most AccessTTL.
func (s *AuthService) CheckAccess(ctx context.Context, accessToken string) (_ *core.Identity, err error) {
	defer func() { s.metrics.AccessCheck(result(err)) }()

	now := s.now()

	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}
	if !now.Before(session.AccessExpiresAt) {
		return nil, core.ErrAssertionExpired
	}

	revoked, err := s.anyRevoked(ctx, s.local, session.FamilyID, session.RefreshID)
	if err != nil {
		return nil, err
	}
	if !revoked && s.cfg.StrictAccessCheck {
		revoked, err = s.anyRevoked(ctx, s.sessions, session.FamilyID, session.RefreshID)
		if err != nil {
			return nil, err
		}
	}
	if revoked {
		return nil, core.ErrAssertionRevoked
	}

	return &core.Identity{
		Address:     session.Subject,
		FamilyID:    session.FamilyID,
		AssertionID: session.AccessID,
		ExpiresAt:   session.AccessExpiresAt,
	}, nil
}

// markSpent denylists a replayed refresh id. The family entry written next
// covers other instances, so no event is published for it.
func (s *AuthService) markSpent(ctx context.Context, old *core.Session, now time.Time) error {
	entry := core.RevocationEntry{
		ID:        old.RefreshID,
		Kind:      core.RevokeRefresh,
		Subject:   old.Subject,
		Reason:    core.ReasonReuseDetected,
		RevokedAt: now,
		ExpiresAt: old.RefreshExpiresAt,
	}
	if err := s.sessions.MarkRevoked(ctx, entry); err != nil {
		return fmt.Errorf("failed to revoke refresh: %w", err)
	}
	if err := s.local.MarkRevoked(ctx, entry); err != nil {
		return err
	}
	s.metrics.Revoked(string(entry.Kind), string(entry.Reason))
	return nil
}

// fillRotation sets ids and expiries of a pair issued at now
func (s *AuthService) fillRotation(session *core.Session, now time.Time) {
	session.IssuedAt = now
	session.AccessID = uuid.New().String()
	session.RefreshID = uuid.New().String()
	session.RefreshExpiresAt = s.refreshExpiry(session.AuthTime, now)
	session.AccessExpiresAt = now.Add(s.cfg.AccessTTL)
	if session.AccessExpiresAt.After(session.RefreshExpiresAt) {
		session.AccessExpiresAt = session.RefreshExpiresAt
	}
}

// refreshExpiry is the expiry of a refresh token issued at now for a family
// that started at authTime
func (s *AuthService) refreshExpiry(authTime, now time.Time) time.Time {
	expiresAt := now.Add(s.cfg.RefreshTTL)
	if s.cfg.MaxSessionLifetime > 0 && !authTime.IsZero() {
		if limit := authTime.Add(s.cfg.MaxSessionLifetime); expiresAt.After(limit) {
			return limit
		}
	}
	return expiresAt
}

func (s *AuthService) anyRevoked(ctx context.Context, revocations ports.RevocationStore, ids ...string) (bool, error) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		revoked, err := revocations.IsRevoked(ctx, id)
		if err != nil {
			return false, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return true, nil
		}
	}
	return false, nil
}

// sessionOf accepts either kind of token
func (s *AuthService) sessionOf(token string) (*core.Session, error) {
	if session, err := s.tokenizer.AccessTokenToSession(token); err == nil {
		return session, nil
	}
	return s.tokenizer.RefreshTokenToSession(token)
}
