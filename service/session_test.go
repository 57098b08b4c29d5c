package service

import (
	"context"
	"testing"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueSession(t *testing.T) {
	h := newHarness(t, nil)
	pair := h.login(t)

	now := h.clock.Now()
	assert.Equal(t, h.wallet.address, pair.Subject)
	assert.Zero(t, pair.RotationCounter)
	assert.Equal(t, now, pair.AuthTime)
	assert.Equal(t, now.Add(h.svc.cfg.AccessTTL), pair.AccessExpiresAt)
	assert.Equal(t, now.Add(h.svc.cfg.RefreshTTL), pair.RefreshExpiresAt)

	refresh, err := h.tokenizer.RefreshTokenToSession(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.FamilyID, refresh.FamilyID)
	assert.Equal(t, pair.RefreshID, refresh.RefreshID)

	families, err := h.store.Families(context.Background(), h.wallet.address)
	require.NoError(t, err)
	assert.Equal(t, []string{pair.FamilyID}, families)
}

func TestRefreshRotates(t *testing.T) {
	h := newHarness(t, nil)
	first := h.login(t)

	h.clock.Advance(time.Minute)
	second, err := h.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, first.FamilyID, second.FamilyID)
	assert.Equal(t, first.AuthTime, second.AuthTime)
	assert.Equal(t, 1, second.RotationCounter)
	assert.NotEqual(t, first.RefreshID, second.RefreshID)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	identity, err := h.svc.CheckAccess(context.Background(), second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.wallet.address, identity.Address)
	assert.Equal(t, second.AccessID, identity.AssertionID)

	// A rotated id is tracked by its superseded marker, not the denylist, so
	// a replay still reaches reuse detection
	spent, err := h.store.IsRevoked(context.Background(), first.RefreshID)
	require.NoError(t, err)
	assert.False(t, spent)

	third, err := h.svc.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 2, third.RotationCounter)
}

func TestRefreshRetryWithinGrace(t *testing.T) {
	h := newHarness(t, nil)
	first := h.login(t)

	second, err := h.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	h.clock.Advance(h.svc.cfg.RefreshGrace / 2)
	retried, err := h.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, second.AccessToken, retried.AccessToken)
	assert.Equal(t, second.RefreshToken, retried.RefreshToken)

	_, err = h.svc.CheckAccess(context.Background(), second.AccessToken)
	assert.NoError(t, err)
	assert.Zero(t, testutil.ToFloat64(h.metrics.RefreshReuseDetected))
	assert.Empty(t, h.events.Entries())
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.login(t)

	second, err := h.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	h.clock.Advance(h.svc.cfg.RefreshGrace + time.Second)
	_, err = h.svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, core.ErrRefreshReuseDetected)

	_, err = h.svc.CheckAccess(ctx, second.AccessToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	_, err = h.svc.CheckAccess(ctx, first.AccessToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	_, err = h.svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	_, err = h.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)

	revoked, err := h.store.IsRevoked(ctx, first.FamilyID)
	require.NoError(t, err)
	assert.True(t, revoked)

	spent, ok := h.store.Revocation(first.RefreshID)
	require.True(t, ok)
	assert.Equal(t, core.RevokeRefresh, spent.Kind)
	assert.Equal(t, core.ReasonReuseDetected, spent.Reason)

	entry, ok := h.store.Revocation(first.FamilyID)
	require.True(t, ok)
	assert.Equal(t, core.ReasonReuseDetected, entry.Reason)
	assert.Equal(t, core.RevokeFamily, entry.Kind)
	assert.True(t, entry.ExpiresAt.After(second.RefreshExpiresAt) || entry.ExpiresAt.Equal(second.RefreshExpiresAt))

	events := h.events.Entries()
	require.Len(t, events, 1)
	assert.Equal(t, first.FamilyID, events[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshReuseDetected))

	// Other sessions of the same wallet are untouched
	other := h.login(t)
	_, err = h.svc.CheckAccess(ctx, other.AccessToken)
	assert.NoError(t, err)
}

func TestRefreshFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pair := h.login(t)

	_, err := h.svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, core.ErrAssertionMalformed)

	_, err = h.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrAssertionMalformed)

	h.clock.Advance(h.svc.cfg.RefreshTTL)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionExpired)
}

func TestMaxSessionLifetime(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxSessionLifetime = time.Hour
		c.AccessTTL = 10 * time.Minute
	})
	pair := h.login(t)
	limit := pair.AuthTime.Add(time.Hour)
	assert.Equal(t, limit, pair.RefreshExpiresAt)

	h.clock.Advance(55 * time.Minute)
	next, err := h.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, limit, next.RefreshExpiresAt)
	assert.Equal(t, limit, next.AccessExpiresAt)

	h.clock.Advance(5 * time.Minute)
	_, err = h.svc.Refresh(context.Background(), next.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionExpired)
}

func TestRevokeIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	req := RevokeRequest{
		TargetID:  "refresh-1",
		Kind:      core.RevokeRefresh,
		Subject:   h.wallet.address,
		ExpiresAt: h.clock.Now().Add(time.Hour),
		Reason:    core.ReasonAdminAction,
	}
	require.NoError(t, h.svc.Revoke(ctx, req))
	require.NoError(t, h.svc.Revoke(ctx, req))

	revoked, err := h.store.IsRevoked(ctx, "refresh-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.ErrorIs(t, h.svc.Revoke(ctx, RevokeRequest{Kind: core.RevokeFamily}), core.ErrInvalidRequest)
	assert.ErrorIs(t, h.svc.Revoke(ctx, RevokeRequest{TargetID: "x", Kind: "session"}), core.ErrInvalidRequest)
}

func TestRevokeThisSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pair := h.login(t)
	other := h.login(t)

	require.NoError(t, h.svc.RevokeAssertion(ctx, pair.AccessToken, ScopeThisSession, core.ReasonUserLogout))

	_, err := h.svc.CheckAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionRevoked)

	_, err = h.svc.CheckAccess(ctx, other.AccessToken)
	assert.NoError(t, err)

	// Revoking with the refresh token of an already revoked session is fine
	require.NoError(t, h.svc.RevokeAssertion(ctx, pair.RefreshToken, ScopeThisSession, core.ReasonUserLogout))
}

func TestRevokeAllSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.login(t)
	second := h.login(t)

	// Expired but authentic tokens may still be used to log out
	h.clock.Advance(h.svc.cfg.AccessTTL + time.Minute)
	require.NoError(t, h.svc.RevokeAssertion(ctx, first.AccessToken, ScopeAllSessions, core.ReasonUserLogout))

	for _, pair := range []*core.TokenPair{first, second} {
		_, err := h.svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	}
	assert.Len(t, h.events.Entries(), 2)
}

func TestRevokeAssertionRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	pair := h.login(t)

	err := h.svc.RevokeAssertion(context.Background(), "garbage", ScopeThisSession, core.ReasonUserLogout)
	assert.ErrorIs(t, err, core.ErrAssertionMalformed)

	err = h.svc.RevokeAssertion(context.Background(), pair.AccessToken, "everything", core.ReasonUserLogout)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestCheckAccess(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pair := h.login(t)

	identity, err := h.svc.CheckAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.wallet.address, identity.Address)
	assert.Equal(t, pair.FamilyID, identity.FamilyID)
	assert.Equal(t, pair.AccessExpiresAt, identity.ExpiresAt)

	_, err = h.svc.CheckAccess(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrAssertionMalformed)

	h.clock.Advance(h.svc.cfg.AccessTTL)
	_, err = h.svc.CheckAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrAssertionExpired)
}

func TestCheckAccessDenylist(t *testing.T) {
	ctx := context.Background()

	t.Run("remote revocation", func(t *testing.T) {
		h := newHarness(t, nil)
		pair := h.login(t)

		require.NoError(t, h.svc.ApplyRevocation(ctx, core.RevocationEntry{
			ID:        pair.FamilyID,
			Kind:      core.RevokeFamily,
			Reason:    core.ReasonUserLogout,
			ExpiresAt: pair.RefreshExpiresAt,
		}))

		_, err := h.svc.CheckAccess(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	})

	t.Run("shared store only", func(t *testing.T) {
		h := newHarness(t, nil)
		pair := h.login(t)

		require.NoError(t, h.store.MarkRevoked(ctx, core.RevocationEntry{
			ID:        pair.FamilyID,
			Kind:      core.RevokeFamily,
			Reason:    core.ReasonAdminAction,
			ExpiresAt: pair.RefreshExpiresAt,
		}))

		// Not announced to this instance yet
		_, err := h.svc.CheckAccess(ctx, pair.AccessToken)
		assert.NoError(t, err)

		h.svc.cfg.StrictAccessCheck = true
		_, err = h.svc.CheckAccess(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, core.ErrAssertionRevoked)
	})
}
