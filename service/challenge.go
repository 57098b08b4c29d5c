package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"go.uber.org/zap"
)

const nonceSize = 32

// ChallengeRequest asks for a sign-in challenge
type ChallengeRequest struct {
	Address  string
	Domain   string
	ChainID  int64
	ClientIP string
}

// IssueChallenge generates a new authentication challenge and the message the
// wallet has to sign
func (s *AuthService) IssueChallenge(ctx context.Context, req ChallengeRequest) (*core.Challenge, string, error) {
	address, err := eth.NormalizeAddress(req.Address)
	if err != nil {
		return nil, "", core.ErrInvalidAddress
	}
	if !strings.EqualFold(req.Domain, s.cfg.Domain) {
		return nil, "", core.ErrDomainMismatch
	}
	if req.ChainID <= 0 || (len(s.cfg.ChainIDs) > 0 && !slices.Contains(s.cfg.ChainIDs, req.ChainID)) {
		return nil, "", core.ErrUnsupportedChain
	}

	if err := s.allow(ctx, BucketChallengeAddress, address); err != nil {
		return nil, "", err
	}
	if err := s.allow(ctx, BucketChallengeIP, req.ClientIP); err != nil {
		return nil, "", err
	}

	// Generate random nonce
	nonceBytes := make([]byte, nonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The message carries second precision only
	now := s.now().UTC().Truncate(time.Second)
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Nonce:     hex.EncodeToString(nonceBytes),
		Address:   address,
		Domain:    s.cfg.Domain,
		URI:       s.cfg.URI,
		Statement: s.cfg.Statement,
		ChainID:   req.ChainID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}

	if err := s.challenges.SaveChallenge(ctx, challenge, s.cfg.ChallengeTTL+s.cfg.ChallengeRetention); err != nil {
		return nil, "", fmt.Errorf("failed to store challenge: %w", err)
	}

	s.metrics.ChallengeIssued()
	s.logger.Debug("challenge issued",
		zap.String("challenge_id", challenge.ID),
		zap.String("address", address),
		zap.Int64("chain_id", challenge.ChainID),
	)

	return challenge, messageOf(challenge).String(), nil
}

// Verify checks the signature over a challenge and consumes it. The returned
// identity is proof of wallet ownership for this request only.
func (s *AuthService) Verify(ctx context.Context, challengeID, signature, clientIP string) (_ *core.Identity, err error) {
	defer func() { s.metrics.Verification(result(err)) }()

	now := s.now()

	// Unknown and spent ids count against the source too
	if err := s.allow(ctx, BucketVerifyIP, clientIP); err != nil {
		return nil, err
	}

	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Expired(now) {
		return nil, core.ErrChallengeExpired
	}
	if challenge.Consumed {
		return nil, core.ErrChallengeAlreadyConsumed
	}

	if err := s.allow(ctx, BucketVerifyAddress, challenge.Address); err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(ctx, challenge.Address, messageOf(challenge).Bytes(), signature); err != nil {
		s.logger.Debug("signature rejected", zap.String("challenge_id", challengeID), zap.Error(err))
		return nil, err
	}

	// Nothing may succeed after the challenge itself has expired
	consumeCtx, cancel := context.WithTimeout(ctx, challenge.ExpiresAt.Sub(now))
	defer cancel()

	if err := s.challenges.ConsumeChallenge(consumeCtx, challenge.ID, now, s.cfg.ChallengeRetention); err != nil {
		if errors.Is(consumeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, core.ErrChallengeExpired
		}
		return nil, err
	}

	return &core.Identity{
		Address: challenge.Address,
		ChainID: challenge.ChainID,
	}, nil
}

// Login verifies a signed challenge and opens a new session family
func (s *AuthService) Login(ctx context.Context, challengeID, signature, clientIP string) (*core.TokenPair, error) {
	identity, err := s.Verify(ctx, challengeID, signature, clientIP)
	if err != nil {
		return nil, err
	}
	return s.IssueSession(ctx, identity.Address)
}

func messageOf(c *core.Challenge) eth.ChallengeMessage {
	return eth.ChallengeMessage{
		Domain:    c.Domain,
		Address:   c.Address,
		Statement: c.Statement,
		URI:       c.URI,
		ChainID:   c.ChainID,
		Nonce:     c.Nonce,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
		RequestID: c.ID,
	}
}
