package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

var errMissingClaims = errors.New("missing required claims")

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	issuer  string
	parser  *jwt.Parser
}

// NewJWTTokenizer creates a new JWT tokenizer. issuer is embedded in and
// required from every assertion.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, issuer string) ports.Tokenizer {
	return &JWTTokenizer{
		signKey: signKey,
		issuer:  issuer,
		// Time based claims are checked by the session manager against its own clock
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// EncodePair signs the access and refresh assertions of a session
func (j *JWTTokenizer) EncodePair(session *core.Session) (*core.TokenPair, error) {
	access := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.Subject,
			ID:        session.AccessID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		FamilyID:  session.FamilyID,
		RefreshID: session.RefreshID,
		Rotation:  session.RotationCounter,
		AuthTime:  jwt.NewNumericDate(session.AuthTime),
	}

	refresh := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.Subject,
			ID:        session.RefreshID, // Use RefreshID as the JWT ID for the refresh token
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		FamilyID: session.FamilyID,
		Rotation: session.RotationCounter,
		AuthTime: jwt.NewNumericDate(session.AuthTime),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodES256, access).SignedString(j.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodES256, refresh).SignedString(j.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &core.TokenPair{
		Session:      *session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}
	if claims.FamilyID == "" || claims.RefreshID == "" {
		return nil, fmt.Errorf("%w: %v", core.ErrAssertionMalformed, errMissingClaims)
	}

	// Refresh expiry is not carried by access tokens
	return &core.Session{
		Subject:         claims.Subject,
		FamilyID:        claims.FamilyID,
		AuthTime:        timeOf(claims.AuthTime),
		RotationCounter: claims.Rotation,
		IssuedAt:        timeOf(claims.IssuedAt),
		AccessID:        claims.ID,
		AccessExpiresAt: timeOf(claims.ExpiresAt),
		RefreshID:       claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}
	if claims.FamilyID == "" {
		return nil, fmt.Errorf("%w: %v", core.ErrAssertionMalformed, errMissingClaims)
	}

	return &core.Session{
		Subject:          claims.Subject,
		FamilyID:         claims.FamilyID,
		AuthTime:         timeOf(claims.AuthTime),
		RotationCounter:  claims.Rotation,
		IssuedAt:         timeOf(claims.IssuedAt),
		RefreshID:        claims.ID, // The JWT ID is the refresh token ID
		RefreshExpiresAt: timeOf(claims.ExpiresAt),
	}, nil
}

type registered interface {
	jwt.Claims
	registered() *jwt.RegisteredClaims
}

func (c *AccessClaims) registered() *jwt.RegisteredClaims  { return &c.RegisteredClaims }
func (c *RefreshClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

func (j *JWTTokenizer) parse(tokenStr string, claims registered, audience string) error {
	token, err := j.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return &j.signKey.PublicKey, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAssertionMalformed, err)
	}
	if !token.Valid {
		return core.ErrAssertionMalformed
	}

	rc := claims.registered()
	switch {
	case !slices.Contains(rc.Audience, audience):
		return fmt.Errorf("%w: unexpected audience", core.ErrAssertionMalformed)
	case rc.Issuer != j.issuer:
		return fmt.Errorf("%w: unexpected issuer", core.ErrAssertionMalformed)
	case rc.Subject == "" || rc.ID == "" || rc.ExpiresAt == nil:
		return fmt.Errorf("%w: %v", core.ErrAssertionMalformed, errMissingClaims)
	}
	return nil
}

// timeOf returns claim times in UTC so they compare equal to issued ones
func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time.UTC()
}
