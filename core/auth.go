package core

import "time"

// Challenge represents an authentication challenge
type Challenge struct {
	ID         string    // Unique identifier for the challenge
	Nonce      string    // Random nonce embedded in the signed message
	Address    string    // EIP-55 checksummed address of the claimed signer
	Domain     string    // Relying party the challenge is bound to
	URI        string    // Origin URI shown in the message
	Statement  string    // Human-readable statement shown in the message
	ChainID    int64     // EIP-155 chain id
	IssuedAt   time.Time // When the challenge was created
	ExpiresAt  time.Time // When the challenge expires
	Consumed   bool      // Set exactly once by a successful verification
	ConsumedAt time.Time
}

// Expired reports whether the challenge can no longer be verified at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Identity is the outcome of a successful proof of wallet ownership or of an
// access assertion check.
type Identity struct {
	Address     string
	ChainID     int64
	FamilyID    string
	AssertionID string
	ExpiresAt   time.Time
}

// Session describes one access/refresh pair within a family
type Session struct {
	Subject          string    // Verified wallet address
	FamilyID         string    // Groups every pair descended from one login
	AuthTime         time.Time // When the family was created
	RotationCounter  int       // Number of rotations since login
	IssuedAt         time.Time
	AccessID         string
	AccessExpiresAt  time.Time
	RefreshID        string
	RefreshExpiresAt time.Time
}

// TokenPair is a Session together with its encoded assertions
type TokenPair struct {
	Session
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RevocationKind tells what a revocation entry targets
type RevocationKind string

const (
	RevokeRefresh RevocationKind = "refresh"
	RevokeFamily  RevocationKind = "family"
)

// RevocationReason records why an entry was written
type RevocationReason string

const (
	ReasonUserLogout    RevocationReason = "user-logout"
	ReasonReuseDetected RevocationReason = "rotation-reuse-detected"
	ReasonAdminAction   RevocationReason = "admin-action"
)

// RevocationEntry denylists a refresh id or a family id
type RevocationEntry struct {
	ID        string           `json:"id"`
	Kind      RevocationKind   `json:"kind"`
	Subject   string           `json:"subject,omitempty"`
	Reason    RevocationReason `json:"reason"`
	RevokedAt time.Time        `json:"revoked_at"`
	ExpiresAt time.Time        `json:"expires_at"` // natural expiry of what it revokes
}

// Supersession marks a refresh id as rotated. Successor is only retained for
// the grace window.
type Supersession struct {
	RefreshID    string     `json:"refresh_id"`
	FamilyID     string     `json:"family_id"`
	SupersededAt time.Time  `json:"superseded_at"`
	Successor    *TokenPair `json:"successor,omitempty"`
}
