package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer converts between sessions and signed assertions
type Tokenizer interface {
	// EncodePair signs the access and refresh assertions of a session
	EncodePair(session *core.Session) (*core.TokenPair, error)

	// AccessTokenToSession verifies integrity only; expiry is left to the caller
	AccessTokenToSession(token string) (*core.Session, error)

	// RefreshTokenToSession verifies integrity only; expiry is left to the caller
	RefreshTokenToSession(token string) (*core.Session, error)
}
