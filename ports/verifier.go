package ports

import "context"

// SignatureVerifier proves that signature over message was produced by address
type SignatureVerifier interface {
	// Verify returns core.ErrSignatureInvalid when the signer is not address
	Verify(ctx context.Context, address string, message []byte, signature string) error
}

// RateLimiter throttles an operation per key
type RateLimiter interface {
	Allow(ctx context.Context, key, bucket string) (bool, error)
}
