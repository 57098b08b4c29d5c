package signature

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
)

// Verifier checks EIP-191 personal_sign signatures. When a contract caller is
// configured, signatures from smart contract wallets are checked via EIP-1271.
type Verifier struct {
	contracts ContractCaller
}

// Option configures a Verifier
type Option func(*Verifier)

// WithContractWallets enables EIP-1271 verification through caller
func WithContractWallets(caller ContractCaller) Option {
	return func(v *Verifier) {
		v.contracts = caller
	}
}

// NewVerifier creates a signature verifier
func NewVerifier(opts ...Option) ports.SignatureVerifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify verifies that signature over message was produced by address
func (v *Verifier) Verify(ctx context.Context, address string, message []byte, signature string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("claimed address: %w", core.ErrSignatureInvalid)
	}
	expected := common.HexToAddress(address)

	sig, err := eth.DecodeSignature(signature)
	if err != nil {
		return fmt.Errorf("%v: %w", err, core.ErrSignatureInvalid)
	}

	recovered, recErr := eth.RecoverAddress(message, sig)
	if recErr == nil && recovered == expected {
		return nil
	}

	if v.contracts != nil {
		ok, err := v.verifyContractWallet(ctx, expected, message, sig)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	if recErr != nil {
		return fmt.Errorf("%v: %w", recErr, core.ErrSignatureInvalid)
	}
	return fmt.Errorf("signer mismatch: expected %s, got %s: %w", expected.Hex(), recovered.Hex(), core.ErrSignatureInvalid)
}

func (v *Verifier) verifyContractWallet(ctx context.Context, wallet common.Address, message, sig []byte) (bool, error) {
	code, err := v.contracts.CodeAt(ctx, wallet, nil)
	if err != nil {
		return false, fmt.Errorf("fetch wallet code: %w", err)
	}
	if len(code) == 0 {
		return false, nil
	}

	valid, err := isValidSignature(ctx, v.contracts, wallet, eth.PersonalHash(message), sig)
	if err != nil {
		if errors.Is(err, errCallReverted) {
			return false, nil
		}
		return false, err
	}
	return valid, nil
}
