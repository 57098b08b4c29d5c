package eth

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is r || s || v
const SignatureLength = crypto.SignatureLength

var (
	ErrInvalidAddress   = errors.New("invalid ethereum address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// NormalizeAddress validates a hex address and returns its EIP-55 form
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// PersonalHash is the EIP-191 personal_sign digest of message
func PersonalHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// DecodeSignature decodes a 0x-prefixed 65 byte signature
func DecodeSignature(signature string) ([]byte, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", ErrInvalidSignature)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, ErrInvalidSignature)
	}
	return sig, nil
}

// RecoverAddress returns the address that produced sig over the personal_sign
// digest of message. Both legacy (27/28) and raw (0/1) recovery ids are
// accepted; high-s signatures are rejected.
func RecoverAddress(message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(PersonalHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
