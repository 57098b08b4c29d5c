package signature

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	code     []byte
	response []byte
	callErr  error
	calls    int
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return f.code, nil
}

func (f *fakeCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	f.calls++
	return f.response, f.callErr
}

// revertError mimics the JSON-RPC error a node returns for a reverted call
type revertError struct{}

func (revertError) Error() string          { return "execution reverted: not owner" }
func (revertError) ErrorCode() int         { return 3 }
func (revertError) ErrorData() interface{} { return "0x08c379a0" }

func signMessage(t *testing.T, message []byte) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(eth.PersonalHash(message), key)
	require.NoError(t, err)
	sig[64] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func magicResponse(t *testing.T, magic [4]byte) []byte {
	t.Helper()
	out, err := parsedERC1271.Methods["isValidSignature"].Outputs.Pack(magic)
	require.NoError(t, err)
	return out
}

func TestVerifierEOA(t *testing.T) {
	ctx := context.Background()
	message := []byte("sign in please")
	address, sig := signMessage(t, message)
	v := NewVerifier()

	require.NoError(t, v.Verify(ctx, address, message, sig))

	// address comparison is case-insensitive
	require.NoError(t, v.Verify(ctx, strings.ToLower(address), message, sig))

	other, _ := signMessage(t, message)
	err := v.Verify(ctx, other, message, sig)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	err = v.Verify(ctx, address, []byte("sign in please!"), sig)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	err = v.Verify(ctx, address, message, "0xdeadbeef")
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	err = v.Verify(ctx, "not-an-address", message, sig)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)
}

func TestVerifierContractWallet(t *testing.T) {
	ctx := context.Background()
	message := []byte("sign in please")
	_, sig := signMessage(t, message)
	wallet := "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	t.Run("magic value accepted", func(t *testing.T) {
		caller := &fakeCaller{code: []byte{0x60, 0x80}, response: magicResponse(t, erc1271MagicValue)}
		v := NewVerifier(WithContractWallets(caller))
		require.NoError(t, v.Verify(ctx, wallet, message, sig))
		assert.Equal(t, 1, caller.calls)
	})

	t.Run("wrong magic rejected", func(t *testing.T) {
		caller := &fakeCaller{code: []byte{0x60, 0x80}, response: magicResponse(t, [4]byte{0xff, 0xff, 0xff, 0xff})}
		v := NewVerifier(WithContractWallets(caller))
		assert.ErrorIs(t, v.Verify(ctx, wallet, message, sig), core.ErrSignatureInvalid)
	})

	t.Run("revert rejected", func(t *testing.T) {
		caller := &fakeCaller{code: []byte{0x60, 0x80}, callErr: errors.New("execution reverted")}
		v := NewVerifier(WithContractWallets(caller))
		assert.ErrorIs(t, v.Verify(ctx, wallet, message, sig), core.ErrSignatureInvalid)
	})

	t.Run("revert with data rejected", func(t *testing.T) {
		caller := &fakeCaller{code: []byte{0x60, 0x80}, callErr: revertError{}}
		v := NewVerifier(WithContractWallets(caller))
		assert.ErrorIs(t, v.Verify(ctx, wallet, message, sig), core.ErrSignatureInvalid)
	})

	t.Run("rpc failure is not a bad signature", func(t *testing.T) {
		outage := errors.New("dial tcp 10.0.0.5:8545: connect: connection refused")
		caller := &fakeCaller{code: []byte{0x60, 0x80}, callErr: outage}
		v := NewVerifier(WithContractWallets(caller))

		err := v.Verify(ctx, wallet, message, sig)
		require.Error(t, err)
		assert.ErrorIs(t, err, outage)
		assert.NotErrorIs(t, err, core.ErrSignatureInvalid)
		assert.Equal(t, core.CodeInternal, core.CodeOf(err))
	})

	t.Run("no code skips contract call", func(t *testing.T) {
		caller := &fakeCaller{}
		v := NewVerifier(WithContractWallets(caller))
		assert.ErrorIs(t, v.Verify(ctx, wallet, message, sig), core.ErrSignatureInvalid)
		assert.Zero(t, caller.calls)
	})
}
