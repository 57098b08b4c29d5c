package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCaller is the subset of ethclient.Client used for EIP-1271
type ContractCaller interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const erc1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

// erc1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)"))
var erc1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// latestBlock is nil so eth_call runs against the latest block
var latestBlock *big.Int

var errCallReverted = errors.New("isValidSignature call reverted")

var parsedERC1271 = mustParseABI(erc1271ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func isValidSignature(ctx context.Context, caller ContractCaller, wallet common.Address, hash, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)

	data, err := parsedERC1271.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, fmt.Errorf("pack isValidSignature: %w", err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: data}, latestBlock)
	if err != nil {
		if isRevert(err) {
			return false, fmt.Errorf("%w: %v", errCallReverted, err)
		}
		return false, fmt.Errorf("call isValidSignature: %w", err)
	}

	values, err := parsedERC1271.Unpack("isValidSignature", out)
	if err != nil || len(values) != 1 {
		return false, nil
	}
	magic, ok := values[0].([4]byte)
	if !ok {
		return false, nil
	}
	return bytes.Equal(magic[:], erc1271MagicValue[:]), nil
}

// isRevert tells an execution revert reported by the node apart from a
// transport failure
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
