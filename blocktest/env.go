package blocktest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// Environment defaults. Unset block fields resolve to these when the parent
// provides no value either.
var (
	defaultCoinbase   = common.HexToAddress("0x2adc25665018aa1fe0e6bc666dac8fc2697ff9ba")
	defaultGasLimit   = uint64(100_000_000_000_000_000)
	defaultDifficulty = big.NewInt(0x20000)
	defaultBaseFee    = big.NewInt(7)
)

// blockTimeIncrement is the timestamp step between consecutive blocks when
// the block does not set its own timestamp.
const blockTimeIncrement = 12

// EnvironmentFromParent derives the execution context for a child of the
// given header. Block-specific fields are filled in by Block.setEnvironment.
func EnvironmentFromParent(parent *types.Header) *t8n.Environment {
	env := &t8n.Environment{
		ParentTimestamp:  hexutil.Uint64(parent.Time),
		ParentDifficulty: (*hexutil.Big)(new(big.Int).Set(parent.Difficulty)),
		ParentGasUsed:    (*hexutil.Uint64)(&parent.GasUsed),
		ParentGasLimit:   (*hexutil.Uint64)(&parent.GasLimit),
		ParentUncleHash:  copyHash(&parent.UncleHash),
		BlockHashes: map[math.HexOrDecimal64]common.Hash{
			math.HexOrDecimal64(parent.Number.Uint64()): parent.Hash(),
		},
		ParentHash: parent.Hash(),
	}
	if parent.BaseFee != nil {
		env.ParentBaseFee = (*hexutil.Big)(new(big.Int).Set(parent.BaseFee))
	}
	if parent.BlobGasUsed != nil {
		env.ParentBlobGasUsed = (*hexutil.Uint64)(copyUint64(parent.BlobGasUsed))
	}
	if parent.ExcessBlobGas != nil {
		env.ParentExcessBlobGas = (*hexutil.Uint64)(copyUint64(parent.ExcessBlobGas))
	}
	return env
}

// applyNewParent rebases the environment onto a newly accepted header. The
// ancestor hash map keeps growing so BLOCKHASH can reach every prior block.
func applyNewParent(env *t8n.Environment, parent *types.Header) *t8n.Environment {
	next := EnvironmentFromParent(parent)
	for n, h := range env.BlockHashes {
		if _, ok := next.BlockHashes[n]; !ok {
			next.BlockHashes[n] = h
		}
	}
	return next
}

// setEnvironment resolves the block's execution context from the previous
// environment and the block's explicit overrides. Number defaults to the
// highest known ancestor plus one, the timestamp to the parent's plus twelve
// seconds and the gas limit to the parent's.
func (b *Block) setEnvironment(prev *t8n.Environment) *t8n.Environment {
	env := prev.Copy()

	env.Coinbase = defaultCoinbase
	if b.Coinbase != nil {
		env.Coinbase = *b.Coinbase
	}
	switch {
	case b.GasLimit != nil:
		env.GasLimit = hexutil.Uint64(*b.GasLimit)
	case prev.ParentGasLimit != nil:
		env.GasLimit = *prev.ParentGasLimit
	default:
		env.GasLimit = hexutil.Uint64(defaultGasLimit)
	}
	if b.Number != nil {
		env.Number = hexutil.Uint64(*b.Number)
	} else {
		var next uint64
		for n := range prev.BlockHashes {
			if uint64(n) >= next {
				next = uint64(n) + 1
			}
		}
		env.Number = hexutil.Uint64(next)
	}
	if b.Timestamp != nil {
		env.Timestamp = hexutil.Uint64(*b.Timestamp)
	} else {
		env.Timestamp = prev.ParentTimestamp + blockTimeIncrement
	}

	env.Difficulty = nil
	if b.Difficulty != nil {
		env.Difficulty = (*hexutil.Big)(new(big.Int).Set(b.Difficulty))
	}
	env.Random = nil
	if b.PrevRandao != nil {
		env.Random = copyHash(b.PrevRandao)
	}
	env.BaseFee = nil
	if b.BaseFee != nil {
		env.BaseFee = (*hexutil.Big)(new(big.Int).Set(b.BaseFee))
	}
	env.ExcessBlobGas = nil
	if b.ExcessBlobGas != nil {
		env.ExcessBlobGas = (*hexutil.Uint64)(copyUint64(b.ExcessBlobGas))
	}
	env.Withdrawals = nil
	if b.Withdrawals != nil {
		env.Withdrawals = make([]*types.Withdrawal, len(b.Withdrawals))
		for i, w := range b.Withdrawals {
			wc := *w
			env.Withdrawals[i] = &wc
		}
	}
	env.ParentBeaconBlockRoot = nil
	if b.BeaconRoot != nil {
		env.ParentBeaconBlockRoot = copyHash(b.BeaconRoot)
	}
	return env
}

// setForkRequirements fills fork-conditional environment fields the block
// left unset. Difficulty is the exception: zero-difficulty forks force it to
// zero even over an explicit value.
func setForkRequirements(env *t8n.Environment, fork *forks.Fork) {
	number, timestamp := uint64(env.Number), uint64(env.Timestamp)

	if fork.HeaderZeroDifficultyRequired(number, timestamp) {
		env.Difficulty = (*hexutil.Big)(new(big.Int))
	}
	if fork.HeaderPrevRandaoRequired(number, timestamp) && env.Random == nil {
		env.Random = new(common.Hash)
	}
	if fork.HeaderBaseFeeRequired(number, timestamp) && env.BaseFee == nil && env.ParentBaseFee == nil {
		env.BaseFee = (*hexutil.Big)(new(big.Int).Set(defaultBaseFee))
	}
	if fork.HeaderWithdrawalsRequired(number, timestamp) && env.Withdrawals == nil {
		env.Withdrawals = []*types.Withdrawal{}
	}
	if fork.HeaderExcessBlobGasRequired(number, timestamp) && env.ExcessBlobGas == nil && env.ParentExcessBlobGas == nil {
		env.ExcessBlobGas = new(hexutil.Uint64)
	}
	if fork.HeaderBeaconRootRequired(number, timestamp) && env.ParentBeaconBlockRoot == nil {
		env.ParentBeaconBlockRoot = new(common.Hash)
	}
}

// countBlobs returns the number of blobs carried by the transaction list.
func countBlobs(txs types.Transactions) uint64 {
	var n uint64
	for _, tx := range txs {
		n += uint64(len(tx.BlobHashes()))
	}
	return n
}
