// Package t8n drives an external state transition tool. The tool is invoked
// once per block with the pre-state, the transaction list and the block
// environment, and returns the post-state together with receipts and the
// block-level verdict. Three transports are supported: temporary files plus a
// subprocess, a single JSON document over the subprocess's standard streams,
// and a long-lived HTTP server.
package t8n

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/fixturegen/forks"
)

// Account is one entry of a world state snapshot.
type Account struct {
	Balance *hexutil.Big                `json:"balance,omitempty"`
	Nonce   hexutil.Uint64              `json:"nonce,omitempty"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// Alloc is a world state snapshot, address to account.
type Alloc map[common.Address]*Account

// Environment is the block execution context handed to the tool. Field names
// follow the t8n env file format.
type Environment struct {
	Coinbase   common.Address `json:"currentCoinbase"`
	GasLimit   hexutil.Uint64 `json:"currentGasLimit"`
	Number     hexutil.Uint64 `json:"currentNumber"`
	Timestamp  hexutil.Uint64 `json:"currentTimestamp"`
	Difficulty *hexutil.Big   `json:"currentDifficulty,omitempty"`
	Random     *common.Hash   `json:"currentRandom,omitempty"`
	BaseFee    *hexutil.Big   `json:"currentBaseFee,omitempty"`

	ExcessBlobGas *hexutil.Uint64 `json:"currentExcessBlobGas,omitempty"`

	ParentTimestamp     hexutil.Uint64  `json:"parentTimestamp,omitempty"`
	ParentDifficulty    *hexutil.Big    `json:"parentDifficulty,omitempty"`
	ParentBaseFee       *hexutil.Big    `json:"parentBaseFee,omitempty"`
	ParentGasUsed       *hexutil.Uint64 `json:"parentGasUsed,omitempty"`
	ParentGasLimit      *hexutil.Uint64 `json:"parentGasLimit,omitempty"`
	ParentExcessBlobGas *hexutil.Uint64 `json:"parentExcessBlobGas,omitempty"`
	ParentBlobGasUsed   *hexutil.Uint64 `json:"parentBlobGasUsed,omitempty"`
	ParentUncleHash     *common.Hash    `json:"parentUncleHash,omitempty"`

	// BlockHashes maps ancestor block numbers to their hashes, for the
	// BLOCKHASH opcode.
	BlockHashes map[math.HexOrDecimal64]common.Hash `json:"blockHashes,omitempty"`

	Withdrawals           []*types.Withdrawal `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash        `json:"parentBeaconBlockRoot,omitempty"`

	// ParentHash is chain-linkage state, not part of the env file.
	ParentHash common.Hash `json:"-"`
}

// Copy returns a deep copy of the environment.
func (env *Environment) Copy() *Environment {
	cpy := *env
	cpy.Difficulty = copyBig(env.Difficulty)
	cpy.Random = copyHash(env.Random)
	cpy.BaseFee = copyBig(env.BaseFee)
	cpy.ExcessBlobGas = copyUint64(env.ExcessBlobGas)
	cpy.ParentDifficulty = copyBig(env.ParentDifficulty)
	cpy.ParentBaseFee = copyBig(env.ParentBaseFee)
	cpy.ParentGasUsed = copyUint64(env.ParentGasUsed)
	cpy.ParentGasLimit = copyUint64(env.ParentGasLimit)
	cpy.ParentExcessBlobGas = copyUint64(env.ParentExcessBlobGas)
	cpy.ParentBlobGasUsed = copyUint64(env.ParentBlobGasUsed)
	cpy.ParentUncleHash = copyHash(env.ParentUncleHash)
	cpy.ParentBeaconBlockRoot = copyHash(env.ParentBeaconBlockRoot)
	if env.BlockHashes != nil {
		cpy.BlockHashes = make(map[math.HexOrDecimal64]common.Hash, len(env.BlockHashes))
		for n, h := range env.BlockHashes {
			cpy.BlockHashes[n] = h
		}
	}
	if env.Withdrawals != nil {
		cpy.Withdrawals = make([]*types.Withdrawal, len(env.Withdrawals))
		for i, w := range env.Withdrawals {
			wc := *w
			cpy.Withdrawals[i] = &wc
		}
	}
	return &cpy
}

// Receipt is the per-transaction outcome reported by the tool.
type Receipt struct {
	Root              hexutil.Bytes   `json:"root,omitempty"`
	Status            hexutil.Uint64  `json:"status"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	LogsBloom         hexutil.Bytes   `json:"logsBloom"`
	Logs              []*types.Log    `json:"logs"`
	TxHash            common.Hash     `json:"transactionHash"`
	ContractAddress   *common.Address `json:"contractAddress,omitempty"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	BlockHash         common.Hash     `json:"blockHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
}

// RejectedTx marks a transaction the tool refused to include.
type RejectedTx struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Result is the block-level output of one tool invocation.
type Result struct {
	StateRoot       common.Hash     `json:"stateRoot"`
	TxRoot          common.Hash     `json:"txRoot"`
	ReceiptsRoot    common.Hash     `json:"receiptsRoot"`
	LogsHash        common.Hash     `json:"logsHash"`
	LogsBloom       hexutil.Bytes   `json:"logsBloom"`
	Receipts        []*Receipt      `json:"receipts"`
	Rejected        []*RejectedTx   `json:"rejected,omitempty"`
	Difficulty      *hexutil.Big    `json:"currentDifficulty"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	BaseFee         *hexutil.Big    `json:"currentBaseFee,omitempty"`
	WithdrawalsRoot *common.Hash    `json:"withdrawalsRoot,omitempty"`
	ExcessBlobGas   *hexutil.Uint64 `json:"currentExcessBlobGas,omitempty"`
	BlobGasUsed     *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	Requests        []hexutil.Bytes `json:"requests,omitempty"`
	RequestsHash    *common.Hash    `json:"requestsHash,omitempty"`
	BlockException  string          `json:"blockException,omitempty"`
}

// RejectedIndexes returns the set of rejected transaction indexes.
func (r *Result) RejectedIndexes() map[int]bool {
	m := make(map[int]bool, len(r.Rejected))
	for _, rej := range r.Rejected {
		m[rej.Index] = true
	}
	return m
}

// Output is the complete tool response: post-state, block result and the
// RLP-encoded list of included transaction bodies.
type Output struct {
	Alloc  Alloc         `json:"alloc"`
	Result *Result       `json:"result"`
	Body   hexutil.Bytes `json:"body,omitempty"`
}

// toolInput is the document streamed to the tool (or split into the three
// input files of the filesystem transport). Signed transactions marshal with
// their signature fields, which is the format the txs input expects.
type toolInput struct {
	Alloc Alloc                `json:"alloc"`
	Txs   []*types.Transaction `json:"txs"`
	Env   *Environment         `json:"env"`
}

// serverRequest is the body of the server transport's POST request.
type serverRequest struct {
	State serverContext `json:"state"`
	Input *toolInput    `json:"input"`

	Trace         bool   `json:"trace,omitempty"`
	OutputBasedir string `json:"output-basedir,omitempty"`
}

type serverContext struct {
	Fork    string `json:"fork"`
	ChainID uint64 `json:"chainid"`
	// Reward is a plain integer so the genesis sentinel -1 survives the
	// trip.
	Reward       int64               `json:"reward"`
	BlobSchedule *forks.BlobSchedule `json:"blobSchedule,omitempty"`
}

func copyBig(v *hexutil.Big) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v.ToInt()))
}

func copyHash(v *common.Hash) *common.Hash {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

func copyUint64(v *hexutil.Uint64) *hexutil.Uint64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
