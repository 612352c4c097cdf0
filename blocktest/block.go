package blocktest

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturegen/t8n"
)

// Exception classes shared with the fixture consumers. Block-level verdicts
// reported by the transition tool use the same identifiers.
const (
	// ExceptionRLPStructuresEncoding marks a block whose RLP encoding is
	// structurally broken. Fixtures omit the decoded view for these.
	ExceptionRLPStructuresEncoding = "BlockException.RLP_STRUCTURES_ENCODING"

	// ExceptionRLPBlockLimitExceeded marks a block whose serialized size
	// exceeds the fork's RLP size ceiling.
	ExceptionRLPBlockLimitExceeded = "BlockException.RLP_BLOCK_LIMIT_EXCEEDED"
)

// HeaderField names an optional header field for removal or emptiness
// checks.
type HeaderField string

const (
	FieldBaseFee         HeaderField = "baseFeePerGas"
	FieldWithdrawalsRoot HeaderField = "withdrawalsRoot"
	FieldBlobGasUsed     HeaderField = "blobGasUsed"
	FieldExcessBlobGas   HeaderField = "excessBlobGas"
	FieldBeaconRoot      HeaderField = "parentBeaconBlockRoot"
	FieldRequestsHash    HeaderField = "requestsHash"
)

// HeaderModifier overrides individual header fields. Nil fields are left
// untouched. It serves two purposes: as a block's RLPModifier it rewrites
// the resolved header after tool processing, deliberately without
// revalidation, to construct malformed blocks; as a block's HeaderVerify it
// asserts the listed fields against the resolved header instead.
type HeaderModifier struct {
	ParentHash      *common.Hash
	UncleHash       *common.Hash
	Coinbase        *common.Address
	StateRoot       *common.Hash
	TxRoot          *common.Hash
	ReceiptsRoot    *common.Hash
	Bloom           *types.Bloom
	Difficulty      *big.Int
	Number          *big.Int
	GasLimit        *uint64
	GasUsed         *uint64
	Timestamp       *uint64
	ExtraData       []byte
	PrevRandao      *common.Hash
	Nonce           *types.BlockNonce
	BaseFee         *big.Int
	WithdrawalsRoot *common.Hash
	BlobGasUsed     *uint64
	ExcessBlobGas   *uint64
	BeaconRoot      *common.Hash
	RequestsHash    *common.Hash

	// Remove drops optional fields from the header entirely. During
	// verification it asserts absence instead.
	Remove []HeaderField
}

// Apply returns a copy of the header with the modifier's fields written over
// it. Removed fields are set to nil, which drops them from the header's RLP
// encoding.
func (m *HeaderModifier) Apply(h *types.Header) *types.Header {
	cpy := types.CopyHeader(h)
	if m.ParentHash != nil {
		cpy.ParentHash = *m.ParentHash
	}
	if m.UncleHash != nil {
		cpy.UncleHash = *m.UncleHash
	}
	if m.Coinbase != nil {
		cpy.Coinbase = *m.Coinbase
	}
	if m.StateRoot != nil {
		cpy.Root = *m.StateRoot
	}
	if m.TxRoot != nil {
		cpy.TxHash = *m.TxRoot
	}
	if m.ReceiptsRoot != nil {
		cpy.ReceiptHash = *m.ReceiptsRoot
	}
	if m.Bloom != nil {
		cpy.Bloom = *m.Bloom
	}
	if m.Difficulty != nil {
		cpy.Difficulty = new(big.Int).Set(m.Difficulty)
	}
	if m.Number != nil {
		cpy.Number = new(big.Int).Set(m.Number)
	}
	if m.GasLimit != nil {
		cpy.GasLimit = *m.GasLimit
	}
	if m.GasUsed != nil {
		cpy.GasUsed = *m.GasUsed
	}
	if m.Timestamp != nil {
		cpy.Time = *m.Timestamp
	}
	if m.ExtraData != nil {
		cpy.Extra = m.ExtraData
	}
	if m.PrevRandao != nil {
		cpy.MixDigest = *m.PrevRandao
	}
	if m.Nonce != nil {
		cpy.Nonce = *m.Nonce
	}
	if m.BaseFee != nil {
		cpy.BaseFee = new(big.Int).Set(m.BaseFee)
	}
	if m.WithdrawalsRoot != nil {
		cpy.WithdrawalsHash = copyHash(m.WithdrawalsRoot)
	}
	if m.BlobGasUsed != nil {
		cpy.BlobGasUsed = copyUint64(m.BlobGasUsed)
	}
	if m.ExcessBlobGas != nil {
		cpy.ExcessBlobGas = copyUint64(m.ExcessBlobGas)
	}
	if m.BeaconRoot != nil {
		cpy.ParentBeaconRoot = copyHash(m.BeaconRoot)
	}
	if m.RequestsHash != nil {
		cpy.RequestsHash = copyHash(m.RequestsHash)
	}
	for _, field := range m.Remove {
		switch field {
		case FieldBaseFee:
			cpy.BaseFee = nil
		case FieldWithdrawalsRoot:
			cpy.WithdrawalsHash = nil
		case FieldBlobGasUsed:
			cpy.BlobGasUsed = nil
		case FieldExcessBlobGas:
			cpy.ExcessBlobGas = nil
		case FieldBeaconRoot:
			cpy.ParentBeaconRoot = nil
		case FieldRequestsHash:
			cpy.RequestsHash = nil
		}
	}
	return cpy
}

// Verify checks the modifier's set fields against the resolved header.
// Fields named in Remove must be absent from the header.
func (m *HeaderModifier) Verify(h *types.Header) error {
	if m.StateRoot != nil && *m.StateRoot != h.Root {
		return errors.Errorf("header state root: got %v, want %v", h.Root, *m.StateRoot)
	}
	if m.TxRoot != nil && *m.TxRoot != h.TxHash {
		return errors.Errorf("header tx root: got %v, want %v", h.TxHash, *m.TxRoot)
	}
	if m.ReceiptsRoot != nil && *m.ReceiptsRoot != h.ReceiptHash {
		return errors.Errorf("header receipts root: got %v, want %v", h.ReceiptHash, *m.ReceiptsRoot)
	}
	if m.Coinbase != nil && *m.Coinbase != h.Coinbase {
		return errors.Errorf("header coinbase: got %v, want %v", h.Coinbase, *m.Coinbase)
	}
	if m.Difficulty != nil && m.Difficulty.Cmp(h.Difficulty) != 0 {
		return errors.Errorf("header difficulty: got %v, want %v", h.Difficulty, m.Difficulty)
	}
	if m.Number != nil && m.Number.Cmp(h.Number) != 0 {
		return errors.Errorf("header number: got %v, want %v", h.Number, m.Number)
	}
	if m.GasLimit != nil && *m.GasLimit != h.GasLimit {
		return errors.Errorf("header gas limit: got %d, want %d", h.GasLimit, *m.GasLimit)
	}
	if m.GasUsed != nil && *m.GasUsed != h.GasUsed {
		return errors.Errorf("header gas used: got %d, want %d", h.GasUsed, *m.GasUsed)
	}
	if m.Timestamp != nil && *m.Timestamp != h.Time {
		return errors.Errorf("header timestamp: got %d, want %d", h.Time, *m.Timestamp)
	}
	if m.BaseFee != nil && (h.BaseFee == nil || m.BaseFee.Cmp(h.BaseFee) != 0) {
		return errors.Errorf("header base fee: got %v, want %v", h.BaseFee, m.BaseFee)
	}
	if m.WithdrawalsRoot != nil && (h.WithdrawalsHash == nil || *m.WithdrawalsRoot != *h.WithdrawalsHash) {
		return errors.Errorf("header withdrawals root: got %v, want %v", h.WithdrawalsHash, *m.WithdrawalsRoot)
	}
	if m.BlobGasUsed != nil && (h.BlobGasUsed == nil || *m.BlobGasUsed != *h.BlobGasUsed) {
		return errors.Errorf("header blob gas used: got %v, want %d", h.BlobGasUsed, *m.BlobGasUsed)
	}
	if m.ExcessBlobGas != nil && (h.ExcessBlobGas == nil || *m.ExcessBlobGas != *h.ExcessBlobGas) {
		return errors.Errorf("header excess blob gas: got %v, want %d", h.ExcessBlobGas, *m.ExcessBlobGas)
	}
	if m.BeaconRoot != nil && (h.ParentBeaconRoot == nil || *m.BeaconRoot != *h.ParentBeaconRoot) {
		return errors.Errorf("header beacon root: got %v, want %v", h.ParentBeaconRoot, *m.BeaconRoot)
	}
	if m.RequestsHash != nil && (h.RequestsHash == nil || *m.RequestsHash != *h.RequestsHash) {
		return errors.Errorf("header requests hash: got %v, want %v", h.RequestsHash, *m.RequestsHash)
	}
	for _, field := range m.Remove {
		var present bool
		switch field {
		case FieldBaseFee:
			present = h.BaseFee != nil
		case FieldWithdrawalsRoot:
			present = h.WithdrawalsHash != nil
		case FieldBlobGasUsed:
			present = h.BlobGasUsed != nil
		case FieldExcessBlobGas:
			present = h.ExcessBlobGas != nil
		case FieldBeaconRoot:
			present = h.ParentBeaconRoot != nil
		case FieldRequestsHash:
			present = h.RequestsHash != nil
		}
		if present {
			return errors.Errorf("header field %s: present, want absent", field)
		}
	}
	return nil
}

// TxDesc describes one transaction of a block. A nil Key selects a sender
// from the built-in funded pool by transaction index.
type TxDesc struct {
	Data types.TxData
	Key  *ecdsa.PrivateKey

	// Error is the expected rejection class. A transaction carrying an
	// error must be the last one of its block.
	Error string
}

// Block describes one block of a chain test. All header-affecting fields are
// overrides; unset fields resolve from the parent block or fork defaults.
type Block struct {
	Number        *uint64
	Timestamp     *uint64
	GasLimit      *uint64
	Coinbase      *common.Address
	Difficulty    *big.Int
	PrevRandao    *common.Hash
	BaseFee       *big.Int
	ExtraData     []byte
	ExcessBlobGas *uint64
	BeaconRoot    *common.Hash

	Txs         []*TxDesc
	Withdrawals []*types.Withdrawal

	// Requests replaces the tool-emitted requests list outright. The
	// header's requests hash is recomputed from it.
	Requests []hexutil.Bytes

	// HeaderVerify asserts resolved header fields after tool processing.
	HeaderVerify *HeaderModifier

	// RLPModifier rewrites the resolved header last, unconditionally. It
	// exists to construct deliberately malformed blocks.
	RLPModifier *HeaderModifier

	// Exception marks the block as expected to be rejected.
	Exception string

	// SkipExceptionVerification suppresses the tool-verdict check, for
	// blocks whose defect is inserted after the tool has run.
	SkipExceptionVerification bool

	// EngineAPIError is the error code the Engine API is expected to
	// return for this payload.
	EngineAPIError int

	// ExpectedPostState verifies an intermediate post-state right after
	// this block, in addition to the final verification.
	ExpectedPostState t8n.Alloc
}

func copyHash(h *common.Hash) *common.Hash {
	cpy := *h
	return &cpy
}

func copyUint64(v *uint64) *uint64 {
	cpy := *v
	return &cpy
}
