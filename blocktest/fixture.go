package blocktest

import (
	"strings"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// FixtureConfig carries the chain parameters a consumer needs to replay the
// fixture.
type FixtureConfig struct {
	Fork         string              `json:"network"`
	ChainID      math.HexOrDecimal64 `json:"chainid"`
	BlobSchedule *forks.BlobSchedule `json:"blobSchedule,omitempty"`
}

// Fixture is the plain blockchain fixture: the genesis block plus every
// serialized block, valid or invalid, to be imported in order.
type Fixture struct {
	Fork          string          `json:"network"`
	Genesis       *FixtureHeader  `json:"genesisBlockHeader"`
	GenesisRLP    hexutil.Bytes   `json:"genesisRLP"`
	Blocks        []*FixtureBlock `json:"blocks"`
	LastBlockHash common.Hash     `json:"lastblockhash"`
	Pre           t8n.Alloc       `json:"pre"`
	PostState     t8n.Alloc       `json:"postState,omitempty"`
	PostStateHash *common.Hash    `json:"postStateHash,omitempty"`
	Config        FixtureConfig   `json:"config"`
}

// EngineFixture replays the chain through the Engine API: one newPayload
// parameter set per block plus the final forkchoice update version.
type EngineFixture struct {
	Fork          string           `json:"network"`
	Genesis       *FixtureHeader   `json:"genesisBlockHeader"`
	Payloads      []*EnginePayload `json:"engineNewPayloads"`
	FcUVersion    int              `json:"engineFcuVersion"`
	SyncPayload   *EnginePayload   `json:"syncPayload,omitempty"`
	LastBlockHash common.Hash      `json:"lastblockhash"`
	Pre           t8n.Alloc        `json:"pre"`
	PostState     t8n.Alloc        `json:"postState,omitempty"`
	PostStateHash *common.Hash     `json:"postStateHash,omitempty"`
	Config        FixtureConfig    `json:"config"`
}

// EngineXFixture is the storage-optimized engine fixture: the pre-state is
// referenced by hash into a shared pre-allocation group store and the
// post-state carried as a diff from genesis.
type EngineXFixture struct {
	Fork          string           `json:"network"`
	Genesis       *FixtureHeader   `json:"genesisBlockHeader"`
	Payloads      []*EnginePayload `json:"engineNewPayloads"`
	FcUVersion    int              `json:"engineFcuVersion"`
	SyncPayload   *EnginePayload   `json:"syncPayload,omitempty"`
	LastBlockHash common.Hash      `json:"lastblockhash"`
	PreHash       common.Hash      `json:"preHash"`
	PostStateDiff t8n.AllocDiff    `json:"postStateDiff,omitempty"`
	PostStateHash *common.Hash     `json:"postStateHash,omitempty"`
	Config        FixtureConfig    `json:"config"`
}

// FixtureHeader is a block header in the fixture wire format. Field names
// follow the established consensus test vocabulary rather than the node's.
type FixtureHeader struct {
	ParentHash      common.Hash      `json:"parentHash"`
	UncleHash       common.Hash      `json:"uncleHash"`
	Coinbase        common.Address   `json:"coinbase"`
	StateRoot       common.Hash      `json:"stateRoot"`
	TxRoot          common.Hash      `json:"transactionsTrie"`
	ReceiptsRoot    common.Hash      `json:"receiptTrie"`
	Bloom           hexutil.Bytes    `json:"bloom"`
	Difficulty      *hexutil.Big     `json:"difficulty"`
	Number          *hexutil.Big     `json:"number"`
	GasLimit        hexutil.Uint64   `json:"gasLimit"`
	GasUsed         hexutil.Uint64   `json:"gasUsed"`
	Timestamp       hexutil.Uint64   `json:"timestamp"`
	ExtraData       hexutil.Bytes    `json:"extraData"`
	MixHash         common.Hash      `json:"mixHash"`
	Nonce           types.BlockNonce `json:"nonce"`
	BaseFee         *hexutil.Big     `json:"baseFeePerGas,omitempty"`
	WithdrawalsRoot *common.Hash     `json:"withdrawalsRoot,omitempty"`
	BlobGasUsed     *hexutil.Uint64  `json:"blobGasUsed,omitempty"`
	ExcessBlobGas   *hexutil.Uint64  `json:"excessBlobGas,omitempty"`
	BeaconRoot      *common.Hash     `json:"parentBeaconBlockRoot,omitempty"`
	RequestsHash    *common.Hash     `json:"requestsHash,omitempty"`
	Hash            common.Hash      `json:"hash"`
}

func newFixtureHeader(h *types.Header) *FixtureHeader {
	fh := &FixtureHeader{
		ParentHash:    h.ParentHash,
		UncleHash:     h.UncleHash,
		Coinbase:      h.Coinbase,
		StateRoot:     h.Root,
		TxRoot:        h.TxHash,
		ReceiptsRoot:  h.ReceiptHash,
		Bloom:         h.Bloom.Bytes(),
		Difficulty:    (*hexutil.Big)(h.Difficulty),
		Number:        (*hexutil.Big)(h.Number),
		GasLimit:      hexutil.Uint64(h.GasLimit),
		GasUsed:       hexutil.Uint64(h.GasUsed),
		Timestamp:     hexutil.Uint64(h.Time),
		ExtraData:     h.Extra,
		MixHash:       h.MixDigest,
		Nonce:         h.Nonce,
		BaseFee:       (*hexutil.Big)(h.BaseFee),
		BlobGasUsed:   (*hexutil.Uint64)(h.BlobGasUsed),
		ExcessBlobGas: (*hexutil.Uint64)(h.ExcessBlobGas),
		Hash:          h.Hash(),
	}
	if h.WithdrawalsHash != nil {
		fh.WithdrawalsRoot = copyHash(h.WithdrawalsHash)
	}
	if h.ParentBeaconRoot != nil {
		fh.BeaconRoot = copyHash(h.ParentBeaconRoot)
	}
	if h.RequestsHash != nil {
		fh.RequestsHash = copyHash(h.RequestsHash)
	}
	return fh
}

// FixtureBlock is one block of a plain fixture. Valid blocks carry the full
// decoded view next to their RLP; invalid blocks carry the RLP, the expected
// exception and, unless the exception is a structural encoding failure, the
// decoded view too.
type FixtureBlock struct {
	RLP             hexutil.Bytes        `json:"rlp"`
	Header          *FixtureHeader       `json:"blockHeader,omitempty"`
	BlockNumber     *math.HexOrDecimal64 `json:"blocknumber,omitempty"`
	Transactions    []*types.Transaction `json:"transactions,omitempty"`
	UncleHeaders    []*FixtureHeader     `json:"uncleHeaders,omitempty"`
	Withdrawals     []*types.Withdrawal  `json:"withdrawals,omitempty"`
	ExpectException string               `json:"expectException,omitempty"`
}

// FixtureBlock converts the built block into its fixture representation.
func (b *BuiltBlock) FixtureBlock() (*FixtureBlock, error) {
	enc, err := b.RLP()
	if err != nil {
		return nil, err
	}
	fb := &FixtureBlock{RLP: enc}
	if b.ExpectedException != "" {
		fb.ExpectException = b.ExpectedException
		if strings.Contains(b.ExpectedException, ExceptionRLPStructuresEncoding) {
			// The decoded view is omitted on purpose: the defect is in
			// the encoding itself.
			return fb, nil
		}
	}
	number := math.HexOrDecimal64(b.Header.Number.Uint64())
	fb.Header = newFixtureHeader(b.Header)
	fb.BlockNumber = &number
	fb.Transactions = b.Txs
	fb.Withdrawals = b.Withdrawals
	return fb, nil
}

// EnginePayload is one engine_newPayload invocation: the payload parameter
// list in fork order plus the version to call it with.
type EnginePayload struct {
	Params            []any  `json:"params"`
	NewPayloadVersion int    `json:"newPayloadVersion"`
	ValidationError   string `json:"validationError,omitempty"`
	ErrorCode         int    `json:"errorCode,omitempty"`
}

// EnginePayload reshapes the built block into engine_newPayload parameters.
// The parameter list grows with the payload version: blob hashes and the
// beacon root from V3, the execution requests from V4.
func (b *BuiltBlock) EnginePayload() (*EnginePayload, error) {
	number, timestamp := b.Header.Number.Uint64(), b.Header.Time
	version := b.fork.EngineNewPayloadVersion(number, timestamp)
	if version == 0 {
		return nil, errors.Errorf("blocktest: fork %s has no engine payload version", b.fork)
	}

	ed := &engine.ExecutableData{
		ParentHash:    b.Header.ParentHash,
		FeeRecipient:  b.Header.Coinbase,
		StateRoot:     b.Header.Root,
		ReceiptsRoot:  b.Header.ReceiptHash,
		LogsBloom:     b.Header.Bloom.Bytes(),
		Random:        b.Header.MixDigest,
		Number:        number,
		GasLimit:      b.Header.GasLimit,
		GasUsed:       b.Header.GasUsed,
		Timestamp:     timestamp,
		ExtraData:     b.Header.Extra,
		BaseFeePerGas: b.Header.BaseFee,
		BlockHash:     b.Header.Hash(),
		Transactions:  [][]byte{},
		Withdrawals:   b.Withdrawals,
		BlobGasUsed:   b.Header.BlobGasUsed,
		ExcessBlobGas: b.Header.ExcessBlobGas,
	}
	blobHashes := make([]common.Hash, 0)
	for _, tx := range b.Txs {
		bin, err := tx.MarshalBinary()
		if err != nil {
			return nil, errors.Wrap(err, "encoding transaction")
		}
		ed.Transactions = append(ed.Transactions, bin)
		blobHashes = append(blobHashes, tx.BlobHashes()...)
	}

	params := []any{ed}
	if b.fork.EngineNewPayloadBlobHashes(number, timestamp) {
		params = append(params, blobHashes)
	}
	if b.fork.EngineNewPayloadBeaconRoot(number, timestamp) {
		params = append(params, b.Header.ParentBeaconRoot)
	}
	if b.fork.EngineNewPayloadRequests(number, timestamp) {
		params = append(params, b.Requests)
	}
	return &EnginePayload{
		Params:            params,
		NewPayloadVersion: version,
		ValidationError:   b.ExpectedException,
		ErrorCode:         b.EngineAPIError,
	}, nil
}

func encodeBlock(block *types.Block) ([]byte, error) {
	return rlp.EncodeToBytes(block)
}
