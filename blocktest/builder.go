package blocktest

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// Evaluator is the part of the transition tool the builder needs. *t8n.Tool
// satisfies it; tests substitute a canned implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, req *t8n.Request) (*t8n.Output, error)
	Traces() *t8n.TraceBuffer
	ResetTraces()
}

// BuiltBlock is the concrete result of building one block description: the
// fully resolved header, the signed transaction list and the tool's verdict.
// It is immutable once constructed.
type BuiltBlock struct {
	Header      *types.Header
	Env         *t8n.Environment
	Alloc       t8n.Alloc
	Txs         types.Transactions
	Withdrawals []*types.Withdrawal
	Requests    []hexutil.Bytes
	Result      *t8n.Result

	ExpectedException string
	EngineAPIError    int

	fork *forks.Fork
}

// buildBlock turns one block description plus the current chain state into a
// built block. The chain state itself is not advanced here.
func (bt *BlockchainTest) buildBlock(ctx context.Context, tool Evaluator, block *Block, prevEnv *t8n.Environment, prevAlloc t8n.Alloc) (*BuiltBlock, error) {
	fork := bt.Fork
	env := block.setEnvironment(prevEnv)
	setForkRequirements(env, fork)
	number, timestamp := uint64(env.Number), uint64(env.Timestamp)

	txs, expectedErrs, err := signTransactions(block.Txs, bt.chainID())
	if err != nil {
		return nil, err
	}

	out, err := tool.Evaluate(ctx, &t8n.Request{
		Alloc:       prevAlloc,
		Txs:         txs,
		Env:         env,
		Fork:        fork,
		ChainID:     bt.chainID(),
		Reward:      fork.Reward(number, timestamp),
		SlowRequest: bt.SlowRequests,
	})
	if err != nil {
		return nil, err
	}

	// Blob gas used is recomputed from the transaction list rather than
	// trusted from the tool: clients derive it by counting blob hashes
	// before execution, so the header must match that count even for
	// rejected transactions.
	var blobGasUsed *uint64
	if perBlob := fork.BlobGasPerBlob(number, timestamp); perBlob > 0 {
		used := perBlob * countBlobs(txs)
		blobGasUsed = &used
	}

	header := makeHeader(env, out.Result, txs, block.ExtraData, blobGasUsed)

	if block.HeaderVerify != nil {
		if err := block.HeaderVerify.Verify(header); err != nil {
			return nil, errors.Wrapf(err, "block %d", number)
		}
	}

	var requests []hexutil.Bytes
	if fork.HeaderRequestsRequired(number, timestamp) {
		if out.Result.Requests == nil {
			return nil, errors.Errorf("block %d: tool returned no requests", number)
		}
		computed := types.CalcRequestsHash(rawRequests(out.Result.Requests))
		if header.RequestsHash == nil || computed != *header.RequestsHash {
			return nil, errors.Errorf("block %d: requests hash mismatch: header %v, computed %v",
				number, header.RequestsHash, computed)
		}
		requests = out.Result.Requests
	}
	if block.Requests != nil {
		hash := types.CalcRequestsHash(rawRequests(block.Requests))
		header.RequestsHash = &hash
		requests = block.Requests
	}

	if block.RLPModifier != nil {
		header = block.RLPModifier.Apply(header)
	}

	built := &BuiltBlock{
		Header:            header,
		Env:               env,
		Alloc:             out.Alloc,
		Txs:               txs,
		Withdrawals:       env.Withdrawals,
		Requests:          requests,
		Result:            out.Result,
		ExpectedException: block.Exception,
		EngineAPIError:    block.EngineAPIError,
		fork:              fork,
	}

	rejected, err := built.verifyTransactions(expectedErrs)
	if err != nil {
		bt.dumpFailure(tool, prevAlloc, out)
		return nil, err
	}
	if len(rejected) > 0 && block.Exception == "" {
		bt.dumpFailure(tool, prevAlloc, out)
		return nil, errors.Errorf("block %d: transaction(s) %v rejected but the block carries no expected exception",
			number, rejected)
	}
	if len(rejected) == 0 && block.RLPModifier == nil && block.Requests == nil && !block.SkipExceptionVerification {
		if err := built.verifyException(); err != nil {
			bt.dumpFailure(tool, prevAlloc, out)
			return nil, err
		}
	}
	return built, nil
}

// signTransactions resolves each description into a signed transaction and
// collects the expected per-transaction error classes. At most one
// transaction may carry an error, and it must be the last one.
func signTransactions(descs []*TxDesc, chainID uint64) (types.Transactions, []string, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	txs := make(types.Transactions, len(descs))
	expected := make([]string, len(descs))
	failing, lastFailing := 0, -1
	for i, desc := range descs {
		key := desc.Key
		if key == nil {
			key = FundedKey(i)
		}
		tx, err := types.SignNewTx(key, signer, desc.Data)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "signing tx %d", i)
		}
		txs[i] = tx
		expected[i] = desc.Error
		if desc.Error != "" {
			failing++
			lastFailing = i
		}
	}
	if failing > 1 {
		return nil, nil, errors.New("blocktest: only one transaction per block may produce an exception")
	}
	if failing == 1 && lastFailing != len(descs)-1 {
		return nil, nil, errors.New("blocktest: the failing transaction must be last in the block")
	}
	return txs, expected, nil
}

// makeHeader merges the tool's result with the resolved environment into the
// final header. Environment values win over tool output for the fields both
// provide; the transactions root is always computed locally.
func makeHeader(env *t8n.Environment, res *t8n.Result, txs types.Transactions, extra []byte, blobGasUsed *uint64) *types.Header {
	header := &types.Header{
		ParentHash:  env.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    env.Coinbase,
		Root:        res.StateRoot,
		TxHash:      types.DeriveSha(txs, trie.NewStackTrie(nil)),
		ReceiptHash: res.ReceiptsRoot,
		Bloom:       types.BytesToBloom(res.LogsBloom),
		Difficulty:  new(big.Int),
		Number:      new(big.Int).SetUint64(uint64(env.Number)),
		GasLimit:    uint64(env.GasLimit),
		GasUsed:     uint64(res.GasUsed),
		Time:        uint64(env.Timestamp),
		Extra:       extra,
		BlobGasUsed: blobGasUsed,
	}
	switch {
	case env.Difficulty != nil:
		header.Difficulty = (*big.Int)(env.Difficulty)
	case res.Difficulty != nil:
		header.Difficulty = (*big.Int)(res.Difficulty)
	}
	if env.Random != nil {
		header.MixDigest = *env.Random
	}
	switch {
	case env.BaseFee != nil:
		header.BaseFee = (*big.Int)(env.BaseFee)
	case res.BaseFee != nil:
		header.BaseFee = (*big.Int)(res.BaseFee)
	}
	if res.WithdrawalsRoot != nil {
		header.WithdrawalsHash = copyHash(res.WithdrawalsRoot)
	}
	switch {
	case env.ExcessBlobGas != nil:
		header.ExcessBlobGas = (*uint64)(env.ExcessBlobGas)
	case res.ExcessBlobGas != nil:
		header.ExcessBlobGas = (*uint64)(res.ExcessBlobGas)
	}
	if env.ParentBeaconBlockRoot != nil {
		header.ParentBeaconRoot = copyHash(env.ParentBeaconBlockRoot)
	}
	if res.RequestsHash != nil {
		header.RequestsHash = copyHash(res.RequestsHash)
	}
	return header
}

// RLP returns the serialized block: header, transactions, empty ommers and,
// post-Shanghai, the withdrawals list.
func (b *BuiltBlock) RLP() ([]byte, error) {
	block := types.NewBlockWithHeader(b.Header).WithBody(types.Body{
		Transactions: b.Txs,
		Withdrawals:  b.Withdrawals,
	})
	return rlp.EncodeToBytes(block)
}

// verifyTransactions checks every transaction's outcome against its expected
// error class and returns the indexes the tool rejected.
func (b *BuiltBlock) verifyTransactions(expected []string) ([]int, error) {
	got := make(map[int]string, len(b.Result.Rejected))
	rejected := make([]int, 0, len(b.Result.Rejected))
	for _, rej := range b.Result.Rejected {
		got[rej.Index] = rej.Error
		rejected = append(rejected, rej.Index)
	}
	for i, want := range expected {
		if want == "" {
			continue
		}
		msg, ok := got[i]
		if !ok {
			return nil, errors.Errorf("tx %d: expected to fail with %q but was accepted", i, want)
		}
		if !exceptionMatches(want, msg) {
			return nil, errors.Errorf("tx %d: expected error %q, tool reported %q", i, want, msg)
		}
	}
	return rejected, nil
}

// verifyException checks the tool's block-level verdict against the expected
// exception. The fork's RLP size ceiling is layered on top: an oversized
// block is a rejection reason even when the tool did not flag it.
func (b *BuiltBlock) verifyException() error {
	number, timestamp := b.Header.Number.Uint64(), b.Header.Time
	got := b.Result.BlockException
	if limit, ok := b.fork.BlockRLPSizeLimit(number, timestamp); ok {
		enc, err := b.RLP()
		if err != nil {
			return errors.Wrapf(err, "block %d", number)
		}
		if uint64(len(enc)) > limit {
			got = ExceptionRLPBlockLimitExceeded
		}
	}
	want := b.ExpectedException
	switch {
	case want == "" && got == "":
		return nil
	case want == "":
		return errors.Errorf("block %d: unexpected block exception: %s", number, got)
	case got == "":
		return errors.Errorf("block %d: expected exception %q but the block was accepted", number, want)
	case !exceptionMatches(want, got):
		return errors.Errorf("block %d: expected exception %q, tool reported %q", number, want, got)
	}
	return nil
}

// exceptionMatches reports whether a tool-reported exception message names
// the expected class. Tool messages may carry extra context around the
// class identifier.
func exceptionMatches(want, got string) bool {
	return want == got || strings.Contains(got, want)
}

func rawRequests(reqs []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(reqs))
	for i, r := range reqs {
		out[i] = r
	}
	return out
}
