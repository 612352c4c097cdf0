package blocktest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// makeGenesis synthesizes the genesis block: the fork's mandated
// pre-allocation merged with the test's explicit pre-state, committed to a
// state root, under a header with all fork-conditional fields resolved.
func makeGenesis(fork *forks.Fork, genesisEnv *t8n.Environment, pre t8n.Alloc) (t8n.Alloc, *types.Block, error) {
	env := &t8n.Environment{}
	if genesisEnv != nil {
		env = genesisEnv.Copy()
	}
	if len(env.Withdrawals) > 0 {
		return nil, nil, errors.New("blocktest: withdrawals must be empty at genesis")
	}
	if env.ParentBeaconBlockRoot != nil && *env.ParentBeaconBlockRoot != (common.Hash{}) {
		return nil, nil, errors.New("blocktest: parent beacon block root must be empty at genesis")
	}
	env.Number = 0
	if env.Coinbase == (common.Address{}) {
		env.Coinbase = defaultCoinbase
	}
	if env.GasLimit == 0 {
		env.GasLimit = hexutil.Uint64(defaultGasLimit)
	}
	setForkRequirements(env, fork)

	alloc, err := forkAlloc(fork).Merge(pre)
	if err != nil {
		return nil, nil, err
	}
	for _, addr := range alloc.Addresses() {
		if alloc[addr].Empty() {
			return nil, nil, errors.Errorf("blocktest: empty account %v in pre state", addr)
		}
	}

	header := &types.Header{
		ParentHash:  common.Hash{},
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    env.Coinbase,
		Root:        alloc.StateRoot(),
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int).Set(defaultDifficulty),
		Number:      new(big.Int),
		GasLimit:    uint64(env.GasLimit),
		Time:        uint64(env.Timestamp),
	}
	if env.Difficulty != nil {
		header.Difficulty = (*big.Int)(env.Difficulty)
	}
	if env.Random != nil {
		header.MixDigest = *env.Random
	}
	if env.BaseFee != nil {
		header.BaseFee = (*big.Int)(env.BaseFee)
	}
	var withdrawals []*types.Withdrawal
	if env.Withdrawals != nil {
		withdrawals = []*types.Withdrawal{}
		root := types.EmptyWithdrawalsHash
		header.WithdrawalsHash = &root
	}
	if env.ExcessBlobGas != nil {
		header.ExcessBlobGas = (*uint64)(env.ExcessBlobGas)
		header.BlobGasUsed = new(uint64)
	}
	if env.ParentBeaconBlockRoot != nil {
		header.ParentBeaconRoot = env.ParentBeaconBlockRoot
	}
	if fork.HeaderRequestsRequired(0, uint64(env.Timestamp)) {
		root := types.EmptyRequestsHash
		header.RequestsHash = &root
	}

	block := types.NewBlockWithHeader(header).WithBody(types.Body{Withdrawals: withdrawals})
	return alloc, block, nil
}

// forkAlloc converts the fork's mandated predeploys into a state snapshot.
func forkAlloc(fork *forks.Fork) t8n.Alloc {
	alloc := make(t8n.Alloc)
	for addr, dep := range fork.PreAllocation() {
		acct := &t8n.Account{
			Nonce: hexutil.Uint64(dep.Nonce),
			Code:  dep.Code,
		}
		if dep.Balance != nil {
			acct.Balance = (*hexutil.Big)(new(big.Int).Set(dep.Balance))
		}
		alloc[addr] = acct
	}
	return alloc
}
