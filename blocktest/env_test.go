package blocktest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func parentHeader(number uint64) *types.Header {
	baseFee := big.NewInt(1000)
	return &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Time:       1000,
		GasLimit:   30_000_000,
		GasUsed:    21_000,
		Difficulty: new(big.Int),
		UncleHash:  types.EmptyUncleHash,
		BaseFee:    baseFee,
	}
}

func TestEnvironmentFromParent(t *testing.T) {
	parent := parentHeader(4)
	env := EnvironmentFromParent(parent)

	require.Equal(t, hexutil.Uint64(1000), env.ParentTimestamp)
	require.EqualValues(t, 30_000_000, uint64(*env.ParentGasLimit))
	require.EqualValues(t, 21_000, uint64(*env.ParentGasUsed))
	require.Equal(t, big.NewInt(1000), env.ParentBaseFee.ToInt())
	require.Equal(t, parent.Hash(), env.ParentHash)

	want := map[math.HexOrDecimal64]common.Hash{4: parent.Hash()}
	if diff := cmp.Diff(want, env.BlockHashes); diff != "" {
		t.Errorf("block hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyNewParentAccumulatesHashes(t *testing.T) {
	p4, p5 := parentHeader(4), parentHeader(5)
	env := EnvironmentFromParent(p4)
	env = applyNewParent(env, p5)

	require.Equal(t, p5.Hash(), env.ParentHash)
	want := map[math.HexOrDecimal64]common.Hash{
		4: p4.Hash(),
		5: p5.Hash(),
	}
	if diff := cmp.Diff(want, env.BlockHashes); diff != "" {
		t.Errorf("block hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestSetEnvironmentDefaults(t *testing.T) {
	parent := parentHeader(4)
	prev := EnvironmentFromParent(parent)

	env := (&Block{}).setEnvironment(prev)
	require.EqualValues(t, 5, uint64(env.Number))
	require.EqualValues(t, parent.Time+blockTimeIncrement, uint64(env.Timestamp))
	require.EqualValues(t, parent.GasLimit, uint64(env.GasLimit))
	require.Equal(t, defaultCoinbase, env.Coinbase)
	require.Nil(t, env.BaseFee)

	num, ts, limit := uint64(20), uint64(99_000), uint64(10_000_000)
	coinbase := common.HexToAddress("0xc0ffee")
	env = (&Block{Number: &num, Timestamp: &ts, GasLimit: &limit, Coinbase: &coinbase}).setEnvironment(prev)
	require.EqualValues(t, num, uint64(env.Number))
	require.EqualValues(t, ts, uint64(env.Timestamp))
	require.EqualValues(t, limit, uint64(env.GasLimit))
	require.Equal(t, coinbase, env.Coinbase)
}

func TestSetForkRequirements(t *testing.T) {
	cancun := mustFork(t, "cancun")
	env := (&Block{}).setEnvironment(EnvironmentFromParent(parentHeader(0)))
	setForkRequirements(env, cancun)

	require.NotNil(t, env.Difficulty)
	require.Zero(t, env.Difficulty.ToInt().Sign())
	require.NotNil(t, env.Random)
	require.NotNil(t, env.Withdrawals)
	require.NotNil(t, env.ParentBeaconBlockRoot)
	// The parent provides the base fee and blob gas lineage, so the
	// explicit fields stay unset.
	require.Nil(t, env.BaseFee)

	// An explicit difficulty is still forced to zero at zero-difficulty
	// forks.
	diff := big.NewInt(0x20000)
	env = (&Block{Difficulty: diff}).setEnvironment(EnvironmentFromParent(parentHeader(0)))
	require.Equal(t, diff, env.Difficulty.ToInt())
	setForkRequirements(env, cancun)
	require.Zero(t, env.Difficulty.ToInt().Sign())

	frontier := mustFork(t, "frontier")
	env = (&Block{}).setEnvironment(EnvironmentFromParent(parentHeader(0)))
	env.ParentBaseFee = nil
	setForkRequirements(env, frontier)
	require.Nil(t, env.BaseFee)
	require.Nil(t, env.Withdrawals)
	require.Nil(t, env.ParentBeaconBlockRoot)
}

func TestCountBlobs(t *testing.T) {
	key := FundedKey(0)
	signer := types.LatestSignerForChainID(big.NewInt(1))
	blobTx := &types.BlobTx{
		ChainID:    uint256.NewInt(1),
		Gas:        21000,
		GasTipCap:  uint256.NewInt(1),
		GasFeeCap:  uint256.NewInt(10),
		BlobFeeCap: uint256.NewInt(1),
		BlobHashes: []common.Hash{{0x01}, {0x02}},
	}
	tx, err := types.SignNewTx(key, signer, blobTx)
	require.NoError(t, err)
	require.EqualValues(t, 2, countBlobs(types.Transactions{tx}))
	require.Zero(t, countBlobs(nil))
}
