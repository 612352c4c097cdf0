// Package blocktest builds complete proof-of-work and proof-of-stake block
// chains from abstract test descriptions and emits them as client-consumable
// fixtures. Every block is executed through an external transition tool; the
// package's job is everything around that call: environment resolution,
// header assembly, exception verification and fixture serialization.
package blocktest

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// defaultChainID is used when the test does not set its own.
const defaultChainID = 1

// BlockchainTest is one chain test definition: a pre-state, an ordered list
// of block descriptions and the expected post-state. The zero value of the
// optional fields is valid.
type BlockchainTest struct {
	Fork   *forks.Fork
	Pre    t8n.Alloc
	Post   t8n.Alloc
	Blocks []*Block

	// GenesisEnvironment overrides the synthesized genesis block's
	// environment. Withdrawals and beacon root must be empty in it.
	GenesisEnvironment *t8n.Environment

	ChainID uint64

	// ExcludeFullPostState drops the full post-state from the fixture,
	// leaving only its state root for verification.
	ExcludeFullPostState bool

	// VerifySync appends an extra empty sync payload to engine fixtures,
	// giving clients a head to sync towards.
	VerifySync bool

	// SlowRequests extends the tool's timeout for execution-heavy tests.
	SlowRequests bool

	Logger log15.Logger
}

func (bt *BlockchainTest) chainID() uint64 {
	if bt.ChainID == 0 {
		return defaultChainID
	}
	return bt.ChainID
}

func (bt *BlockchainTest) logger() log15.Logger {
	if bt.Logger == nil {
		return log15.New("module", "blocktest")
	}
	return bt.Logger
}

// chainState is the running (alloc, environment, head) triple advanced by
// accepted blocks only.
type chainState struct {
	alloc t8n.Alloc
	env   *t8n.Environment
	head  common.Hash
}

// MakeFixture builds the chain and emits the plain blockchain fixture:
// genesis plus the serialized block list.
func (bt *BlockchainTest) MakeFixture(ctx context.Context, tool Evaluator) (*Fixture, error) {
	tool.ResetTraces()
	pre, genesis, err := makeGenesis(bt.Fork, bt.GenesisEnvironment, bt.Pre)
	if err != nil {
		return nil, err
	}
	genesisRLP, err := encodeBlock(genesis)
	if err != nil {
		return nil, err
	}

	state := chainState{
		alloc: pre,
		env:   EnvironmentFromParent(genesis.Header()),
		head:  genesis.Hash(),
	}
	fixtureBlocks := make([]*FixtureBlock, 0, len(bt.Blocks))
	for i, block := range bt.Blocks {
		built, err := bt.buildBlock(ctx, tool, block, state.env, state.alloc)
		if err != nil {
			return nil, errors.Wrapf(err, "building block %d", i+1)
		}
		fb, err := built.FixtureBlock()
		if err != nil {
			return nil, err
		}
		fixtureBlocks = append(fixtureBlocks, fb)
		bt.advance(&state, block, built)
		if block.ExpectedPostState != nil {
			if err := bt.verifyPostState(tool, state.alloc, block.ExpectedPostState); err != nil {
				return nil, errors.Wrapf(err, "after block %d", i+1)
			}
		}
	}
	if err := bt.verifyPostState(tool, state.alloc, bt.Post); err != nil {
		return nil, err
	}

	f := &Fixture{
		Fork:          bt.Fork.Name(),
		Genesis:       newFixtureHeader(genesis.Header()),
		GenesisRLP:    genesisRLP,
		Blocks:        fixtureBlocks,
		LastBlockHash: state.head,
		Pre:           pre,
		Config:        bt.fixtureConfig(),
	}
	bt.setPostState(&f.PostState, &f.PostStateHash, state.alloc)
	return f, nil
}

// MakeEngineFixture builds the chain and emits the Engine API fixture shape.
// It fails fast when the fork defines no payload version, since such a
// fixture could never be played back.
func (bt *BlockchainTest) MakeEngineFixture(ctx context.Context, tool Evaluator) (*EngineFixture, error) {
	if bt.Fork.EngineNewPayloadVersion(0, 0) == 0 {
		return nil, errors.Errorf("blocktest: fork %s has no engine payload version", bt.Fork)
	}
	tool.ResetTraces()
	pre, genesis, err := makeGenesis(bt.Fork, bt.GenesisEnvironment, bt.Pre)
	if err != nil {
		return nil, err
	}

	state := chainState{
		alloc: pre,
		env:   EnvironmentFromParent(genesis.Header()),
		head:  genesis.Hash(),
	}
	payloads := make([]*EnginePayload, 0, len(bt.Blocks))
	fcuVersion := bt.Fork.EngineForkchoiceUpdatedVersion(0, 0)
	for i, block := range bt.Blocks {
		built, err := bt.buildBlock(ctx, tool, block, state.env, state.alloc)
		if err != nil {
			return nil, errors.Wrapf(err, "building block %d", i+1)
		}
		payload, err := built.EnginePayload()
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
		fcuVersion = bt.Fork.EngineForkchoiceUpdatedVersion(built.Header.Number.Uint64(), built.Header.Time)
		bt.advance(&state, block, built)
		if block.ExpectedPostState != nil {
			if err := bt.verifyPostState(tool, state.alloc, block.ExpectedPostState); err != nil {
				return nil, errors.Wrapf(err, "after block %d", i+1)
			}
		}
	}
	if err := bt.verifyPostState(tool, state.alloc, bt.Post); err != nil {
		return nil, err
	}

	var syncPayload *EnginePayload
	if bt.VerifySync {
		if state.head == genesis.Hash() {
			return nil, errors.New("blocktest: sync verification needs at least one valid block")
		}
		// Clients need a header beyond the head to start syncing, so an
		// empty block is built on top and shipped alongside.
		syncBlock, err := bt.buildBlock(ctx, tool, &Block{}, state.env, state.alloc)
		if err != nil {
			return nil, errors.Wrap(err, "building sync block")
		}
		syncPayload, err = syncBlock.EnginePayload()
		if err != nil {
			return nil, err
		}
	}

	f := &EngineFixture{
		Fork:          bt.Fork.Name(),
		Genesis:       newFixtureHeader(genesis.Header()),
		Payloads:      payloads,
		FcUVersion:    fcuVersion,
		SyncPayload:   syncPayload,
		LastBlockHash: state.head,
		Pre:           pre,
		Config:        bt.fixtureConfig(),
	}
	bt.setPostState(&f.PostState, &f.PostStateHash, state.alloc)
	return f, nil
}

// MakeEngineXFixture emits the storage-optimized engine fixture: the full
// pre-state is replaced by a reference hash into a shared pre-allocation
// store, and the post-state by its difference from genesis.
func (bt *BlockchainTest) MakeEngineXFixture(ctx context.Context, tool Evaluator) (*EngineXFixture, error) {
	engine, err := bt.MakeEngineFixture(ctx, tool)
	if err != nil {
		return nil, err
	}
	x := &EngineXFixture{
		Fork:          engine.Fork,
		Genesis:       engine.Genesis,
		Payloads:      engine.Payloads,
		FcUVersion:    engine.FcUVersion,
		SyncPayload:   engine.SyncPayload,
		LastBlockHash: engine.LastBlockHash,
		PreHash:       engine.Pre.StateRoot(),
		Config:        engine.Config,
	}
	if engine.PostState != nil {
		x.PostStateDiff = engine.Pre.Diff(engine.PostState)
	}
	x.PostStateHash = engine.PostStateHash
	return x, nil
}

// advance folds an accepted block into the running chain state. Blocks that
// carry an expected exception leave the state untouched.
func (bt *BlockchainTest) advance(state *chainState, block *Block, built *BuiltBlock) {
	if block.Exception != "" {
		return
	}
	state.alloc = built.Alloc
	state.env = applyNewParent(state.env, built.Header)
	state.head = built.Header.Hash()
}

// verifyPostState compares the running state against the expected one. On
// mismatch it dumps the accumulated traces and both snapshots before
// failing, so the divergence is diagnosable without a re-run.
func (bt *BlockchainTest) verifyPostState(tool Evaluator, got, want t8n.Alloc) error {
	if bt.ExcludeFullPostState && want == nil {
		return nil
	}
	if got.Equal(want) {
		return nil
	}
	log := bt.logger()
	log.Error("post-state mismatch", "blocks", len(bt.Blocks), "traces", len(tool.Traces().Blocks()))
	log.Debug("post-state diff", "diff", spew.Sdump(want.Diff(got)))
	return errors.New("blocktest: post-state does not match the expected allocation")
}

func (bt *BlockchainTest) dumpFailure(tool Evaluator, pre t8n.Alloc, out *t8n.Output) {
	log := bt.logger()
	log.Error("block construction failed", "traces", len(tool.Traces().Blocks()))
	log.Debug("tool result", "result", spew.Sdump(out.Result))
	log.Debug("pre allocation", "alloc", spew.Sdump(pre))
	log.Debug("post allocation", "alloc", spew.Sdump(out.Alloc))
}

func (bt *BlockchainTest) fixtureConfig() FixtureConfig {
	return FixtureConfig{
		Fork:         bt.Fork.Name(),
		ChainID:      math.HexOrDecimal64(bt.chainID()),
		BlobSchedule: bt.Fork.BlobSchedule(0, 0),
	}
}

// setPostState fills either the full post-state or just its root, depending
// on the test's output mode.
func (bt *BlockchainTest) setPostState(state *t8n.Alloc, hash **common.Hash, alloc t8n.Alloc) {
	if bt.ExcludeFullPostState {
		root := alloc.StateRoot()
		*hash = &root
		return
	}
	*state = alloc
}
