// Package forks models the protocol rule set of every supported Ethereum
// fork. Forks form a single-inheritance chain: each fork starts from its
// parent's resolved parameters and overrides or extends a subset of them.
// The chain is resolved once at package init and Fork values are immutable
// afterwards.
package forks

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrNotSupported signals a query for a protocol feature that does not exist
// at the queried fork. Callers must treat this as fatal for the test case
// rather than substituting a default.
var ErrNotSupported = errors.New("feature not supported at this fork")

// ErrUnknownFork is returned by ByName for unrecognized fork names.
var ErrUnknownFork = errors.New("unknown fork")

// Predeploy is an account the fork requires to be present in the genesis
// allocation of every blockchain test.
type Predeploy struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Fork holds the resolved protocol parameters of one fork. All queries take
// a block number and timestamp to allow for rules that change within the
// lifetime of a single fork; both default to 0 for fork-boundary queries.
type Fork struct {
	name    string
	t8nName string
	index   int
	parent  *Fork

	// Header field requirements.
	headerBaseFee        bool
	headerPrevRandao     bool
	headerZeroDifficulty bool
	headerWithdrawals    bool
	headerExcessBlobGas  bool
	headerBlobGasUsed    bool
	headerBeaconRoot     bool
	headerRequests       bool

	gasCosts GasCosts
	reward   *big.Int

	// Engine API versions; 0 means undefined at this fork.
	newPayloadVersion int
	forkchoiceVersion int
	getPayloadVersion int
	getBlobsVersion   int

	maxCodeSize     uint64
	maxInitcodeSize uint64
	maxStackHeight  uint64

	txGasLimitCap     uint64 // 0 = no cap
	blockRLPSizeLimit uint64 // 0 = no limit
	maxRequestType    int    // -1 = requests not supported

	// Additive parameter lists, resolved as "this fork's additions ++
	// parent's list" at construction.
	txTypes                 []byte
	contractCreatingTxTypes []byte
	precompiles             []common.Address
	systemContracts         []common.Address
	validOpcodes            []Opcode

	// Blob market parameters.
	supportsBlobs             bool
	blobGasPerBlob            uint64
	targetBlobsPerBlock       uint64
	maxBlobsPerBlock          uint64
	minBlobBaseFee            uint64
	blobBaseFeeUpdateFraction uint64

	preAlloc map[common.Address]Predeploy

	// Calculator builders. A fork inheriting a calculator still has it
	// rebuilt against its own constant tables, so a fork that only changes
	// a gas cost does not need to redefine the calculators reading it.
	// Intrinsic-cost builders form a chain: each wraps the calculator
	// built from the builders before it.
	memExpBuilder     func(*Fork) MemoryExpansionGasFunc
	calldataBuilder   func(*Fork) CalldataGasFunc
	floorBuilder      func(*Fork) DataFloorCostFunc
	intrinsicBuilders []intrinsicBuilder
	blobPriceBuilder  func(*Fork) BlobGasPriceFunc
	excessBuilder     func(*Fork) ExcessBlobGasFunc
	baseFeeBuilder    func(*Fork) BaseFeeFunc

	// Calculator closures, resolved once at construction.
	memoryExpansionGas MemoryExpansionGasFunc
	calldataGas        CalldataGasFunc
	dataFloorCost      DataFloorCostFunc
	intrinsicGas       IntrinsicGasFunc
	blobGasPrice       BlobGasPriceFunc
	excessBlobGas      ExcessBlobGasFunc
	nextBaseFee        BaseFeeFunc
}

type intrinsicBuilder func(f *Fork, super IntrinsicGasFunc) IntrinsicGasFunc

// wrapIntrinsic appends an intrinsic-cost builder layer. The builder list is
// copied so forks never mutate a slice shared with their parent.
func (f *Fork) wrapIntrinsic(b intrinsicBuilder) {
	chain := make([]intrinsicBuilder, len(f.intrinsicBuilders), len(f.intrinsicBuilders)+1)
	copy(chain, f.intrinsicBuilders)
	f.intrinsicBuilders = append(chain, b)
}

// resolveCalculators builds the calculator closures from the builder chain,
// bound to this fork's constants.
func (f *Fork) resolveCalculators() {
	f.memoryExpansionGas = f.memExpBuilder(f)
	f.calldataGas = f.calldataBuilder(f)
	f.dataFloorCost = f.floorBuilder(f)
	var fn IntrinsicGasFunc
	for _, b := range f.intrinsicBuilders {
		fn = b(f, fn)
	}
	f.intrinsicGas = fn
	if f.blobPriceBuilder != nil {
		f.blobGasPrice = f.blobPriceBuilder(f)
	}
	if f.excessBuilder != nil {
		f.excessBlobGas = f.excessBuilder(f)
	}
	if f.baseFeeBuilder != nil {
		f.nextBaseFee = f.baseFeeBuilder(f)
	}
}

// Name returns the canonical fork name.
func (f *Fork) Name() string { return f.name }

// TransitionToolName returns the fork name as understood by the external
// state transition tool. It differs from Name for Paris ("Merge").
func (f *Fork) TransitionToolName(number, timestamp uint64) string {
	if f.t8nName != "" {
		return f.t8nName
	}
	return f.name
}

// Parent returns the preceding fork, or nil for the first one.
func (f *Fork) Parent() *Fork { return f.parent }

// AtLeast reports whether f is the given fork or a later one.
func (f *Fork) AtLeast(other *Fork) bool { return f.index >= other.index }

func (f *Fork) String() string { return f.name }

func (f *Fork) unsupported(feature string) error {
	return errors.Wrapf(ErrNotSupported, "%s at fork %s", feature, f.name)
}

// Header field requirement queries.

func (f *Fork) HeaderBaseFeeRequired(number, timestamp uint64) bool    { return f.headerBaseFee }
func (f *Fork) HeaderPrevRandaoRequired(number, timestamp uint64) bool { return f.headerPrevRandao }
func (f *Fork) HeaderZeroDifficultyRequired(number, timestamp uint64) bool {
	return f.headerZeroDifficulty
}
func (f *Fork) HeaderWithdrawalsRequired(number, timestamp uint64) bool { return f.headerWithdrawals }
func (f *Fork) HeaderExcessBlobGasRequired(number, timestamp uint64) bool {
	return f.headerExcessBlobGas
}
func (f *Fork) HeaderBlobGasUsedRequired(number, timestamp uint64) bool { return f.headerBlobGasUsed }
func (f *Fork) HeaderBeaconRootRequired(number, timestamp uint64) bool  { return f.headerBeaconRoot }
func (f *Fork) HeaderRequestsRequired(number, timestamp uint64) bool    { return f.headerRequests }

// GasCosts returns the gas cost constant table of the fork.
func (f *Fork) GasCosts(number, timestamp uint64) GasCosts { return f.gasCosts }

// Reward returns the block mining reward in wei.
func (f *Fork) Reward(number, timestamp uint64) *big.Int { return new(big.Int).Set(f.reward) }

// Engine API version queries. A zero version means the call is undefined at
// this fork, and fixtures depending on it cannot be generated.

func (f *Fork) EngineNewPayloadVersion(number, timestamp uint64) int { return f.newPayloadVersion }
func (f *Fork) EngineForkchoiceUpdatedVersion(number, timestamp uint64) int {
	return f.forkchoiceVersion
}
func (f *Fork) EngineGetPayloadVersion(number, timestamp uint64) int { return f.getPayloadVersion }
func (f *Fork) EngineGetBlobsVersion(number, timestamp uint64) int   { return f.getBlobsVersion }

// EngineNewPayloadBlobHashes reports whether newPayload takes the versioned
// blob hashes parameter at this fork.
func (f *Fork) EngineNewPayloadBlobHashes(number, timestamp uint64) bool {
	return f.newPayloadVersion >= 3
}

// EngineNewPayloadBeaconRoot reports whether newPayload takes the parent
// beacon block root parameter at this fork.
func (f *Fork) EngineNewPayloadBeaconRoot(number, timestamp uint64) bool {
	return f.newPayloadVersion >= 3
}

// EngineNewPayloadRequests reports whether newPayload takes the execution
// requests parameter at this fork.
func (f *Fork) EngineNewPayloadRequests(number, timestamp uint64) bool {
	return f.newPayloadVersion >= 4
}

// Size and shape limits.

func (f *Fork) MaxCodeSize() uint64     { return f.maxCodeSize }
func (f *Fork) MaxInitcodeSize() uint64 { return f.maxInitcodeSize }
func (f *Fork) MaxStackHeight() uint64  { return f.maxStackHeight }

// TransactionGasLimitCap returns the per-transaction gas limit cap and
// whether one applies at this fork.
func (f *Fork) TransactionGasLimitCap(number, timestamp uint64) (uint64, bool) {
	return f.txGasLimitCap, f.txGasLimitCap != 0
}

// BlockRLPSizeLimit returns the maximum serialized block size and whether a
// limit applies at this fork.
func (f *Fork) BlockRLPSizeLimit(number, timestamp uint64) (uint64, bool) {
	return f.blockRLPSizeLimit, f.blockRLPSizeLimit != 0
}

// MaxRequestType returns the highest supported consensus-layer request type,
// or -1 when requests are not supported.
func (f *Fork) MaxRequestType(number, timestamp uint64) int { return f.maxRequestType }

// Additive parameter lists. Returned slices must not be modified.

func (f *Fork) TxTypes(number, timestamp uint64) []byte { return f.txTypes }
func (f *Fork) ContractCreatingTxTypes(number, timestamp uint64) []byte {
	return f.contractCreatingTxTypes
}
func (f *Fork) Precompiles(number, timestamp uint64) []common.Address { return f.precompiles }
func (f *Fork) SystemContracts(number, timestamp uint64) []common.Address {
	return f.systemContracts
}
func (f *Fork) ValidOpcodes() []Opcode { return f.validOpcodes }

// SupportsTxType reports whether the given transaction type byte is valid.
func (f *Fork) SupportsTxType(txType byte) bool {
	for _, t := range f.txTypes {
		if t == txType {
			return true
		}
	}
	return false
}

// Blob market queries.

func (f *Fork) SupportsBlobs(number, timestamp uint64) bool { return f.supportsBlobs }

func (f *Fork) BlobGasPerBlob(number, timestamp uint64) uint64 { return f.blobGasPerBlob }

func (f *Fork) TargetBlobsPerBlock(number, timestamp uint64) (uint64, error) {
	if !f.supportsBlobs {
		return 0, f.unsupported("target blobs per block")
	}
	return f.targetBlobsPerBlock, nil
}

func (f *Fork) MaxBlobsPerBlock(number, timestamp uint64) (uint64, error) {
	if !f.supportsBlobs {
		return 0, f.unsupported("max blobs per block")
	}
	return f.maxBlobsPerBlock, nil
}

func (f *Fork) MinBaseFeePerBlobGas(number, timestamp uint64) (uint64, error) {
	if !f.supportsBlobs {
		return 0, f.unsupported("min base fee per blob gas")
	}
	return f.minBlobBaseFee, nil
}

func (f *Fork) BlobBaseFeeUpdateFraction(number, timestamp uint64) (uint64, error) {
	if !f.supportsBlobs {
		return 0, f.unsupported("blob base fee update fraction")
	}
	return f.blobBaseFeeUpdateFraction, nil
}

// BlobSchedule returns the cumulative blob schedule up to this fork, or nil
// when no fork in the chain supports blobs yet.
func (f *Fork) BlobSchedule(number, timestamp uint64) *BlobSchedule {
	var s BlobSchedule
	var walk func(f *Fork)
	walk = func(f *Fork) {
		if f == nil {
			return
		}
		walk(f.parent)
		if f.supportsBlobs {
			s.append(f.name, ForkBlobSchedule{
				TargetBlobsPerBlock:   f.targetBlobsPerBlock,
				MaxBlobsPerBlock:      f.maxBlobsPerBlock,
				BaseFeeUpdateFraction: f.blobBaseFeeUpdateFraction,
			})
		}
	}
	walk(f)
	if s.Len() == 0 {
		return nil
	}
	return &s
}

// Calculator accessors. Gated calculators return ErrNotSupported when the
// underlying feature does not exist at this fork.

func (f *Fork) MemoryExpansionGasCalculator(number, timestamp uint64) MemoryExpansionGasFunc {
	return f.memoryExpansionGas
}

func (f *Fork) CalldataGasCalculator(number, timestamp uint64) CalldataGasFunc {
	return f.calldataGas
}

func (f *Fork) TransactionDataFloorCostCalculator(number, timestamp uint64) DataFloorCostFunc {
	return f.dataFloorCost
}

func (f *Fork) TransactionIntrinsicCostCalculator(number, timestamp uint64) IntrinsicGasFunc {
	return f.intrinsicGas
}

func (f *Fork) BlobGasPriceCalculator(number, timestamp uint64) (BlobGasPriceFunc, error) {
	if f.blobGasPrice == nil {
		return nil, f.unsupported("blob gas price calculator")
	}
	return f.blobGasPrice, nil
}

func (f *Fork) ExcessBlobGasCalculator(number, timestamp uint64) (ExcessBlobGasFunc, error) {
	if f.excessBlobGas == nil {
		return nil, f.unsupported("excess blob gas calculator")
	}
	return f.excessBlobGas, nil
}

func (f *Fork) BaseFeeCalculator(number, timestamp uint64) (BaseFeeFunc, error) {
	if f.nextBaseFee == nil {
		return nil, f.unsupported("base fee calculator")
	}
	return f.nextBaseFee, nil
}

// PreAllocation returns the accounts the fork mandates in the genesis state
// of blockchain tests.
func (f *Fork) PreAllocation() map[common.Address]Predeploy {
	out := make(map[common.Address]Predeploy, len(f.preAlloc))
	for addr, acct := range f.preAlloc {
		out[addr] = acct
	}
	return out
}

var (
	forkList   []*Fork
	forkByName map[string]*Fork
)

func init() {
	forkByName = make(map[string]*Fork)
	var parent *Fork
	for i, def := range definitions {
		f := newFork(def.name, def.t8nName, i, parent)
		def.configure(f)
		f.resolveCalculators()
		forkList = append(forkList, f)
		forkByName[strings.ToLower(f.name)] = f
		parent = f
	}
}

// newFork seeds a fork with its parent's resolved parameters.
func newFork(name, t8nName string, index int, parent *Fork) *Fork {
	f := &Fork{name: name, t8nName: t8nName, index: index, parent: parent}
	if parent == nil {
		f.reward = new(big.Int)
		f.maxRequestType = -1
		f.preAlloc = make(map[common.Address]Predeploy)
		return f
	}
	// Copy everything, then re-point the parent linkage. Slices are shared
	// with the parent: additive overrides always build fresh slices.
	tmp := *parent
	tmp.name, tmp.t8nName, tmp.index, tmp.parent = name, t8nName, index, parent
	tmp.reward = new(big.Int).Set(parent.reward)
	tmp.preAlloc = parent.PreAllocation()
	*f = tmp
	return f
}

// All returns the fork chain in activation order.
func All() []*Fork {
	return forkList
}

// Latest returns the most recent fork.
func Latest() *Fork {
	return forkList[len(forkList)-1]
}

// ByName resolves a fork from its name, case-insensitively. It fails on
// unknown names instead of falling back to any default.
func ByName(name string) (*Fork, error) {
	f, ok := forkByName[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrap(ErrUnknownFork, name)
	}
	return f, nil
}
