package forks

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// definitions is the fork chain in activation order. Each configure function
// receives a fork pre-seeded with its parent's resolved parameters and
// applies only the changes that fork introduced.
var definitions = []struct {
	name      string
	t8nName   string
	configure func(*Fork)
}{
	{name: "Frontier", configure: configureFrontier},
	{name: "Homestead", configure: configureHomestead},
	{name: "Byzantium", configure: configureByzantium},
	{name: "Constantinople", configure: configureConstantinople},
	{name: "ConstantinopleFix", configure: func(f *Fork) {}},
	{name: "Istanbul", configure: configureIstanbul},
	{name: "Berlin", configure: configureBerlin},
	{name: "London", configure: configureLondon},
	{name: "Paris", t8nName: "Merge", configure: configureParis},
	{name: "Shanghai", configure: configureShanghai},
	{name: "Cancun", configure: configureCancun},
	{name: "Prague", configure: configurePrague},
	{name: "Osaka", configure: configureOsaka},
}

func configureFrontier(f *Fork) {
	f.gasCosts = frontierGasCosts
	f.reward = big.NewInt(5e18)

	f.txTypes = []byte{0}
	f.contractCreatingTxTypes = []byte{0}

	// No upper bound on code or initcode size at genesis; the defaults are
	// the EIP-170 and EIP-3860 limits that later forks enforce.
	f.maxCodeSize = 0x6000
	f.maxInitcodeSize = 0xC000
	f.maxStackHeight = 1024

	f.validOpcodes = append([]Opcode{
		STOP, ADD, MUL, SUB, DIV, SDIV, MOD, SMOD, ADDMOD, MULMOD,
		EXP, SIGNEXTEND,
		LT, GT, SLT, SGT, EQ, ISZERO, AND, OR, XOR, NOT, BYTE,
		KECCAK256,
		ADDRESS, BALANCE, ORIGIN, CALLER, CALLVALUE,
		CALLDATALOAD, CALLDATASIZE, CALLDATACOPY,
		CODESIZE, CODECOPY, GASPRICE, EXTCODESIZE, EXTCODECOPY,
		BLOCKHASH, COINBASE, TIMESTAMP, NUMBER, PREVRANDAO, GASLIMIT,
		POP, MLOAD, MSTORE, MSTORE8, SLOAD, SSTORE,
		PC, MSIZE, GAS, JUMP, JUMPI, JUMPDEST,
	}, pushDupSwapOpcodes()...)
	f.validOpcodes = append(f.validOpcodes,
		LOG0, LOG1, LOG2, LOG3, LOG4,
		CREATE, CALL, CALLCODE, RETURN, SELFDESTRUCT,
	)

	f.memExpBuilder = func(f *Fork) MemoryExpansionGasFunc {
		gc := f.gasCosts
		cost := func(words uint64) uint64 {
			return gc.Memory*words + words*words/512
		}
		return func(newBytes, previousBytes uint64) uint64 {
			if newBytes <= previousBytes {
				return 0
			}
			return cost(ceilDiv(newBytes, 32)) - cost(ceilDiv(previousBytes, 32))
		}
	}
	f.calldataBuilder = func(f *Fork) CalldataGasFunc {
		gc := f.gasCosts
		return func(data []byte, floor bool) uint64 {
			var cost uint64
			for _, b := range data {
				if b == 0 {
					cost += gc.TxDataZero
				} else {
					cost += gc.TxDataNonZero
				}
			}
			return cost
		}
	}
	f.floorBuilder = func(f *Fork) DataFloorCostFunc {
		return func(data []byte) uint64 { return 0 }
	}
	f.wrapIntrinsic(func(f *Fork, super IntrinsicGasFunc) IntrinsicGasFunc {
		gc := f.gasCosts
		calldataGas := f.calldataBuilder(f)
		return func(p IntrinsicGasParams) (uint64, error) {
			if p.AccessList != nil {
				return 0, errors.Wrapf(ErrNotSupported, "access lists at fork %s", f.name)
			}
			if p.AuthorizationCount >= 0 {
				return 0, errors.Wrapf(ErrNotSupported, "authorizations at fork %s", f.name)
			}
			cost := gc.Transaction
			if p.ContractCreation {
				cost += gc.InitcodeWord * ceilDiv(uint64(len(p.Calldata)), 32)
			}
			return cost + calldataGas(p.Calldata, false), nil
		}
	})
}

func configureHomestead(f *Fork) {
	f.precompiles = prependAddrs(f.precompiles,
		addr(0x01), // ECREC
		addr(0x02), // SHA256
		addr(0x03), // RIPEMD160
		addr(0x04), // ID
	)
	f.validOpcodes = prependOpcodes(f.validOpcodes, DELEGATECALL)

	// Contract creation starts costing extra gas.
	f.wrapIntrinsic(func(f *Fork, super IntrinsicGasFunc) IntrinsicGasFunc {
		gc := f.gasCosts
		return func(p IntrinsicGasParams) (uint64, error) {
			cost, err := super(p)
			if err != nil {
				return 0, err
			}
			if p.ContractCreation {
				cost += gc.TransactionCreate
			}
			return cost, nil
		}
	})
}

func configureByzantium(f *Fork) {
	f.reward = big.NewInt(3e18)
	f.precompiles = prependAddrs(f.precompiles,
		addr(0x05), // MODEXP
		addr(0x06), // BN254_ADD
		addr(0x07), // BN254_MUL
		addr(0x08), // BN254_PAIRING
	)
	f.validOpcodes = prependOpcodes(f.validOpcodes,
		REVERT, RETURNDATASIZE, RETURNDATACOPY, STATICCALL,
	)
}

func configureConstantinople(f *Fork) {
	f.reward = big.NewInt(2e18)
	f.validOpcodes = prependOpcodes(f.validOpcodes,
		SHL, SHR, SAR, EXTCODEHASH, CREATE2,
	)
}

func configureIstanbul(f *Fork) {
	f.precompiles = prependAddrs(f.precompiles, addr(0x09)) // BLAKE2F
	f.validOpcodes = prependOpcodes(f.validOpcodes, CHAINID, SELFBALANCE)

	// EIP-2028 reduces the non-zero calldata byte cost. The calldata and
	// intrinsic calculators pick it up via the rebuilt table.
	f.gasCosts.TxDataNonZero = 16
}

func configureBerlin(f *Fork) {
	f.txTypes = prependBytes(f.txTypes, 1)
	f.contractCreatingTxTypes = prependBytes(f.contractCreatingTxTypes, 1)

	f.wrapIntrinsic(func(f *Fork, super IntrinsicGasFunc) IntrinsicGasFunc {
		gc := f.gasCosts
		return func(p IntrinsicGasParams) (uint64, error) {
			accessList := p.AccessList
			p.AccessList = nil
			cost, err := super(p)
			if err != nil {
				return 0, err
			}
			for _, access := range accessList {
				cost += gc.AccessListAddress
				cost += gc.AccessListStorage * uint64(len(access.StorageKeys))
			}
			return cost, nil
		}
	})
}

func configureLondon(f *Fork) {
	f.headerBaseFee = true
	f.txTypes = prependBytes(f.txTypes, 2)
	f.contractCreatingTxTypes = prependBytes(f.contractCreatingTxTypes, 2)
	f.validOpcodes = prependOpcodes(f.validOpcodes, BASEFEE)
	f.baseFeeBuilder = func(f *Fork) BaseFeeFunc {
		return newBaseFeeCalculator()
	}
}

func configureParis(f *Fork) {
	f.headerPrevRandao = true
	f.headerZeroDifficulty = true
	f.reward = new(big.Int)
	f.newPayloadVersion = 1
	f.forkchoiceVersion = 1
	f.getPayloadVersion = 1
}

func configureShanghai(f *Fork) {
	f.headerWithdrawals = true
	f.newPayloadVersion = 2
	f.forkchoiceVersion = 2
	f.getPayloadVersion = 2
	f.validOpcodes = prependOpcodes(f.validOpcodes, PUSH0)
}

func configureCancun(f *Fork) {
	f.headerExcessBlobGas = true
	f.headerBlobGasUsed = true
	f.headerBeaconRoot = true
	f.newPayloadVersion = 3
	f.forkchoiceVersion = 3
	f.getPayloadVersion = 3
	f.getBlobsVersion = 1

	f.supportsBlobs = true
	f.blobGasPerBlob = 1 << 17
	f.targetBlobsPerBlock = 3
	f.maxBlobsPerBlock = 6
	f.minBlobBaseFee = 1
	f.blobBaseFeeUpdateFraction = 3338477

	f.txTypes = prependBytes(f.txTypes, 3)
	f.precompiles = prependAddrs(f.precompiles, addr(0x0a)) // KZG_POINT_EVALUATION
	f.systemContracts = prependAddrs(f.systemContracts, params.BeaconRootsAddress)
	f.validOpcodes = prependOpcodes(f.validOpcodes,
		BLOBHASH, BLOBBASEFEE, TLOAD, TSTORE, MCOPY,
	)

	f.preAlloc[params.BeaconRootsAddress] = Predeploy{
		Nonce: 1,
		Code:  params.BeaconRootsCode,
	}

	f.blobPriceBuilder = func(f *Fork) BlobGasPriceFunc {
		minFee, fraction := f.minBlobBaseFee, f.blobBaseFeeUpdateFraction
		return func(excessBlobGas uint64) *uint256.Int {
			return fakeExponential(minFee, excessBlobGas, fraction)
		}
	}
	f.excessBuilder = func(f *Fork) ExcessBlobGasFunc {
		target := f.targetBlobsPerBlock * f.blobGasPerBlob
		return func(parent ParentBlobInfo) uint64 {
			if parent.ExcessBlobGas+parent.BlobGasUsed < target {
				return 0
			}
			return parent.ExcessBlobGas + parent.BlobGasUsed - target
		}
	}
}

func configurePrague(f *Fork) {
	f.headerRequests = true
	f.newPayloadVersion = 4
	f.getPayloadVersion = 4
	f.maxRequestType = 2

	f.targetBlobsPerBlock = 6
	f.maxBlobsPerBlock = 9
	f.blobBaseFeeUpdateFraction = 5007716

	// EIP-7623 token pricing and EIP-7702 authorization costs.
	f.gasCosts.TxDataStandardTokenCost = 4
	f.gasCosts.TxDataFloorTokenCost = 10
	f.gasCosts.Authorization = 25000
	f.gasCosts.AuthorizationExistingAuthorityRefund = 12500

	f.txTypes = prependBytes(f.txTypes, 4)
	f.precompiles = prependAddrs(f.precompiles,
		addr(0x0b), // BLS12_G1ADD
		addr(0x0c), // BLS12_G1MSM
		addr(0x0d), // BLS12_G2ADD
		addr(0x0e), // BLS12_G2MSM
		addr(0x0f), // BLS12_PAIRING_CHECK
		addr(0x10), // BLS12_MAP_FP_TO_G1
		addr(0x11), // BLS12_MAP_FP2_TO_G2
	)
	f.systemContracts = prependAddrs(f.systemContracts,
		depositContractAddress,
		params.WithdrawalQueueAddress,
		params.ConsolidationQueueAddress,
		params.HistoryStorageAddress,
	)

	// The deposit contract is a system contract but not a predeploy here:
	// its bytecode is not shipped by go-ethereum's params package, and
	// fixtures exercise it through the requests hash rather than by
	// calling into it.
	f.preAlloc[params.HistoryStorageAddress] = Predeploy{Nonce: 1, Code: params.HistoryStorageCode}
	f.preAlloc[params.WithdrawalQueueAddress] = Predeploy{Nonce: 1, Code: params.WithdrawalQueueCode}
	f.preAlloc[params.ConsolidationQueueAddress] = Predeploy{Nonce: 1, Code: params.ConsolidationQueueCode}

	f.calldataBuilder = func(f *Fork) CalldataGasFunc {
		gc := f.gasCosts
		return func(data []byte, floor bool) uint64 {
			var tokens uint64
			for _, b := range data {
				if b == 0 {
					tokens++
				} else {
					tokens += 4
				}
			}
			if floor {
				return tokens * gc.TxDataFloorTokenCost
			}
			return tokens * gc.TxDataStandardTokenCost
		}
	}
	f.floorBuilder = func(f *Fork) DataFloorCostFunc {
		gc := f.gasCosts
		calldataGas := f.calldataBuilder(f)
		return func(data []byte) uint64 {
			return calldataGas(data, true) + gc.Transaction
		}
	}
	f.wrapIntrinsic(func(f *Fork, super IntrinsicGasFunc) IntrinsicGasFunc {
		gc := f.gasCosts
		floorCost := f.floorBuilder(f)
		return func(p IntrinsicGasParams) (uint64, error) {
			inner := p
			inner.AuthorizationCount = -1
			inner.PriorExecution = false
			cost, err := super(inner)
			if err != nil {
				return 0, err
			}
			if p.AuthorizationCount >= 0 {
				cost += uint64(p.AuthorizationCount) * gc.Authorization
			}
			if p.PriorExecution {
				return cost, nil
			}
			if floor := floorCost(p.Calldata); floor > cost {
				return floor, nil
			}
			return cost, nil
		}
	})
}

func configureOsaka(f *Fork) {
	f.getPayloadVersion = 5
	f.getBlobsVersion = 2
	f.txGasLimitCap = 16_777_216

	// EIP-7934: 10 MiB block size cap minus a 2 MiB safety margin.
	f.blockRLPSizeLimit = 10_485_760 - 2_097_152

	f.validOpcodes = prependOpcodes(f.validOpcodes, CLZ)
	f.precompiles = prependAddrs(f.precompiles, addr(0x100)) // P256VERIFY

	// EIP-7918: a reserve price keeps excess blob gas growing while
	// execution costs dominate blob costs. Active only on strict
	// inequality.
	f.excessBuilder = func(f *Fork) ExcessBlobGasFunc {
		var (
			perBlob   = f.blobGasPerBlob
			target    = f.targetBlobsPerBlock * perBlob
			maxBlobs  = f.maxBlobsPerBlock
			tgtBlobs  = f.targetBlobsPerBlock
			blobPrice = f.blobPriceBuilder(f)
		)
		const blobBaseCost = 1 << 14
		return func(parent ParentBlobInfo) uint64 {
			if parent.ExcessBlobGas+parent.BlobGasUsed < target {
				return 0
			}
			execSide := new(uint256.Int).Mul(
				uint256.NewInt(blobBaseCost),
				uint256.MustFromBig(parent.BaseFee),
			)
			blobSide := new(uint256.Int).Mul(
				uint256.NewInt(perBlob),
				blobPrice(parent.ExcessBlobGas),
			)
			if execSide.Gt(blobSide) {
				return parent.ExcessBlobGas + parent.BlobGasUsed*(maxBlobs-tgtBlobs)/maxBlobs
			}
			return parent.ExcessBlobGas + parent.BlobGasUsed - target
		}
	}
}

// depositContractAddress is the EIP-6110 beacon chain deposit contract.
var depositContractAddress = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

func prependBytes(list []byte, add ...byte) []byte {
	return append(add, list...)
}

func prependAddrs(list []common.Address, add ...common.Address) []common.Address {
	return append(add, list...)
}

func prependOpcodes(list []Opcode, add ...Opcode) []Opcode {
	return append(add, list...)
}

func addr(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}
