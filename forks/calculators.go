package forks

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// MemoryExpansionGasFunc computes the gas charged for growing memory from
// previousBytes to newBytes.
type MemoryExpansionGasFunc func(newBytes, previousBytes uint64) uint64

// CalldataGasFunc computes the calldata portion of a transaction's gas cost.
// With floor set, the EIP-7623 floor token price is used instead of the
// standard token price; pre-Prague forks ignore the flag.
type CalldataGasFunc func(data []byte, floor bool) uint64

// DataFloorCostFunc computes the EIP-7623 minimum cost of a transaction
// given its calldata. Zero before Prague.
type DataFloorCostFunc func(data []byte) uint64

// IntrinsicGasParams are the inputs to an IntrinsicGasFunc.
type IntrinsicGasParams struct {
	Calldata         []byte
	ContractCreation bool
	AccessList       types.AccessList
	// AuthorizationCount is the number of EIP-7702 authorization tuples.
	// Negative means the transaction carries no authorization list.
	AuthorizationCount int
	// PriorExecution requests the cost deducted before execution begins,
	// i.e. before the data floor cost is taken into account.
	PriorExecution bool
}

// IntrinsicGasFunc computes the intrinsic gas cost of a transaction.
// It returns an error when the transaction uses a feature (access lists,
// authorizations) the fork does not support.
type IntrinsicGasFunc func(p IntrinsicGasParams) (uint64, error)

// BlobGasPriceFunc computes the blob base fee from the excess blob gas.
type BlobGasPriceFunc func(excessBlobGas uint64) *uint256.Int

// ParentBlobInfo carries the parent block fields that determine the next
// block's excess blob gas.
type ParentBlobInfo struct {
	ExcessBlobGas uint64
	BlobGasUsed   uint64
	// BaseFee is the parent's base fee per gas. Required from Osaka on,
	// where EIP-7918 compares execution and blob pricing.
	BaseFee *big.Int
}

// ExcessBlobGasFunc computes the excess blob gas of the next block.
type ExcessBlobGasFunc func(parent ParentBlobInfo) uint64

// ParentFeeInfo carries the parent block fields that determine the next
// block's base fee per gas.
type ParentFeeInfo struct {
	GasUsed  uint64
	GasLimit uint64
	BaseFee  *big.Int
}

// BaseFeeFunc computes the base fee of the next block per EIP-1559.
type BaseFeeFunc func(parent ParentFeeInfo) *big.Int

const (
	baseFeeChangeDenominator = 8
	elasticityMultiplier     = 2
)

// newBaseFeeCalculator returns the EIP-1559 base fee update rule.
func newBaseFeeCalculator() BaseFeeFunc {
	return func(parent ParentFeeInfo) *big.Int {
		parentGasTarget := parent.GasLimit / elasticityMultiplier
		if parent.GasUsed == parentGasTarget {
			return new(big.Int).Set(parent.BaseFee)
		}
		var (
			num   = new(big.Int)
			denom = new(big.Int)
		)
		if parent.GasUsed > parentGasTarget {
			num.SetUint64(parent.GasUsed - parentGasTarget)
			num.Mul(num, parent.BaseFee)
			num.Div(num, denom.SetUint64(parentGasTarget))
			num.Div(num, denom.SetUint64(baseFeeChangeDenominator))
			if num.Sign() == 0 {
				num.SetUint64(1)
			}
			return num.Add(parent.BaseFee, num)
		}
		num.SetUint64(parentGasTarget - parent.GasUsed)
		num.Mul(num, parent.BaseFee)
		num.Div(num, denom.SetUint64(parentGasTarget))
		num.Div(num, denom.SetUint64(baseFeeChangeDenominator))
		out := num.Sub(parent.BaseFee, num)
		if out.Sign() < 0 {
			out.SetUint64(0)
		}
		return out
	}
}
