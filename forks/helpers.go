package forks

import "github.com/holiman/uint256"

// ceilDiv computes ceil(a/b).
func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// fakeExponential approximates factor * e**(numerator/denominator) using
// Taylor expansion, as defined by EIP-4844. The accumulator can exceed 64
// bits for large excess values, so the sum is carried in 256-bit integers.
func fakeExponential(factor, numerator, denominator uint64) *uint256.Int {
	var (
		i      = uint256.NewInt(1)
		output = uint256.NewInt(0)
		num    = uint256.NewInt(numerator)
		denom  = uint256.NewInt(denominator)
		accum  = new(uint256.Int).Mul(uint256.NewInt(factor), denom)
	)
	for accum.Sign() > 0 {
		output.Add(output, accum)
		accum.Mul(accum, num)
		accum.Div(accum, new(uint256.Int).Mul(denom, i))
		i.AddUint64(i, 1)
	}
	return output.Div(output, denom)
}
