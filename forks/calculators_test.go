package forks

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestMemoryExpansionGas(t *testing.T) {
	f, _ := ByName("Frontier")
	calc := f.MemoryExpansionGasCalculator(0, 0)
	cases := []struct {
		newBytes, prevBytes, want uint64
	}{
		{0, 0, 0},
		{32, 0, 3},
		{32, 32, 0},
		{16, 32, 0},
		{1024, 0, 98},   // 32 words: 3*32 + 32*32/512
		{1024, 512, 50}, // expansion from 16 words
	}
	for _, c := range cases {
		if have := calc(c.newBytes, c.prevBytes); have != c.want {
			t.Errorf("memory expansion %d->%d = %d, want %d", c.prevBytes, c.newBytes, have, c.want)
		}
	}
}

func TestCalldataGas(t *testing.T) {
	data := append(bytes.Repeat([]byte{0}, 10), bytes.Repeat([]byte{1}, 5)...)

	frontier, _ := ByName("Frontier")
	if have := frontier.CalldataGasCalculator(0, 0)(data, false); have != 10*4+5*68 {
		t.Errorf("Frontier calldata gas = %d, want %d", have, 10*4+5*68)
	}
	istanbul, _ := ByName("Istanbul")
	if have := istanbul.CalldataGasCalculator(0, 0)(data, false); have != 10*4+5*16 {
		t.Errorf("Istanbul calldata gas = %d, want %d", have, 10*4+5*16)
	}

	// Prague switches to token pricing: 1 token per zero byte, 4 per
	// non-zero byte.
	prague, _ := ByName("Prague")
	tokens := uint64(10 + 5*4)
	if have := prague.CalldataGasCalculator(0, 0)(data, false); have != tokens*4 {
		t.Errorf("Prague calldata gas = %d, want %d", have, tokens*4)
	}
	if have := prague.CalldataGasCalculator(0, 0)(data, true); have != tokens*10 {
		t.Errorf("Prague floor calldata gas = %d, want %d", have, tokens*10)
	}
}

func TestDataFloorCost(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 4)

	cancun, _ := ByName("Cancun")
	if have := cancun.TransactionDataFloorCostCalculator(0, 0)(data); have != 0 {
		t.Errorf("Cancun floor cost = %d, want 0", have)
	}
	prague, _ := ByName("Prague")
	if have := prague.TransactionDataFloorCostCalculator(0, 0)(data); have != 21000+4*4*10 {
		t.Errorf("Prague floor cost = %d, want %d", have, 21000+4*4*10)
	}
}

func TestIntrinsicGasFrontier(t *testing.T) {
	f, _ := ByName("Frontier")
	calc := f.TransactionIntrinsicCostCalculator(0, 0)

	cost, err := calc(IntrinsicGasParams{AuthorizationCount: -1})
	if err != nil {
		t.Fatal(err)
	}
	if cost != 21000 {
		t.Errorf("empty tx intrinsic = %d, want 21000", cost)
	}

	// Frontier charges no extra for contract creation beyond the initcode
	// word cost.
	cost, err = calc(IntrinsicGasParams{
		Calldata:           bytes.Repeat([]byte{1}, 33),
		ContractCreation:   true,
		AuthorizationCount: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(21000 + 2*2 + 33*68); cost != want {
		t.Errorf("creation intrinsic = %d, want %d", cost, want)
	}

	if _, err := calc(IntrinsicGasParams{
		AccessList:         types.AccessList{{Address: common.Address{1}}},
		AuthorizationCount: -1,
	}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("access list error = %v, want ErrNotSupported", err)
	}
	if _, err := calc(IntrinsicGasParams{AuthorizationCount: 1}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("authorization error = %v, want ErrNotSupported", err)
	}
}

func TestIntrinsicGasHomestead(t *testing.T) {
	f, _ := ByName("Homestead")
	calc := f.TransactionIntrinsicCostCalculator(0, 0)
	cost, err := calc(IntrinsicGasParams{ContractCreation: true, AuthorizationCount: -1})
	if err != nil {
		t.Fatal(err)
	}
	if cost != 21000+32000 {
		t.Errorf("creation intrinsic = %d, want 53000", cost)
	}
}

func TestIntrinsicGasBerlin(t *testing.T) {
	f, _ := ByName("Berlin")
	calc := f.TransactionIntrinsicCostCalculator(0, 0)
	accessList := types.AccessList{
		{Address: common.Address{1}, StorageKeys: []common.Hash{{1}, {2}}},
		{Address: common.Address{2}},
	}
	cost, err := calc(IntrinsicGasParams{AccessList: accessList, AuthorizationCount: -1})
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(21000 + 2*2400 + 2*1900); cost != want {
		t.Errorf("access list intrinsic = %d, want %d", cost, want)
	}
}

func TestIntrinsicGasPrague(t *testing.T) {
	f, _ := ByName("Prague")
	calc := f.TransactionIntrinsicCostCalculator(0, 0)

	cost, err := calc(IntrinsicGasParams{AuthorizationCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(21000 + 2*25000); cost != want {
		t.Errorf("authorization intrinsic = %d, want %d", cost, want)
	}

	// A calldata-heavy transaction hits the EIP-7623 floor: 3000 non-zero
	// bytes are 12000 tokens, floor 21000+120000, standard 21000+48000.
	data := bytes.Repeat([]byte{1}, 3000)
	cost, err = calc(IntrinsicGasParams{Calldata: data, AuthorizationCount: -1})
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(21000 + 12000*10); cost != want {
		t.Errorf("floored intrinsic = %d, want %d", cost, want)
	}

	// The cost deducted prior to execution ignores the floor.
	cost, err = calc(IntrinsicGasParams{Calldata: data, AuthorizationCount: -1, PriorExecution: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(21000 + 12000*4); cost != want {
		t.Errorf("prior-execution intrinsic = %d, want %d", cost, want)
	}
}

func TestBlobGasPrice(t *testing.T) {
	shanghai, _ := ByName("Shanghai")
	if _, err := shanghai.BlobGasPriceCalculator(0, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Shanghai blob price error = %v, want ErrNotSupported", err)
	}

	cancun, _ := ByName("Cancun")
	calc, err := cancun.BlobGasPriceCalculator(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if price := calc(0); !price.IsUint64() || price.Uint64() != 1 {
		t.Errorf("blob price at zero excess = %v, want 1", price)
	}
	// At excess == update fraction the price is floor(e) = 2.
	if price := calc(3338477); !price.IsUint64() || price.Uint64() != 2 {
		t.Errorf("blob price at one fraction = %v, want 2", price)
	}
	// Monotonically non-decreasing in the excess.
	prev := calc(0)
	for excess := uint64(1 << 17); excess <= 40<<17; excess += 1 << 17 {
		price := calc(excess)
		if price.Lt(prev) {
			t.Fatalf("blob price decreased at excess %d", excess)
		}
		prev = price
	}
}

func TestExcessBlobGasCancun(t *testing.T) {
	f, _ := ByName("Cancun")
	calc, err := f.ExcessBlobGasCalculator(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	perBlob := f.BlobGasPerBlob(0, 0)

	// Below target: resets to zero.
	if v := calc(ParentBlobInfo{ExcessBlobGas: 0, BlobGasUsed: 2 * perBlob}); v != 0 {
		t.Errorf("excess below target = %d, want 0", v)
	}
	// Above target: grows by the overshoot.
	if v := calc(ParentBlobInfo{ExcessBlobGas: 0, BlobGasUsed: 6 * perBlob}); v != 3*perBlob {
		t.Errorf("excess = %d, want %d", v, 3*perBlob)
	}
	if v := calc(ParentBlobInfo{ExcessBlobGas: perBlob, BlobGasUsed: 3 * perBlob}); v != perBlob {
		t.Errorf("excess = %d, want %d", v, perBlob)
	}
}

func TestExcessBlobGasOsaka(t *testing.T) {
	f, _ := ByName("Osaka")
	calc, err := f.ExcessBlobGasCalculator(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	perBlob := f.BlobGasPerBlob(0, 0)

	// With a negligible execution base fee the regular update applies:
	// 7 blobs against a target of 6.
	parent := ParentBlobInfo{ExcessBlobGas: 0, BlobGasUsed: 7 * perBlob, BaseFee: big.NewInt(1)}
	if v := calc(parent); v != perBlob {
		t.Errorf("excess = %d, want %d", v, perBlob)
	}

	// A high base fee activates the reserve price: the adjustment is
	// used*(max-target)/max instead.
	parent.BaseFee = big.NewInt(1_000_000)
	want := 7 * perBlob * 3 / 9
	if v := calc(parent); v != want {
		t.Errorf("reserve-price excess = %d, want %d", v, want)
	}

	// Exact equality of the two sides does not activate the reserve price.
	// At zero excess the blob price is the minimum fee of 1, so the blob
	// side is one blob's gas and the execution side matches it at a base
	// fee of blobGasPerBlob/blobBaseCost.
	parent.BaseFee = big.NewInt(int64(perBlob / (1 << 14)))
	if v := calc(parent); v != perBlob {
		t.Errorf("excess at price equality = %d, want %d", v, perBlob)
	}
	// One above the equality point tips it over.
	parent.BaseFee.Add(parent.BaseFee, big.NewInt(1))
	if v := calc(parent); v != want {
		t.Errorf("excess just past equality = %d, want %d", v, want)
	}

	// Below target still resets regardless of the base fee.
	parent.BlobGasUsed = 2 * perBlob
	if v := calc(parent); v != 0 {
		t.Errorf("excess below target = %d, want 0", v)
	}
}

func TestBaseFeeCalculator(t *testing.T) {
	berlin, _ := ByName("Berlin")
	if _, err := berlin.BaseFeeCalculator(0, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Berlin base fee error = %v, want ErrNotSupported", err)
	}

	london, _ := ByName("London")
	calc, err := london.BaseFeeCalculator(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		gasUsed uint64
		baseFee int64
		want    int64
	}{
		{10_000_000, 1000, 1000}, // at target
		{20_000_000, 1000, 1125}, // full block: +12.5%
		{0, 1000, 875},           // empty block: -12.5%
		{10_000_001, 7, 8},       // increase rounds up to at least 1
		{0, 0, 0},                // base fee cannot go negative
	}
	for _, c := range cases {
		parent := ParentFeeInfo{
			GasUsed:  c.gasUsed,
			GasLimit: 20_000_000,
			BaseFee:  big.NewInt(c.baseFee),
		}
		if have := calc(parent); have.Int64() != c.want {
			t.Errorf("base fee after (used=%d, fee=%d) = %v, want %d", c.gasUsed, c.baseFee, have, c.want)
		}
	}
}

func TestFakeExponential(t *testing.T) {
	cases := []struct {
		factor, numerator, denominator, want uint64
	}{
		{1, 0, 1, 1},
		{38493, 0, 1000, 38493},
		{1, 2, 1, 6},  // e^2 = 7.39 truncates through the Taylor series
		{1, 5, 2, 11}, // e^2.5 = 12.18
		{1, 50000000, 2225652, 5709098764},
	}
	for _, c := range cases {
		have := fakeExponential(c.factor, c.numerator, c.denominator)
		if !have.IsUint64() || have.Uint64() != c.want {
			t.Errorf("fakeExponential(%d, %d, %d) = %v, want %d", c.factor, c.numerator, c.denominator, have, c.want)
		}
	}
}
