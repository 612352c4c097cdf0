package forks

import (
	"errors"
	"math/big"
	"testing"
)

func TestForkOrdering(t *testing.T) {
	want := []string{
		"Frontier", "Homestead", "Byzantium", "Constantinople",
		"ConstantinopleFix", "Istanbul", "Berlin", "London", "Paris",
		"Shanghai", "Cancun", "Prague", "Osaka",
	}
	all := All()
	if len(all) != len(want) {
		t.Fatalf("have %d forks, want %d", len(all), len(want))
	}
	for i, f := range all {
		if f.Name() != want[i] {
			t.Errorf("fork %d: name %q, want %q", i, f.Name(), want[i])
		}
		if i > 0 && f.Parent() != all[i-1] {
			t.Errorf("fork %s: wrong parent %v", f.Name(), f.Parent())
		}
	}
	if Latest().Name() != "Osaka" {
		t.Errorf("latest fork is %s", Latest().Name())
	}
}

func TestByName(t *testing.T) {
	f, err := ByName("cancun")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() != "Cancun" {
		t.Errorf("ByName(cancun) = %s", f.Name())
	}
	if _, err := ByName("NotAFork"); !errors.Is(err, ErrUnknownFork) {
		t.Errorf("ByName(NotAFork) error = %v, want ErrUnknownFork", err)
	}
}

// Inherited parameter lists must be supersets of the parent's: additions are
// always prepended, so the parent's list is a suffix of the child's.
func TestInheritanceSupersets(t *testing.T) {
	for _, f := range All() {
		p := f.Parent()
		if p == nil {
			continue
		}
		checkSuffix(t, f.Name()+" txTypes", f.TxTypes(0, 0), p.TxTypes(0, 0))
		checkSuffix(t, f.Name()+" precompiles", f.Precompiles(0, 0), p.Precompiles(0, 0))
		checkSuffix(t, f.Name()+" systemContracts", f.SystemContracts(0, 0), p.SystemContracts(0, 0))
		checkSuffix(t, f.Name()+" validOpcodes", f.ValidOpcodes(), p.ValidOpcodes())
	}
}

func checkSuffix[T comparable](t *testing.T, name string, child, parent []T) {
	t.Helper()
	if len(child) < len(parent) {
		t.Errorf("%s: child list shorter than parent's", name)
		return
	}
	tail := child[len(child)-len(parent):]
	for i := range parent {
		if tail[i] != parent[i] {
			t.Errorf("%s: parent entry %d missing from child", name, i)
			return
		}
	}
}

func TestRewards(t *testing.T) {
	cases := []struct {
		fork string
		wei  *big.Int
	}{
		{"Frontier", big.NewInt(5e18)},
		{"Homestead", big.NewInt(5e18)},
		{"Byzantium", big.NewInt(3e18)},
		{"Constantinople", big.NewInt(2e18)},
		{"London", big.NewInt(2e18)},
		{"Paris", new(big.Int)},
		{"Osaka", new(big.Int)},
	}
	for _, c := range cases {
		f, err := ByName(c.fork)
		if err != nil {
			t.Fatal(err)
		}
		if f.Reward(0, 0).Cmp(c.wei) != 0 {
			t.Errorf("%s reward = %v, want %v", c.fork, f.Reward(0, 0), c.wei)
		}
	}
}

func TestTransitionToolName(t *testing.T) {
	paris, _ := ByName("Paris")
	if name := paris.TransitionToolName(0, 0); name != "Merge" {
		t.Errorf("Paris t8n name = %q, want Merge", name)
	}
	shanghai, _ := ByName("Shanghai")
	if name := shanghai.TransitionToolName(0, 0); name != "Shanghai" {
		t.Errorf("Shanghai t8n name = %q", name)
	}
}

func TestHeaderRequirements(t *testing.T) {
	type reqs struct {
		baseFee, prevRandao, zeroDiff, withdrawals bool
		excessBlobGas, blobGasUsed, beaconRoot     bool
		requests                                   bool
	}
	get := func(f *Fork) reqs {
		return reqs{
			baseFee:       f.HeaderBaseFeeRequired(0, 0),
			prevRandao:    f.HeaderPrevRandaoRequired(0, 0),
			zeroDiff:      f.HeaderZeroDifficultyRequired(0, 0),
			withdrawals:   f.HeaderWithdrawalsRequired(0, 0),
			excessBlobGas: f.HeaderExcessBlobGasRequired(0, 0),
			blobGasUsed:   f.HeaderBlobGasUsedRequired(0, 0),
			beaconRoot:    f.HeaderBeaconRootRequired(0, 0),
			requests:      f.HeaderRequestsRequired(0, 0),
		}
	}
	cases := []struct {
		fork string
		want reqs
	}{
		{"Berlin", reqs{}},
		{"London", reqs{baseFee: true}},
		{"Paris", reqs{baseFee: true, prevRandao: true, zeroDiff: true}},
		{"Shanghai", reqs{baseFee: true, prevRandao: true, zeroDiff: true, withdrawals: true}},
		{"Cancun", reqs{
			baseFee: true, prevRandao: true, zeroDiff: true, withdrawals: true,
			excessBlobGas: true, blobGasUsed: true, beaconRoot: true,
		}},
		{"Prague", reqs{
			baseFee: true, prevRandao: true, zeroDiff: true, withdrawals: true,
			excessBlobGas: true, blobGasUsed: true, beaconRoot: true, requests: true,
		}},
	}
	for _, c := range cases {
		f, err := ByName(c.fork)
		if err != nil {
			t.Fatal(err)
		}
		if have := get(f); have != c.want {
			t.Errorf("%s header requirements = %+v, want %+v", c.fork, have, c.want)
		}
	}
}

func TestEngineVersions(t *testing.T) {
	cases := []struct {
		fork                                         string
		newPayload, forkchoice, getPayload, getBlobs int
	}{
		{"London", 0, 0, 0, 0},
		{"Paris", 1, 1, 1, 0},
		{"Shanghai", 2, 2, 2, 0},
		{"Cancun", 3, 3, 3, 1},
		{"Prague", 4, 3, 4, 1},
		{"Osaka", 4, 3, 5, 2},
	}
	for _, c := range cases {
		f, err := ByName(c.fork)
		if err != nil {
			t.Fatal(err)
		}
		if v := f.EngineNewPayloadVersion(0, 0); v != c.newPayload {
			t.Errorf("%s newPayload version = %d, want %d", c.fork, v, c.newPayload)
		}
		if v := f.EngineForkchoiceUpdatedVersion(0, 0); v != c.forkchoice {
			t.Errorf("%s forkchoiceUpdated version = %d, want %d", c.fork, v, c.forkchoice)
		}
		if v := f.EngineGetPayloadVersion(0, 0); v != c.getPayload {
			t.Errorf("%s getPayload version = %d, want %d", c.fork, v, c.getPayload)
		}
		if v := f.EngineGetBlobsVersion(0, 0); v != c.getBlobs {
			t.Errorf("%s getBlobs version = %d, want %d", c.fork, v, c.getBlobs)
		}
	}
}

func TestTxTypes(t *testing.T) {
	osaka, _ := ByName("Osaka")
	want := []byte{4, 3, 2, 1, 0}
	have := osaka.TxTypes(0, 0)
	if len(have) != len(want) {
		t.Fatalf("tx types %v, want %v", have, want)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("tx types %v, want %v", have, want)
		}
	}
	// Blob and set-code transactions cannot deploy contracts.
	for _, typ := range []byte{3, 4} {
		for _, c := range osaka.ContractCreatingTxTypes(0, 0) {
			if c == typ {
				t.Errorf("type %d transaction must not be contract-creating", typ)
			}
		}
	}
	if !osaka.SupportsTxType(4) {
		t.Error("Osaka must support type 4 transactions")
	}
	berlin, _ := ByName("Berlin")
	if berlin.SupportsTxType(2) {
		t.Error("Berlin must not support type 2 transactions")
	}
}

func TestBlobParams(t *testing.T) {
	shanghai, _ := ByName("Shanghai")
	if _, err := shanghai.TargetBlobsPerBlock(0, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Shanghai target blobs error = %v, want ErrNotSupported", err)
	}
	if shanghai.BlobSchedule(0, 0) != nil {
		t.Error("Shanghai must have no blob schedule")
	}

	cancun, _ := ByName("Cancun")
	checkBlobs(t, cancun, 3, 6, 3338477)
	prague, _ := ByName("Prague")
	checkBlobs(t, prague, 6, 9, 5007716)
	osaka, _ := ByName("Osaka")
	checkBlobs(t, osaka, 6, 9, 5007716)

	sched := osaka.BlobSchedule(0, 0)
	if sched.Len() != 3 {
		t.Fatalf("Osaka blob schedule has %d entries, want 3", sched.Len())
	}
	entry, ok := sched.Get("prague")
	if !ok {
		t.Fatal("Prague missing from Osaka blob schedule")
	}
	if entry.MaxBlobsPerBlock != 9 {
		t.Errorf("schedule prague max = %d, want 9", entry.MaxBlobsPerBlock)
	}
}

func checkBlobs(t *testing.T, f *Fork, target, max, fraction uint64) {
	t.Helper()
	if v, err := f.TargetBlobsPerBlock(0, 0); err != nil || v != target {
		t.Errorf("%s target blobs = %d (%v), want %d", f, v, err, target)
	}
	if v, err := f.MaxBlobsPerBlock(0, 0); err != nil || v != max {
		t.Errorf("%s max blobs = %d (%v), want %d", f, v, err, max)
	}
	if v, err := f.BlobBaseFeeUpdateFraction(0, 0); err != nil || v != fraction {
		t.Errorf("%s update fraction = %d (%v), want %d", f, v, err, fraction)
	}
	if f.BlobGasPerBlob(0, 0) != 1<<17 {
		t.Errorf("%s blob gas per blob = %d", f, f.BlobGasPerBlob(0, 0))
	}
}

func TestSizeLimits(t *testing.T) {
	prague, _ := ByName("Prague")
	if _, ok := prague.TransactionGasLimitCap(0, 0); ok {
		t.Error("Prague must not cap the transaction gas limit")
	}
	if _, ok := prague.BlockRLPSizeLimit(0, 0); ok {
		t.Error("Prague must not limit block RLP size")
	}
	osaka, _ := ByName("Osaka")
	if gasCap, ok := osaka.TransactionGasLimitCap(0, 0); !ok || gasCap != 16_777_216 {
		t.Errorf("Osaka tx gas limit cap = %d, %v", gasCap, ok)
	}
	if limit, ok := osaka.BlockRLPSizeLimit(0, 0); !ok || limit != 8_388_608 {
		t.Errorf("Osaka block RLP size limit = %d, %v", limit, ok)
	}
}

func TestMaxRequestType(t *testing.T) {
	cancun, _ := ByName("Cancun")
	if v := cancun.MaxRequestType(0, 0); v != -1 {
		t.Errorf("Cancun max request type = %d, want -1", v)
	}
	prague, _ := ByName("Prague")
	if v := prague.MaxRequestType(0, 0); v != 2 {
		t.Errorf("Prague max request type = %d, want 2", v)
	}
}

func TestPreAllocation(t *testing.T) {
	shanghai, _ := ByName("Shanghai")
	if n := len(shanghai.PreAllocation()); n != 0 {
		t.Errorf("Shanghai pre-allocation has %d accounts, want 0", n)
	}

	cancun, _ := ByName("Cancun")
	alloc := cancun.PreAllocation()
	if len(alloc) != 1 {
		t.Fatalf("Cancun pre-allocation has %d accounts, want 1", len(alloc))
	}
	for _, acct := range alloc {
		if acct.Nonce != 1 || len(acct.Code) == 0 {
			t.Errorf("predeploy account %+v", acct)
		}
	}

	prague, _ := ByName("Prague")
	if n := len(prague.PreAllocation()); n != 4 {
		t.Errorf("Prague pre-allocation has %d accounts, want 4", n)
	}

	// The returned map is a copy.
	for addr := range alloc {
		delete(alloc, addr)
	}
	if len(cancun.PreAllocation()) != 1 {
		t.Error("mutating the returned pre-allocation changed the fork")
	}
}

func TestGasCostTable(t *testing.T) {
	berlin, _ := ByName("Berlin")
	if gc := berlin.GasCosts(0, 0); gc.TxDataNonZero != 16 {
		t.Errorf("Berlin non-zero calldata cost = %d, want 16", gc.TxDataNonZero)
	}
	homestead, _ := ByName("Homestead")
	if gc := homestead.GasCosts(0, 0); gc.TxDataNonZero != 68 {
		t.Errorf("Homestead non-zero calldata cost = %d, want 68", gc.TxDataNonZero)
	}
	prague, _ := ByName("Prague")
	gc := prague.GasCosts(0, 0)
	if gc.TxDataStandardTokenCost != 4 || gc.TxDataFloorTokenCost != 10 {
		t.Errorf("Prague token costs = %d/%d", gc.TxDataStandardTokenCost, gc.TxDataFloorTokenCost)
	}
	if gc.Authorization != 25000 || gc.AuthorizationExistingAuthorityRefund != 12500 {
		t.Errorf("Prague authorization costs = %d/%d", gc.Authorization, gc.AuthorizationExistingAuthorityRefund)
	}
}
