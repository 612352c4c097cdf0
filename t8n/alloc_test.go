package t8n

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func account(balance int64, nonce uint64, code []byte) *Account {
	return &Account{
		Balance: (*hexutil.Big)(big.NewInt(balance)),
		Nonce:   hexutil.Uint64(nonce),
		Code:    code,
	}
}

func TestAccountEmpty(t *testing.T) {
	cases := []struct {
		acct *Account
		want bool
	}{
		{nil, true},
		{&Account{}, true},
		{account(0, 0, nil), true},
		{account(1, 0, nil), false},
		{account(0, 1, nil), false},
		{account(0, 0, []byte{0x60}), false},
		{&Account{Storage: map[common.Hash]common.Hash{{1}: {2}}}, true},
	}
	for i, c := range cases {
		if have := c.acct.Empty(); have != c.want {
			t.Errorf("case %d: Empty() = %v, want %v", i, have, c.want)
		}
	}
}

func TestAllocMergeCollision(t *testing.T) {
	addr := common.Address{1}
	a := Alloc{addr: account(1, 0, nil)}
	b := Alloc{addr: account(2, 0, nil)}
	if _, err := a.Merge(b); !errors.Is(err, ErrAllocCollision) {
		t.Fatalf("merge error = %v, want ErrAllocCollision", err)
	}

	c := Alloc{common.Address{2}: account(2, 0, nil)}
	merged, err := a.Merge(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 2 {
		t.Fatalf("merged alloc has %d accounts, want 2", len(merged))
	}
	// Merge copies: mutating the result must not touch the inputs.
	merged[addr].Nonce = 99
	if a[addr].Nonce != 0 {
		t.Error("merge aliased the input alloc")
	}
}

func TestAllocPruneEmpty(t *testing.T) {
	a := Alloc{
		{1}: account(1, 0, nil),
		{2}: account(0, 0, nil),
		{3}: nil,
	}
	a.PruneEmpty()
	if len(a) != 1 {
		t.Fatalf("pruned alloc has %d accounts, want 1", len(a))
	}
	if _, ok := a[common.Address{1}]; !ok {
		t.Error("non-empty account was pruned")
	}
}

func TestAllocEqual(t *testing.T) {
	a := Alloc{
		{1}: account(5, 1, []byte{0x60}),
		{2}: {Storage: map[common.Hash]common.Hash{{9}: {}}},
	}
	b := Alloc{
		{1}: account(5, 1, []byte{0x60}),
	}
	// Zero-valued storage and empty accounts do not break equality.
	if !a.Equal(b) || !b.Equal(a) {
		t.Error("allocs with only empty differences must be equal")
	}
	b[common.Address{1}].Nonce = 2
	if a.Equal(b) {
		t.Error("allocs with differing nonces must not be equal")
	}
}

// Applying a computed diff to the base state must reconstruct the target
// state exactly.
func TestAllocDiffRoundTrip(t *testing.T) {
	base := Alloc{
		{1}: account(100, 1, nil),         // will be modified
		{2}: account(50, 0, []byte{0x00}), // will be deleted
		{3}: account(7, 7, nil),           // unchanged
	}
	target := Alloc{
		{1}: account(90, 2, nil),
		{3}: account(7, 7, nil),
		{4}: account(1, 0, nil), // created
	}

	diff := base.Diff(target)
	if len(diff) != 3 {
		t.Fatalf("diff has %d entries, want 3:\n%s", len(diff), spew.Sdump(diff))
	}
	if diff[common.Address{2}] != nil {
		t.Error("deleted address must map to the deletion marker")
	}
	if _, ok := diff[common.Address{3}]; ok {
		t.Error("unchanged address must be omitted from the diff")
	}

	rebuilt := base.Apply(diff)
	if !reflect.DeepEqual(rebuilt, target) {
		t.Fatalf("diff round trip mismatch:\nhave %swant %s", spew.Sdump(rebuilt), spew.Sdump(target))
	}
}

func TestAllocAddressesSorted(t *testing.T) {
	a := Alloc{{3}: nil, {1}: nil, {2}: nil}
	addrs := a.Addresses()
	want := []common.Address{{1}, {2}, {3}}
	if !reflect.DeepEqual(addrs, want) {
		t.Fatalf("addresses = %v, want %v", addrs, want)
	}
}
