package t8n

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// ErrAllocCollision is returned by Merge when both snapshots define the same
// address.
var ErrAllocCollision = errors.New("allocation address collision")

// Copy returns a deep copy of the snapshot.
func (a Alloc) Copy() Alloc {
	out := make(Alloc, len(a))
	for addr, acct := range a {
		out[addr] = acct.Copy()
	}
	return out
}

// Copy returns a deep copy of the account.
func (acct *Account) Copy() *Account {
	if acct == nil {
		return nil
	}
	cpy := &Account{
		Nonce: acct.Nonce,
		Code:  append(hexutil.Bytes(nil), acct.Code...),
	}
	if acct.Balance != nil {
		cpy.Balance = (*hexutil.Big)(new(big.Int).Set(acct.Balance.ToInt()))
	}
	if acct.Storage != nil {
		cpy.Storage = make(map[common.Hash]common.Hash, len(acct.Storage))
		for k, v := range acct.Storage {
			cpy.Storage[k] = v
		}
	}
	return cpy
}

// Empty reports whether the account has zero balance, zero nonce and no code.
// Storage alone does not keep an account alive.
func (acct *Account) Empty() bool {
	if acct == nil {
		return true
	}
	if acct.Nonce != 0 || len(acct.Code) > 0 {
		return false
	}
	return acct.Balance == nil || acct.Balance.ToInt().Sign() == 0
}

// Equal reports whether two accounts are semantically identical. Zero-valued
// storage slots are treated as absent.
func (acct *Account) Equal(other *Account) bool {
	if acct == nil || other == nil {
		return acct.Empty() && other.Empty()
	}
	if acct.Nonce != other.Nonce || !bytes.Equal(acct.Code, other.Code) {
		return false
	}
	if balance(acct).Cmp(balance(other)) != 0 {
		return false
	}
	return storageEqual(acct.Storage, other.Storage)
}

func balance(acct *Account) *big.Int {
	if acct.Balance == nil {
		return new(big.Int)
	}
	return acct.Balance.ToInt()
}

func storageEqual(a, b map[common.Hash]common.Hash) bool {
	for k, v := range a {
		if v != (common.Hash{}) && b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if v != (common.Hash{}) && a[k] != v {
			return false
		}
	}
	return true
}

// Merge combines two snapshots into a new one. A shared address is a
// construction error, not a silent override.
func (a Alloc) Merge(other Alloc) (Alloc, error) {
	out := a.Copy()
	for addr, acct := range other {
		if _, ok := out[addr]; ok {
			return nil, errors.Wrap(ErrAllocCollision, addr.Hex())
		}
		out[addr] = acct.Copy()
	}
	return out, nil
}

// PruneEmpty removes empty accounts in place and returns the snapshot.
func (a Alloc) PruneEmpty() Alloc {
	for addr, acct := range a {
		if acct.Empty() {
			delete(a, addr)
		}
	}
	return a
}

// Equal reports whether both snapshots describe the same world state.
func (a Alloc) Equal(other Alloc) bool {
	for addr, acct := range a {
		if !acct.Equal(other[addr]) {
			return false
		}
	}
	for addr, acct := range other {
		if _, ok := a[addr]; !ok && !acct.Empty() {
			return false
		}
	}
	return true
}

// Addresses returns the snapshot's addresses in lexicographic order.
func (a Alloc) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(a))
	for addr := range a {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// AllocDiff is the state difference between two snapshots. A nil account
// marks a deletion; any other entry is the full new account value.
type AllocDiff map[common.Address]*Account

// Diff computes the difference from a to b. Addresses only in a are marked
// deleted, addresses only in b created, addresses differing between the two
// modified, and addresses equal in both omitted.
func (a Alloc) Diff(b Alloc) AllocDiff {
	diff := make(AllocDiff)
	for addr := range a {
		if _, ok := b[addr]; !ok {
			diff[addr] = nil
		}
	}
	for addr, acct := range b {
		old, ok := a[addr]
		if !ok || !old.Equal(acct) {
			diff[addr] = acct.Copy()
		}
	}
	return diff
}

// Apply folds a diff into the snapshot, returning a new snapshot.
func (a Alloc) Apply(diff AllocDiff) Alloc {
	out := a.Copy()
	for addr, acct := range diff {
		if acct == nil {
			delete(out, addr)
		} else {
			out[addr] = acct.Copy()
		}
	}
	return out
}
