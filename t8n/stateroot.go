package t8n

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// StateRoot computes the state trie root of the snapshot by committing it as
// a genesis allocation to an in-memory state database.
func (a Alloc) StateRoot() common.Hash {
	g := core.Genesis{
		Config:     params.AllEthashProtocolChanges,
		Difficulty: new(big.Int),
		Alloc:      a.genesisAlloc(),
	}
	return g.ToBlock().Root()
}

func (a Alloc) genesisAlloc() types.GenesisAlloc {
	out := make(types.GenesisAlloc, len(a))
	for addr, acct := range a {
		ga := types.Account{
			Nonce:   uint64(acct.Nonce),
			Balance: new(big.Int),
			Code:    acct.Code,
		}
		if acct.Balance != nil {
			ga.Balance = acct.Balance.ToInt()
		}
		if len(acct.Storage) > 0 {
			ga.Storage = make(map[common.Hash]common.Hash, len(acct.Storage))
			for k, v := range acct.Storage {
				ga.Storage[k] = v
			}
		}
		out[addr] = ga
	}
	return out
}
