package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testScenario = `
name: simple-transfer
fork: cancun
chainId: 7
fundPool: "1000000000000000000"
pre:
  "0x000000000000000000000000000000000000c0de":
    balance: "0x10"
    nonce: 1
    code: "0x6001600101"
    storage:
      "0x01": "0x02"
blocks:
  - timestamp: 24
    txs:
      - from: 0
        to: "0x000000000000000000000000000000000000c0de"
        gas: 100000
        gasPrice: "10"
        value: "1"
  - gasLimit: 20000000
    exception: "BlockException.INCORRECT_BLOCK_FORMAT"
post:
  "0x000000000000000000000000000000000000c0de":
    balance: "0x11"
    nonce: 1
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, bt, err := loadScenario(writeScenario(t, testScenario))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "simple-transfer" {
		t.Errorf("wrong name %q", sc.Name)
	}
	if bt.Fork.Name() != "Cancun" {
		t.Errorf("wrong fork %q", bt.Fork.Name())
	}
	if bt.ChainID != 7 {
		t.Errorf("wrong chain id %d", bt.ChainID)
	}

	contract := common.HexToAddress("0x000000000000000000000000000000000000c0de")
	acct := bt.Pre[contract]
	if acct == nil {
		t.Fatal("contract account missing from pre-state")
	}
	if acct.Balance.ToInt().Uint64() != 0x10 {
		t.Errorf("wrong balance %v", acct.Balance)
	}
	if len(acct.Code) != 5 {
		t.Errorf("wrong code length %d", len(acct.Code))
	}
	if acct.Storage[common.HexToHash("0x01")] != common.HexToHash("0x02") {
		t.Errorf("wrong storage: %v", acct.Storage)
	}

	// fundPool adds the built-in senders alongside explicit accounts.
	if len(bt.Pre) != 11 {
		t.Errorf("pre-state has %d accounts, want 11", len(bt.Pre))
	}

	if len(bt.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(bt.Blocks))
	}
	b1 := bt.Blocks[0]
	if b1.Timestamp == nil || *b1.Timestamp != 24 {
		t.Errorf("block 1 timestamp not resolved: %v", b1.Timestamp)
	}
	if len(b1.Txs) != 1 {
		t.Fatalf("block 1 has %d txs, want 1", len(b1.Txs))
	}
	tx := b1.Txs[0]
	if tx.Key == nil {
		t.Error("tx key not resolved from pool")
	}
	if to := tx.Data.(*types.LegacyTx).To; to == nil || *to != contract {
		t.Errorf("tx destination not resolved: %v", to)
	}
	b2 := bt.Blocks[1]
	if b2.GasLimit == nil || *b2.GasLimit != 20000000 {
		t.Errorf("block 2 gas limit not resolved: %v", b2.GasLimit)
	}
	if b2.Exception != "BlockException.INCORRECT_BLOCK_FORMAT" {
		t.Errorf("block 2 exception not resolved: %q", b2.Exception)
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
	}{
		{"no name", "fork: cancun\n"},
		{"unknown fork", "name: x\nfork: atlantis\n"},
		{"bad quantity", "name: x\nfork: cancun\nfundPool: \"10q\"\n"},
		{
			"bad tx data",
			"name: x\nfork: cancun\nblocks:\n  - txs:\n      - data: \"zz\"\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := loadScenario(writeScenario(t, test.scenario))
			if err == nil {
				t.Fatal("scenario loaded without error")
			}
		})
	}
}
