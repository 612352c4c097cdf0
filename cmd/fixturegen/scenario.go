package main

import (
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturegen/blocktest"
	"github.com/ethereum/fixturegen/forks"
	"github.com/ethereum/fixturegen/t8n"
)

// scenario is the YAML description of one chain test. Quantities accept
// decimal or 0x-prefixed hex.
type scenario struct {
	Name    string                     `yaml:"name"`
	Fork    string                     `yaml:"fork"`
	ChainID uint64                     `yaml:"chainId"`
	Pre     map[string]scenarioAccount `yaml:"pre"`
	Blocks  []scenarioBlock            `yaml:"blocks"`
	Post    map[string]scenarioAccount `yaml:"post"`

	// FundPool adds the built-in sender accounts to the pre-state with
	// the given balance, so transactions need no explicit keys.
	FundPool string `yaml:"fundPool"`
}

type scenarioAccount struct {
	Balance string            `yaml:"balance"`
	Nonce   uint64            `yaml:"nonce"`
	Code    string            `yaml:"code"`
	Storage map[string]string `yaml:"storage"`
}

type scenarioBlock struct {
	Coinbase  string       `yaml:"coinbase"`
	GasLimit  *uint64      `yaml:"gasLimit"`
	Timestamp *uint64      `yaml:"timestamp"`
	Txs       []scenarioTx `yaml:"txs"`
	Exception string       `yaml:"exception"`

	Withdrawals []scenarioWithdrawal `yaml:"withdrawals"`
}

type scenarioTx struct {
	From     int    `yaml:"from"` // funded pool index
	To       string `yaml:"to"`
	Nonce    uint64 `yaml:"nonce"`
	Gas      uint64 `yaml:"gas"`
	GasPrice string `yaml:"gasPrice"`
	Value    string `yaml:"value"`
	Data     string `yaml:"data"`
	Error    string `yaml:"error"`
}

type scenarioWithdrawal struct {
	Index     uint64 `yaml:"index"`
	Validator uint64 `yaml:"validator"`
	Address   string `yaml:"address"`
	Amount    uint64 `yaml:"amount"`
}

// loadScenario reads and resolves one scenario file into a chain test.
func loadScenario(path string) (*scenario, *blocktest.BlockchainTest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var sc scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing %s", path)
	}
	if sc.Name == "" {
		return nil, nil, errors.Errorf("%s: scenario has no name", path)
	}
	bt, err := sc.resolve()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "scenario %s", sc.Name)
	}
	return &sc, bt, nil
}

func (sc *scenario) resolve() (*blocktest.BlockchainTest, error) {
	fork, err := forks.ByName(sc.Fork)
	if err != nil {
		return nil, err
	}
	pre, err := resolveAlloc(sc.Pre)
	if err != nil {
		return nil, errors.Wrap(err, "pre")
	}
	if sc.FundPool != "" {
		balance, err := parseBig(sc.FundPool)
		if err != nil {
			return nil, errors.Wrap(err, "fundPool")
		}
		for _, addr := range blocktest.FundedAccounts() {
			pre[addr] = &t8n.Account{Balance: (*hexutil.Big)(balance)}
		}
	}
	post, err := resolveAlloc(sc.Post)
	if err != nil {
		return nil, errors.Wrap(err, "post")
	}

	blocks := make([]*blocktest.Block, len(sc.Blocks))
	for i, sb := range sc.Blocks {
		block := &blocktest.Block{
			GasLimit:  sb.GasLimit,
			Timestamp: sb.Timestamp,
			Exception: sb.Exception,
		}
		if sb.Coinbase != "" {
			addr := common.HexToAddress(sb.Coinbase)
			block.Coinbase = &addr
		}
		for _, sw := range sb.Withdrawals {
			block.Withdrawals = append(block.Withdrawals, &types.Withdrawal{
				Index:     sw.Index,
				Validator: sw.Validator,
				Address:   common.HexToAddress(sw.Address),
				Amount:    sw.Amount,
			})
		}
		for j, st := range sb.Txs {
			desc, err := st.resolve()
			if err != nil {
				return nil, errors.Wrapf(err, "block %d tx %d", i+1, j)
			}
			block.Txs = append(block.Txs, desc)
		}
		blocks[i] = block
	}

	return &blocktest.BlockchainTest{
		Fork:    fork,
		Pre:     pre,
		Post:    post,
		Blocks:  blocks,
		ChainID: sc.ChainID,
	}, nil
}

func (st *scenarioTx) resolve() (*blocktest.TxDesc, error) {
	gasPrice, err := parseBig(st.GasPrice)
	if err != nil {
		return nil, errors.Wrap(err, "gasPrice")
	}
	value, err := parseBig(st.Value)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	data, err := parseBytes(st.Data)
	if err != nil {
		return nil, errors.Wrap(err, "data")
	}
	tx := &types.LegacyTx{
		Nonce:    st.Nonce,
		GasPrice: gasPrice,
		Gas:      st.Gas,
		Value:    value,
		Data:     data,
	}
	if st.To != "" {
		to := common.HexToAddress(st.To)
		tx.To = &to
	}
	return &blocktest.TxDesc{
		Data:  tx,
		Key:   blocktest.FundedKey(st.From),
		Error: st.Error,
	}, nil
}

func resolveAlloc(accounts map[string]scenarioAccount) (t8n.Alloc, error) {
	alloc := make(t8n.Alloc, len(accounts))
	for addr, sa := range accounts {
		acct := &t8n.Account{Nonce: hexutil.Uint64(sa.Nonce)}
		if sa.Balance != "" {
			balance, err := parseBig(sa.Balance)
			if err != nil {
				return nil, errors.Wrapf(err, "account %s balance", addr)
			}
			acct.Balance = (*hexutil.Big)(balance)
		}
		if sa.Code != "" {
			code, err := parseBytes(sa.Code)
			if err != nil {
				return nil, errors.Wrapf(err, "account %s code", addr)
			}
			acct.Code = code
		}
		if len(sa.Storage) > 0 {
			acct.Storage = make(map[common.Hash]common.Hash, len(sa.Storage))
			for k, v := range sa.Storage {
				acct.Storage[common.HexToHash(k)] = common.HexToHash(v)
			}
		}
		alloc[common.HexToAddress(addr)] = acct
	}
	return alloc, nil
}

// parseBig accepts decimal or 0x-prefixed hex quantities. Empty means zero.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, errors.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

func parseBytes(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}
