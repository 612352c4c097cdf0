package blocktest

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// fundedAccount is a test account whose key is known. Transactions that do
// not name a signing key are assigned one of these senders.
type fundedAccount struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var fundedAccounts = []fundedAccount{
	{
		key:  mustParseKey("4552dbe6ca4699322b5d923d0c9bcdd24644f5db8bf89a085b67c6c49b8a1b91"),
		addr: common.HexToAddress("0x7435ed30A8b4AEb0877CEf0c6E8cFFe834eb865f"),
	},
	{
		key:  mustParseKey("f6a8f1603b8368f3ca373292b7310c53bec7b508aecacd442554ebc1c5d0c856"),
		addr: common.HexToAddress("0x84E75c28348fB86AceA1A93a39426d7D60f4CC46"),
	},
	{
		key:  mustParseKey("6e1e16a9c15641c73bf6e237f9293ab1d4e7c12b9adf83cfc94bcf969670f72d"),
		addr: common.HexToAddress("0x4ddE844b71bcdf95512Fb4Dc94e84FB67b512eD8"),
	},
	{
		key:  mustParseKey("fc39d1c9ddbba176d806ebb42d7460189fe56ca163ad3eb6143bfc6beb6f6f72"),
		addr: common.HexToAddress("0xd803681E487E6AC18053aFc5a6cD813c86Ec3E4D"),
	},
	{
		key:  mustParseKey("a88293fefc623644969e2ce6919fb0dbd0fd64f640293b4bf7e1a81c97e7fc7f"),
		addr: common.HexToAddress("0x4a0f1452281bCec5bd90c3dce6162a5995bfe9df"),
	},
	{
		key:  mustParseKey("457075f6822ac29481154792f65c5f1ec335b4fea9ca20f3fea8fa1d78a12c68"),
		addr: common.HexToAddress("0x14e46043e63D0E3cdcf2530519f4cFAf35058Cb2"),
	},
	{
		key:  mustParseKey("9ee3fd550664b246ad7cdba07162dd25530a3b1d51476dd1d85bbc29f0592684"),
		addr: common.HexToAddress("0xE7d13f7Aa2A838D24c59b40186a0aCa1e21CffCC"),
	},
	{
		key:  mustParseKey("865898edcf43206d138c93f1bbd86311f4657b057658558888aa5ac4309626a6"),
		addr: common.HexToAddress("0x16c57eDF7Fa9D9525378B0b81Bf8A3cEd0620C1c"),
	},
	{
		key:  mustParseKey("19168cd7767604b3d19b99dc3da1302b9ccb6ee9ad61660859e07acd4a2625dd"),
		addr: common.HexToAddress("0x2D389075BE5be9F2246Ad654cE152cF05990b209"),
	},
	{
		key:  mustParseKey("ee7f7875d826d7443ccc5c174e38b2c436095018774248a8074ee92d8914dcdb"),
		addr: common.HexToAddress("0x1F4924B14F34e24159387C0A4CdBaa32f3DDb0cF"),
	},
}

// FundedAccounts returns the addresses of the built-in sender pool. Tests
// fund these in their pre-state.
func FundedAccounts() []common.Address {
	addrs := make([]common.Address, len(fundedAccounts))
	for i, acc := range fundedAccounts {
		addrs[i] = acc.addr
	}
	return addrs
}

// FundedKey returns the signing key for one of the built-in senders.
func FundedKey(i int) *ecdsa.PrivateKey {
	return fundedAccounts[i%len(fundedAccounts)].key
}

func mustParseKey(s string) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		panic(err)
	}
	return key
}
