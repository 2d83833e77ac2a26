package testutils

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/tierarb/dex/tiered"
	"github.com/michaelpento.lv/tierarb/dex/uniswap"
	"github.com/stretchr/testify/require"
)

// Fixed addresses shared by the market fixtures
var (
	Token = common.HexToAddress("0x1000000000000000000000000000000000000001")
	WETH  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	Pair  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	Hub   = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

// Ether returns n whole 18-decimal tokens
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// Gwei returns n gwei in wei
func Gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

// MarketPools builds a Token/WETH constant-product pool and a full range
// tiered pool, both 0.3%, from reserves in whole tokens
func MarketPools(t *testing.T, cpToken, cpWeth, tpToken, tpWeth int64) (*uniswap.Pool, *tiered.Pool) {
	t.Helper()
	cp, err := uniswap.NewPool(Pair, Token, WETH, Ether(cpToken), Ether(cpWeth), uniswap.DefaultFeePips)
	require.NoError(t, err)
	tp, err := tiered.NewFullRangePool(Hub, Token, WETH, Ether(tpToken), Ether(tpWeth), 3000)
	require.NoError(t, err)
	return cp, tp
}

// NewKey generates a throwaway signing key
func NewKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
