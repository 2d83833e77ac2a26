package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chain_id: 1
rpc_endpoint: "http://localhost:8545"
arbitrageur: "0x5000000000000000000000000000000000000005"
owner: "0xa00000000000000000000000000000000000000a"
weth: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
min_profit_threshold: "10000000000000000"
max_gas_price: 300000000000
bribe_bps: 2500
markets:
  - name: usdc-weth
    pair: "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
    pair_fee_pips: 3000
    hub: "0x4000000000000000000000000000000000000004"
    token_a: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    token_b: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tierarb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvRPCEndpoint, "")
	t.Setenv(EnvFlashbotsRelay, "")
	t.Setenv(EnvSubmitMode, "")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, common.HexToAddress("0x5000000000000000000000000000000000000005"), cfg.Arbitrageur)
	assert.Equal(t, big.NewInt(10_000_000_000_000_000), cfg.MinProfitThreshold.Int)
	assert.Equal(t, big.NewInt(300_000_000_000), cfg.MaxGasPrice.Int)
	assert.Equal(t, uint32(2500), cfg.BribeBps)
	assert.Equal(t, SubmitRelay, cfg.SubmitMode)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, uint32(3000), cfg.Markets[0].PairFeePips)

	// defaults survive a partial file
	assert.Equal(t, uint64(190_000), cfg.GasLimit)
	assert.Equal(t, "https://relay.flashbots.net", cfg.FlashbotsRelay)
	assert.NotNil(t, cfg.Logger)

	t.Run("EnvOverride", func(t *testing.T) {
		t.Setenv(EnvRPCEndpoint, "http://node:8545")
		cfg, err := LoadConfig(writeConfig(t, sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, "http://node:8545", cfg.RPCEndpoint)
	})

	t.Run("SubmitModeFromEnv", func(t *testing.T) {
		t.Setenv(EnvSubmitMode, SubmitDirect)
		cfg, err := LoadConfig(writeConfig(t, sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, SubmitDirect, cfg.SubmitMode)
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, sampleYAML+"mempool_workers: 4\n"))
		assert.Error(t, err)
	})

	t.Run("BadAmount", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "max_gas_price: lots\n"))
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "saved.yaml")
		require.NoError(t, SaveConfig(cfg, path))
		loaded, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, cfg.Markets, loaded.Markets)
		assert.Equal(t, cfg.MinProfitThreshold.Int, loaded.MinProfitThreshold.Int)
	})
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.RPCEndpoint = "http://localhost:8545"
		cfg.Arbitrageur = common.HexToAddress("0x05")
		cfg.WETH = common.HexToAddress("0x02")
		cfg.Markets = []MarketConfig{{
			Name:        "m",
			Pair:        common.HexToAddress("0x03"),
			PairFeePips: 3000,
			Hub:         common.HexToAddress("0x04"),
			TokenA:      common.HexToAddress("0x01"),
			TokenB:      common.HexToAddress("0x02"),
		}}
		return cfg
	}
	require.NoError(t, valid().ValidateConfig())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"NoRPC", func(c *Config) { c.RPCEndpoint = "" }, "rpc_endpoint"},
		{"NoRelay", func(c *Config) { c.FlashbotsRelay = "" }, "flashbots_relay"},
		{"NoArbitrageur", func(c *Config) { c.Arbitrageur = common.Address{} }, "arbitrageur"},
		{"BribeTooLarge", func(c *Config) { c.BribeBps = 10000 }, "bribe_bps"},
		{"NoMarkets", func(c *Config) { c.Markets = nil }, "at least one market"},
		{"MarketWithoutWETH", func(c *Config) { c.Markets[0].TokenB = common.HexToAddress("0x09") }, "weth"},
		{"SameTokens", func(c *Config) { c.Markets[0].TokenA = c.Markets[0].TokenB }, "tokens must differ"},
		{"ZeroRate", func(c *Config) { c.RPCRateLimit.RequestsPerSecond = 0 }, "RPC rate limit"},
		{"UnknownSubmitMode", func(c *Config) { c.SubmitMode = "mempool" }, "submit_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("DryRunNeedsNoRelay", func(t *testing.T) {
		cfg := valid()
		cfg.FlashbotsRelay = ""
		cfg.DryRun = true
		assert.NoError(t, cfg.ValidateConfig())
	})

	t.Run("DirectNeedsNoRelay", func(t *testing.T) {
		cfg := valid()
		cfg.FlashbotsRelay = ""
		cfg.SubmitMode = SubmitDirect
		assert.NoError(t, cfg.ValidateConfig())
	})
}

func TestLoadSecureConfig(t *testing.T) {
	executor, err := crypto.GenerateKey()
	require.NoError(t, err)
	relay, err := crypto.GenerateKey()
	require.NoError(t, err)

	t.Setenv(EnvExecutorKey, "0x"+common.Bytes2Hex(crypto.FromECDSA(executor)))
	t.Setenv(EnvFlashbotsKey, common.Bytes2Hex(crypto.FromECDSA(relay)))

	secure, err := LoadSecureConfig(true)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(executor.PublicKey), crypto.PubkeyToAddress(secure.ExecutorKey.PublicKey))
	assert.Equal(t, crypto.PubkeyToAddress(relay.PublicKey), crypto.PubkeyToAddress(secure.FlashbotsKey.PublicKey))

	t.Run("Missing", func(t *testing.T) {
		t.Setenv(EnvFlashbotsKey, "")
		_, err := LoadSecureConfig(true)
		assert.Error(t, err)
	})

	t.Run("DirectSkipsRelayKey", func(t *testing.T) {
		t.Setenv(EnvFlashbotsKey, "")
		secure, err := LoadSecureConfig(false)
		require.NoError(t, err)
		assert.NotNil(t, secure.ExecutorKey)
		assert.Nil(t, secure.FlashbotsKey)
	})
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TIERARB_TEST_VALUE=from-file\n"), 0644))
	t.Setenv("TIERARB_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("TIERARB_TEST_VALUE"))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", GetEnvWithDefault("TIERARB_TEST_VALUE", "default"))

	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}
