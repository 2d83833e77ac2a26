package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"
)

// DefaultConfigFile is read when no --config flag is given
const DefaultConfigFile = "tierarb.yaml"

// Submit modes. Relay sends private bundles; direct broadcasts the signed
// transaction through the node, which is what testnets without a relay use.
const (
	SubmitRelay  = "relay"
	SubmitDirect = "direct"
)

type Config struct {
	// Chain and network settings
	ChainID        uint64 `yaml:"chain_id"`
	RPCEndpoint    string `yaml:"rpc_endpoint"`
	FlashbotsRelay string `yaml:"flashbots_relay"`

	// Head polling
	BlockPollInterval time.Duration `yaml:"block_poll_interval"`

	// Settlement contract
	Arbitrageur common.Address `yaml:"arbitrageur"`
	Owner       common.Address `yaml:"owner"`
	WETH        common.Address `yaml:"weth"`

	// Evaluation
	MinProfitThreshold Wei     `yaml:"min_profit_threshold"`
	MaxGasPrice        Wei     `yaml:"max_gas_price"`
	GasLimit           uint64  `yaml:"gas_limit"`
	BribeBps           uint32  `yaml:"bribe_bps"`
	SearchTolerance    float64 `yaml:"search_tolerance"`

	Markets []MarketConfig `yaml:"markets"`

	// Execution
	DryRun           bool   `yaml:"dry_run"`
	SubmitMode       string `yaml:"submit_mode"`
	SimulateBundles  bool   `yaml:"simulate_bundles"`
	FetchConcurrency int    `yaml:"fetch_concurrency"`

	RPCRateLimit       RateLimitConfig `yaml:"rpc_rate_limit"`
	FlashbotsRateLimit RateLimitConfig `yaml:"flashbots_rate_limit"`

	// Feature flags
	PrometheusEnabled  bool   `yaml:"prometheus_enabled"`
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`

	JournalPath string `yaml:"journal_path"`
	LogDir      string `yaml:"log_dir"`

	// Internal components
	Logger *zap.Logger `yaml:"-"`
}

// MarketConfig is one token pair quoted by a pair contract and a hub pool
type MarketConfig struct {
	Name        string         `yaml:"name"`
	Pair        common.Address `yaml:"pair"`
	PairFeePips uint32         `yaml:"pair_fee_pips"`
	Hub         common.Address `yaml:"hub"`
	TokenA      common.Address `yaml:"token_a"`
	TokenB      common.Address `yaml:"token_b"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// Limiter returns a token bucket for the configured rate
func (r RateLimitConfig) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(r.RequestsPerSecond), r.BurstSize)
}

// Wei is an amount in wei written as a decimal string or integer in YAML
type Wei struct {
	*big.Int
}

// NewWei wraps x
func NewWei(x *big.Int) Wei {
	return Wei{Int: x}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (w *Wei) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return fmt.Errorf("invalid wei amount %q", s)
	}
	w.Int = x
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (w Wei) MarshalYAML() (interface{}, error) {
	if w.Int == nil {
		return "0", nil
	}
	return w.Int.String(), nil
}

type SecureConfig struct {
	ExecutorKey  *ecdsa.PrivateKey
	FlashbotsKey *ecdsa.PrivateKey
}

func (c *Config) ValidateConfig() error {
	var errors []string

	// Validate Chain and Network settings
	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	switch c.SubmitMode {
	case SubmitRelay:
		if !c.DryRun && c.FlashbotsRelay == "" {
			errors = append(errors, "flashbots_relay must be specified unless dry_run is set")
		}
	case SubmitDirect:
	default:
		errors = append(errors, fmt.Sprintf("submit_mode must be %q or %q, got %q", SubmitRelay, SubmitDirect, c.SubmitMode))
	}
	if c.BlockPollInterval <= 0 {
		errors = append(errors, "block_poll_interval must be positive")
	}

	// Validate settlement contract
	if c.Arbitrageur == (common.Address{}) {
		errors = append(errors, "arbitrageur must be specified")
	}
	if c.WETH == (common.Address{}) {
		errors = append(errors, "weth must be specified")
	}

	// Validate Performance Thresholds
	if c.MinProfitThreshold.Int == nil || c.MinProfitThreshold.Sign() < 0 {
		errors = append(errors, "min_profit_threshold must not be negative")
	}
	if c.MaxGasPrice.Int == nil || c.MaxGasPrice.Sign() <= 0 {
		errors = append(errors, "max_gas_price must be positive")
	}
	if c.BribeBps >= 10000 {
		errors = append(errors, "bribe_bps must be below 10000")
	}
	if c.SearchTolerance < 0 || c.SearchTolerance >= 1 {
		errors = append(errors, "search_tolerance must be in [0, 1)")
	}

	// Validate markets
	if len(c.Markets) == 0 {
		errors = append(errors, "at least one market must be configured")
	}
	for i, m := range c.Markets {
		if err := m.Validate(c.WETH); err != nil {
			errors = append(errors, fmt.Sprintf("market %d (%s): %v", i, m.Name, err))
		}
	}

	// Validate Rate Limits
	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if err := c.FlashbotsRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("Flashbots rate limit error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (m *MarketConfig) Validate(weth common.Address) error {
	if m.Pair == (common.Address{}) {
		return fmt.Errorf("pair must be specified")
	}
	if m.Hub == (common.Address{}) {
		return fmt.Errorf("hub must be specified")
	}
	if m.TokenA == m.TokenB {
		return fmt.Errorf("tokens must differ")
	}
	if m.TokenA != weth && m.TokenB != weth {
		return fmt.Errorf("one token must be weth")
	}
	if m.PairFeePips == 0 || m.PairFeePips >= 1_000_000 {
		return fmt.Errorf("pair fee must be in (0, 1000000) pips")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}

	return nil
}

// LoadConfig reads cfgFile over DefaultConfig, applies environment
// overrides and validates the result
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = DefaultConfigFile
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides endpoints from the environment
func (c *Config) ApplyEnv() error {
	if rpc := GetEnvWithDefault(EnvRPCEndpoint, ""); rpc != "" {
		c.RPCEndpoint = rpc
	} else if c.RPCEndpoint == "" && os.Getenv(EnvInfuraKey) != "" {
		httpEndpoint, err := GetNetworkEndpoint()
		if err != nil {
			return fmt.Errorf("failed to get network endpoint: %w", err)
		}
		c.RPCEndpoint = httpEndpoint
	}
	c.FlashbotsRelay = GetEnvWithDefault(EnvFlashbotsRelay, c.FlashbotsRelay)
	c.SubmitMode = GetEnvWithDefault(EnvSubmitMode, c.SubmitMode)
	return nil
}

// LoadSecureConfig reads the private keys from the environment. The relay
// signing key is only required when withRelay is set.
func LoadSecureConfig(withRelay bool) (*SecureConfig, error) {
	executorKey, err := loadKey(EnvExecutorKey)
	if err != nil {
		return nil, fmt.Errorf("executor key not found: %w", err)
	}
	secure := &SecureConfig{ExecutorKey: executorKey}
	if !withRelay {
		return secure, nil
	}

	secure.FlashbotsKey, err = loadKey(EnvFlashbotsKey)
	if err != nil {
		return nil, fmt.Errorf("flashbots key not found: %w", err)
	}
	return secure, nil
}

func loadKey(env string) (*ecdsa.PrivateKey, error) {
	raw, err := GetRequiredEnv(env)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", env, err)
	}
	return key, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = DefaultConfigFile
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0644)
}

func DefaultConfig() *Config {
	return &Config{
		Logger:             zap.NewNop(),
		ChainID:            1,
		FlashbotsRelay:     "https://relay.flashbots.net",
		SubmitMode:         SubmitRelay,
		BlockPollInterval:  time.Second * 1,
		MinProfitThreshold: NewWei(big.NewInt(0)),
		MaxGasPrice:        NewWei(big.NewInt(500000000000)), // 500 Gwei
		GasLimit:           190_000,
		BribeBps:           0,
		SearchTolerance:    1e-6,
		FetchConcurrency:   8,
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		FlashbotsRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         10,
		},
		PrometheusEnabled:  false,
		PrometheusEndpoint: ":9090",
		JournalPath:        "data/journal.db",
	}
}
