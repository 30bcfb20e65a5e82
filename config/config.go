package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"stakehub/crypto"
)

// Config is the protocol configuration loaded at boot. Addresses are bech32
// strings and big amounts are decimal strings so operators can edit the file
// by hand.
type Config struct {
	Treasury        string `toml:"Treasury"`
	WithdrawalQueue string `toml:"WithdrawalQueue"`
	OracleConsensus string `toml:"OracleConsensus"`

	VaultHub      VaultHubConfig      `toml:"VaultHub"`
	DefaultTier   TierConfig          `toml:"DefaultTier"`
	LazyOracle    LazyOracleConfig    `toml:"LazyOracle"`
	Confirmations ConfirmationsConfig `toml:"Confirmations"`
}

type VaultHubConfig struct {
	MaxVaults            int   `toml:"MaxVaults"`
	ShareRateNumerator   int64 `toml:"ShareRateNumerator"`
	ShareRateDenominator int64 `toml:"ShareRateDenominator"`
}

type TierConfig struct {
	ShareLimit                  string `toml:"ShareLimit"`
	ReserveRatioBps             uint64 `toml:"ReserveRatioBps"`
	ForcedRebalanceThresholdBps uint64 `toml:"ForcedRebalanceThresholdBps"`
	InfraFeeBps                 uint64 `toml:"InfraFeeBps"`
	LiquidityFeeBps             uint64 `toml:"LiquidityFeeBps"`
	ReservationFeeBps           uint64 `toml:"ReservationFeeBps"`
}

type LazyOracleConfig struct {
	MaxRewardRatioBps       uint64 `toml:"MaxRewardRatioBps"`
	QuarantinePeriodSeconds uint64 `toml:"QuarantinePeriodSeconds"`
}

type ConfirmationsConfig struct {
	ExpirySeconds uint64 `toml:"ExpirySeconds"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		VaultHub: VaultHubConfig{
			MaxVaults:            500,
			ShareRateNumerator:   1,
			ShareRateDenominator: 1,
		},
		DefaultTier: TierConfig{
			ShareLimit:                  "1000000000000000000000",
			ReserveRatioBps:             2000,
			ForcedRebalanceThresholdBps: 1800,
		},
		LazyOracle: LazyOracleConfig{
			MaxRewardRatioBps:       100,
			QuarantinePeriodSeconds: 86_400,
		},
		Confirmations: ConfirmationsConfig{
			ExpirySeconds: 86_400,
		},
	}
}

// Load reads the configuration from path, applies defaults for unset
// sections, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalise fills zero-valued fields with their defaults.
func (c *Config) Normalise() {
	if c.VaultHub.ShareRateNumerator <= 0 {
		c.VaultHub.ShareRateNumerator = 1
	}
	if c.VaultHub.ShareRateDenominator <= 0 {
		c.VaultHub.ShareRateDenominator = 1
	}
	if strings.TrimSpace(c.DefaultTier.ShareLimit) == "" {
		c.DefaultTier.ShareLimit = "0"
	}
	if c.LazyOracle.QuarantinePeriodSeconds == 0 {
		c.LazyOracle.QuarantinePeriodSeconds = 86_400
	}
	if c.Confirmations.ExpirySeconds == 0 {
		c.Confirmations.ExpirySeconds = 86_400
	}
}

// Validate rejects configurations the engines would refuse at runtime.
func (c *Config) Validate() error {
	if _, err := c.TreasuryAddress(); err != nil {
		return err
	}
	if _, err := c.WithdrawalQueueAddress(); err != nil {
		return err
	}
	if _, err := c.OracleConsensusAddress(); err != nil {
		return err
	}
	if _, err := c.DefaultTierShareLimit(); err != nil {
		return err
	}
	if c.DefaultTier.ReserveRatioBps == 0 || c.DefaultTier.ReserveRatioBps >= 10_000 {
		return fmt.Errorf("config: DefaultTier.ReserveRatioBps must be in (0, 10000), got %d", c.DefaultTier.ReserveRatioBps)
	}
	if c.DefaultTier.ForcedRebalanceThresholdBps > c.DefaultTier.ReserveRatioBps {
		return fmt.Errorf("config: DefaultTier.ForcedRebalanceThresholdBps %d exceeds reserve ratio %d", c.DefaultTier.ForcedRebalanceThresholdBps, c.DefaultTier.ReserveRatioBps)
	}
	if c.LazyOracle.MaxRewardRatioBps > 10_000 {
		return fmt.Errorf("config: LazyOracle.MaxRewardRatioBps must not exceed 10000, got %d", c.LazyOracle.MaxRewardRatioBps)
	}
	if c.VaultHub.MaxVaults < 0 {
		return fmt.Errorf("config: VaultHub.MaxVaults must not be negative, got %d", c.VaultHub.MaxVaults)
	}
	return nil
}

func (c *Config) TreasuryAddress() (crypto.Address, error) {
	return decodeAddress("Treasury", c.Treasury)
}

func (c *Config) WithdrawalQueueAddress() (crypto.Address, error) {
	return decodeAddress("WithdrawalQueue", c.WithdrawalQueue)
}

func (c *Config) OracleConsensusAddress() (crypto.Address, error) {
	return decodeAddress("OracleConsensus", c.OracleConsensus)
}

// DefaultTierShareLimit parses the default tier's share limit.
func (c *Config) DefaultTierShareLimit() (*big.Int, error) {
	limit, ok := new(big.Int).SetString(strings.TrimSpace(c.DefaultTier.ShareLimit), 10)
	if !ok || limit.Sign() < 0 {
		return nil, fmt.Errorf("config: DefaultTier.ShareLimit %q is not a non-negative decimal", c.DefaultTier.ShareLimit)
	}
	return limit, nil
}

func decodeAddress(field, raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("config: %s address is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: %s: %w", field, err)
	}
	return addr, nil
}
