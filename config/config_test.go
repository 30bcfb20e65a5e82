package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakehub/crypto"
)

func testAddress(suffix byte) string {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(crypto.StakePrefix, raw).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stakehub.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
Treasury = "`+testAddress(0x01)+`"
WithdrawalQueue = "`+testAddress(0x02)+`"
OracleConsensus = "`+testAddress(0x03)+`"

[DefaultTier]
ShareLimit = "5000"
ReserveRatioBps = 2500
ForcedRebalanceThresholdBps = 2000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, uint64(100), cfg.LazyOracle.MaxRewardRatioBps)
	require.Equal(t, uint64(86_400), cfg.LazyOracle.QuarantinePeriodSeconds)
	require.Equal(t, uint64(86_400), cfg.Confirmations.ExpirySeconds)
	require.Equal(t, int64(1), cfg.VaultHub.ShareRateNumerator)

	limit, err := cfg.DefaultTierShareLimit()
	require.NoError(t, err)
	require.Equal(t, "5000", limit.String())

	treasury, err := cfg.TreasuryAddress()
	require.NoError(t, err)
	require.Equal(t, testAddress(0x01), treasury.String())
}

func TestLoadRejectsMissingAddresses(t *testing.T) {
	path := writeConfig(t, `
Treasury = "`+testAddress(0x01)+`"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "WithdrawalQueue")
}

func TestValidateRejectsBadReserveRatio(t *testing.T) {
	cfg := Default()
	cfg.Treasury = testAddress(0x01)
	cfg.WithdrawalQueue = testAddress(0x02)
	cfg.OracleConsensus = testAddress(0x03)
	cfg.DefaultTier.ReserveRatioBps = 10_000

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsThresholdAboveRatio(t *testing.T) {
	cfg := Default()
	cfg.Treasury = testAddress(0x01)
	cfg.WithdrawalQueue = testAddress(0x02)
	cfg.OracleConsensus = testAddress(0x03)
	cfg.DefaultTier.ReserveRatioBps = 1000
	cfg.DefaultTier.ForcedRebalanceThresholdBps = 1500

	require.Error(t, cfg.Validate())
}

func TestLoadRejectsMalformedShareLimit(t *testing.T) {
	path := writeConfig(t, `
Treasury = "`+testAddress(0x01)+`"
WithdrawalQueue = "`+testAddress(0x02)+`"
OracleConsensus = "`+testAddress(0x03)+`"

[DefaultTier]
ShareLimit = "not-a-number"
ReserveRatioBps = 2000
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ShareLimit")
}
