package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lendpool.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = "127.0.0.1:9001"
DataDir = "/tmp/lendpool"
Treasury = "0x00000000000000000000000000000000000000fe"
RateLimitPerMin = 60
ForcedLiquidationWhitelist = ["0x0000000000000000000000000000000000000077"]

[[EModeCategory]]
ID = 1
LTVBps = 9000
LiquidationThresholdBps = 9500
LiquidationBonusBps = 10100
PriceSource = "0x0000000000000000000000000000000000000099"
Label = "stables"

[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
Decimals = 6
LTVBps = 7500
LiquidationThresholdBps = 8000
LiquidationBonusBps = 10500
LiquidationProtocolFeeBps = 1000
ReserveFactorBps = 1000
BorrowCap = "1000000000000"
SupplyCap = "2000000000000"
DebtCeiling = "500000"
BorrowingEnabled = true
BorrowableInIsolation = true
EModeCategoryID = 1
BaseRate = 0.0
Slope1 = 0.04
Slope2 = 0.75
OptimalUtilisation = 0.9
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9001", cfg.ListenAddress)
	require.Equal(t, 60, cfg.RateLimitPerMin)

	treasury, err := cfg.TreasuryAddress()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xfe"), treasury)

	whitelist, err := cfg.WhitelistAddresses()
	require.NoError(t, err)
	require.Len(t, whitelist, 1)

	require.Len(t, cfg.Reserves, 1)
	reserve, err := cfg.Reserves[0].BuildReserve()
	require.NoError(t, err)
	require.Equal(t, uint8(6), reserve.Decimals)
	require.Equal(t, uint64(7500), reserve.LTVBps)
	require.Equal(t, "1000000000000", reserve.BorrowCap.String())
	require.Equal(t, "500000", reserve.DebtCeiling.String())
	require.True(t, reserve.Flags.Active)
	require.True(t, reserve.Flags.BorrowingEnabled)
	require.True(t, reserve.Flags.BorrowableInIsolation)
	require.False(t, reserve.Flags.SiloedBorrowing)

	model := cfg.Reserves[0].BuildInterestModel()
	require.NotNil(t, model)

	require.Len(t, cfg.EModeCategories, 1)
	category, err := cfg.EModeCategories[0].BuildCategory()
	require.NoError(t, err)
	require.NotNil(t, category.PriceSource)
	require.Equal(t, "stables", category.Label)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultListenAddress, cfg.ListenAddress)
	require.Equal(t, defaultDataDir, cfg.DataDir)
	require.Equal(t, defaultRateLimitPerMin, cfg.RateLimitPerMin)
	require.NotNil(t, cfg.ForcedLiquidationWhitelist)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, defaultListenAddress, cfg.ListenAddress)
}

func TestLoadRejectsInvalidTreasury(t *testing.T) {
	path := writeConfig(t, `Treasury = "not-an-address"`)
	_, err := Load(path)
	require.ErrorContains(t, err, "Treasury")
}

func TestLoadRejectsThresholdBelowLTV(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
LTVBps = 8000
LiquidationThresholdBps = 4000
LiquidationBonusBps = 10500
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "LiquidationThresholdBps below LTVBps")
}

func TestLoadRejectsBonusWithoutPremium(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
LTVBps = 5000
LiquidationThresholdBps = 8000
LiquidationBonusBps = 10000
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "LiquidationBonusBps")
}

func TestLoadRejectsDuplicateAsset(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"

[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "duplicate asset")
}

func TestLoadRejectsUnknownCategoryReference(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
EModeCategoryID = 7
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown EModeCategoryID")
}

func TestLoadRejectsBadCurve(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
Slope1 = 0.04
OptimalUtilisation = 1.5
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "OptimalUtilisation")
}

func TestLoadRejectsNegativeCap(t *testing.T) {
	path := writeConfig(t, `
[[Reserve]]
Asset = "0x0000000000000000000000000000000000000001"
BorrowCap = "-5"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "BorrowCap")
}
