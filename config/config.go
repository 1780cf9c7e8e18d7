package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"lendpool/lending"
)

// Config is the on-disk market configuration for a lending pool deployment.
type Config struct {
	ListenAddress              string     `toml:"ListenAddress"`
	DataDir                    string     `toml:"DataDir"`
	Treasury                   string     `toml:"Treasury"`
	RateLimitPerMin            int        `toml:"RateLimitPerMin"`
	ForcedLiquidationWhitelist []string   `toml:"ForcedLiquidationWhitelist"`
	Reserves                   []Reserve  `toml:"Reserve"`
	EModeCategories            []Category `toml:"EModeCategory"`
}

// Reserve describes one listed asset. Cap and ceiling values are decimal
// strings so native-unit quantities survive beyond float precision.
type Reserve struct {
	Asset                     string  `toml:"Asset"`
	Decimals                  uint8   `toml:"Decimals"`
	LTVBps                    uint64  `toml:"LTVBps"`
	LiquidationThresholdBps   uint64  `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps       uint64  `toml:"LiquidationBonusBps"`
	LiquidationProtocolFeeBps uint64  `toml:"LiquidationProtocolFeeBps"`
	ReserveFactorBps          uint64  `toml:"ReserveFactorBps"`
	BorrowCap                 string  `toml:"BorrowCap"`
	SupplyCap                 string  `toml:"SupplyCap"`
	DebtCeiling               string  `toml:"DebtCeiling"`
	BorrowingEnabled          bool    `toml:"BorrowingEnabled"`
	SiloedBorrowing           bool    `toml:"SiloedBorrowing"`
	BorrowableInIsolation     bool    `toml:"BorrowableInIsolation"`
	EModeCategoryID           uint8   `toml:"EModeCategoryID"`
	BaseRate                  float64 `toml:"BaseRate"`
	Slope1                    float64 `toml:"Slope1"`
	Slope2                    float64 `toml:"Slope2"`
	OptimalUtilisation        float64 `toml:"OptimalUtilisation"`
}

// Category describes an efficiency-mode category definition.
type Category struct {
	ID                      uint8  `toml:"ID"`
	LTVBps                  uint64 `toml:"LTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
	PriceSource             string `toml:"PriceSource"`
	Label                   string `toml:"Label"`
}

const (
	defaultListenAddress   = "0.0.0.0:8755"
	defaultDataDir         = "./lendpool-data"
	defaultRateLimitPerMin = 120
)

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns a default configuration when no
// file exists at path.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(path)
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = defaultRateLimitPerMin
	}
	if cfg.ForcedLiquidationWhitelist == nil {
		cfg.ForcedLiquidationWhitelist = []string{}
	}
}

// TreasuryAddress parses the configured treasury account.
func (cfg *Config) TreasuryAddress() (common.Address, error) {
	return parseAddress("Treasury", cfg.Treasury)
}

// WhitelistAddresses parses the forced-liquidation whitelist.
func (cfg *Config) WhitelistAddresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(cfg.ForcedLiquidationWhitelist))
	for _, entry := range cfg.ForcedLiquidationWhitelist {
		addr, err := parseAddress("ForcedLiquidationWhitelist", entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// BuildReserve converts a reserve block into the engine's record form.
func (r Reserve) BuildReserve() (*lending.Reserve, error) {
	asset, err := parseAddress("Reserve.Asset", r.Asset)
	if err != nil {
		return nil, err
	}
	borrowCap, err := parseBigInt("Reserve.BorrowCap", r.BorrowCap)
	if err != nil {
		return nil, err
	}
	supplyCap, err := parseBigInt("Reserve.SupplyCap", r.SupplyCap)
	if err != nil {
		return nil, err
	}
	ceiling, err := parseBigInt("Reserve.DebtCeiling", r.DebtCeiling)
	if err != nil {
		return nil, err
	}
	reserve := &lending.Reserve{
		Asset:                     asset,
		Decimals:                  r.Decimals,
		ReserveFactorBps:          r.ReserveFactorBps,
		LTVBps:                    r.LTVBps,
		LiquidationThresholdBps:   r.LiquidationThresholdBps,
		LiquidationBonusBps:       r.LiquidationBonusBps,
		LiquidationProtocolFeeBps: r.LiquidationProtocolFeeBps,
		BorrowCap:                 borrowCap,
		SupplyCap:                 supplyCap,
		DebtCeiling:               ceiling,
		EModeCategoryID:           r.EModeCategoryID,
		Flags: lending.ReserveFlags{
			Active:                true,
			BorrowingEnabled:      r.BorrowingEnabled,
			SiloedBorrowing:       r.SiloedBorrowing,
			BorrowableInIsolation: r.BorrowableInIsolation,
		},
	}
	return reserve, nil
}

// BuildInterestModel converts the reserve's curve points into a model.
func (r Reserve) BuildInterestModel() *lending.InterestModel {
	if r.BaseRate == 0 && r.Slope1 == 0 && r.Slope2 == 0 && r.OptimalUtilisation == 0 {
		return lending.DefaultInterestModel.Clone()
	}
	return lending.NewInterestModel(r.BaseRate, r.Slope1, r.Slope2, r.OptimalUtilisation)
}

// BuildCategory converts a category block into the engine's record form.
func (c Category) BuildCategory() (*lending.EModeCategory, error) {
	category := &lending.EModeCategory{
		ID:                      c.ID,
		LTVBps:                  c.LTVBps,
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationBonusBps:     c.LiquidationBonusBps,
		Label:                   c.Label,
	}
	if strings.TrimSpace(c.PriceSource) != "" {
		source, err := parseAddress("EModeCategory.PriceSource", c.PriceSource)
		if err != nil {
			return nil, err
		}
		category.PriceSource = &source
	}
	return category, nil
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s: invalid address %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseBigInt(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("config: %s: invalid amount %q", field, value)
	}
	return parsed, nil
}
