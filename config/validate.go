package config

import (
	"fmt"
	"strings"
)

const maxBps = 10_000

// Validate checks the configuration for internal consistency before any
// reserve is initialised from it.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if cfg.RateLimitPerMin <= 0 {
		return fmt.Errorf("config: RateLimitPerMin must be positive")
	}
	if strings.TrimSpace(cfg.Treasury) != "" {
		if _, err := cfg.TreasuryAddress(); err != nil {
			return err
		}
	}
	if _, err := cfg.WhitelistAddresses(); err != nil {
		return err
	}

	categories := make(map[uint8]bool, len(cfg.EModeCategories))
	for i, category := range cfg.EModeCategories {
		if category.ID == 0 {
			return fmt.Errorf("config: EModeCategory[%d]: ID must be non-zero", i)
		}
		if categories[category.ID] {
			return fmt.Errorf("config: EModeCategory[%d]: duplicate ID %d", i, category.ID)
		}
		categories[category.ID] = true
		if err := validateRiskParams(fmt.Sprintf("EModeCategory[%d]", i), category.LTVBps, category.LiquidationThresholdBps, category.LiquidationBonusBps); err != nil {
			return err
		}
		if category.LiquidationThresholdBps == 0 {
			return fmt.Errorf("config: EModeCategory[%d]: LiquidationThresholdBps must be non-zero", i)
		}
		if _, err := category.BuildCategory(); err != nil {
			return err
		}
	}

	assets := make(map[string]bool, len(cfg.Reserves))
	for i, reserve := range cfg.Reserves {
		label := fmt.Sprintf("Reserve[%d]", i)
		built, err := reserve.BuildReserve()
		if err != nil {
			return err
		}
		key := strings.ToLower(built.Asset.Hex())
		if assets[key] {
			return fmt.Errorf("config: %s: duplicate asset %s", label, built.Asset.Hex())
		}
		assets[key] = true
		if err := validateRiskParams(label, reserve.LTVBps, reserve.LiquidationThresholdBps, reserve.LiquidationBonusBps); err != nil {
			return err
		}
		if reserve.ReserveFactorBps > maxBps {
			return fmt.Errorf("config: %s: ReserveFactorBps exceeds %d", label, maxBps)
		}
		if reserve.LiquidationProtocolFeeBps > maxBps {
			return fmt.Errorf("config: %s: LiquidationProtocolFeeBps exceeds %d", label, maxBps)
		}
		if reserve.EModeCategoryID != 0 && !categories[reserve.EModeCategoryID] {
			return fmt.Errorf("config: %s: unknown EModeCategoryID %d", label, reserve.EModeCategoryID)
		}
		if err := validateCurve(label, reserve); err != nil {
			return err
		}
	}
	return nil
}

func validateRiskParams(label string, ltv, threshold, bonus uint64) error {
	if ltv > maxBps {
		return fmt.Errorf("config: %s: LTVBps exceeds %d", label, maxBps)
	}
	if threshold > maxBps {
		return fmt.Errorf("config: %s: LiquidationThresholdBps exceeds %d", label, maxBps)
	}
	if threshold < ltv {
		return fmt.Errorf("config: %s: LiquidationThresholdBps below LTVBps", label)
	}
	if threshold > 0 && bonus <= maxBps {
		return fmt.Errorf("config: %s: LiquidationBonusBps must exceed %d", label, maxBps)
	}
	return nil
}

func validateCurve(label string, r Reserve) error {
	if r.BaseRate == 0 && r.Slope1 == 0 && r.Slope2 == 0 && r.OptimalUtilisation == 0 {
		return nil
	}
	if r.BaseRate < 0 || r.Slope1 < 0 || r.Slope2 < 0 {
		return fmt.Errorf("config: %s: rate curve values must not be negative", label)
	}
	if r.OptimalUtilisation <= 0 || r.OptimalUtilisation >= 1 {
		return fmt.Errorf("config: %s: OptimalUtilisation must be in (0, 1)", label)
	}
	return nil
}
