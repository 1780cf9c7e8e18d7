package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// riskParams are the effective risk parameters of one reserve after category
// overrides have been resolved, together with the asset used for pricing.
type riskParams struct {
	ltvBps       uint64
	thresholdBps uint64
	bonusBps     uint64
	priceAsset   common.Address
}

// resolveRiskParams applies the account's efficiency category to the reserve:
// a reserve sharing the account's category takes the category's parameters
// and, when the category declares a price source, is priced through that
// asset instead of its own feed.
func resolveRiskParams(reserve *Reserve, category *EModeCategory) riskParams {
	params := riskParams{
		ltvBps:       reserve.LTVBps,
		thresholdBps: reserve.LiquidationThresholdBps,
		bonusBps:     reserve.LiquidationBonusBps,
		priceAsset:   reserve.Asset,
	}
	if category == nil || category.ID == 0 || reserve.EModeCategoryID != category.ID {
		return params
	}
	params.ltvBps = category.LTVBps
	params.thresholdBps = category.LiquidationThresholdBps
	params.bonusBps = category.LiquidationBonusBps
	if category.PriceSource != nil {
		params.priceAsset = *category.PriceSource
	}
	return params
}

func (e *Engine) accountCategory(account common.Address) (*EModeCategory, error) {
	id, err := e.state.GetAccountCategory(account)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	return e.state.GetEModeCategory(id)
}

// accountData walks every live reserve slot and aggregates the account's
// collateral and debt into base currency values, weighted risk parameters
// and the health factor.
func (e *Engine) accountData(account common.Address) (*AccountData, error) {
	slots, err := e.state.ReserveSlots()
	if err != nil {
		return nil, err
	}
	category, err := e.accountCategory(account)
	if err != nil {
		return nil, err
	}

	collateral := big.NewInt(0)
	debt := big.NewInt(0)
	weightedLTV := big.NewInt(0)
	weightedThreshold := big.NewInt(0)
	hasZeroLTV := false

	for _, slot := range slots {
		if slot.Tombstoned {
			continue
		}
		position, err := e.state.GetPosition(slot.Asset, account)
		if err != nil {
			return nil, err
		}
		if position == nil {
			continue
		}
		position.ensureDefaults()
		if position.empty() {
			continue
		}
		reserve, err := e.state.GetReserve(slot.Asset)
		if err != nil {
			return nil, err
		}
		if reserve == nil {
			continue
		}
		reserve.ensureDefaults()

		params := resolveRiskParams(reserve, category)
		price, err := e.price(params.priceAsset)
		if err != nil {
			return nil, err
		}
		unit := pow10(reserve.Decimals)

		if position.UsingAsCollateral && position.ScaledSupply.Sign() > 0 {
			index, err := normalizedIncome(reserve, e.now)
			if err != nil {
				return nil, err
			}
			balance, err := supplyBalance(position.ScaledSupply, index)
			if err != nil {
				return nil, err
			}
			value, err := mulDiv(balance, price, unit, roundFloor)
			if err != nil {
				return nil, err
			}
			collateral.Add(collateral, value)
			weightedLTV.Add(weightedLTV, new(big.Int).Mul(value, new(big.Int).SetUint64(params.ltvBps)))
			weightedThreshold.Add(weightedThreshold, new(big.Int).Mul(value, new(big.Int).SetUint64(params.thresholdBps)))
			if params.ltvBps == 0 {
				hasZeroLTV = true
			}
		}

		if position.ScaledVariableDebt.Sign() > 0 || position.ScaledStableDebt.Sign() > 0 {
			index, err := normalizedVariableDebt(reserve, e.now)
			if err != nil {
				return nil, err
			}
			balance, err := position.totalDebtBalance(index)
			if err != nil {
				return nil, err
			}
			value, err := mulDiv(balance, price, unit, roundCeil)
			if err != nil {
				return nil, err
			}
			debt.Add(debt, value)
		}
	}

	data := &AccountData{
		TotalCollateralValue: collateral,
		TotalDebtValue:       debt,
		AvailableBorrows:     big.NewInt(0),
		HasZeroLTVCollateral: hasZeroLTV,
	}

	if collateral.Sign() > 0 {
		data.AverageLTVBps = new(big.Int).Quo(weightedLTV, collateral).Uint64()
		data.AverageLiquidationThresholdBps = new(big.Int).Quo(weightedThreshold, collateral).Uint64()
	}

	if debt.Sign() == 0 {
		data.HealthFactor = MaxHealthFactor()
	} else {
		// healthFactor = (collateral * avgThreshold / 10000) * WAD / debt,
		// computed from the unreduced weighted sum to avoid double rounding.
		denom := new(big.Int).Mul(debt, basisPoints)
		hf, err := mulDiv(weightedThreshold, wad, denom, roundFloor)
		if err != nil {
			return nil, err
		}
		data.HealthFactor = hf
	}

	// Zero-LTV collateral counts towards value but contributes no borrowing
	// power, and its presence blocks capacity from every other collateral.
	if collateral.Sign() > 0 && !hasZeroLTV {
		capacity := new(big.Int).Quo(weightedLTV, basisPoints)
		if capacity.Cmp(debt) > 0 {
			data.AvailableBorrows = capacity.Sub(capacity, debt)
		}
	}
	return data, nil
}
