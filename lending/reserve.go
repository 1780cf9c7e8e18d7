package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// accrueReserve advances the reserve's indexes to the engine's current
// timestamp. Calling it twice at the same timestamp is a no-op. The increase
// in total debt value attributable to the elapsed interval is skimmed by the
// reserve factor and lazily minted to the treasury as scaled supply, then the
// rates are refreshed from the new utilisation.
func (e *Engine) accrueReserve(reserve *Reserve) error {
	if reserve.LastUpdateTimestamp >= e.now {
		return nil
	}
	elapsed := e.now - reserve.LastUpdateTimestamp

	totalScaledDebt := new(big.Int).Add(reserve.TotalScaledVariableDebt, reserve.TotalScaledStableDebt)
	if totalScaledDebt.Sign() > 0 {
		prevDebt, err := debtBalance(totalScaledDebt, reserve.VariableBorrowIndex)
		if err != nil {
			return err
		}

		borrowFactor := linearFactor(reserve.CurrentVariableBorrowRate, elapsed)
		newBorrowIndex, err := rayMul(reserve.VariableBorrowIndex, borrowFactor, roundHalfUp)
		if err != nil {
			return err
		}
		reserve.VariableBorrowIndex = newBorrowIndex

		liquidityFactor := linearFactor(reserve.CurrentLiquidityRate, elapsed)
		newLiquidityIndex, err := rayMul(reserve.LiquidityIndex, liquidityFactor, roundHalfUp)
		if err != nil {
			return err
		}
		reserve.LiquidityIndex = newLiquidityIndex

		newDebt, err := debtBalance(totalScaledDebt, reserve.VariableBorrowIndex)
		if err != nil {
			return err
		}
		accrued := new(big.Int).Sub(newDebt, prevDebt)
		if accrued.Sign() > 0 && reserve.ReserveFactorBps > 0 {
			if err := e.mintToTreasury(reserve, accrued); err != nil {
				return err
			}
		}
	}

	if err := e.refreshRates(reserve); err != nil {
		return err
	}
	reserve.LastUpdateTimestamp = e.now
	return nil
}

func (e *Engine) mintToTreasury(reserve *Reserve, accrued *big.Int) error {
	skim, err := percentMul(accrued, reserve.ReserveFactorBps, roundFloor)
	if err != nil {
		return err
	}
	if skim.Sign() == 0 {
		return nil
	}
	scaled, err := rayDiv(skim, reserve.LiquidityIndex, roundFloor)
	if err != nil {
		return err
	}
	if scaled.Sign() == 0 {
		return nil
	}
	position, err := e.loadPosition(reserve.Asset, e.treasury)
	if err != nil {
		return err
	}
	position.ScaledSupply.Add(position.ScaledSupply, scaled)
	reserve.TotalScaledSupply.Add(reserve.TotalScaledSupply, scaled)
	return e.state.PutPosition(position)
}

// refreshRates recomputes the annual rates from the reserve's utilisation.
// Reserves without a configured model keep their stored rates.
func (e *Engine) refreshRates(reserve *Reserve) error {
	model := e.rateModels[reserve.Asset]
	if model == nil {
		return nil
	}
	totalScaledDebt := new(big.Int).Add(reserve.TotalScaledVariableDebt, reserve.TotalScaledStableDebt)
	totalDebt, err := debtBalance(totalScaledDebt, reserve.VariableBorrowIndex)
	if err != nil {
		return err
	}
	utilisation := Utilisation(totalDebt, reserve.AvailableLiquidity)
	variableRate := model.VariableRate(utilisation)
	reserve.CurrentVariableBorrowRate = ratToRay(variableRate)
	reserve.CurrentLiquidityRate = ratToRay(SupplyRate(variableRate, utilisation, reserve.ReserveFactorBps))
	return nil
}

// TotalDebt returns the reserve's combined variable and stable debt value at
// the current borrow index, in native units.
func (r *Reserve) TotalDebt() (*big.Int, error) {
	totalScaledDebt := new(big.Int).Add(r.TotalScaledVariableDebt, r.TotalScaledStableDebt)
	return debtBalance(totalScaledDebt, r.VariableBorrowIndex)
}

// normalizedIncome projects the liquidity index to the given timestamp
// without mutating the reserve.
func normalizedIncome(reserve *Reserve, now uint64) (*big.Int, error) {
	if reserve.LastUpdateTimestamp >= now {
		return new(big.Int).Set(reserve.LiquidityIndex), nil
	}
	factor := linearFactor(reserve.CurrentLiquidityRate, now-reserve.LastUpdateTimestamp)
	return rayMul(reserve.LiquidityIndex, factor, roundHalfUp)
}

// normalizedVariableDebt projects the variable borrow index to the given
// timestamp without mutating the reserve.
func normalizedVariableDebt(reserve *Reserve, now uint64) (*big.Int, error) {
	if reserve.LastUpdateTimestamp >= now {
		return new(big.Int).Set(reserve.VariableBorrowIndex), nil
	}
	factor := linearFactor(reserve.CurrentVariableBorrowRate, now-reserve.LastUpdateTimestamp)
	return rayMul(reserve.VariableBorrowIndex, factor, roundHalfUp)
}

// GetReserveNormalizedIncome returns the liquidity index the reserve would
// hold if accrued at the engine's current timestamp.
func (e *Engine) GetReserveNormalizedIncome(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return normalizedIncome(reserve, e.now)
}

// GetReserveNormalizedVariableDebt returns the variable borrow index the
// reserve would hold if accrued at the engine's current timestamp.
func (e *Engine) GetReserveNormalizedVariableDebt(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return normalizedVariableDebt(reserve, e.now)
}
