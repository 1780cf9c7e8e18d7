package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// closeFactorDefaultBps caps the share of a debt position one
	// liquidation call may cover.
	closeFactorDefaultBps = 5_000
	closeFactorFullBps    = 10_000
)

// closeFactorHealthThreshold is the health factor below which the full debt
// becomes liquidatable in a single call (0.95 WAD).
var closeFactorHealthThreshold = mustBigInt("950000000000000000")

// LiquidationResult reports the quantities settled by one liquidation call.
type LiquidationResult struct {
	DebtCovered      *big.Int
	CollateralSeized *big.Int
	ProtocolFee      *big.Int
	Forced           bool
}

// Liquidate repays part of account's debt on debtAsset in exchange for a
// discounted share of its collateralAsset supply. Normal eligibility requires
// the health factor below one; a frozen debt reserve flagged for forced
// liquidation may instead be cleared by the account itself or a whitelisted
// caller regardless of health. When receiveShares is set the liquidator is
// credited receipt tokens instead of underlying.
func (e *Engine) Liquidate(caller common.Address, collateralAsset, debtAsset common.Address, account common.Address, amount Amount, receiveShares bool) (*LiquidationResult, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	collateralReserve, err := e.loadReserve(collateralAsset)
	if err != nil {
		return nil, err
	}
	debtReserve := collateralReserve
	if debtAsset != collateralAsset {
		debtReserve, err = e.loadReserve(debtAsset)
		if err != nil {
			return nil, err
		}
	}
	if err := e.accrueReserve(collateralReserve); err != nil {
		return nil, err
	}
	if debtReserve != collateralReserve {
		if err := e.accrueReserve(debtReserve); err != nil {
			return nil, err
		}
	}

	if !collateralReserve.Flags.Active || !debtReserve.Flags.Active {
		return nil, ErrReserveInactive
	}
	if collateralReserve.Flags.Paused || debtReserve.Flags.Paused {
		return nil, ErrReservePaused
	}

	debtPosition, err := e.loadPosition(debtAsset, account)
	if err != nil {
		return nil, err
	}
	totalDebt, err := debtPosition.totalDebtBalance(debtReserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	if totalDebt.Sign() == 0 {
		return nil, ErrNoDebtToRepay
	}

	collateralPosition := debtPosition
	if collateralAsset != debtAsset {
		collateralPosition, err = e.loadPosition(collateralAsset, account)
		if err != nil {
			return nil, err
		}
	}
	if !collateralPosition.UsingAsCollateral || collateralPosition.ScaledSupply.Sign() == 0 {
		return nil, ErrCollateralNotEnabled
	}

	data, err := e.accountData(account)
	if err != nil {
		return nil, err
	}
	forcedConfigured := debtReserve.Flags.ForcedLiquidationEnabled && debtReserve.Flags.Frozen
	forcedCaller := caller == account || e.whitelisted(caller)
	forced := forcedConfigured && forcedCaller
	if !forced && data.HealthFactor.Cmp(wad) >= 0 {
		if forcedConfigured {
			return nil, ErrForcedLiquidationNotAuthorized
		}
		return nil, ErrHealthFactorNotBelowThreshold
	}

	closeFactorBps := uint64(closeFactorDefaultBps)
	if forced || data.HealthFactor.Cmp(closeFactorHealthThreshold) < 0 {
		closeFactorBps = closeFactorFullBps
	}
	maxDebt, err := percentMul(totalDebt, closeFactorBps, roundHalfUp)
	if err != nil {
		return nil, err
	}
	actualDebt, err := amount.resolve(maxDebt, true)
	if err != nil {
		return nil, err
	}

	category, err := e.accountCategory(account)
	if err != nil {
		return nil, err
	}
	// Liquidation pricing follows the same category resolution as the
	// health factor: a reserve in the account's category is priced through
	// the category's price source when one is declared.
	collateralParams := resolveRiskParams(collateralReserve, category)
	bonusBps := collateralParams.bonusBps
	debtPrice, err := e.price(resolveRiskParams(debtReserve, category).priceAsset)
	if err != nil {
		return nil, err
	}
	collateralPrice, err := e.price(collateralParams.priceAsset)
	if err != nil {
		return nil, err
	}

	seized, actualDebt, err := e.collateralToSeize(collateralReserve, debtReserve, collateralPosition,
		actualDebt, debtPrice, collateralPrice, bonusBps)
	if err != nil {
		return nil, err
	}

	// The protocol fee applies to the bonus portion of the seized
	// collateral only, never to the principal-equivalent portion.
	principal, err := percentDiv(seized, bonusBps, roundHalfUp)
	if err != nil {
		return nil, err
	}
	bonusPortion := new(big.Int).Sub(seized, principal)
	fee := big.NewInt(0)
	if bonusPortion.Sign() > 0 && collateralReserve.LiquidationProtocolFeeBps > 0 {
		fee, err = percentMul(bonusPortion, collateralReserve.LiquidationProtocolFeeBps, roundHalfUp)
		if err != nil {
			return nil, err
		}
	}
	liquidatorShare := new(big.Int).Sub(seized, fee)

	// Debt burn exhausts variable debt before stable debt.
	if err := e.burnLiquidatedDebt(debtReserve, debtPosition, actualDebt); err != nil {
		return nil, err
	}
	if err := e.transferIn(debtAsset, caller, actualDebt); err != nil {
		return nil, err
	}
	debtReserve.AvailableLiquidity.Add(debtReserve.AvailableLiquidity, actualDebt)

	// The seized collateral leaves the position in a single scaled debit.
	// Burning the fee and the liquidator share separately would round each
	// up and could overshoot the scaled balance by one when the seizure
	// covers it exactly, so the scaled units are split after the burn.
	seizedScaled, err := collateralPosition.burnSupply(seized, collateralReserve.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	feeScaled := big.NewInt(0)
	if fee.Sign() > 0 {
		feeScaled, err = rayDiv(fee, collateralReserve.LiquidityIndex, roundFloor)
		if err != nil {
			return nil, err
		}
		if feeScaled.Cmp(seizedScaled) > 0 {
			feeScaled = new(big.Int).Set(seizedScaled)
		}
		treasuryPosition, err := e.loadPosition(collateralAsset, e.treasury)
		if err != nil {
			return nil, err
		}
		treasuryPosition.creditScaledSupply(feeScaled)
		if err := e.state.PutPosition(treasuryPosition); err != nil {
			return nil, err
		}
	}
	liquidatorScaled := new(big.Int).Sub(seizedScaled, feeScaled)

	if receiveShares {
		liquidatorPosition := collateralPosition
		if caller != account {
			liquidatorPosition, err = e.loadPosition(collateralAsset, caller)
			if err != nil {
				return nil, err
			}
		}
		liquidatorPosition.creditScaledSupply(liquidatorScaled)
		if liquidatorPosition != collateralPosition {
			if err := e.state.PutPosition(liquidatorPosition); err != nil {
				return nil, err
			}
		}
	} else {
		collateralReserve.TotalScaledSupply.Sub(collateralReserve.TotalScaledSupply, liquidatorScaled)
		if collateralReserve.AvailableLiquidity.Cmp(liquidatorShare) < 0 {
			return nil, ErrInsufficientLiquidity
		}
		collateralReserve.AvailableLiquidity.Sub(collateralReserve.AvailableLiquidity, liquidatorShare)
		if err := e.transferOut(collateralAsset, caller, liquidatorShare); err != nil {
			return nil, err
		}
	}

	// The isolation collateral is identified before the collateral flag is
	// cleared; the tracked debt decrement happens after the reserve writes
	// on a freshly loaded record so aliasing with the reserves mutated here
	// cannot clobber it.
	isolationReserve, _, err := e.isolationCollateral(account)
	if err != nil {
		return nil, err
	}

	if debtPosition.ScaledVariableDebt.Sign() == 0 && debtPosition.ScaledStableDebt.Sign() == 0 {
		debtPosition.Borrowing = false
	}
	if collateralPosition.ScaledSupply.Sign() == 0 && collateralPosition.UsingAsCollateral {
		collateralPosition.UsingAsCollateral = false
	}

	if err := e.state.PutPosition(debtPosition); err != nil {
		return nil, err
	}
	if collateralPosition != debtPosition {
		if err := e.state.PutPosition(collateralPosition); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutReserve(debtReserve); err != nil {
		return nil, err
	}
	if collateralReserve != debtReserve {
		if err := e.state.PutReserve(collateralReserve); err != nil {
			return nil, err
		}
	}

	if isolationReserve != nil {
		tracked, err := e.loadReserve(isolationReserve.Asset)
		if err != nil {
			return nil, err
		}
		if err := e.decreaseIsolatedDebt(tracked, debtReserve, actualDebt); err != nil {
			return nil, err
		}
	}

	result := &LiquidationResult{
		DebtCovered:      actualDebt,
		CollateralSeized: seized,
		ProtocolFee:      fee,
		Forced:           forced,
	}
	if forced {
		e.emit(NewForcedLiquidationEvent(caller, account, collateralAsset, debtAsset, result))
	} else {
		e.emit(NewLiquidationEvent(caller, account, collateralAsset, debtAsset, result))
	}
	return result, nil
}

// collateralToSeize converts the debt to cover into collateral units,
// applies the liquidation bonus and, when the account holds less collateral
// than that, scales both quantities down proportionally.
func (e *Engine) collateralToSeize(collateralReserve, debtReserve *Reserve, position *Position,
	actualDebt, debtPrice, collateralPrice *big.Int, bonusBps uint64) (*big.Int, *big.Int, error) {

	collateralUnit := pow10(collateralReserve.Decimals)
	debtUnit := pow10(debtReserve.Decimals)

	debtValue, err := mulDiv(actualDebt, debtPrice, debtUnit, roundFloor)
	if err != nil {
		return nil, nil, err
	}
	base, err := mulDiv(debtValue, collateralUnit, collateralPrice, roundFloor)
	if err != nil {
		return nil, nil, err
	}
	seized, err := percentMul(base, bonusBps, roundHalfUp)
	if err != nil {
		return nil, nil, err
	}

	balance, err := supplyBalance(position.ScaledSupply, collateralReserve.LiquidityIndex)
	if err != nil {
		return nil, nil, err
	}
	if seized.Cmp(balance) <= 0 {
		return seized, actualDebt, nil
	}

	// Collateral-constrained: seize everything and shrink the covered debt
	// to the bonus-discounted equivalent of the balance.
	collateralValue, err := mulDiv(balance, collateralPrice, collateralUnit, roundFloor)
	if err != nil {
		return nil, nil, err
	}
	discounted, err := percentDiv(collateralValue, bonusBps, roundHalfUp)
	if err != nil {
		return nil, nil, err
	}
	reducedDebt, err := mulDiv(discounted, debtUnit, debtPrice, roundFloor)
	if err != nil {
		return nil, nil, err
	}
	if reducedDebt.Cmp(actualDebt) > 0 {
		reducedDebt = actualDebt
	}
	return balance, reducedDebt, nil
}

// burnLiquidatedDebt clears covered debt from the position, variable debt
// first, then stable.
func (e *Engine) burnLiquidatedDebt(reserve *Reserve, position *Position, covered *big.Int) error {
	remaining := new(big.Int).Set(covered)
	variableDebt, err := debtBalance(position.ScaledVariableDebt, reserve.VariableBorrowIndex)
	if err != nil {
		return err
	}
	if variableDebt.Sign() > 0 {
		portion := remaining
		if portion.Cmp(variableDebt) > 0 {
			portion = variableDebt
		}
		scaled, err := position.burnDebt(portion, reserve.VariableBorrowIndex, RateModeVariable)
		if err != nil {
			return err
		}
		reserve.TotalScaledVariableDebt.Sub(reserve.TotalScaledVariableDebt, scaled)
		remaining = new(big.Int).Sub(remaining, portion)
	}
	if remaining.Sign() > 0 && position.ScaledStableDebt.Sign() > 0 {
		scaled, err := position.burnDebt(remaining, reserve.VariableBorrowIndex, RateModeStable)
		if err != nil {
			return err
		}
		reserve.TotalScaledStableDebt.Sub(reserve.TotalScaledStableDebt, scaled)
	}
	return nil
}

func (e *Engine) whitelisted(caller common.Address) bool {
	_, ok := e.whitelist[caller]
	return ok
}
