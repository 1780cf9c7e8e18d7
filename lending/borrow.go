package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Borrow draws credit against onBehalfOf's collateral and transfers the
// underlying to the caller. Caps, freeze and pause flags, the isolation
// ceiling, eMode consistency, siloed-borrowing exclusivity, LTV-based
// availability and the post-borrow health factor are all validated.
func (e *Engine) Borrow(caller, asset common.Address, amount *big.Int, mode RateMode, onBehalfOf common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !mode.valid() {
		return ErrInvalidRateMode
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return err
	}
	if !reserve.Flags.Active {
		return ErrReserveInactive
	}
	if reserve.Flags.Paused {
		return ErrReservePaused
	}
	if reserve.Flags.Frozen {
		return ErrReserveFrozen
	}
	if !reserve.Flags.BorrowingEnabled {
		return ErrBorrowingDisabled
	}

	categoryID, err := e.state.GetAccountCategory(onBehalfOf)
	if err != nil {
		return err
	}
	if categoryID != 0 && reserve.EModeCategoryID != categoryID {
		return ErrEModeCategoryMismatch
	}

	if err := e.checkSiloedBorrowing(onBehalfOf, reserve); err != nil {
		return err
	}

	if reserve.BorrowCap.Sign() > 0 {
		totalScaledDebt := new(big.Int).Add(reserve.TotalScaledVariableDebt, reserve.TotalScaledStableDebt)
		totalDebt, err := debtBalance(totalScaledDebt, reserve.VariableBorrowIndex)
		if err != nil {
			return err
		}
		if totalDebt.Add(totalDebt, amount).Cmp(reserve.BorrowCap) > 0 {
			return ErrBorrowCapExceeded
		}
	}

	collateralReserve, _, err := e.isolationCollateral(onBehalfOf)
	if err != nil {
		return err
	}
	if collateralReserve != nil {
		// Reuse the live record when the borrowed asset is the isolation
		// collateral itself, otherwise the later reserve write drops the
		// ceiling bump.
		if collateralReserve.Asset == reserve.Asset {
			collateralReserve = reserve
		}
		if err := e.increaseIsolatedDebt(collateralReserve, reserve, amount); err != nil {
			return err
		}
	}

	if reserve.AvailableLiquidity.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	data, err := e.accountData(onBehalfOf)
	if err != nil {
		return err
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}
	amountValue, err := mulDiv(amount, price, pow10(reserve.Decimals), roundCeil)
	if err != nil {
		return err
	}
	if data.AvailableBorrows.Cmp(amountValue) < 0 {
		return ErrCollateralCannotCoverBorrow
	}

	position, err := e.loadPosition(asset, onBehalfOf)
	if err != nil {
		return err
	}
	scaled, err := position.mintDebt(amount, reserve.VariableBorrowIndex, mode)
	if err != nil {
		return err
	}
	if mode == RateModeStable {
		reserve.TotalScaledStableDebt.Add(reserve.TotalScaledStableDebt, scaled)
	} else {
		reserve.TotalScaledVariableDebt.Add(reserve.TotalScaledVariableDebt, scaled)
	}
	reserve.AvailableLiquidity.Sub(reserve.AvailableLiquidity, amount)
	position.Borrowing = true

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}

	data, err = e.accountData(onBehalfOf)
	if err != nil {
		return err
	}
	if data.HealthFactor.Cmp(wad) < 0 {
		return ErrHealthFactorBelowThreshold
	}

	if err := e.transferOut(asset, caller, amount); err != nil {
		return err
	}

	e.emit(NewBorrowEvent(asset, caller, onBehalfOf, amount, mode))
	return nil
}

// Repay burns onBehalfOf's debt on the asset with funds supplied by the
// caller. The All form means the full current debt balance, computed at call
// time; requests beyond the outstanding debt are capped, not failed.
func (e *Engine) Repay(caller, asset common.Address, amount Amount, mode RateMode, onBehalfOf common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !mode.valid() {
		return ErrInvalidRateMode
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return err
	}
	if !reserve.Flags.Active {
		return ErrReserveInactive
	}
	if reserve.Flags.Paused {
		return ErrReservePaused
	}

	position, err := e.loadPosition(asset, onBehalfOf)
	if err != nil {
		return err
	}
	scaledDebt := position.ScaledVariableDebt
	if mode == RateModeStable {
		scaledDebt = position.ScaledStableDebt
	}
	debt, err := debtBalance(scaledDebt, reserve.VariableBorrowIndex)
	if err != nil {
		return err
	}
	if debt.Sign() == 0 {
		return ErrNoDebtToRepay
	}
	resolved, err := amount.resolve(debt, true)
	if err != nil {
		return err
	}

	if err := e.transferIn(asset, caller, resolved); err != nil {
		return err
	}

	scaled, err := position.burnDebt(resolved, reserve.VariableBorrowIndex, mode)
	if err != nil {
		return err
	}
	if mode == RateModeStable {
		reserve.TotalScaledStableDebt.Sub(reserve.TotalScaledStableDebt, scaled)
	} else {
		reserve.TotalScaledVariableDebt.Sub(reserve.TotalScaledVariableDebt, scaled)
	}
	reserve.AvailableLiquidity.Add(reserve.AvailableLiquidity, resolved)
	if position.ScaledVariableDebt.Sign() == 0 && position.ScaledStableDebt.Sign() == 0 {
		position.Borrowing = false
	}

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}

	// The isolation collateral is reloaded after the reserve write so a
	// reserve serving as both sides of the repayment is not clobbered.
	collateralReserve, _, err := e.isolationCollateral(onBehalfOf)
	if err != nil {
		return err
	}
	if collateralReserve != nil {
		if err := e.decreaseIsolatedDebt(collateralReserve, reserve, resolved); err != nil {
			return err
		}
	}

	e.emit(NewRepayEvent(asset, caller, onBehalfOf, resolved, mode))
	return nil
}

// checkSiloedBorrowing enforces the exclusivity rule: an account with debt on
// a siloed reserve may not borrow anything else, and a siloed reserve may not
// be borrowed while other debt exists.
func (e *Engine) checkSiloedBorrowing(account common.Address, candidate *Reserve) error {
	slots, err := e.state.ReserveSlots()
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Tombstoned || slot.Asset == candidate.Asset {
			continue
		}
		position, err := e.loadPosition(slot.Asset, account)
		if err != nil {
			return err
		}
		if position.ScaledVariableDebt.Sign() == 0 && position.ScaledStableDebt.Sign() == 0 {
			continue
		}
		if candidate.Flags.SiloedBorrowing {
			return ErrSiloedBorrowingViolation
		}
		other, err := e.loadReserve(slot.Asset)
		if err != nil {
			return err
		}
		if other.Flags.SiloedBorrowing {
			return ErrSiloedBorrowingViolation
		}
	}
	return nil
}
