package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// debtCeilingDecimals is the fixed-decimal unit the isolation ceiling and the
// tracked isolated debt are measured in.
const debtCeilingDecimals = 2

// isolationCollateral returns the reserve the account uses as isolated
// collateral, or nil when the account is not in isolation mode. At most one
// such reserve can exist because isolated collateral is exclusive.
func (e *Engine) isolationCollateral(account common.Address) (*Reserve, *Position, error) {
	slots, err := e.state.ReserveSlots()
	if err != nil {
		return nil, nil, err
	}
	for _, slot := range slots {
		if slot.Tombstoned {
			continue
		}
		position, err := e.loadPosition(slot.Asset, account)
		if err != nil {
			return nil, nil, err
		}
		if !position.UsingAsCollateral || position.ScaledSupply.Sign() == 0 {
			continue
		}
		reserve, err := e.loadReserve(slot.Asset)
		if err != nil {
			return nil, nil, err
		}
		if reserve.DebtCeiling.Sign() > 0 {
			return reserve, position, nil
		}
	}
	return nil, nil, nil
}

// ceilingUnits converts an amount of the debt asset into the ceiling's
// fixed-decimal unit, truncating towards zero.
func ceilingUnits(amount *big.Int, debtDecimals uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if debtDecimals <= debtCeilingDecimals {
		scale := pow10(debtCeilingDecimals - debtDecimals)
		return new(big.Int).Mul(amount, scale)
	}
	scale := pow10(debtDecimals - debtCeilingDecimals)
	return new(big.Int).Quo(amount, scale)
}

// increaseIsolatedDebt books a borrow against the isolated collateral's debt
// ceiling. The debt asset must be flagged borrowable in isolation and the
// tracked total may not exceed the ceiling.
func (e *Engine) increaseIsolatedDebt(collateral, debt *Reserve, amount *big.Int) error {
	if !debt.Flags.BorrowableInIsolation {
		return ErrAssetNotBorrowableInIsolation
	}
	increase := ceilingUnits(amount, debt.Decimals)
	next := new(big.Int).Add(collateral.IsolatedTotalDebt, increase)
	if next.Cmp(collateral.DebtCeiling) > 0 {
		return ErrDebtCeilingExceeded
	}
	collateral.IsolatedTotalDebt = next
	return e.state.PutReserve(collateral)
}

// decreaseIsolatedDebt books a repayment against the tracked isolated debt.
// The ceiling unit is coarser than the debt itself, so a repaid amount at or
// above the tracked total clears it to zero.
func (e *Engine) decreaseIsolatedDebt(collateral, debt *Reserve, amount *big.Int) error {
	repaid := ceilingUnits(amount, debt.Decimals)
	if collateral.IsolatedTotalDebt.Cmp(repaid) <= 0 {
		collateral.IsolatedTotalDebt = big.NewInt(0)
	} else {
		collateral.IsolatedTotalDebt = new(big.Int).Sub(collateral.IsolatedTotalDebt, repaid)
	}
	return e.state.PutReserve(collateral)
}
