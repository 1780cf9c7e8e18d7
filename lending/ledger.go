package lending

import "math/big"

// The scaled-balance ledger stores every balance divided by the index that
// was current when it was written, so interest accrues implicitly as the
// index grows. Rounding is directionally biased: whenever the pool credits a
// user the scaled amount rounds down, whenever it debits a user the scaled
// amount rounds up. The supply and debt sides apply the bias in opposite
// directions so the ledger never reports more supply value than it holds and
// never less debt than is owed.

// mintSupply credits amount of underlying to the position at the given
// liquidity index. It reports the scaled increment and whether this is the
// account's first non-zero supply balance on the asset.
func (p *Position) mintSupply(amount, index *big.Int) (*big.Int, bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, false, ErrInvalidAmount
	}
	scaled, err := rayDiv(amount, index, roundFloor)
	if err != nil {
		return nil, false, err
	}
	first := p.ScaledSupply.Sign() == 0
	p.ScaledSupply = new(big.Int).Add(p.ScaledSupply, scaled)
	return scaled, first, nil
}

// burnSupply debits amount of underlying from the position at the given
// liquidity index and returns the scaled decrement.
func (p *Position) burnSupply(amount, index *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	scaled, err := rayDiv(amount, index, roundCeil)
	if err != nil {
		return nil, err
	}
	if p.ScaledSupply.Cmp(scaled) < 0 {
		return nil, ErrInsufficientBalance
	}
	p.ScaledSupply = new(big.Int).Sub(p.ScaledSupply, scaled)
	return scaled, nil
}

// mintDebt records amount of new debt at the given borrow index, rounding the
// scaled increment up so the pool never under-records what is owed.
func (p *Position) mintDebt(amount, index *big.Int, mode RateMode) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !mode.valid() {
		return nil, ErrInvalidRateMode
	}
	scaled, err := rayDiv(amount, index, roundCeil)
	if err != nil {
		return nil, err
	}
	if mode == RateModeStable {
		p.ScaledStableDebt = new(big.Int).Add(p.ScaledStableDebt, scaled)
	} else {
		p.ScaledVariableDebt = new(big.Int).Add(p.ScaledVariableDebt, scaled)
	}
	return scaled, nil
}

// burnDebt clears amount of debt at the given borrow index, rounding the
// scaled decrement down and clamping it to the remaining scaled balance so a
// full repayment computed from a ceil read cannot underflow.
func (p *Position) burnDebt(amount, index *big.Int, mode RateMode) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !mode.valid() {
		return nil, ErrInvalidRateMode
	}
	scaled, err := rayDiv(amount, index, roundFloor)
	if err != nil {
		return nil, err
	}
	target := p.ScaledVariableDebt
	if mode == RateModeStable {
		target = p.ScaledStableDebt
	}
	if scaled.Cmp(target) > 0 {
		scaled = new(big.Int).Set(target)
	}
	remaining := new(big.Int).Sub(target, scaled)
	if mode == RateModeStable {
		p.ScaledStableDebt = remaining
	} else {
		p.ScaledVariableDebt = remaining
	}
	return scaled, nil
}

// creditScaledSupply credits already-scaled units to the position. It is
// used when a burn's scaled units are reallocated to another position rather
// than converted from underlying, so no rounding is applied.
func (p *Position) creditScaledSupply(scaled *big.Int) {
	if scaled == nil || scaled.Sign() <= 0 {
		return
	}
	p.ScaledSupply = new(big.Int).Add(p.ScaledSupply, scaled)
}

// supplyBalance converts a scaled supply balance to current units, rounding
// down.
func supplyBalance(scaled, index *big.Int) (*big.Int, error) {
	if scaled == nil || scaled.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return rayMul(scaled, index, roundFloor)
}

// debtBalance converts a scaled debt balance to current units, rounding up.
func debtBalance(scaled, index *big.Int) (*big.Int, error) {
	if scaled == nil || scaled.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return rayMul(scaled, index, roundCeil)
}

// SupplyBalance converts the position's scaled supply to underlying units at
// the given liquidity index.
func (p *Position) SupplyBalance(index *big.Int) (*big.Int, error) {
	return supplyBalance(p.ScaledSupply, index)
}

// DebtBalance converts the position's combined scaled debt to underlying
// units at the given borrow index.
func (p *Position) DebtBalance(index *big.Int) (*big.Int, error) {
	return p.totalDebtBalance(index)
}

// totalDebtBalance returns the position's combined variable and stable debt
// at the given borrow index.
func (p *Position) totalDebtBalance(index *big.Int) (*big.Int, error) {
	variable, err := debtBalance(p.ScaledVariableDebt, index)
	if err != nil {
		return nil, err
	}
	stable, err := debtBalance(p.ScaledStableDebt, index)
	if err != nil {
		return nil, err
	}
	return variable.Add(variable, stable), nil
}
