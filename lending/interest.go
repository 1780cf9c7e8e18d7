package lending

import "math/big"

// InterestModel encapsulates the two-slope rate curve that shapes how borrow
// rates react to reserve utilisation.
type InterestModel struct {
	// BaseRate is the minimum borrow rate applied when utilisation is zero.
	BaseRate *big.Rat
	// Slope1 is the rate increase accumulated while utilisation climbs from
	// zero to the optimal point.
	Slope1 *big.Rat
	// Slope2 governs the additional increase applied beyond the optimal
	// point, where the curve steepens to defend liquidity.
	Slope2 *big.Rat
	// OptimalUtilisation is the kink where the slope changes.
	OptimalUtilisation *big.Rat
}

// NewInterestModel constructs an interest model from decimal inputs, e.g. a
// 2% base rate is 0.02 and an 80% optimal utilisation is 0.8.
func NewInterestModel(baseRate, slope1, slope2, optimal float64) *InterestModel {
	model := &InterestModel{
		BaseRate:           new(big.Rat),
		Slope1:             new(big.Rat),
		Slope2:             new(big.Rat),
		OptimalUtilisation: new(big.Rat),
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.OptimalUtilisation.SetFloat64(optimal)
	return model
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := &InterestModel{
		BaseRate:           new(big.Rat),
		Slope1:             new(big.Rat),
		Slope2:             new(big.Rat),
		OptimalUtilisation: new(big.Rat),
	}
	if m.BaseRate != nil {
		clone.BaseRate.Set(m.BaseRate)
	}
	if m.Slope1 != nil {
		clone.Slope1.Set(m.Slope1)
	}
	if m.Slope2 != nil {
		clone.Slope2.Set(m.Slope2)
	}
	if m.OptimalUtilisation != nil {
		clone.OptimalUtilisation.Set(m.OptimalUtilisation)
	}
	return clone
}

// Utilisation computes U = totalDebt / (totalDebt + availableLiquidity).
// With no debt the utilisation is defined as zero.
func Utilisation(totalDebt, availableLiquidity *big.Int) *big.Rat {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return new(big.Rat)
	}
	denom := new(big.Int).Set(totalDebt)
	if availableLiquidity != nil {
		denom.Add(denom, availableLiquidity)
	}
	return new(big.Rat).SetFrac(totalDebt, denom)
}

// VariableRate derives the annual borrow rate for the given utilisation:
// base + slope1*(U/U*) below the kink, base + slope1 + slope2*((U-U*)/(1-U*))
// above it.
func (m *InterestModel) VariableRate(utilisation *big.Rat) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	u := cloneRat(utilisation)
	if u.Sign() == 0 {
		return rate
	}
	optimal := cloneRat(m.OptimalUtilisation)
	slope1 := cloneRat(m.Slope1)
	if optimal.Sign() == 0 || u.Cmp(optimal) <= 0 {
		if optimal.Sign() == 0 {
			return rate.Add(rate, slope1)
		}
		ratio := new(big.Rat).Quo(u, optimal)
		return rate.Add(rate, ratio.Mul(ratio, slope1))
	}

	rate.Add(rate, slope1)

	one := big.NewRat(1, 1)
	headroom := new(big.Rat).Sub(one, optimal)
	if headroom.Sign() <= 0 {
		return rate.Add(rate, cloneRat(m.Slope2))
	}
	excess := new(big.Rat).Sub(u, optimal)
	excess.Quo(excess, headroom)
	return rate.Add(rate, excess.Mul(excess, cloneRat(m.Slope2)))
}

// SupplyRate derives the rate credited to suppliers:
// variableRate * U * (1 - reserveFactor).
func SupplyRate(variableRate, utilisation *big.Rat, reserveFactorBps uint64) *big.Rat {
	if variableRate == nil || variableRate.Sign() == 0 {
		return new(big.Rat)
	}
	if utilisation == nil || utilisation.Sign() == 0 {
		return new(big.Rat)
	}
	factor := new(big.Rat).SetFrac(new(big.Int).SetUint64(reserveFactorBps), basisPoints)
	oneMinus := new(big.Rat).Sub(big.NewRat(1, 1), factor)
	if oneMinus.Sign() < 0 {
		oneMinus.SetInt64(0)
	}
	rate := new(big.Rat).Mul(variableRate, utilisation)
	return rate.Mul(rate, oneMinus)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultInterestModel provides a reasonable starting configuration featuring
// a kinked rate curve with a modest base rate.
var DefaultInterestModel = NewInterestModel(0.02, 0.04, 0.6, 0.8)
