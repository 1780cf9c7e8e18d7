package lending

import "math/big"

var (
	wad         = mustBigInt("1000000000000000000")          // 1e18
	ray         = mustBigInt("1000000000000000000000000000") // 1e27
	basisPoints = big.NewInt(10_000)
	maxUint256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

const secondsPerYear = 31_536_000

// maxBps is the basis-point denominator as a plain integer for parameter
// range checks.
const maxBps uint64 = 10_000

// rounding selects the direction applied to the discarded remainder of a
// fixed-point multiply or divide.
type rounding int

const (
	roundFloor rounding = iota
	roundCeil
	roundHalfUp
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/denom under the requested rounding. Results are bounded
// to 256 bits so the accounting mirrors the word size of the ledgers it
// shadows; anything wider fails with ErrOverflow instead of proceeding.
func mulDiv(a, b, denom *big.Int, round rounding) (*big.Int, error) {
	if a == nil || b == nil {
		return big.NewInt(0), nil
	}
	if denom == nil || denom.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	switch round {
	case roundCeil:
		product.Add(product, new(big.Int).Sub(denom, big.NewInt(1)))
	case roundHalfUp:
		product.Add(product, halfUp(denom))
	}
	product.Quo(product, denom)
	if product.BitLen() > 256 {
		return nil, ErrOverflow
	}
	return product, nil
}

func rayMul(a, b *big.Int, round rounding) (*big.Int, error) {
	return mulDiv(a, b, ray, round)
}

func rayDiv(a, b *big.Int, round rounding) (*big.Int, error) {
	return mulDiv(a, ray, b, round)
}

func wadMul(a, b *big.Int, round rounding) (*big.Int, error) {
	return mulDiv(a, b, wad, round)
}

func wadDiv(a, b *big.Int, round rounding) (*big.Int, error) {
	return mulDiv(a, wad, b, round)
}

func percentMul(a *big.Int, bps uint64, round rounding) (*big.Int, error) {
	return mulDiv(a, new(big.Int).SetUint64(bps), basisPoints, round)
}

func percentDiv(a *big.Int, bps uint64, round rounding) (*big.Int, error) {
	if bps == 0 {
		return nil, ErrDivisionByZero
	}
	return mulDiv(a, basisPoints, new(big.Int).SetUint64(bps), round)
}

// halfUp returns ceil(x/2) for positive x, used as the additive term for
// round-half-up division.
func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}

// ratToRay converts an annual rate expressed as a rational into RAY precision
// with half-up rounding.
func ratToRay(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(ray))
	num := scaled.Num()
	den := scaled.Denom()
	result := new(big.Int).Add(num, halfUp(den))
	return result.Quo(result, den)
}

// linearFactor computes the cumulated linear interest factor
// 1 + rate*elapsed/secondsPerYear at RAY precision. A zero rate or elapsed
// time yields the identity factor.
func linearFactor(rateRay *big.Int, elapsed uint64) *big.Int {
	if rateRay == nil || rateRay.Sign() == 0 || elapsed == 0 {
		return new(big.Int).Set(ray)
	}
	growth := new(big.Int).Mul(rateRay, new(big.Int).SetUint64(elapsed))
	growth.Add(growth, halfUp(big.NewInt(secondsPerYear)))
	growth.Quo(growth, big.NewInt(secondsPerYear))
	return growth.Add(growth, ray)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
