package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	cases := []struct {
		name  string
		a, b  int64
		denom int64
		round rounding
		want  int64
	}{
		{"floor discards remainder", 7, 1, 2, roundFloor, 3},
		{"ceil bumps remainder", 7, 1, 2, roundCeil, 4},
		{"half up at midpoint", 7, 1, 2, roundHalfUp, 4},
		{"half up below midpoint", 7, 1, 3, roundHalfUp, 2},
		{"exact division untouched", 8, 1, 2, roundCeil, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mulDiv(big.NewInt(tc.a), big.NewInt(tc.b), big.NewInt(tc.denom), tc.round)
			if err != nil {
				t.Fatalf("mulDiv: %v", err)
			}
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("got %s, want %d", got, tc.want)
			}
		})
	}
}

func TestMulDivDivisionByZero(t *testing.T) {
	if _, err := mulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0), roundFloor); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	huge := new(big.Int).Set(maxUint256)
	if _, err := mulDiv(huge, big.NewInt(2), big.NewInt(1), roundFloor); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	// The bound applies to the result, not the intermediate product.
	if _, err := mulDiv(huge, big.NewInt(2), big.NewInt(2), roundFloor); err != nil {
		t.Fatalf("result within range rejected: %v", err)
	}
}

func TestRayMulIdentity(t *testing.T) {
	v := big.NewInt(123_456)
	got, err := rayMul(v, ray, roundFloor)
	if err != nil {
		t.Fatalf("rayMul: %v", err)
	}
	if got.Cmp(v) != 0 {
		t.Fatalf("identity broken: got %s", got)
	}
}

func TestPercentMul(t *testing.T) {
	got, err := percentMul(big.NewInt(405), 11_000, roundHalfUp)
	if err != nil {
		t.Fatalf("percentMul: %v", err)
	}
	// 405 * 1.1 = 445.5, rounded half up.
	if got.Cmp(big.NewInt(446)) != 0 {
		t.Fatalf("got %s, want 446", got)
	}
}

func TestLinearFactor(t *testing.T) {
	rate := new(big.Int).Div(ray, big.NewInt(10)) // 10% annual
	got := linearFactor(rate, secondsPerYear)
	want := new(big.Int).Add(ray, rate)
	if got.Cmp(want) != 0 {
		t.Fatalf("full year: got %s, want %s", got, want)
	}
	if linearFactor(rate, 0).Cmp(ray) != 0 {
		t.Fatal("zero elapsed must be the identity factor")
	}
}

func TestRatToRayHalfUp(t *testing.T) {
	// 1/3 at RAY precision ends in ...333, the discarded tail rounds down.
	third := ratToRay(new(big.Rat).SetFrac64(1, 3))
	if third.Cmp(mustBigInt("333333333333333333333333333")) != 0 {
		t.Fatalf("1/3: got %s", third)
	}
	// 2/3 ends in ...666 with a 6 tail, rounding up.
	twoThirds := ratToRay(new(big.Rat).SetFrac64(2, 3))
	if twoThirds.Cmp(mustBigInt("666666666666666666666666667")) != 0 {
		t.Fatalf("2/3: got %s", twoThirds)
	}
}

func TestPow10(t *testing.T) {
	if pow10(0).Cmp(big.NewInt(1)) != 0 {
		t.Fatal("pow10(0) must be one")
	}
	if pow10(18).Cmp(wad) != 0 {
		t.Fatal("pow10(18) must equal one WAD")
	}
}
