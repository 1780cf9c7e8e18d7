package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// seedLiquidationMarket lists a collateral reserve with an 11000 bps bonus
// and a 10% protocol fee, gives the borrower collateral via supply and
// seeds raw variable debt on the debt reserve.
func seedLiquidationMarket(t *testing.T, env *testEnv, borrower common.Address, collateral, debt int64) (common.Address, common.Address) {
	t.Helper()
	collateralAsset := makeAddress(0x01)
	debtAsset := makeAddress(0x02)

	collateralReserve := testReserve(collateralAsset)
	collateralReserve.LiquidationBonusBps = 11_000
	collateralReserve.LiquidationProtocolFeeBps = 1_000
	env.state.addReserve(collateralReserve)
	env.state.addReserve(testReserve(debtAsset))
	env.oracle.set(collateralAsset, 1)
	env.oracle.set(debtAsset, 1)

	if err := env.engine.Supply(borrower, collateralAsset, big.NewInt(collateral), borrower); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
	putDebt(t, env, debtAsset, borrower, debt)
	debtReserve := env.state.reserve(t, debtAsset)
	debtReserve.TotalScaledVariableDebt = big.NewInt(debt)
	return collateralAsset, debtAsset
}

func TestLiquidatePartialWithProtocolFee(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	// HF = 0.8 * 1000 / 810 = 0.987: unhealthy but above the 0.95 cutoff,
	// so only half the debt is liquidatable.
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 810)

	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.DebtCovered.Cmp(big.NewInt(405)) != 0 {
		t.Fatalf("debt covered: got %s, want 405", result.DebtCovered)
	}
	// 405 * 1.1 = 445.5 rounds half up.
	if result.CollateralSeized.Cmp(big.NewInt(446)) != 0 {
		t.Fatalf("collateral seized: got %s, want 446", result.CollateralSeized)
	}
	// Fee applies to the 41-unit bonus portion only.
	if result.ProtocolFee.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("protocol fee: got %s, want 4", result.ProtocolFee)
	}
	if result.Forced {
		t.Fatal("standard liquidation flagged as forced")
	}

	debtPosition := env.state.position(debtAsset, borrower)
	if debtPosition.ScaledVariableDebt.Cmp(big.NewInt(405)) != 0 {
		t.Fatalf("remaining debt: got %s", debtPosition.ScaledVariableDebt)
	}
	if !debtPosition.Borrowing {
		t.Fatal("borrowing flag cleared with debt outstanding")
	}
	collateralPosition := env.state.position(collateralAsset, borrower)
	if collateralPosition.ScaledSupply.Cmp(big.NewInt(554)) != 0 {
		t.Fatalf("remaining collateral: got %s", collateralPosition.ScaledSupply)
	}
	treasury := env.state.position(collateralAsset, testTreasury)
	if treasury.ScaledSupply.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("treasury fee shares: got %s", treasury.ScaledSupply)
	}
	out := env.custody.lastOut(t)
	if out.asset != collateralAsset || out.account != liquidator || out.amount.Cmp(big.NewInt(442)) != 0 {
		t.Fatalf("liquidator payout: %+v", out)
	}
	if env.lastEvent(t).Type != EventTypeLiquidation {
		t.Fatalf("expected liquidation event, got %s", env.lastEvent(t).Type)
	}
}

func TestLiquidateFullCloseBelowThreshold(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	// HF = 800/900 = 0.888, under the 0.95 cutoff: full close allowed.
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 900)

	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.DebtCovered.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("debt covered: got %s, want 900", result.DebtCovered)
	}
	if result.CollateralSeized.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("collateral seized: got %s, want 990", result.CollateralSeized)
	}
	position := env.state.position(debtAsset, borrower)
	if position.ScaledVariableDebt.Sign() != 0 || position.Borrowing {
		t.Fatalf("debt not fully cleared: %+v", position)
	}
}

func TestLiquidateCollateralConstrained(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 500, 900)

	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// The whole 500 collateral goes, covering its bonus-discounted debt
	// equivalent of 455.
	if result.CollateralSeized.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("collateral seized: got %s, want 500", result.CollateralSeized)
	}
	if result.DebtCovered.Cmp(big.NewInt(455)) != 0 {
		t.Fatalf("debt covered: got %s, want 455", result.DebtCovered)
	}
	collateralPosition := env.state.position(collateralAsset, borrower)
	if collateralPosition.ScaledSupply.Sign() != 0 {
		t.Fatalf("collateral left: %s", collateralPosition.ScaledSupply)
	}
	if collateralPosition.UsingAsCollateral {
		t.Fatal("collateral flag survived a full seizure")
	}
}

func TestLiquidateFullSeizureWithFeeAtElevatedIndex(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	collateralAsset := makeAddress(0x01)
	debtAsset := makeAddress(0x02)

	// The collateral index has doubled, so 50 scaled units back exactly
	// 100 underlying. Seizing the whole balance with a protocol fee must
	// not round the fee and liquidator portions past the scaled balance.
	collateralReserve := testReserve(collateralAsset)
	collateralReserve.LiquidationBonusBps = 11_000
	collateralReserve.LiquidationProtocolFeeBps = 5_000
	collateralReserve.LiquidityIndex = doubleRay()
	collateralReserve.TotalScaledSupply = big.NewInt(50)
	collateralReserve.AvailableLiquidity = big.NewInt(100)
	env.state.addReserve(collateralReserve)
	env.state.addReserve(testReserve(debtAsset))
	env.oracle.set(collateralAsset, 1)
	env.oracle.set(debtAsset, 1)

	position := &Position{Account: borrower, Asset: collateralAsset, UsingAsCollateral: true}
	position.ensureDefaults()
	position.ScaledSupply = big.NewInt(50)
	if err := env.state.PutPosition(position); err != nil {
		t.Fatalf("PutPosition: %v", err)
	}
	putDebt(t, env, debtAsset, borrower, 1_000)
	env.state.reserve(t, debtAsset).TotalScaledVariableDebt = big.NewInt(1_000)

	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.CollateralSeized.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("collateral seized: got %s, want 100", result.CollateralSeized)
	}
	// Principal equivalent is 91; the 9-unit bonus portion pays a 5-unit
	// fee at 50%, leaving 95 underlying for the liquidator.
	if result.ProtocolFee.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("protocol fee: got %s, want 5", result.ProtocolFee)
	}
	collateralPosition := env.state.position(collateralAsset, borrower)
	if collateralPosition.ScaledSupply.Sign() != 0 {
		t.Fatalf("collateral left: %s", collateralPosition.ScaledSupply)
	}
	// The fee keeps floor(5/2)=2 scaled units with the treasury and the
	// remaining 48 of the 50 burned units back the 95-unit payout.
	treasury := env.state.position(collateralAsset, testTreasury)
	if treasury.ScaledSupply.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("treasury fee shares: got %s", treasury.ScaledSupply)
	}
	out := env.custody.lastOut(t)
	if out.asset != collateralAsset || out.account != liquidator || out.amount.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("liquidator payout: %+v", out)
	}
	reserve := env.state.reserve(t, collateralAsset)
	if reserve.TotalScaledSupply.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("total scaled supply: got %s, want 2", reserve.TotalScaledSupply)
	}
	if reserve.AvailableLiquidity.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("available liquidity: got %s, want 5", reserve.AvailableLiquidity)
	}
}

func TestLiquidateHealthFactorBoundary(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	// 1000 collateral at an 8000 bps threshold against 800 debt puts the
	// health factor at exactly one, which is still healthy.
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 800)

	_, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if !errors.Is(err, ErrHealthFactorNotBelowThreshold) {
		t.Fatalf("expected ErrHealthFactorNotBelowThreshold at the boundary, got %v", err)
	}

	// One more unit of debt tips the factor below one and opens the
	// position to liquidation.
	putDebt(t, env, debtAsset, borrower, 801)
	env.state.reserve(t, debtAsset).TotalScaledVariableDebt = big.NewInt(801)
	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate just under the boundary: %v", err)
	}
	// 0.8 * 1000 / 801 is above the 0.95 cutoff, so only half closes.
	if result.DebtCovered.Cmp(big.NewInt(401)) != 0 {
		t.Fatalf("debt covered: got %s, want 401", result.DebtCovered)
	}
}

func TestLiquidateUsesCategoryPriceSource(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	collateralAsset := makeAddress(0x01)
	debtAsset := makeAddress(0x02)
	source := makeAddress(0x03)

	collateralReserve := testReserve(collateralAsset)
	collateralReserve.EModeCategoryID = 1
	env.state.addReserve(collateralReserve)
	env.state.addReserve(testReserve(debtAsset))
	// The collateral's own feed disagrees with the category source; the
	// seizure must price through the source, as the health factor does.
	env.oracle.set(collateralAsset, 1)
	env.oracle.set(source, 2)
	env.oracle.set(debtAsset, 1)

	if err := env.state.PutEModeCategory(&EModeCategory{
		ID: 1, LTVBps: 9_000, LiquidationThresholdBps: 9_500, LiquidationBonusBps: 10_100,
		PriceSource: &source,
	}); err != nil {
		t.Fatalf("PutEModeCategory: %v", err)
	}
	if err := env.state.PutAccountCategory(borrower, 1); err != nil {
		t.Fatalf("PutAccountCategory: %v", err)
	}

	if err := env.engine.Supply(borrower, collateralAsset, big.NewInt(1_000), borrower); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
	putDebt(t, env, debtAsset, borrower, 2_000)
	env.state.reserve(t, debtAsset).TotalScaledVariableDebt = big.NewInt(2_000)

	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Half of the 2000 debt closes; at a source price of 2 the 1000 debt
	// value converts to 500 collateral plus the 10100 bps category bonus.
	if result.DebtCovered.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("debt covered: got %s, want 1000", result.DebtCovered)
	}
	if result.CollateralSeized.Cmp(big.NewInt(505)) != 0 {
		t.Fatalf("collateral seized: got %s, want 505", result.CollateralSeized)
	}
}

func TestLiquidateHealthyAccountRejected(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 300)

	_, err := env.engine.Liquidate(makeAddress(0xbb), collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if !errors.Is(err, ErrHealthFactorNotBelowThreshold) {
		t.Fatalf("expected ErrHealthFactorNotBelowThreshold, got %v", err)
	}
}

func TestLiquidateNoDebt(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 300)
	putDebt(t, env, debtAsset, borrower, 0)

	_, err := env.engine.Liquidate(makeAddress(0xbb), collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if !errors.Is(err, ErrNoDebtToRepay) {
		t.Fatalf("expected ErrNoDebtToRepay, got %v", err)
	}
}

func TestForcedLiquidationBypassesHealthCheck(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	outsider := makeAddress(0xbb)
	keeper := makeAddress(0xcc)
	// Healthy position on a frozen reserve armed for forced unwind.
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 300)
	debtReserve := env.state.reserve(t, debtAsset)
	debtReserve.Flags.Frozen = true
	debtReserve.Flags.ForcedLiquidationEnabled = true

	// A third party without whitelist standing is turned away with the
	// authorization error, not the health error.
	_, err := env.engine.Liquidate(outsider, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if !errors.Is(err, ErrForcedLiquidationNotAuthorized) {
		t.Fatalf("expected ErrForcedLiquidationNotAuthorized, got %v", err)
	}

	// The account itself may always self-unwind.
	result, err := env.engine.Liquidate(borrower, collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if err != nil {
		t.Fatalf("self liquidate: %v", err)
	}
	if !result.Forced {
		t.Fatal("forced path not flagged")
	}
	// Forced unwind ignores the close factor.
	if result.DebtCovered.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("debt covered: got %s, want 300", result.DebtCovered)
	}
	if env.lastEvent(t).Type != EventTypeForcedLiquidation {
		t.Fatalf("expected forced liquidation event, got %s", env.lastEvent(t).Type)
	}

	// Whitelisted keepers clear the remaining accounts.
	other := makeAddress(0xad)
	if err := env.engine.Supply(other, collateralAsset, big.NewInt(1_000), other); err != nil {
		t.Fatalf("supply: %v", err)
	}
	putDebt(t, env, debtAsset, other, 200)
	env.state.reserve(t, debtAsset).TotalScaledVariableDebt = big.NewInt(200)
	env.engine.SetForcedLiquidationWhitelist([]common.Address{keeper})
	if _, err := env.engine.Liquidate(keeper, collateralAsset, debtAsset, other, EntireBalance(), false); err != nil {
		t.Fatalf("whitelisted liquidate: %v", err)
	}
}

func TestLiquidateReceiveShares(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	liquidator := makeAddress(0xbb)
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 810)

	outsBefore := len(env.custody.outs)
	result, err := env.engine.Liquidate(liquidator, collateralAsset, debtAsset, borrower, EntireBalance(), true)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	share := env.state.position(collateralAsset, liquidator).ScaledSupply
	want := new(big.Int).Sub(result.CollateralSeized, result.ProtocolFee)
	if share.Cmp(want) != 0 {
		t.Fatalf("liquidator shares: got %s, want %s", share, want)
	}
	// No underlying leaves the pool when the seizure stays in shares.
	if len(env.custody.outs) != outsBefore {
		t.Fatalf("unexpected underlying transfer: %+v", env.custody.outs)
	}
	reserve := env.state.reserve(t, collateralAsset)
	if reserve.AvailableLiquidity.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("collateral liquidity moved: %s", reserve.AvailableLiquidity)
	}
}

func TestLiquidateCollateralNotEnabled(t *testing.T) {
	env := newTestEnv()
	borrower := makeAddress(0xaa)
	collateralAsset, debtAsset := seedLiquidationMarket(t, env, borrower, 1_000, 900)
	position := env.state.position(collateralAsset, borrower)
	position.UsingAsCollateral = false
	if err := env.state.PutPosition(position); err != nil {
		t.Fatalf("PutPosition: %v", err)
	}

	_, err := env.engine.Liquidate(makeAddress(0xbb), collateralAsset, debtAsset, borrower, EntireBalance(), false)
	if !errors.Is(err, ErrCollateralNotEnabled) {
		t.Fatalf("expected ErrCollateralNotEnabled, got %v", err)
	}
}
