package storage

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendpool/lending"
)

func testAddress(suffix byte) common.Address {
	var addr common.Address
	addr[common.AddressLength-1] = suffix
	return addr
}

func TestReserveRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())
	asset := testAddress(0x01)

	missing, err := state.GetReserve(asset)
	require.NoError(t, err)
	require.Nil(t, missing)

	reserve := &lending.Reserve{
		Asset:                     asset,
		Decimals:                  6,
		LiquidityIndex:            big.NewInt(1_000_000),
		VariableBorrowIndex:       big.NewInt(2_000_000),
		CurrentLiquidityRate:      big.NewInt(3),
		CurrentVariableBorrowRate: big.NewInt(4),
		LastUpdateTimestamp:       42,
		ReserveFactorBps:          1_000,
		LTVBps:                    7_000,
		LiquidationThresholdBps:   8_000,
		LiquidationBonusBps:       10_500,
		LiquidationProtocolFeeBps: 500,
		BorrowCap:                 big.NewInt(100),
		SupplyCap:                 big.NewInt(200),
		DebtCeiling:               big.NewInt(300),
		IsolatedTotalDebt:         big.NewInt(50),
		TotalScaledSupply:         big.NewInt(900),
		TotalScaledVariableDebt:   big.NewInt(400),
		TotalScaledStableDebt:     big.NewInt(10),
		AvailableLiquidity:        big.NewInt(500),
		Flags: lending.ReserveFlags{
			Active:                   true,
			BorrowingEnabled:         true,
			SiloedBorrowing:          true,
			ForcedLiquidationEnabled: true,
		},
		EModeCategoryID: 2,
	}
	require.NoError(t, state.PutReserve(reserve))

	loaded, err := state.GetReserve(asset)
	require.NoError(t, err)
	require.Equal(t, reserve, loaded)
}

func TestPositionRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())
	asset := testAddress(0x01)
	account := testAddress(0xaa)

	missing, err := state.GetPosition(asset, account)
	require.NoError(t, err)
	require.Nil(t, missing)

	position := &lending.Position{
		Account:            account,
		Asset:              asset,
		ScaledSupply:       big.NewInt(123),
		ScaledVariableDebt: big.NewInt(45),
		ScaledStableDebt:   big.NewInt(6),
		UsingAsCollateral:  true,
		Borrowing:          true,
	}
	require.NoError(t, state.PutPosition(position))

	loaded, err := state.GetPosition(asset, account)
	require.NoError(t, err)
	require.Equal(t, position, loaded)

	// Same account under a different asset stays independent.
	other, err := state.GetPosition(testAddress(0x02), account)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestReserveSlotsRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())

	empty, err := state.ReserveSlots()
	require.NoError(t, err)
	require.Empty(t, empty)

	slots := []lending.ReserveSlot{
		{ID: 0, Asset: testAddress(0x01)},
		{ID: 1, Asset: testAddress(0x02), Tombstoned: true},
		{ID: 2, Asset: testAddress(0x03)},
	}
	require.NoError(t, state.PutReserveSlots(slots))

	loaded, err := state.ReserveSlots()
	require.NoError(t, err)
	require.Equal(t, slots, loaded)
}

func TestEModeCategoryRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())
	source := testAddress(0x0f)

	missing, err := state.GetEModeCategory(1)
	require.NoError(t, err)
	require.Nil(t, missing)

	withSource := &lending.EModeCategory{
		ID:                      1,
		LTVBps:                  9_000,
		LiquidationThresholdBps: 9_500,
		LiquidationBonusBps:     10_100,
		PriceSource:             &source,
		Label:                   "correlated",
	}
	require.NoError(t, state.PutEModeCategory(withSource))
	loaded, err := state.GetEModeCategory(1)
	require.NoError(t, err)
	require.Equal(t, withSource, loaded)

	// A nil price source must stay nil through the round trip.
	withoutSource := &lending.EModeCategory{
		ID:                      2,
		LTVBps:                  8_000,
		LiquidationThresholdBps: 8_500,
		LiquidationBonusBps:     10_200,
	}
	require.NoError(t, state.PutEModeCategory(withoutSource))
	loaded, err = state.GetEModeCategory(2)
	require.NoError(t, err)
	require.Nil(t, loaded.PriceSource)
}

func TestAccountCategory(t *testing.T) {
	state := NewState(NewMemDB())
	account := testAddress(0xaa)

	id, err := state.GetAccountCategory(account)
	require.NoError(t, err)
	require.Zero(t, id)

	require.NoError(t, state.PutAccountCategory(account, 3))
	id, err = state.GetAccountCategory(account)
	require.NoError(t, err)
	require.Equal(t, uint8(3), id)
}

func TestStateDrivesEngine(t *testing.T) {
	state := NewState(NewMemDB())
	engine := lending.NewEngine(testAddress(0xfe))
	engine.SetState(state)

	asset := testAddress(0x01)
	reserve := &lending.Reserve{
		Asset:                   asset,
		LTVBps:                  5_000,
		LiquidationThresholdBps: 8_000,
		LiquidationBonusBps:     10_500,
		Flags:                   lending.ReserveFlags{Active: true, BorrowingEnabled: true},
	}
	require.NoError(t, engine.InitReserve(testAddress(0x0a), reserve))

	loaded, err := engine.GetReserveData(asset)
	require.NoError(t, err)
	require.Equal(t, asset, loaded.Asset)
	slots, err := state.ReserveSlots()
	require.NoError(t, err)
	require.Len(t, slots, 1)
}
