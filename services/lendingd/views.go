package main

import (
	"math/big"

	"lendpool/lending"
)

type reserveView struct {
	Asset                     string `json:"asset"`
	Decimals                  uint8  `json:"decimals"`
	LiquidityIndex            string `json:"liquidityIndex"`
	VariableBorrowIndex       string `json:"variableBorrowIndex"`
	LiquidityRate             string `json:"liquidityRate"`
	VariableBorrowRate        string `json:"variableBorrowRate"`
	LastUpdateTimestamp       uint64 `json:"lastUpdateTimestamp"`
	LTVBps                    uint64 `json:"ltvBps"`
	LiquidationThresholdBps   uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps       uint64 `json:"liquidationBonusBps"`
	LiquidationProtocolFeeBps uint64 `json:"liquidationProtocolFeeBps"`
	ReserveFactorBps          uint64 `json:"reserveFactorBps"`
	BorrowCap                 string `json:"borrowCap"`
	SupplyCap                 string `json:"supplyCap"`
	DebtCeiling               string `json:"debtCeiling"`
	IsolatedTotalDebt         string `json:"isolatedTotalDebt"`
	TotalScaledSupply         string `json:"totalScaledSupply"`
	TotalScaledVariableDebt   string `json:"totalScaledVariableDebt"`
	TotalScaledStableDebt     string `json:"totalScaledStableDebt"`
	AvailableLiquidity        string `json:"availableLiquidity"`
	Active                    bool   `json:"active"`
	Frozen                    bool   `json:"frozen"`
	Paused                    bool   `json:"paused"`
	BorrowingEnabled          bool   `json:"borrowingEnabled"`
	SiloedBorrowing           bool   `json:"siloedBorrowing"`
	BorrowableInIsolation     bool   `json:"borrowableInIsolation"`
	EModeCategoryID           uint8  `json:"eModeCategoryId"`
}

func newReserveView(r *lending.Reserve) *reserveView {
	return &reserveView{
		Asset:                     r.Asset.Hex(),
		Decimals:                  r.Decimals,
		LiquidityIndex:            bigString(r.LiquidityIndex),
		VariableBorrowIndex:       bigString(r.VariableBorrowIndex),
		LiquidityRate:             bigString(r.CurrentLiquidityRate),
		VariableBorrowRate:        bigString(r.CurrentVariableBorrowRate),
		LastUpdateTimestamp:       r.LastUpdateTimestamp,
		LTVBps:                    r.LTVBps,
		LiquidationThresholdBps:   r.LiquidationThresholdBps,
		LiquidationBonusBps:       r.LiquidationBonusBps,
		LiquidationProtocolFeeBps: r.LiquidationProtocolFeeBps,
		ReserveFactorBps:          r.ReserveFactorBps,
		BorrowCap:                 bigString(r.BorrowCap),
		SupplyCap:                 bigString(r.SupplyCap),
		DebtCeiling:               bigString(r.DebtCeiling),
		IsolatedTotalDebt:         bigString(r.IsolatedTotalDebt),
		TotalScaledSupply:         bigString(r.TotalScaledSupply),
		TotalScaledVariableDebt:   bigString(r.TotalScaledVariableDebt),
		TotalScaledStableDebt:     bigString(r.TotalScaledStableDebt),
		AvailableLiquidity:        bigString(r.AvailableLiquidity),
		Active:                    r.Flags.Active,
		Frozen:                    r.Flags.Frozen,
		Paused:                    r.Flags.Paused,
		BorrowingEnabled:          r.Flags.BorrowingEnabled,
		SiloedBorrowing:           r.Flags.SiloedBorrowing,
		BorrowableInIsolation:     r.Flags.BorrowableInIsolation,
		EModeCategoryID:           r.EModeCategoryID,
	}
}

type positionView struct {
	Account            string `json:"account"`
	Asset              string `json:"asset"`
	ScaledSupply       string `json:"scaledSupply"`
	ScaledVariableDebt string `json:"scaledVariableDebt"`
	ScaledStableDebt   string `json:"scaledStableDebt"`
	SupplyBalance      string `json:"supplyBalance"`
	DebtBalance        string `json:"debtBalance"`
	UsingAsCollateral  bool   `json:"usingAsCollateral"`
	Borrowing          bool   `json:"borrowing"`
}

func newPositionView(p *lending.Position, supplyIndex, debtIndex *big.Int) *positionView {
	view := &positionView{
		Account:            p.Account.Hex(),
		Asset:              p.Asset.Hex(),
		ScaledSupply:       bigString(p.ScaledSupply),
		ScaledVariableDebt: bigString(p.ScaledVariableDebt),
		ScaledStableDebt:   bigString(p.ScaledStableDebt),
		UsingAsCollateral:  p.UsingAsCollateral,
		Borrowing:          p.Borrowing,
	}
	if balance, err := p.SupplyBalance(supplyIndex); err == nil {
		view.SupplyBalance = balance.String()
	}
	if debt, err := p.DebtBalance(debtIndex); err == nil {
		view.DebtBalance = debt.String()
	}
	return view
}

type accountView struct {
	TotalCollateralValue           string `json:"totalCollateralValue"`
	TotalDebtValue                 string `json:"totalDebtValue"`
	AvailableBorrows               string `json:"availableBorrows"`
	AverageLTVBps                  uint64 `json:"averageLtvBps"`
	AverageLiquidationThresholdBps uint64 `json:"averageLiquidationThresholdBps"`
	HealthFactor                   string `json:"healthFactor"`
	HasZeroLTVCollateral           bool   `json:"hasZeroLtvCollateral"`
}

func newAccountView(d *lending.AccountData) *accountView {
	return &accountView{
		TotalCollateralValue:           bigString(d.TotalCollateralValue),
		TotalDebtValue:                 bigString(d.TotalDebtValue),
		AvailableBorrows:               bigString(d.AvailableBorrows),
		AverageLTVBps:                  d.AverageLTVBps,
		AverageLiquidationThresholdBps: d.AverageLiquidationThresholdBps,
		HealthFactor:                   bigString(d.HealthFactor),
		HasZeroLTVCollateral:           d.HasZeroLTVCollateral,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
