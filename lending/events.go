package lending

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/events"
)

const (
	EventTypeSupply             = "lending.supply"
	EventTypeWithdraw           = "lending.withdraw"
	EventTypeBorrow             = "lending.borrow"
	EventTypeRepay              = "lending.repay"
	EventTypeCollateralEnabled  = "lending.collateral.enabled"
	EventTypeCollateralDisabled = "lending.collateral.disabled"
	EventTypeLiquidation        = "lending.liquidation"
	EventTypeForcedLiquidation  = "lending.liquidation.forced"
	EventTypeAccountEMode       = "lending.emode.account"
	EventTypeEModeUpdated       = "lending.emode.updated"
	EventTypeReserveInitialised = "lending.reserve.initialised"
	EventTypeReserveRemoved     = "lending.reserve.removed"
	EventTypeDebtCeilingUpdated = "lending.debt_ceiling.updated"
)

// NewSupplyEvent returns the canonical event payload for a deposit credited to
// onBehalfOf.
func NewSupplyEvent(asset, caller, onBehalfOf common.Address, amount *big.Int) *events.Event {
	return &events.Event{
		Type: EventTypeSupply,
		Attributes: map[string]string{
			"asset":      asset.Hex(),
			"caller":     caller.Hex(),
			"onBehalfOf": onBehalfOf.Hex(),
			"amount":     bigString(amount),
		},
	}
}

// NewWithdrawEvent returns the canonical event payload for a withdrawal paid
// out to the target address.
func NewWithdrawEvent(asset, caller, to common.Address, amount *big.Int) *events.Event {
	return &events.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"asset":  asset.Hex(),
			"caller": caller.Hex(),
			"to":     to.Hex(),
			"amount": bigString(amount),
		},
	}
}

// NewBorrowEvent returns the canonical event payload for newly minted debt.
func NewBorrowEvent(asset, caller, onBehalfOf common.Address, amount *big.Int, mode RateMode) *events.Event {
	return &events.Event{
		Type: EventTypeBorrow,
		Attributes: map[string]string{
			"asset":      asset.Hex(),
			"caller":     caller.Hex(),
			"onBehalfOf": onBehalfOf.Hex(),
			"amount":     bigString(amount),
			"rateMode":   strconv.Itoa(int(mode)),
		},
	}
}

// NewRepayEvent returns the canonical event payload for debt repayment.
func NewRepayEvent(asset, caller, onBehalfOf common.Address, amount *big.Int, mode RateMode) *events.Event {
	return &events.Event{
		Type: EventTypeRepay,
		Attributes: map[string]string{
			"asset":      asset.Hex(),
			"caller":     caller.Hex(),
			"onBehalfOf": onBehalfOf.Hex(),
			"amount":     bigString(amount),
			"rateMode":   strconv.Itoa(int(mode)),
		},
	}
}

// NewCollateralEvent returns the canonical event payload emitted when an
// account toggles a reserve as collateral.
func NewCollateralEvent(asset, account common.Address, enabled bool) *events.Event {
	evtType := EventTypeCollateralDisabled
	if enabled {
		evtType = EventTypeCollateralEnabled
	}
	return &events.Event{
		Type: evtType,
		Attributes: map[string]string{
			"asset":   asset.Hex(),
			"account": account.Hex(),
		},
	}
}

// NewLiquidationEvent returns the canonical event payload for a standard
// liquidation call.
func NewLiquidationEvent(caller, account, collateralAsset, debtAsset common.Address, result *LiquidationResult) *events.Event {
	return newLiquidationEvent(EventTypeLiquidation, caller, account, collateralAsset, debtAsset, result)
}

// NewForcedLiquidationEvent returns the canonical event payload for a
// liquidation settled through the forced unwind path.
func NewForcedLiquidationEvent(caller, account, collateralAsset, debtAsset common.Address, result *LiquidationResult) *events.Event {
	return newLiquidationEvent(EventTypeForcedLiquidation, caller, account, collateralAsset, debtAsset, result)
}

func newLiquidationEvent(evtType string, caller, account, collateralAsset, debtAsset common.Address, result *LiquidationResult) *events.Event {
	return &events.Event{
		Type: evtType,
		Attributes: map[string]string{
			"caller":           caller.Hex(),
			"account":          account.Hex(),
			"collateralAsset":  collateralAsset.Hex(),
			"debtAsset":        debtAsset.Hex(),
			"debtCovered":      bigString(result.DebtCovered),
			"collateralSeized": bigString(result.CollateralSeized),
			"protocolFee":      bigString(result.ProtocolFee),
		},
	}
}

// NewAccountEModeEvent returns the canonical event payload for an account
// switching efficiency mode category.
func NewAccountEModeEvent(account common.Address, categoryID uint8) *events.Event {
	return &events.Event{
		Type: EventTypeAccountEMode,
		Attributes: map[string]string{
			"account":  account.Hex(),
			"category": strconv.Itoa(int(categoryID)),
		},
	}
}

// NewEModeCategoryEvent returns the canonical event payload emitted when a
// category definition is created or updated.
func NewEModeCategoryEvent(category *EModeCategory) *events.Event {
	attrs := map[string]string{
		"category":  strconv.Itoa(int(category.ID)),
		"ltv":       strconv.FormatUint(category.LTVBps, 10),
		"threshold": strconv.FormatUint(category.LiquidationThresholdBps, 10),
		"bonus":     strconv.FormatUint(category.LiquidationBonusBps, 10),
		"label":     category.Label,
	}
	if category.PriceSource != nil {
		attrs["priceSource"] = category.PriceSource.Hex()
	}
	return &events.Event{Type: EventTypeEModeUpdated, Attributes: attrs}
}

// NewReserveInitialisedEvent returns the canonical event payload for a newly
// listed reserve.
func NewReserveInitialisedEvent(reserve *Reserve) *events.Event {
	return &events.Event{
		Type: EventTypeReserveInitialised,
		Attributes: map[string]string{
			"asset":    reserve.Asset.Hex(),
			"decimals": strconv.Itoa(int(reserve.Decimals)),
		},
	}
}

// NewReserveRemovedEvent returns the canonical event payload for a delisted
// reserve.
func NewReserveRemovedEvent(asset common.Address) *events.Event {
	return &events.Event{
		Type:       EventTypeReserveRemoved,
		Attributes: map[string]string{"asset": asset.Hex()},
	}
}

// NewDebtCeilingEvent returns the canonical event payload for an isolation
// debt ceiling change.
func NewDebtCeilingEvent(asset common.Address, ceiling *big.Int) *events.Event {
	return &events.Event{
		Type: EventTypeDebtCeilingUpdated,
		Attributes: map[string]string{
			"asset":   asset.Hex(),
			"ceiling": bigString(ceiling),
		},
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
