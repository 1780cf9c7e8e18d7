package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InitReserve registers a new reserve and assigns it a slot in the iteration
// order. Tombstoned slots left behind by removed reserves are reused before
// the list grows.
func (e *Engine) InitReserve(caller common.Address, reserve *Reserve) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.authorize(caller, RoleReserveAdmin); err != nil {
		return err
	}
	if reserve == nil {
		return ErrInvalidAmount
	}
	existing, err := e.state.GetReserve(reserve.Asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrReserveAlreadyExists
	}
	if err := validateReserveParams(reserve); err != nil {
		return err
	}

	stored := reserve.Clone()
	stored.ensureDefaults()
	stored.LastUpdateTimestamp = e.now

	slots, err := e.state.ReserveSlots()
	if err != nil {
		return err
	}
	placed := false
	for i := range slots {
		if slots[i].Tombstoned {
			slots[i] = ReserveSlot{ID: slots[i].ID, Asset: stored.Asset}
			placed = true
			break
		}
	}
	if !placed {
		slots = append(slots, ReserveSlot{ID: uint16(len(slots)), Asset: stored.Asset})
	}
	if err := e.state.PutReserveSlots(slots); err != nil {
		return err
	}
	if err := e.state.PutReserve(stored); err != nil {
		return err
	}
	e.emit(NewReserveInitialisedEvent(stored))
	return nil
}

// RemoveReserve delists a reserve whose ledger has been fully unwound. The
// slot is tombstoned rather than compacted so positions keyed by slot order
// stay stable.
func (e *Engine) RemoveReserve(caller, asset common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.authorize(caller, RoleReserveAdmin); err != nil {
		return err
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if reserve.TotalScaledSupply.Sign() != 0 ||
		reserve.TotalScaledVariableDebt.Sign() != 0 ||
		reserve.TotalScaledStableDebt.Sign() != 0 {
		return ErrReserveNotEmpty
	}

	slots, err := e.state.ReserveSlots()
	if err != nil {
		return err
	}
	for i := range slots {
		if !slots[i].Tombstoned && slots[i].Asset == asset {
			slots[i].Tombstoned = true
			break
		}
	}
	if err := e.state.PutReserveSlots(slots); err != nil {
		return err
	}
	reserve.Flags = ReserveFlags{}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}
	e.emit(NewReserveRemovedEvent(asset))
	return nil
}

// SetReserveFlags replaces the operational flags on a reserve. Freezing a
// reserve together with the forced-liquidation flag arms the forced unwind
// path.
func (e *Engine) SetReserveFlags(caller, asset common.Address, flags ReserveFlags) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.authorize(caller, RoleReserveAdmin); err != nil {
		return err
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return err
	}
	reserve.Flags = flags
	return e.state.PutReserve(reserve)
}

// SetEModeCategory creates or replaces a category definition. Category zero
// is reserved for the default risk parameters and cannot be defined.
func (e *Engine) SetEModeCategory(caller common.Address, category *EModeCategory) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.authorize(caller, RoleReserveAdmin); err != nil {
		return err
	}
	if category == nil || category.ID == 0 {
		return ErrEModeCategoryNotFound
	}
	if category.LiquidationThresholdBps < category.LTVBps ||
		category.LiquidationThresholdBps > maxBps ||
		category.LiquidationBonusBps <= maxBps {
		return ErrInvalidAmount
	}
	stored := category.Clone()
	if err := e.state.PutEModeCategory(stored); err != nil {
		return err
	}
	e.emit(NewEModeCategoryEvent(stored))
	return nil
}

// SetDebtCeiling updates the isolation-mode ceiling for an asset. Resetting
// the ceiling to zero unconditionally zeroes the tracked isolated debt so the
// asset re-enters isolation with a clean slate if a ceiling is restored.
func (e *Engine) SetDebtCeiling(caller, asset common.Address, ceiling *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.authorize(caller, RoleReserveAdmin); err != nil {
		return err
	}
	if ceiling == nil || ceiling.Sign() < 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	reserve.DebtCeiling = new(big.Int).Set(ceiling)
	if ceiling.Sign() == 0 {
		reserve.IsolatedTotalDebt = big.NewInt(0)
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}
	e.emit(NewDebtCeilingEvent(asset, ceiling))
	return nil
}

func validateReserveParams(reserve *Reserve) error {
	if reserve.LTVBps > maxBps ||
		reserve.LiquidationThresholdBps > maxBps ||
		reserve.LiquidationThresholdBps < reserve.LTVBps ||
		reserve.ReserveFactorBps > maxBps ||
		reserve.LiquidationProtocolFeeBps > maxBps {
		return ErrInvalidAmount
	}
	if reserve.LiquidationThresholdBps > 0 && reserve.LiquidationBonusBps <= maxBps {
		return ErrInvalidAmount
	}
	return nil
}
