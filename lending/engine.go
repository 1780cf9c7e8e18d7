package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/events"
)

const moduleName = "lending"

// RoleReserveAdmin is the role consulted for reserve administration when an
// authorizer is wired.
const RoleReserveAdmin = "reserve_admin"

// engineState is the persistence surface the engine mutates. Implementations
// load records into values the engine owns for the duration of one operation
// and write them back; atomicity across the touched records is supplied by
// the surrounding transactional host.
type engineState interface {
	GetReserve(asset common.Address) (*Reserve, error)
	PutReserve(reserve *Reserve) error
	GetPosition(asset, account common.Address) (*Position, error)
	PutPosition(position *Position) error
	ReserveSlots() ([]ReserveSlot, error)
	PutReserveSlots(slots []ReserveSlot) error
	GetEModeCategory(id uint8) (*EModeCategory, error)
	PutEModeCategory(category *EModeCategory) error
	GetAccountCategory(account common.Address) (uint8, error)
	PutAccountCategory(account common.Address, id uint8) error
}

// PriceOracle supplies asset prices in fixed-decimal base currency units.
type PriceOracle interface {
	Price(asset common.Address) (*big.Int, error)
}

// Custody moves underlying assets between external accounts and the pool.
// The engine only books the amounts; settlement lives outside the core.
type Custody interface {
	TransferIn(asset, from common.Address, amount *big.Int) error
	TransferOut(asset, to common.Address, amount *big.Int) error
}

// Authorizer answers role checks for administrative operations.
type Authorizer interface {
	IsAuthorized(caller common.Address, role string) bool
}

// PauseView reports whether a module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Engine orchestrates the primary state transitions for the lending pool.
type Engine struct {
	state      engineState
	oracle     PriceOracle
	custody    Custody
	emitter    events.Emitter
	pauses     PauseView
	auth       Authorizer
	rateModels map[common.Address]*InterestModel
	whitelist  map[common.Address]struct{}
	treasury   common.Address
	now        uint64
}

// NewEngine constructs an engine that skims reserve-factor interest to the
// given treasury account. Collaborators are wired through setters.
func NewEngine(treasury common.Address) *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		rateModels: make(map[common.Address]*InterestModel),
		whitelist:  make(map[common.Address]struct{}),
		treasury:   treasury,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price feed consulted during risk aggregation.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetCustody wires the asset transfer primitives.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetEmitter wires the event sink. A nil emitter restores the noop sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module-level pause switchboard.
func (e *Engine) SetPauses(p PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetAuthorizer wires role checks for administrative operations. Without an
// authorizer administration is unrestricted, which suits embedded use where
// the host performs its own access control.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetInterestModel assigns the rate curve used when accruing the asset's
// reserve. A nil model leaves the stored rates untouched.
func (e *Engine) SetInterestModel(asset common.Address, model *InterestModel) {
	if e == nil {
		return
	}
	if model == nil {
		delete(e.rateModels, asset)
		return
	}
	e.rateModels[asset] = model.Clone()
}

// SetTimestamp records the current time used by subsequent operations. Time
// only advances because callers supply it here; the core never reads a
// clock.
func (e *Engine) SetTimestamp(now uint64) {
	if e == nil {
		return
	}
	e.now = now
}

// SetForcedLiquidationWhitelist replaces the set of callers permitted to
// trigger forced liquidations on flagged, frozen reserves.
func (e *Engine) SetForcedLiquidationWhitelist(callers []common.Address) {
	if e == nil {
		return
	}
	whitelist := make(map[common.Address]struct{}, len(callers))
	for _, caller := range callers {
		whitelist[caller] = struct{}{}
	}
	e.whitelist = whitelist
}

// Treasury returns the account credited with reserve-factor interest and
// liquidation protocol fees.
func (e *Engine) Treasury() common.Address { return e.treasury }

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.pauses != nil && e.pauses.IsPaused(moduleName) {
		return ErrModulePaused
	}
	return nil
}

func (e *Engine) authorize(caller common.Address, role string) error {
	if e.auth == nil {
		return nil
	}
	if !e.auth.IsAuthorized(caller, role) {
		return ErrCallerNotAuthorized
	}
	return nil
}

func (e *Engine) emit(evt *events.Event) {
	if evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadReserve(asset common.Address) (*Reserve, error) {
	reserve, err := e.state.GetReserve(asset)
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		return nil, ErrReserveNotFound
	}
	reserve.ensureDefaults()
	return reserve, nil
}

func (e *Engine) loadPosition(asset, account common.Address) (*Position, error) {
	position, err := e.state.GetPosition(asset, account)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Account: account, Asset: asset}
	}
	position.ensureDefaults()
	return position, nil
}

func (e *Engine) price(asset common.Address) (*big.Int, error) {
	if e.oracle == nil {
		return nil, errNilOracle
	}
	return e.oracle.Price(asset)
}

func (e *Engine) transferIn(asset, from common.Address, amount *big.Int) error {
	if e.custody == nil {
		return errNilCustody
	}
	return e.custody.TransferIn(asset, from, amount)
}

func (e *Engine) transferOut(asset, to common.Address, amount *big.Int) error {
	if e.custody == nil {
		return errNilCustody
	}
	return e.custody.TransferOut(asset, to, amount)
}

// autoCollateral reports whether a first supply enables the reserve as
// collateral automatically. Isolation-tracked assets and zero-LTV reserves
// require an explicit opt-in instead.
func (e *Engine) autoCollateral(reserve *Reserve) bool {
	return reserve.LTVBps > 0 && reserve.DebtCeiling.Sign() == 0
}

// Supply transfers underlying from the caller into the pool and mints a
// scaled supply balance for onBehalfOf at the current liquidity index.
func (e *Engine) Supply(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return err
	}
	if !reserve.Flags.Active {
		return ErrReserveInactive
	}
	if reserve.Flags.Paused {
		return ErrReservePaused
	}
	if reserve.Flags.Frozen {
		return ErrReserveFrozen
	}
	if reserve.SupplyCap.Sign() > 0 {
		total, err := supplyBalance(reserve.TotalScaledSupply, reserve.LiquidityIndex)
		if err != nil {
			return err
		}
		if total.Add(total, amount).Cmp(reserve.SupplyCap) > 0 {
			return ErrSupplyCapExceeded
		}
	}
	if err := e.transferIn(asset, caller, amount); err != nil {
		return err
	}

	position, err := e.loadPosition(asset, onBehalfOf)
	if err != nil {
		return err
	}
	scaled, first, err := position.mintSupply(amount, reserve.LiquidityIndex)
	if err != nil {
		return err
	}
	reserve.TotalScaledSupply.Add(reserve.TotalScaledSupply, scaled)
	reserve.AvailableLiquidity.Add(reserve.AvailableLiquidity, amount)

	enabled := false
	if first && !position.UsingAsCollateral && e.autoCollateral(reserve) {
		position.UsingAsCollateral = true
		enabled = true
	}

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}

	e.emit(NewSupplyEvent(asset, caller, onBehalfOf, amount))
	if enabled {
		e.emit(NewCollateralEvent(asset, onBehalfOf, true))
	}
	return nil
}

// Withdraw burns the caller's scaled supply balance and releases underlying
// to the recipient. When the caller has outstanding debt the resulting
// position must stay healthy.
func (e *Engine) Withdraw(caller, asset common.Address, amount Amount, to common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if err := e.accrueReserve(reserve); err != nil {
		return err
	}
	if !reserve.Flags.Active {
		return ErrReserveInactive
	}
	if reserve.Flags.Paused {
		return ErrReservePaused
	}

	position, err := e.loadPosition(asset, caller)
	if err != nil {
		return err
	}
	balance, err := supplyBalance(position.ScaledSupply, reserve.LiquidityIndex)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return ErrInsufficientBalance
	}
	resolved, err := amount.resolve(balance, false)
	if err != nil {
		return err
	}
	if reserve.AvailableLiquidity.Cmp(resolved) < 0 {
		return ErrInsufficientLiquidity
	}

	scaled, err := position.burnSupply(resolved, reserve.LiquidityIndex)
	if err != nil {
		return err
	}
	reserve.TotalScaledSupply.Sub(reserve.TotalScaledSupply, scaled)
	reserve.AvailableLiquidity.Sub(reserve.AvailableLiquidity, resolved)

	wasCollateral := position.UsingAsCollateral
	disabled := false
	if position.ScaledSupply.Sign() == 0 && position.UsingAsCollateral {
		position.UsingAsCollateral = false
		disabled = true
	}

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}

	if wasCollateral {
		data, err := e.accountData(caller)
		if err != nil {
			return err
		}
		if data.TotalDebtValue.Sign() > 0 && data.HealthFactor.Cmp(wad) < 0 {
			return ErrHealthFactorBelowThreshold
		}
	}

	if err := e.transferOut(asset, to, resolved); err != nil {
		return err
	}

	e.emit(NewWithdrawEvent(asset, caller, to, resolved))
	if disabled {
		e.emit(NewCollateralEvent(asset, caller, false))
	}
	return nil
}

// SetUsingAsCollateral toggles whether the caller's supply on the asset
// counts towards borrowing power. Disabling re-validates health when debt is
// outstanding; enabling an isolation-tracked asset is exclusive with every
// other collateral.
func (e *Engine) SetUsingAsCollateral(caller, asset common.Address, use bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return err
	}
	if !reserve.Flags.Active {
		return ErrReserveInactive
	}
	if reserve.Flags.Paused {
		return ErrReservePaused
	}
	position, err := e.loadPosition(asset, caller)
	if err != nil {
		return err
	}
	if position.UsingAsCollateral == use {
		return nil
	}

	if use {
		if position.ScaledSupply.Sign() == 0 {
			return ErrInsufficientBalance
		}
		if reserve.LTVBps == 0 {
			return ErrCollateralDisallowed
		}
		if err := e.checkIsolationExclusivity(caller, reserve); err != nil {
			return err
		}
	}

	position.UsingAsCollateral = use
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	if !use {
		data, err := e.accountData(caller)
		if err != nil {
			return err
		}
		if data.TotalDebtValue.Sign() > 0 && data.HealthFactor.Cmp(wad) < 0 {
			return ErrHealthFactorBelowThreshold
		}
	}

	e.emit(NewCollateralEvent(asset, caller, use))
	return nil
}

// SetAccountEMode opts the caller into the given efficiency category (zero
// leaves every category). All borrowed assets must belong to the category
// and the position must remain healthy under the new parameters.
func (e *Engine) SetAccountEMode(caller common.Address, categoryID uint8) error {
	if err := e.guard(); err != nil {
		return err
	}
	if categoryID != 0 {
		category, err := e.state.GetEModeCategory(categoryID)
		if err != nil {
			return err
		}
		if category == nil {
			return ErrEModeCategoryNotFound
		}
		slots, err := e.state.ReserveSlots()
		if err != nil {
			return err
		}
		for _, slot := range slots {
			if slot.Tombstoned {
				continue
			}
			position, err := e.loadPosition(slot.Asset, caller)
			if err != nil {
				return err
			}
			if position.ScaledVariableDebt.Sign() == 0 && position.ScaledStableDebt.Sign() == 0 {
				continue
			}
			reserve, err := e.loadReserve(slot.Asset)
			if err != nil {
				return err
			}
			if reserve.EModeCategoryID != categoryID {
				return ErrEModeCategoryMismatch
			}
		}
	}

	if err := e.state.PutAccountCategory(caller, categoryID); err != nil {
		return err
	}

	data, err := e.accountData(caller)
	if err != nil {
		return err
	}
	if data.TotalDebtValue.Sign() > 0 && data.HealthFactor.Cmp(wad) < 0 {
		return ErrHealthFactorBelowThreshold
	}

	e.emit(NewAccountEModeEvent(caller, categoryID))
	return nil
}

// checkIsolationExclusivity rejects collateral combinations involving an
// isolation-tracked reserve: such an asset must be the account's only
// collateral.
func (e *Engine) checkIsolationExclusivity(account common.Address, candidate *Reserve) error {
	slots, err := e.state.ReserveSlots()
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Tombstoned || slot.Asset == candidate.Asset {
			continue
		}
		position, err := e.loadPosition(slot.Asset, account)
		if err != nil {
			return err
		}
		if !position.UsingAsCollateral || position.ScaledSupply.Sign() == 0 {
			continue
		}
		if candidate.DebtCeiling.Sign() > 0 {
			return ErrIsolationCollateralConflict
		}
		other, err := e.loadReserve(slot.Asset)
		if err != nil {
			return err
		}
		if other.DebtCeiling.Sign() > 0 {
			return ErrIsolationCollateralConflict
		}
	}
	return nil
}

// GetReserveData returns a copy of the reserve record.
func (e *Engine) GetReserveData(asset common.Address) (*Reserve, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reserve, err := e.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	return reserve.Clone(), nil
}

// GetPositionData returns a copy of the account's position on the asset.
func (e *Engine) GetPositionData(asset, account common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.loadPosition(asset, account)
	if err != nil {
		return nil, err
	}
	return position.Clone(), nil
}

// GetAccountData aggregates the account's collateral and debt across every
// reserve. A fresh account reports zeros with the maximum health factor.
func (e *Engine) GetAccountData(account common.Address) (*AccountData, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.accountData(account)
}
