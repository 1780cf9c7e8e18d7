package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveFlags groups the operational switches applied to a reserve. Pausing
// halts every flow, freezing halts new supply and borrowing while allowing
// exits, and the forced-liquidation pair gates the administrative bypass of
// the health-factor check.
type ReserveFlags struct {
	Active                   bool
	Frozen                   bool
	Paused                   bool
	BorrowingEnabled         bool
	FlashLoanEnabled         bool
	SiloedBorrowing          bool
	ForcedLiquidationEnabled bool
	BorrowableInIsolation    bool
}

// Reserve captures the aggregate accounting state for a single asset. Amount
// values are denominated in the asset's native units and expressed as big
// integers to match on-chain precision; indexes and rates use RAY.
type Reserve struct {
	Asset    common.Address
	Decimals uint8
	// LiquidityIndex is the cumulative interest index applied to supplier
	// balances. Monotonic, starts at one RAY.
	LiquidityIndex *big.Int
	// VariableBorrowIndex is the cumulative interest index applied to
	// borrower debt. Monotonic, starts at one RAY.
	VariableBorrowIndex *big.Int
	// CurrentLiquidityRate and CurrentVariableBorrowRate are annualised
	// rates at RAY precision, refreshed on every accrual.
	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int
	// LastUpdateTimestamp records when the indexes were last advanced.
	// Time is supplied by the caller, never read from a wall clock.
	LastUpdateTimestamp uint64

	ReserveFactorBps          uint64
	LTVBps                    uint64
	LiquidationThresholdBps   uint64
	LiquidationBonusBps       uint64
	LiquidationProtocolFeeBps uint64

	// BorrowCap and SupplyCap bound current debt and supply in native
	// units; zero disables the cap.
	BorrowCap *big.Int
	SupplyCap *big.Int
	// DebtCeiling bounds debt drawn against this asset as isolated
	// collateral, in ceiling units (two decimals). Zero means the asset is
	// not isolation-tracked.
	DebtCeiling       *big.Int
	IsolatedTotalDebt *big.Int

	// TotalScaledSupply and the two debt totals aggregate the scaled
	// balances of every position on this reserve.
	TotalScaledSupply       *big.Int
	TotalScaledVariableDebt *big.Int
	TotalScaledStableDebt   *big.Int
	// AvailableLiquidity tracks underlying units held by the pool for this
	// reserve.
	AvailableLiquidity *big.Int

	Flags           ReserveFlags
	EModeCategoryID uint8
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LiquidityIndex = cloneBig(r.LiquidityIndex)
	clone.VariableBorrowIndex = cloneBig(r.VariableBorrowIndex)
	clone.CurrentLiquidityRate = cloneBig(r.CurrentLiquidityRate)
	clone.CurrentVariableBorrowRate = cloneBig(r.CurrentVariableBorrowRate)
	clone.BorrowCap = cloneBig(r.BorrowCap)
	clone.SupplyCap = cloneBig(r.SupplyCap)
	clone.DebtCeiling = cloneBig(r.DebtCeiling)
	clone.IsolatedTotalDebt = cloneBig(r.IsolatedTotalDebt)
	clone.TotalScaledSupply = cloneBig(r.TotalScaledSupply)
	clone.TotalScaledVariableDebt = cloneBig(r.TotalScaledVariableDebt)
	clone.TotalScaledStableDebt = cloneBig(r.TotalScaledStableDebt)
	clone.AvailableLiquidity = cloneBig(r.AvailableLiquidity)
	return &clone
}

func (r *Reserve) ensureDefaults() {
	if r.LiquidityIndex == nil || r.LiquidityIndex.Sign() == 0 {
		r.LiquidityIndex = new(big.Int).Set(ray)
	}
	if r.VariableBorrowIndex == nil || r.VariableBorrowIndex.Sign() == 0 {
		r.VariableBorrowIndex = new(big.Int).Set(ray)
	}
	if r.CurrentLiquidityRate == nil {
		r.CurrentLiquidityRate = big.NewInt(0)
	}
	if r.CurrentVariableBorrowRate == nil {
		r.CurrentVariableBorrowRate = big.NewInt(0)
	}
	if r.BorrowCap == nil {
		r.BorrowCap = big.NewInt(0)
	}
	if r.SupplyCap == nil {
		r.SupplyCap = big.NewInt(0)
	}
	if r.DebtCeiling == nil {
		r.DebtCeiling = big.NewInt(0)
	}
	if r.IsolatedTotalDebt == nil {
		r.IsolatedTotalDebt = big.NewInt(0)
	}
	if r.TotalScaledSupply == nil {
		r.TotalScaledSupply = big.NewInt(0)
	}
	if r.TotalScaledVariableDebt == nil {
		r.TotalScaledVariableDebt = big.NewInt(0)
	}
	if r.TotalScaledStableDebt == nil {
		r.TotalScaledStableDebt = big.NewInt(0)
	}
	if r.AvailableLiquidity == nil {
		r.AvailableLiquidity = big.NewInt(0)
	}
}

// Position maintains the scaled balances of one account on one reserve.
type Position struct {
	Account common.Address
	Asset   common.Address

	ScaledSupply       *big.Int
	ScaledVariableDebt *big.Int
	ScaledStableDebt   *big.Int

	UsingAsCollateral bool
	Borrowing         bool
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ScaledSupply = cloneBig(p.ScaledSupply)
	clone.ScaledVariableDebt = cloneBig(p.ScaledVariableDebt)
	clone.ScaledStableDebt = cloneBig(p.ScaledStableDebt)
	return &clone
}

func (p *Position) ensureDefaults() {
	if p.ScaledSupply == nil {
		p.ScaledSupply = big.NewInt(0)
	}
	if p.ScaledVariableDebt == nil {
		p.ScaledVariableDebt = big.NewInt(0)
	}
	if p.ScaledStableDebt == nil {
		p.ScaledStableDebt = big.NewInt(0)
	}
}

func (p *Position) empty() bool {
	return p.ScaledSupply.Sign() == 0 && p.ScaledVariableDebt.Sign() == 0 && p.ScaledStableDebt.Sign() == 0
}

// EModeCategory groups correlated assets under adjusted risk parameters. An
// account opts into at most one category; a reserve is assigned to at most
// one.
type EModeCategory struct {
	ID                      uint8
	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	// PriceSource, when set, prices every reserve in the category through
	// this asset instead of the reserve's own feed.
	PriceSource *common.Address
	Label       string
}

// Clone returns a deep copy of the category.
func (c *EModeCategory) Clone() *EModeCategory {
	if c == nil {
		return nil
	}
	clone := *c
	if c.PriceSource != nil {
		src := *c.PriceSource
		clone.PriceSource = &src
	}
	return &clone
}

// ReserveSlot is one entry of the reserve list. Slots keep stable small
// integer ids; removed reserves leave a tombstone that a later init may
// reuse.
type ReserveSlot struct {
	ID         uint16
	Asset      common.Address
	Tombstoned bool
}

// AccountData is the computed risk aggregate for one account. Values are in
// the oracle's base currency units, the health factor is WAD scaled with
// MaxHealthFactor as the no-debt sentinel.
type AccountData struct {
	TotalCollateralValue           *big.Int
	TotalDebtValue                 *big.Int
	AvailableBorrows               *big.Int
	AverageLTVBps                  uint64
	AverageLiquidationThresholdBps uint64
	HealthFactor                   *big.Int
	HasZeroLTVCollateral           bool
}

// MaxHealthFactor is returned for accounts with no outstanding debt.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxUint256)
}

// RateMode selects the debt instrument an operation targets.
type RateMode uint8

const (
	RateModeNone RateMode = iota
	RateModeVariable
	RateModeStable
)

func (m RateMode) valid() bool {
	return m == RateModeVariable || m == RateModeStable
}

// Amount distinguishes an exact request from "everything", replacing magic
// sentinel constants. The All form resolves to a concrete balance at
// operation start.
type Amount struct {
	all   bool
	value *big.Int
}

// ExactAmount requests precisely value units.
func ExactAmount(value *big.Int) Amount {
	return Amount{value: cloneBig(value)}
}

// EntireBalance requests the caller's full balance, resolved at call time.
func EntireBalance() Amount {
	return Amount{all: true}
}

// IsAll reports whether the request asks for the full balance.
func (a Amount) IsAll() bool { return a.all }

// Value returns the requested amount for exact requests and nil for All.
func (a Amount) Value() *big.Int { return cloneBig(a.value) }

// resolve clamps the request against the available balance. All resolves to
// the balance; exact requests larger than the balance are capped when cap is
// set and rejected otherwise.
func (a Amount) resolve(balance *big.Int, cap bool) (*big.Int, error) {
	if a.all {
		return cloneBig(balance), nil
	}
	if a.value == nil || a.value.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if a.value.Cmp(balance) > 0 {
		if cap {
			return cloneBig(balance), nil
		}
		return nil, ErrInsufficientBalance
	}
	return cloneBig(a.value), nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
