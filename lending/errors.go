package lending

import "errors"

var (
	errNilState   = errors.New("lending engine: state not configured")
	errNilOracle  = errors.New("lending engine: price oracle not configured")
	errNilCustody = errors.New("lending engine: custody not configured")
)

// Validation failures.
var (
	ErrInvalidAmount            = errors.New("lending engine: amount must be positive")
	ErrReserveNotFound          = errors.New("lending engine: reserve not initialised")
	ErrReserveAlreadyExists     = errors.New("lending engine: reserve already initialised")
	ErrReserveInactive          = errors.New("lending engine: reserve inactive")
	ErrReserveFrozen            = errors.New("lending engine: reserve frozen")
	ErrReservePaused            = errors.New("lending engine: reserve paused")
	ErrModulePaused             = errors.New("lending engine: module paused")
	ErrBorrowingDisabled        = errors.New("lending engine: borrowing disabled for reserve")
	ErrInvalidRateMode          = errors.New("lending engine: invalid interest rate mode")
	ErrSupplyCapExceeded        = errors.New("lending engine: supply cap exceeded")
	ErrBorrowCapExceeded        = errors.New("lending engine: borrow cap exceeded")
	ErrDebtCeilingExceeded      = errors.New("lending engine: isolation debt ceiling exceeded")
	ErrSiloedBorrowingViolation = errors.New("lending engine: siloed borrowing violation")
	ErrEModeCategoryMismatch    = errors.New("lending engine: asset not borrowable in account emode category")
	ErrEModeCategoryNotFound    = errors.New("lending engine: emode category not configured")
	ErrAssetNotBorrowableInIsolation = errors.New("lending engine: asset not borrowable in isolation mode")
	ErrIsolationCollateralConflict   = errors.New("lending engine: isolated collateral cannot be combined")
	ErrCollateralNotEnabled          = errors.New("lending engine: collateral not enabled for account")
	ErrCollateralDisallowed          = errors.New("lending engine: reserve cannot be used as collateral")
	ErrReserveNotEmpty               = errors.New("lending engine: reserve still has supply or debt")
)

// State failures.
var (
	ErrHealthFactorBelowThreshold    = errors.New("lending engine: health factor below liquidation threshold")
	ErrHealthFactorNotBelowThreshold = errors.New("lending engine: health factor not below liquidation threshold")
	ErrInsufficientBalance           = errors.New("lending engine: insufficient balance")
	ErrInsufficientLiquidity         = errors.New("lending engine: insufficient liquidity")
	ErrNoDebtToRepay                 = errors.New("lending engine: no outstanding debt to repay")
	ErrCollateralCannotCoverBorrow   = errors.New("lending engine: collateral cannot cover new borrow")
)

// Authorization failures.
var (
	ErrCallerNotAuthorized           = errors.New("lending engine: caller not authorized")
	ErrForcedLiquidationNotAuthorized = errors.New("lending engine: caller not authorized for forced liquidation")
)

// Arithmetic failures.
var (
	ErrOverflow       = errors.New("lending engine: arithmetic overflow")
	ErrDivisionByZero = errors.New("lending engine: division by zero")
)

// ErrorKind buckets every engine failure so callers can distinguish causes
// without matching individual sentinels.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindState
	KindAuthorization
	KindArithmetic
)

var errorKinds = map[error]ErrorKind{
	ErrInvalidAmount:                 KindValidation,
	ErrReserveNotFound:               KindValidation,
	ErrReserveAlreadyExists:          KindValidation,
	ErrReserveInactive:               KindValidation,
	ErrReserveFrozen:                 KindValidation,
	ErrReservePaused:                 KindValidation,
	ErrModulePaused:                  KindValidation,
	ErrBorrowingDisabled:             KindValidation,
	ErrInvalidRateMode:               KindValidation,
	ErrSupplyCapExceeded:             KindValidation,
	ErrBorrowCapExceeded:             KindValidation,
	ErrDebtCeilingExceeded:           KindValidation,
	ErrSiloedBorrowingViolation:      KindValidation,
	ErrEModeCategoryMismatch:         KindValidation,
	ErrEModeCategoryNotFound:         KindValidation,
	ErrAssetNotBorrowableInIsolation: KindValidation,
	ErrIsolationCollateralConflict:   KindValidation,
	ErrCollateralNotEnabled:          KindValidation,
	ErrCollateralDisallowed:          KindValidation,
	ErrReserveNotEmpty:               KindValidation,

	ErrHealthFactorBelowThreshold:    KindState,
	ErrHealthFactorNotBelowThreshold: KindState,
	ErrInsufficientBalance:           KindState,
	ErrInsufficientLiquidity:         KindState,
	ErrNoDebtToRepay:                 KindState,
	ErrCollateralCannotCoverBorrow:   KindState,

	ErrCallerNotAuthorized:            KindAuthorization,
	ErrForcedLiquidationNotAuthorized: KindAuthorization,

	ErrOverflow:       KindArithmetic,
	ErrDivisionByZero: KindArithmetic,
}

// Kind classifies err into one of the engine's failure buckets. Wrapped
// errors are unwrapped before classification.
func Kind(err error) ErrorKind {
	for err != nil {
		if kind, ok := errorKinds[err]; ok {
			return kind
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// String returns the canonical kind label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}
