package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lendpool/lending"
)

// LendingMetrics wraps the collectors tracking pool activity.
type LendingMetrics struct {
	operations   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	debtCovered  *prometheus.CounterVec
	seized       *prometheus.CounterVec
	utilisation  *prometheus.GaugeVec
	liquidity    *prometheus.GaugeVec
	borrowRate   *prometheus.GaugeVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry for the pool engine.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of pool operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Count of pool operation failures segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for pool operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of executed liquidations segmented by mode.",
			}, []string{"mode"}),
			debtCovered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "liquidation_debt_covered_total",
				Help:      "Cumulative debt repaid through liquidations, in native units per asset.",
			}, []string{"asset"}),
			seized: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "liquidation_collateral_seized_total",
				Help:      "Cumulative collateral seized through liquidations, in native units per asset.",
			}, []string{"asset"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "utilisation_ratio",
				Help:      "Current borrow utilisation per reserve, in the range [0, 1].",
			}, []string{"asset"}),
			liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "available_liquidity",
				Help:      "Available liquidity per reserve in native units.",
			}, []string{"asset"}),
			borrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "variable_borrow_rate",
				Help:      "Annualised variable borrow rate per reserve as a fraction.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.failures,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
			lendingRegistry.debtCovered,
			lendingRegistry.seized,
			lendingRegistry.utilisation,
			lendingRegistry.liquidity,
			lendingRegistry.borrowRate,
		)
	})
	return lendingRegistry
}

// Observe records one pool operation. Failures are bucketed by the engine's
// error kind so dashboards stay stable as individual sentinels evolve.
func (m *LendingMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(op, lending.Kind(err).String()).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLiquidation tracks an executed liquidation and its covered amounts.
func (m *LendingMetrics) RecordLiquidation(debtAsset, collateralAsset string, result *lending.LiquidationResult) {
	if m == nil || result == nil {
		return
	}
	mode := "standard"
	if result.Forced {
		mode = "forced"
	}
	m.liquidations.WithLabelValues(mode).Inc()
	m.debtCovered.WithLabelValues(debtAsset).Add(approximate(result.DebtCovered))
	m.seized.WithLabelValues(collateralAsset).Add(approximate(result.CollateralSeized))
}

// RecordReserve refreshes the per-reserve gauges from a reserve snapshot.
func (m *LendingMetrics) RecordReserve(reserve *lending.Reserve) {
	if m == nil || reserve == nil {
		return
	}
	asset := reserve.Asset.Hex()
	m.liquidity.WithLabelValues(asset).Set(approximate(reserve.AvailableLiquidity))
	m.borrowRate.WithLabelValues(asset).Set(rayFraction(reserve.CurrentVariableBorrowRate))
	if totalDebt, err := reserve.TotalDebt(); err == nil {
		value, _ := lending.Utilisation(totalDebt, reserve.AvailableLiquidity).Float64()
		m.utilisation.WithLabelValues(asset).Set(value)
	}
}

// approximate renders a big integer as a float for gauge and counter export.
// Precision loss beyond 53 bits is acceptable for monitoring.
func approximate(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func rayFraction(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	rat := new(big.Rat).SetFrac(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil))
	f, _ := rat.Float64()
	return f
}
