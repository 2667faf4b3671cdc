package observability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks ledger transitions and the balances surfaced by the
// snapshot job.
type LedgerMetrics struct {
	transitions  *prometheus.CounterVec
	applyLatency *prometheus.HistogramVec
	poolReserves *prometheus.GaugeVec
	poolShares   *prometheus.GaugeVec
	treasury     *prometheus.GaugeVec
	vaultMonths  *prometheus.GaugeVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cashflow",
				Subsystem: "ledger",
				Name:      "transitions_total",
				Help:      "Applied ledger transactions segmented by type and outcome.",
			}, []string{"type", "outcome"}),
			applyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cashflow",
				Subsystem: "ledger",
				Name:      "apply_duration_seconds",
				Help:      "Latency distribution for ledger transaction application.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),
			poolReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cashflow",
				Subsystem: "amm",
				Name:      "pool_reserve",
				Help:      "Pool reserves in base units as of the last snapshot.",
			}, []string{"pool", "side"}),
			poolShares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cashflow",
				Subsystem: "amm",
				Name:      "pool_total_shares",
				Help:      "Outstanding liquidity shares as of the last snapshot.",
			}, []string{"pool"}),
			treasury: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cashflow",
				Subsystem: "receivable",
				Name:      "treasury_balance",
				Help:      "Vault treasury balance in payment base units.",
			}, []string{"vault"}),
			vaultMonths: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cashflow",
				Subsystem: "receivable",
				Name:      "current_month",
				Help:      "Payment cycles completed per vault.",
			}, []string{"vault"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transitions,
			ledgerRegistry.applyLatency,
			ledgerRegistry.poolReserves,
			ledgerRegistry.poolShares,
			ledgerRegistry.treasury,
			ledgerRegistry.vaultMonths,
		)
	})
	return ledgerRegistry
}

// ObserveTransition records the outcome of a ledger transaction. code is the
// stable error code of a rejected transaction and empty on success.
func (m *LedgerMetrics) ObserveTransition(txType, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if txType = strings.TrimSpace(txType); txType == "" {
		txType = "unknown"
	}
	outcome := "success"
	if code != "" {
		outcome = code
	}
	m.transitions.WithLabelValues(txType, outcome).Inc()
	m.applyLatency.WithLabelValues(txType).Observe(elapsed.Seconds())
}

// RecordPool sets the reserve and share gauges for a pool.
func (m *LedgerMetrics) RecordPool(pool string, reserveA, reserveB, shares uint64) {
	if m == nil {
		return
	}
	m.poolReserves.WithLabelValues(pool, "a").Set(float64(reserveA))
	m.poolReserves.WithLabelValues(pool, "b").Set(float64(reserveB))
	m.poolShares.WithLabelValues(pool).Set(float64(shares))
}

// RecordVault sets the treasury and progress gauges for a vault.
func (m *LedgerMetrics) RecordVault(vault string, treasury uint64, currentMonth uint32) {
	if m == nil {
		return
	}
	m.treasury.WithLabelValues(vault).Set(float64(treasury))
	m.vaultMonths.WithLabelValues(vault).Set(float64(currentMonth))
}

// HTTP returns the registry for API request metrics.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cashflow",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests segmented by route and status.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cashflow",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cashflow",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records a completed API request. status is the HTTP status written.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if status == 0 {
		status = http.StatusOK
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter.
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
