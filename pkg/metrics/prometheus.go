package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry           *prometheus.Registry
	settlements        *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	rollbacks          prometheus.Counter
	settlementDuration prometheus.Histogram
	moneySupply        prometheus.Gauge
	totalMoney         prometheus.Gauge
	drift              prometheus.Gauge
	kindBalance        *prometheus.GaugeVec
	loansOutstanding   prometheus.Gauge
	liveLoans          prometheus.Gauge
	mu                 sync.RWMutex
	logger             *slog.Logger
	server             *http.Server
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	collector := &MetricsCollector{
		registry: registry,
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settled and rejected transactions by type",
		}, []string{"type", "outcome"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_rejections_total",
			Help: "Rejected transactions by error kind",
		}, []string{"error_kind"}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_rollbacks_total",
			Help: "Commit phases that were rolled back",
		}),
		settlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Time taken to apply a transaction",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		moneySupply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "money_supply_pennies",
			Help: "Money-supply counter",
		}),
		totalMoney: factory.NewGauge(prometheus.GaugeOpts{
			Name: "total_money_pennies",
			Help: "Sum of all money-holding balances",
		}),
		drift: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conservation_drift_pennies",
			Help: "Total money minus the money-supply counter",
		}),
		kindBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_kind_balance_pennies",
			Help: "Aggregate balance per agent kind",
		}, []string{"kind"}),
		loansOutstanding: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loans_outstanding_pennies",
			Help: "Outstanding principal over live loans",
		}),
		liveLoans: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loans_live",
			Help: "Number of live loans",
		}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordSettlement(txType string, duration time.Duration, success bool, errorKind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.settlements.WithLabelValues(txType, "settled").Inc()
	} else {
		m.settlements.WithLabelValues(txType, "rejected").Inc()
		m.rejections.WithLabelValues(errorKind).Inc()
	}

	m.settlementDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordRollback() {
	m.rollbacks.Inc()
}

func (m *MetricsCollector) UpdateConservation(expected, total, drift int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.moneySupply.Set(float64(expected))
	m.totalMoney.Set(float64(total))
	m.drift.Set(float64(drift))
}

func (m *MetricsCollector) UpdateKindBalance(kind string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kindBalance.WithLabelValues(kind).Set(float64(balance))
}

func (m *MetricsCollector) UpdateLoanBook(outstanding int64, live int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loansOutstanding.Set(float64(outstanding))
	m.liveLoans.Set(float64(live))
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	server := m.server
	m.mu.RUnlock()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
	}

	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
