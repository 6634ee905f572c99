package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Исходы операций движка заказов.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// OrderMetrics содержит метрики движка заказов и складских операций.
type OrderMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge

	stockConflicts     prometheus.Counter
	totalMismatches    prometheus.Counter
	illegalTransitions prometheus.Counter
	stockMovements     *prometheus.CounterVec

	cashbackAccrued prometheus.Counter
	cashbackOrders  prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wholesale_order_operations_total",
			Help: "Order engine operations by operation and outcome",
		}, []string{"operation", "outcome"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wholesale_order_operation_duration_seconds",
			Help:    "Duration of order engine operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"})),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wholesale_order_operations_in_flight",
			Help: "Number of order engine operations currently running",
		})),
		stockConflicts: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_stock_conflicts_total",
			Help: "Stock checks rejected because of insufficient stock",
		})),
		totalMismatches: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_order_total_mismatches_total",
			Help: "Order creations rejected because declared total differs from line items sum",
		})),
		illegalTransitions: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_order_illegal_status_transitions_total",
			Help: "Order updates rejected because of an illegal status transition",
		})),
		stockMovements: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wholesale_stock_units_total",
			Help: "Stock units moved by order placement and amendment",
		}, []string{"direction"})),
		cashbackAccrued: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_cashback_accrued_total",
			Help: "Cumulative cashback accrued to business users",
		})),
		cashbackOrders: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_cashback_orders_total",
			Help: "Number of orders that accrued cashback",
		})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wholesale_outbox_events_enqueued_total",
			Help: "Total number of events enqueued to the transactional outbox",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(fmt.Sprintf("register collector: %v", err))
		}
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
		}
		return existing
	}
	return collector
}

// ObserveOperation фиксирует исход и длительность операции. Безопасен для nil.
func (m *OrderMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// OperationStarted увеличивает число выполняющихся операций.
func (m *OrderMetrics) OperationStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

// OperationFinished уменьшает число выполняющихся операций.
func (m *OrderMetrics) OperationFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// RecordStockConflict увеличивает счётчик отказов по остатку.
func (m *OrderMetrics) RecordStockConflict() {
	if m != nil {
		m.stockConflicts.Inc()
	}
}

// RecordTotalMismatch увеличивает счётчик отказов по сумме заказа.
func (m *OrderMetrics) RecordTotalMismatch() {
	if m != nil {
		m.totalMismatches.Inc()
	}
}

// RecordIllegalTransition увеличивает счётчик недопустимых переходов статуса.
func (m *OrderMetrics) RecordIllegalTransition() {
	if m != nil {
		m.illegalTransitions.Inc()
	}
}

// RecordStockMovement учитывает списание (delta < 0) или возврат (delta > 0) единиц товара.
func (m *OrderMetrics) RecordStockMovement(delta int32) {
	if m == nil || delta == 0 {
		return
	}
	if delta < 0 {
		m.stockMovements.WithLabelValues("out").Add(float64(-delta))
		return
	}
	m.stockMovements.WithLabelValues("in").Add(float64(delta))
}

// RecordCashback учитывает начисленный кэшбэк. Нулевые суммы игнорируются.
func (m *OrderMetrics) RecordCashback(amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.cashbackAccrued.Add(amount.InexactFloat64())
	m.cashbackOrders.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m != nil {
		m.timelineEvents.Inc()
	}
}

// RecordOutboxEvent увеличивает счётчик событий, поставленных в outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m != nil {
		m.outboxEvents.Inc()
	}
}
