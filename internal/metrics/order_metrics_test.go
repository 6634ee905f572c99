package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestOrderMetrics_RecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.ObserveOperation("create_order", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveOperation("create_order", OutcomeRejected, time.Millisecond)
	m.RecordStockConflict()
	m.RecordTotalMismatch()
	m.RecordIllegalTransition()
	m.RecordStockMovement(-4)
	m.RecordStockMovement(3)
	m.RecordCashback(decimal.RequireFromString("5.00"))
	m.RecordCashback(decimal.Zero)

	if got := counterValue(t, m.operations.WithLabelValues("create_order", OutcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 successful create_order, got %v", got)
	}
	if got := counterValue(t, m.stockConflicts); got != 1 {
		t.Fatalf("expected 1 stock conflict, got %v", got)
	}
	if got := counterValue(t, m.stockMovements.WithLabelValues("out")); got != 4 {
		t.Fatalf("expected 4 units out, got %v", got)
	}
	if got := counterValue(t, m.stockMovements.WithLabelValues("in")); got != 3 {
		t.Fatalf("expected 3 units in, got %v", got)
	}
	if got := counterValue(t, m.cashbackAccrued); got != 5 {
		t.Fatalf("expected cashback 5, got %v", got)
	}
	if got := counterValue(t, m.cashbackOrders); got != 1 {
		t.Fatalf("zero cashback must not be counted, got %v orders", got)
	}
}

func TestOrderMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordTotalMismatch()
	second.RecordTotalMismatch()

	if got := counterValue(t, first.totalMismatches); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestOrderMetrics_NilIsNoop(t *testing.T) {
	var m *OrderMetrics
	m.ObserveOperation("create_order", OutcomeError, time.Second)
	m.OperationStarted()
	m.OperationFinished()
	m.RecordStockConflict()
	m.RecordCashback(decimal.NewFromInt(1))
	m.RecordStockMovement(-1)
}
