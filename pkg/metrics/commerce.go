package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics records cart/order mutation outcomes and notification
// dispatch attempts.
type CommerceMetrics struct {
	cartMutations  *prometheus.CounterVec
	orderMutations *prometheus.CounterVec
	stockConflicts *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	dispatchRetry  prometheus.Counter
}

// NewCommerceMetrics registers the commerce metrics on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart item mutations by operation and result.",
	}, []string{"operation", "result"})
	orderMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_mutations_total",
		Help: "Order and order item mutations by operation and result.",
	}, []string{"operation", "result"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_conflicts_total",
		Help: "Mutations rejected for insufficient stock.",
	}, []string{"operation"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_dispatches_total",
		Help: "Notification dispatch outcomes.",
	}, []string{"result"})
	dispatchRetry := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_dispatch_retries_total",
		Help: "Notification dispatch retry attempts.",
	})
	reg.MustRegister(cartMutations, orderMutations, stockConflicts, dispatches, dispatchRetry)
	return &CommerceMetrics{
		cartMutations:  cartMutations,
		orderMutations: orderMutations,
		stockConflicts: stockConflicts,
		dispatches:     dispatches,
		dispatchRetry:  dispatchRetry,
	}
}

// IncCartMutation records a cart item mutation outcome.
func (m *CommerceMetrics) IncCartMutation(operation, result string) {
	if m == nil || m.cartMutations == nil {
		return
	}
	m.cartMutations.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// IncOrderMutation records an order mutation outcome.
func (m *CommerceMetrics) IncOrderMutation(operation, result string) {
	if m == nil || m.orderMutations == nil {
		return
	}
	m.orderMutations.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// IncStockConflict records a mutation rejected for insufficient stock.
func (m *CommerceMetrics) IncStockConflict(operation string) {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncDispatch records a notification dispatch outcome.
func (m *CommerceMetrics) IncDispatch(result string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncDispatchRetry records one notification dispatch retry.
func (m *CommerceMetrics) IncDispatchRetry() {
	if m == nil || m.dispatchRetry == nil {
		return
	}
	m.dispatchRetry.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
