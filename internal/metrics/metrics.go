package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Place-order attempts by result",
		},
		[]string{"result"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_webhooks_total",
			Help: "Payment webhooks by event type and result",
		},
		[]string{"type", "result"},
	)

	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_compensations_total",
			Help: "Compensating stock restorations by reason",
		},
		[]string{"reason"},
	)

	lowStockTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_low_stock_alerts_total",
			Help: "Paid order items that left their product at or below the low-stock threshold",
		},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_gateway_call_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op", "status"},
	)
)

func RecordOrder(result string) {
	ordersTotal.WithLabelValues(result).Inc()
}

func RecordWebhook(eventType, result string) {
	webhooksTotal.WithLabelValues(eventType, result).Inc()
}

func RecordCompensation(reason string) {
	compensationsTotal.WithLabelValues(reason).Inc()
}

func RecordLowStock() {
	lowStockTotal.Inc()
}

func ObserveGatewayCall(op string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	gatewayDuration.WithLabelValues(op, status).Observe(seconds)
}
