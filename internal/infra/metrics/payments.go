package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by provider and status (pending/completed/failed/cancelled).",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount float64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount)
}
