package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsExtendedTotal,
		subscriptionsExpiredTotal,
	)
}

var (
	subscriptionsExtendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_extended_total",
			Help: "Subscription activations and renewals, labeled by tier.",
		},
		[]string{"tier"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions transitioned to expired by the sweep or lazy checks.",
		},
	)
)

func IncSubscriptionExtended(tier string) {
	subscriptionsExtendedTotal.WithLabelValues(norm(tier)).Inc()
}

func IncSubscriptionsExpired(n int) {
	subscriptionsExpiredTotal.Add(float64(n))
}
