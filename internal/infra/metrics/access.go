package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(accessIntentsTotal)
}

var accessIntentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "channel_access_intents_total",
		Help: "Grant/revoke intents issued to the channel, labeled by kind and result.",
	},
	[]string{"kind", "result"},
)

func IncAccessIntent(kind, result string) {
	accessIntentsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
