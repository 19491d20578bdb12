package bus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sin label por resume id: cardinalidad no acotada.
var (
	metricsOnce sync.Once

	busSubscribers prometheus.Gauge
	busPublished   prometheus.Counter
	busDelivered   prometheus.Counter
	busDropped     prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		busSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bus_subscribers",
			Help: "Suscriptores vivos del bus de actualizaciones",
		})
		busPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Publishes recibidos por el bus",
		})
		busDelivered = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_delivered_total",
			Help: "Entregas efectivas a suscriptores",
		})
		busDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_dropped_total",
			Help: "Entregas descartadas por backpressure",
		})
		prometheus.MustRegister(busSubscribers, busPublished, busDelivered, busDropped)
	})
}

func observeSubscribe() {
	initMetrics()
	busSubscribers.Inc()
}

func observeUnsubscribe() {
	initMetrics()
	busSubscribers.Dec()
}

func observePublish() {
	initMetrics()
	busPublished.Inc()
}

func observeDelivery() {
	initMetrics()
	busDelivered.Inc()
}

func observeDrop() {
	initMetrics()
	busDropped.Inc()
}
