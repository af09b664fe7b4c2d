package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	activeSimulations    prometheus.Gauge
	simulationsStarted   *prometheus.CounterVec
	simulationsCompleted prometheus.Counter

	activePollers prometheus.Gauge
	pollFailures  *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	deliveries    prometheus.Counter

	watchedOrders   prometheus.Gauge
	framesSent      *prometheus.CounterVec
	framesDropped   prometheus.Counter
	connections     prometheus.Gauge
	deadConnections prometheus.Counter
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer to expose metrics on promhttp.Handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		activeSimulations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shiptrack_active_simulations",
				Help: "Number of simulation runs held by the engine",
			},
		),
		simulationsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiptrack_simulations_started_total",
				Help: "Total number of simulation start attempts",
			},
			[]string{"status"},
		),
		simulationsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shiptrack_simulations_completed_total",
				Help: "Total number of simulation runs that reached their destination",
			},
		),
		activePollers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shiptrack_active_pollers",
				Help: "Number of orders currently being polled",
			},
		),
		pollFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiptrack_poll_failures_total",
				Help: "Total number of poll ticks that produced no snapshot",
			},
			[]string{"reason"},
		),
		pollLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shiptrack_poll_latency_seconds",
				Help:    "Latency of engine reads during poll ticks",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		deliveries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shiptrack_deliveries_total",
				Help: "Total number of orders marked delivered",
			},
		),
		watchedOrders: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shiptrack_watched_orders",
				Help: "Number of orders with at least one watcher",
			},
		),
		framesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiptrack_broadcast_frames_total",
				Help: "Total number of broadcast frames by outcome",
			},
			[]string{"outcome"},
		),
		framesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shiptrack_frames_dropped_total",
				Help: "Total number of frames dropped on full connection buffers",
			},
		),
		connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shiptrack_connections",
				Help: "Number of open watcher connections",
			},
		),
		deadConnections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shiptrack_dead_connections_total",
				Help: "Total number of connections closed by the liveness monitor",
			},
		),
	}
}

// SetActiveSimulations sets the number of runs held by the engine
func (c *Collector) SetActiveSimulations(count int) {
	c.activeSimulations.Set(float64(count))
}

// RecordSimulationStarted records a start attempt by outcome
func (c *Collector) RecordSimulationStarted(status string) {
	c.simulationsStarted.WithLabelValues(status).Inc()
}

// RecordSimulationCompleted records a run reaching full progress
func (c *Collector) RecordSimulationCompleted() {
	c.simulationsCompleted.Inc()
}

// SetActivePollers sets the number of polled orders
func (c *Collector) SetActivePollers(count int) {
	c.activePollers.Set(float64(count))
}

// RecordPollFailure records a poll tick without a snapshot
func (c *Collector) RecordPollFailure(reason string) {
	c.pollFailures.WithLabelValues(reason).Inc()
}

// ObservePollLatency records how long an engine read took
func (c *Collector) ObservePollLatency(duration time.Duration) {
	c.pollLatency.Observe(duration.Seconds())
}

// RecordDelivery records an order completion
func (c *Collector) RecordDelivery() {
	c.deliveries.Inc()
}

// SetWatchedOrders sets the number of orders with watchers
func (c *Collector) SetWatchedOrders(count int) {
	c.watchedOrders.Set(float64(count))
}

// RecordBroadcast records delivered and skipped frames of one broadcast
func (c *Collector) RecordBroadcast(delivered, skipped int) {
	c.framesSent.WithLabelValues("delivered").Add(float64(delivered))
	c.framesSent.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordFrameDropped records a frame dropped on a full send buffer
func (c *Collector) RecordFrameDropped() {
	c.framesDropped.Inc()
}

// SetConnections sets the number of open connections
func (c *Collector) SetConnections(count int) {
	c.connections.Set(float64(count))
}

// RecordDeadConnection records a connection closed for missing a probe
func (c *Collector) RecordDeadConnection() {
	c.deadConnections.Inc()
}
