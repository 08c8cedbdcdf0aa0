// Package metrics exports shot verification statistics to Prometheus.
package metrics

import (
	"math"
	"net/http"

	"github.com/automoto/rewind/server/lagcomp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a lagcomp.Sink that counts and measures verified shots. Each
// instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	shots            *prometheus.CounterVec
	damaging         prometheus.Counter
	rewindDepth      prometheus.Histogram
	predictionSkew   prometheus.Histogram
	claimDiscrepancy prometheus.Histogram
}

var _ lagcomp.Sink = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		shots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rewind_shots_total",
			Help: "Verified shots by reconciliation outcome",
		}, []string{"outcome"}),
		damaging: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_shots_damaging_total",
			Help: "Verified shots that applied damage",
		}),
		rewindDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_depth_seconds",
			Help:    "How far back each shot was verified",
			Buckets: []float64{0, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.5},
		}),
		predictionSkew: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_prediction_skew_seconds",
			Help:    "Absolute difference between the client's and the server's prediction time",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		claimDiscrepancy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_claim_discrepancy_units",
			Help:    "Distance between where the client saw its victim and the rewound pose",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) Publish(rec lagcomp.Reconciliation) {
	m.shots.WithLabelValues(rec.Kind.String()).Inc()
	if rec.ApplyDamage {
		m.damaging.Inc()
	}
	observe(m.rewindDepth, rec.PredictionTime)
	observe(m.predictionSkew, math.Abs(rec.ClaimedPredictionTime-rec.ServerPredictionTime))
	if rec.ClaimDiscrepancy >= 0 {
		observe(m.claimDiscrepancy, rec.ClaimDiscrepancy)
	}
}

// observe skips non-finite values; one NaN would stick in the sum forever.
func observe(h prometheus.Histogram, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	h.Observe(v)
}

// TrackStore exports the number of live and retired histories in store.
func (m *Metrics) TrackStore(store *lagcomp.Store) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rewind_histories",
		Help: "Pose histories held, retired ones included",
	}, func() float64 {
		return float64(store.Len())
	})
}

// TrackLatency exports the smoothed RTT of each id returned by ids.
func (m *Metrics) TrackLatency(src lagcomp.LatencySource, ids func() []lagcomp.EntityID) {
	m.registry.MustRegister(&latencyCollector{
		desc: prometheus.NewDesc("rewind_rtt_milliseconds_max", "Highest smoothed round trip among connected shooters", nil, nil),
		src:  src,
		ids:  ids,
	})
}

type latencyCollector struct {
	desc *prometheus.Desc
	src  lagcomp.LatencySource
	ids  func() []lagcomp.EntityID
}

func (c *latencyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *latencyCollector) Collect(ch chan<- prometheus.Metric) {
	worst := 0.0
	for _, id := range c.ids() {
		if ms, ok := c.src.RTT(id); ok && ms > worst {
			worst = ms
		}
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, worst)
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
