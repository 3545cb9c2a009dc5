package mgmt

import (
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercury-hpc/mercury-go/na"
)

// Metrics provides the prometheus counters/histograms this daemon exposes on
// its management server's /metrics endpoint, registered once per process the
// way app/mgmt/metrics.go's NewMetrics does for the HTTP-proxy counters.
type Metrics struct {
	forwards  *prometheus.CounterVec
	responds  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	peerCount prometheus.Gauge
}

// NewMetrics builds and registers every counter. Registration failures are
// logged and swallowed rather than returned: a metrics outage should never
// keep the daemon from serving RPCs.
func NewMetrics() *Metrics {
	m := &Metrics{
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_forwards_total",
			Help: "Number of RPC forwards issued, by target rpc id and outcome.",
		}, []string{"rpc_id", "status"}),
		responds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_responds_total",
			Help: "Number of RPC responses sent, by rpc id and outcome.",
		}, []string{"rpc_id", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpc_forward_duration_seconds",
			Help:    "Duration from Forward to its completion callback.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"rpc_id"}),
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "addrbook_peers",
			Help: "Number of peers currently configured in the address book.",
		}),
	}

	for _, c := range []prometheus.Collector{m.forwards, m.responds, m.duration, m.peerCount} {
		if err := prometheus.Register(c); err != nil {
			log.Printf("[WARN] mgmt: can't register prometheus collector, %v", err)
		}
	}
	return m
}

// ObserveForward records the outcome and latency of one Forward call.
func (m *Metrics) ObserveForward(rpcID uint64, status na.Status, dur time.Duration) {
	m.forwards.WithLabelValues(strconv.FormatUint(rpcID, 10), statusLabel(status)).Inc()
	m.duration.WithLabelValues(strconv.FormatUint(rpcID, 10)).Observe(dur.Seconds())
}

// ObserveRespond records the outcome of one Respond call.
func (m *Metrics) ObserveRespond(rpcID uint64, status na.Status) {
	m.responds.WithLabelValues(strconv.FormatUint(rpcID, 10), statusLabel(status)).Inc()
}

// SetPeerCount updates the addrbook_peers gauge.
func (m *Metrics) SetPeerCount(n int) {
	m.peerCount.Set(float64(n))
}

func statusLabel(status na.Status) string {
	if status.OK() {
		return "ok"
	}
	return "error"
}
