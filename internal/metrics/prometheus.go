package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus records metrics into a prometheus.Registerer. Every label has a
// bounded value set; player ids are never used as labels.
type Prometheus struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	dirty         prometheus.Gauge
	rawBytes      prometheus.Counter
	storedBytes   prometheus.Counter
	codecWarnings *prometheus.CounterVec
}

// NewPrometheus registers the stattracker collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prometheus{
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stattracker_cache_hits_total",
			Help: "Stats record lookups served by a tier",
		}, []string{"tier"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stattracker_cache_misses_total",
			Help: "Stats record lookups that fell through a tier",
		}, []string{"tier"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stattracker_op_duration_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"op"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stattracker_op_errors_total",
			Help: "Store operations that returned an error",
		}, []string{"op"}),
		dirty: f.NewGauge(prometheus.GaugeOpts{
			Name: "stattracker_write_behind_dirty",
			Help: "Records waiting for a write-behind flush",
		}),
		rawBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "stattracker_payload_raw_bytes_total",
			Help: "Serialized payload bytes before compression",
		}),
		storedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "stattracker_payload_stored_bytes_total",
			Help: "Payload bytes after compression",
		}),
		codecWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stattracker_codec_warnings_total",
			Help: "Non-fatal payload codec diagnostics",
		}, []string{"kind"}),
	}
}

func (p *Prometheus) RecordHit(tier string)  { p.hits.WithLabelValues(tier).Inc() }
func (p *Prometheus) RecordMiss(tier string) { p.misses.WithLabelValues(tier).Inc() }

func (p *Prometheus) RecordLatency(op string, d time.Duration) {
	p.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(op string)        { p.errors.WithLabelValues(op).Inc() }
func (p *Prometheus) RecordDirtyCount(count int64) { p.dirty.Set(float64(count)) }

func (p *Prometheus) RecordPayload(rawBytes, storedBytes int) {
	p.rawBytes.Add(float64(rawBytes))
	p.storedBytes.Add(float64(storedBytes))
}

func (p *Prometheus) RecordCodecWarning(kind string) { p.codecWarnings.WithLabelValues(kind).Inc() }
