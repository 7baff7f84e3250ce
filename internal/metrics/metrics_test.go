package metrics_test

import (
	"testing"
	"time"

	"github.com/FiskLee/stattracker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop_AllMethods(t *testing.T) {
	var r metrics.Recorder = metrics.Noop{}
	r.RecordHit("l1")
	r.RecordMiss("l2")
	r.RecordLatency("load", 100*time.Millisecond)
	r.RecordError("save")
	r.RecordDirtyCount(5)
	r.RecordPayload(100, 60)
	r.RecordCodecWarning("version_mismatch")
}

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	var r metrics.Recorder = metrics.NewPrometheus(reg)

	r.RecordHit("l1")
	r.RecordHit("l1")
	r.RecordMiss("l2")
	r.RecordError("save")
	r.RecordDirtyCount(7)
	r.RecordPayload(100, 60)
	r.RecordPayload(50, 40)
	r.RecordCodecWarning("version_mismatch")
	r.RecordLatency("load", 2*time.Millisecond)

	n, err := testutil.GatherAndCount(reg,
		"stattracker_cache_hits_total",
		"stattracker_cache_misses_total",
		"stattracker_op_errors_total",
		"stattracker_write_behind_dirty",
		"stattracker_payload_raw_bytes_total",
		"stattracker_payload_stored_bytes_total",
		"stattracker_codec_warnings_total",
		"stattracker_op_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["stattracker_cache_hits_total"])
	assert.Equal(t, 1.0, values["stattracker_cache_misses_total"])
	assert.Equal(t, 7.0, values["stattracker_write_behind_dirty"])
	assert.Equal(t, 150.0, values["stattracker_payload_raw_bytes_total"])
	assert.Equal(t, 100.0, values["stattracker_payload_stored_bytes_total"])
}

func TestPrometheus_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewPrometheus(reg)
	assert.Panics(t, func() { metrics.NewPrometheus(reg) })
}
