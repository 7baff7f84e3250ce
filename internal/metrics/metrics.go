// Package metrics provides the Recorder interface used by the stats store,
// a noop implementation, and a Prometheus-backed implementation.
package metrics

import "time"

// Recorder receives operational metrics from the stats store. Label values
// are bounded: tier is one of "l1", "l2", "l3"; op is a store operation.
type Recorder interface {
	RecordHit(tier string)
	RecordMiss(tier string)
	RecordLatency(op string, d time.Duration)
	RecordError(op string)
	RecordDirtyCount(count int64)
	// RecordPayload reports the serialized size of a record before and after
	// compression.
	RecordPayload(rawBytes, storedBytes int)
	RecordCodecWarning(kind string)
}

// Noop is a Recorder that discards all data.
type Noop struct{}

func (Noop) RecordHit(string)                    {}
func (Noop) RecordMiss(string)                   {}
func (Noop) RecordLatency(string, time.Duration) {}
func (Noop) RecordError(string)                  {}
func (Noop) RecordDirtyCount(int64)              {}
func (Noop) RecordPayload(int, int)              {}
func (Noop) RecordCodecWarning(string)           {}
