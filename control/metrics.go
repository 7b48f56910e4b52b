// File: control/metrics.go
// Package control holds runtime configuration and metrics for the dispatch
// components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Counter registry for relay and worker loops. Thread-safe map with
// snapshot reads, in the same shape the rest of the tooling expects.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds named monotonic counters.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]int64
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{counters: make(map[string]int64)}
}

// Add increments a counter by delta (negative deltas allowed for gauges).
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.mu.Lock()
	mr.counters[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc increments a counter by one.
func (mr *MetricsRegistry) Inc(key string) { mr.Add(key, 1) }

// Get returns a single counter value.
func (mr *MetricsRegistry) Get(key string) int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.counters[key]
}

// GetSnapshot returns a copy of all counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v
	}
	return out
}

// Updated returns the time of the last counter mutation.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
