// Package metrics exposes automation activity as Prometheus metrics.
//
// A Recorder subscribes to the event bus and turns domain events into
// counters, gauges and histograms on its own registry, which Handler
// serves in the Prometheus text format.
package metrics
