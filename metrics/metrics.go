// Package metrics is a thin wrapper over rcrowley/go-metrics, registering
// named counters and timers in the default registry at package init time.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// NewRegisteredCounter registers and returns a counter under name in the
// default registry.
func NewRegisteredCounter(name string) gometrics.Counter {
	return gometrics.NewRegisteredCounter(name, gometrics.DefaultRegistry)
}

// NewRegisteredTimer registers and returns a timer under name in the default
// registry.
func NewRegisteredTimer(name string) gometrics.Timer {
	return gometrics.NewRegisteredTimer(name, gometrics.DefaultRegistry)
}
