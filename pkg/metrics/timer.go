package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Since records the seconds elapsed since start on obs. Plain
// histograms and the curried entries returned by WithLabelValues both
// satisfy the observer interface, so one helper covers every duration
// metric in the package.
func Since(obs prometheus.Observer, start time.Time) {
	obs.Observe(time.Since(start).Seconds())
}
