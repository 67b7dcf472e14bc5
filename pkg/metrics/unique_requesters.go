package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueRequesters struct {
	counter prometheus.Gauge
	seen    map[string]struct{}
	mu      sync.Mutex
}

const requestersCountPerWeek = "batch_requesters_count_per_week"

var UniqueRequestersPerWeek = &uniqueRequesters{
	counter: prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: transcribeOrchestrator,
			Name:      requestersCountPerWeek,
			Help:      "number of distinct users who created a batch job this week",
		},
	),
	seen: make(map[string]struct{}),
}

func (v *uniqueRequesters) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seen = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueRequesters) Add(owner string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.seen[owner]; exists {
		return
	}

	v.seen[owner] = struct{}{}
	v.counter.Inc()
}
