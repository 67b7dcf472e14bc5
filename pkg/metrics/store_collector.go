package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const collectTimeout = 10 * time.Second

type storeStatsCollector struct {
	store                store.Store
	pausedWorkflows      *prometheus.Desc
	pausedByPurpose      *prometheus.Desc
	batchJobItemsByState *prometheus.Desc
}

// RegisterStoreCollector exposes the live pause records and batch rows of s.
func RegisterStoreCollector(s store.Store) {
	prometheus.MustRegister(newStoreStatsCollector(s))
}

func newStoreStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_store_%s", transcribeOrchestrator, name)
	}

	return &storeStatsCollector{
		store: s,
		pausedWorkflows: prometheus.NewDesc(
			fqName("paused_workflows_total"),
			"Number of workflows waiting for a runner notification.",
			nil,
			prometheus.Labels{},
		),
		pausedByPurpose: prometheus.NewDesc(
			fqName("paused_workflows_by_purpose_total"),
			"Number of waiting workflows by purpose tag.",
			[]string{"purpose"},
			prometheus.Labels{},
		),
		batchJobItemsByState: prometheus.NewDesc(
			fqName("batch_job_items_total"),
			"Number of batch job items by state.",
			[]string{"state"},
			prometheus.Labels{},
		),
	}
}

func (c *storeStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pausedWorkflows
	ch <- c.pausedByPurpose
	ch <- c.batchJobItemsByState
}

// Collect implements Collector.
func (c *storeStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.store.Statistics(ctx)
	if err != nil {
		zap.S().Named("store_collector").Errorf("failed to collect store statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.pausedWorkflows, prometheus.GaugeValue, float64(stats.PausedWorkflows))

	for purpose, total := range stats.PausedByPurpose {
		ch <- prometheus.MustNewConstMetric(c.pausedByPurpose, prometheus.GaugeValue, float64(total), purpose)
	}

	for state, total := range stats.BatchItemsByState {
		ch <- prometheus.MustNewConstMetric(c.batchJobItemsByState, prometheus.GaugeValue, float64(total), string(state))
	}
}
