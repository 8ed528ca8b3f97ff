package api

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
	"github.com/odvcencio/docgraph/internal/service"
)

const collectTimeout = 10 * time.Second

// reportCollector translates the aggregated metrics report into Prometheus
// exposition at scrape time. Each scrape triggers one snapshot read; the
// aggregator collapses concurrent scrapes onto a single read.
type reportCollector struct {
	aggregator *service.Aggregator

	documents  *prometheus.Desc
	queueDepth *prometheus.Desc
	nodes      *prometheus.Desc
	edges      *prometheus.Desc
	workspaces *prometheus.Desc
}

var defaultReportCollectorOnce sync.Once

func registerDefaultReportCollector(aggregator *service.Aggregator) {
	defaultReportCollectorOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(newReportCollector(aggregator))
	})
}

func newReportCollector(aggregator *service.Aggregator) *reportCollector {
	return &reportCollector{
		aggregator: aggregator,
		documents: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "documents_total"),
			"Number of tracked documents by processing status.",
			[]string{"status"}, nil),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "queue_depth"),
			"Number of non-duplicate documents awaiting or having failed processing.",
			nil, nil),
		nodes: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "graph_nodes"),
			"Number of knowledge graph nodes.",
			nil, nil),
		edges: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "graph_edges"),
			"Number of knowledge graph edges.",
			nil, nil),
		workspaces: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "workspaces"),
			"Number of distinct workspaces with document records.",
			nil, nil),
	}
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.documents
	ch <- c.queueDepth
	ch <- c.nodes
	ch <- c.edges
	ch <- c.workspaces
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	report, err := c.aggregator.ComputeMetrics(ctx, database.AllWorkspaces())
	if err != nil {
		// Surface the failure to the scraper instead of exporting stale zeros.
		ch <- prometheus.NewInvalidMetric(c.queueDepth, err)
		return
	}

	buckets := map[models.DocStatus]int64{
		models.DocStatusPending:      report.Documents.Pending,
		models.DocStatusProcessing:   report.Documents.Processing,
		models.DocStatusProcessed:    report.Documents.Processed,
		models.DocStatusFailed:       report.Documents.Failed,
		models.DocStatusPreprocessed: report.Documents.Preprocessed,
	}
	for _, status := range models.DocStatuses() {
		ch <- prometheus.MustNewConstMetric(c.documents, prometheus.GaugeValue, float64(buckets[status]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(report.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(report.Graph.Nodes))
	ch <- prometheus.MustNewConstMetric(c.edges, prometheus.GaugeValue, float64(report.Graph.Edges))
	ch <- prometheus.MustNewConstMetric(c.workspaces, prometheus.GaugeValue, float64(report.WorkspaceCount))
}
