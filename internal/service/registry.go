package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
)

const defaultInstanceTTL = 90 * time.Second

// MetricsCollector produces an instance's self-reported counters as a JSON
// object for the heartbeat payload. A failing or absent collector degrades to
// an empty payload; it never blocks the heartbeat itself.
type MetricsCollector func(ctx context.Context) (json.RawMessage, error)

// InstanceStore is the storage capability the registry consumes.
type InstanceStore interface {
	RegisterInstance(ctx context.Context, inst *models.Instance) error
	InstanceHeartbeat(ctx context.Context, hb database.InstanceHeartbeat) error
	ListLiveInstances(ctx context.Context, cutoff time.Time) ([]models.Instance, error)
}

type RegistryOptions struct {
	InstanceID string
	Hostname   string
	// TTL is the maximum heartbeat age for an instance to count as live.
	TTL    time.Duration
	Logger *slog.Logger
}

// InstanceRegistry tracks the server processes sharing one store. Each
// process registers once, heartbeats periodically, and the cluster metrics
// view merges every live instance's payload. When the registry itself is
// empty or unreadable the view falls back to this process's own counters, so
// a registry outage degrades the report instead of failing it.
type InstanceRegistry struct {
	db         InstanceStore
	instanceID string
	hostname   string
	ttl        time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	collector MetricsCollector
}

func NewInstanceRegistry(db InstanceStore, opts RegistryOptions) *InstanceRegistry {
	id := strings.TrimSpace(opts.InstanceID)
	if id == "" {
		id = uuid.NewString()
	}
	hostname := strings.TrimSpace(opts.Hostname)
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultInstanceTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InstanceRegistry{
		db:         db,
		instanceID: id,
		hostname:   hostname,
		ttl:        ttl,
		logger:     logger,
	}
}

func (r *InstanceRegistry) InstanceID() string { return r.instanceID }

// SetMetricsCollector installs the callback invoked on every heartbeat and
// on local fallback. Nil clears it.
func (r *InstanceRegistry) SetMetricsCollector(fn MetricsCollector) {
	r.mu.Lock()
	r.collector = fn
	r.mu.Unlock()
}

// Register claims this process's registry row. Safe to call again after a
// restart with the same instance id.
func (r *InstanceRegistry) Register(ctx context.Context) error {
	inst := &models.Instance{ID: r.instanceID, Hostname: r.hostname}
	if err := r.db.RegisterInstance(ctx, inst); err != nil {
		return fmt.Errorf("register instance %s: %w", r.instanceID, err)
	}
	return nil
}

// Heartbeat refreshes this instance's liveness and counters. The collector
// payload is best-effort: a collector failure is logged and the heartbeat is
// written with an empty payload.
func (r *InstanceRegistry) Heartbeat(ctx context.Context, processingCount int64, pipelineBusy bool) error {
	payload := r.collectMetrics(ctx)
	err := r.db.InstanceHeartbeat(ctx, database.InstanceHeartbeat{
		InstanceID:      r.instanceID,
		ProcessingCount: processingCount,
		PipelineBusy:    pipelineBusy,
		Metrics:         payload,
	})
	if err != nil {
		return fmt.Errorf("heartbeat instance %s: %w", r.instanceID, err)
	}
	return nil
}

// ClusterMetrics builds the multi-instance view. Instances whose heartbeat is
// older than the TTL are excluded; when no live instance can be read from the
// registry the report carries only this process's own counters, marked with
// source "local".
func (r *InstanceRegistry) ClusterMetrics(ctx context.Context) *models.ClusterReport {
	cutoff := time.Now().Add(-r.ttl)
	instances, err := r.db.ListLiveInstances(ctx, cutoff)
	if err != nil {
		r.logger.Warn("instance registry unavailable, falling back to local metrics", "error", err)
		return r.localReport(ctx)
	}
	if len(instances) == 0 {
		return r.localReport(ctx)
	}

	report := &models.ClusterReport{
		Status:    "ok",
		Source:    "registry",
		Instances: instances,
	}
	aggregateInstances(report)
	return report
}

func (r *InstanceRegistry) localReport(ctx context.Context) *models.ClusterReport {
	report := &models.ClusterReport{
		Status: "ok",
		Source: "local",
		Instances: []models.Instance{{
			ID:            r.instanceID,
			Hostname:      r.hostname,
			LastHeartbeat: time.Now().UTC(),
			Metrics:       r.collectMetrics(ctx),
		}},
	}
	aggregateInstances(report)
	return report
}

func (r *InstanceRegistry) collectMetrics(ctx context.Context) json.RawMessage {
	r.mu.RLock()
	collector := r.collector
	r.mu.RUnlock()
	if collector == nil {
		return json.RawMessage("{}")
	}
	payload, err := collector(ctx)
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		if err != nil {
			r.logger.Warn("metrics collector failed", "error", err)
		}
		return json.RawMessage("{}")
	}
	return payload
}

// aggregateInstances fills InstanceCount and the summed totals. Missing or
// malformed per-instance payload keys contribute zero.
func aggregateInstances(report *models.ClusterReport) {
	report.InstanceCount = len(report.Instances)
	for i := range report.Instances {
		inst := &report.Instances[i]
		report.Totals.ProcessingCount += inst.ProcessingCount
		if inst.PipelineBusy {
			report.Totals.PipelinesBusy++
		}
		report.Totals.DBPoolActive += int64(inst.MetricValue("db_pool_active"))
	}
}
