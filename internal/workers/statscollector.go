package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/externalops"
	"github.com/wisbric/fleetd/internal/notify"
	"github.com/wisbric/fleetd/internal/risk"
	"github.com/wisbric/fleetd/internal/store"
	"github.com/wisbric/fleetd/internal/telemetry"
)

// StatsCollector periodically samples every active resource's metrics,
// evaluates risk, publishes Prometheus gauges, and escalates high/critical
// findings via notify.Sink.
type StatsCollector struct {
	store    *store.Store
	cluster  cluster.Client
	ops      *externalops.ExternalOps
	notifier notify.Sink
	logger   *slog.Logger
	interval time.Duration
}

// NewStatsCollector creates a StatsCollector.
func NewStatsCollector(s *store.Store, cl cluster.Client, ops *externalops.ExternalOps, notifier notify.Sink,
	logger *slog.Logger, interval time.Duration) *StatsCollector {
	return &StatsCollector{store: s, cluster: cl, ops: ops, notifier: notifier, logger: logger, interval: interval}
}

func (c *StatsCollector) Name() string { return "stats_collector" }

func (c *StatsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *StatsCollector) tick(ctx context.Context) {
	timer := prometheusTimer(telemetry.StatsCollectionDuration.WithLabelValues("collect_all"))
	defer timer()

	active := store.StatusActive
	resources, err := c.store.QueryResources(ctx, store.ResourceFilter{Status: active}, 1000, 0)
	if err != nil {
		c.logger.Error("querying active resources for stats collection", "error", err)
		return
	}

	for _, res := range resources {
		if err := c.collectOne(ctx, res); err != nil {
			rtype, _ := c.store.GetResourceType(ctx, res.ResourceTypeID)
			telemetry.StatsCollectionErrorsTotal.WithLabelValues(rtype.Name).Inc()
			c.logger.Error("collecting resource stats", "error", err, "resource_id", res.ID)
		}
	}
}

// sample holds every raw value gathered for one resource, both the ones
// risk.Metrics reasons about and the ones only published as gauges.
type sample struct {
	cpuPercent        *float64
	memoryBytes       *int64
	memoryPercent     *float64
	diskUsedPercent   *float64
	cacheHitRatio     *float64
	connActive        *int64
	connTotal         *int64
	tempFilesBytes    *int64
	replicationLagSec *float64
}

func (c *StatsCollector) collectOne(ctx context.Context, res store.Resource) error {
	s, err := c.sample(ctx, res)
	if err != nil {
		return err
	}

	level, factors := risk.Evaluate(toRiskMetrics(s))

	metricsJSON, err := json.Marshal(map[string]any{
		"cpu_percent": s.cpuPercent, "memory_bytes": s.memoryBytes, "memory_usage_percent": s.memoryPercent,
		"disk_usage_percent": s.diskUsedPercent, "cache_hit_ratio": s.cacheHitRatio,
		"connections_active": s.connActive, "connections_total": s.connTotal,
		"temp_files_size_bytes": s.tempFilesBytes, "replication_lag_seconds": s.replicationLagSec,
	})
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}

	if _, err := c.store.InsertResourceStat(ctx, store.ResourceStat{
		ResourceID: res.ID, Timestamp: time.Now(), Metrics: metricsJSON,
		RiskLevel: level, RiskFactors: factors,
	}); err != nil {
		return err
	}

	c.publish(res, s, level)

	if level == store.RiskHigh || level == store.RiskCritical {
		telemetry.AlertsEscalatedTotal.WithLabelValues(c.Name()).Inc()
		_ = c.notifier.Notify(ctx, notify.Message{
			Title:    fmt.Sprintf("%s risk on %s", level, res.Name),
			Body:     strings.Join(factors, "; "),
			Severity: severityFor(level),
		})
	}
	return nil
}

func toRiskMetrics(s sample) risk.Metrics {
	var m risk.Metrics
	m.CPUPercent = s.cpuPercent
	m.DiskUsagePercent = s.diskUsedPercent
	m.MemoryUsagePercent = s.memoryPercent
	m.TempFilesSizeBytes = s.tempFilesBytes
	m.ReplicationLagSeconds = s.replicationLagSec
	if s.connActive != nil && s.connTotal != nil {
		m.Connections = &risk.Connections{Active: int(*s.connActive), Total: int(*s.connTotal)}
	}
	return m
}

// sample collects the raw metrics for one resource: the cluster's pod
// metrics (full-lifecycle resources with a cluster binding only, normalizing
// Kubernetes quantity strings along the way), then the resource's connector
// stats for every lifecycle mode. Errors from the connector are tolerated for full-lifecycle resources,
// since cluster-sourced metrics alone are still useful during early
// provisioning before connectivity is configured.
func (c *StatsCollector) sample(ctx context.Context, res store.Resource) (sample, error) {
	var s sample

	if res.LifecycleMode == store.LifecycleFull && res.K8sNamespace != nil && res.K8sResourceName != nil {
		pm, err := c.cluster.GetPodMetrics(ctx, cluster.ObjectMeta{Namespace: *res.K8sNamespace, Name: *res.K8sResourceName})
		if err != nil {
			return s, err
		}
		if cpuPct, err := quantityToPercent(pm.CPUUsage); err == nil {
			s.cpuPercent = &cpuPct
		}
		if memBytes, err := parseQuantityBytes(pm.MemoryUsage); err == nil {
			s.memoryBytes = &memBytes
		}
	}

	stats, err := c.ops.RawStats(ctx, res.ID)
	if err != nil {
		if res.LifecycleMode == store.LifecycleFull {
			return s, nil
		}
		return s, err
	}

	if stats.ConnectionsActive > 0 || stats.ConnectionsTotal > 0 {
		active := int64(stats.ConnectionsActive)
		total := int64(stats.ConnectionsTotal)
		s.connActive = &active
		s.connTotal = &total
	}
	if stats.CacheHitRatio > 0 {
		s.cacheHitRatio = &stats.CacheHitRatio
	}
	if stats.UsedMemoryPercent > 0 {
		s.memoryPercent = &stats.UsedMemoryPercent
	}
	if stats.TotalBytes > 0 {
		pct := float64(stats.UsedBytes) / float64(stats.TotalBytes) * 100
		s.diskUsedPercent = &pct
	}
	if stats.ReplicationLagSecs > 0 {
		s.replicationLagSec = &stats.ReplicationLagSecs
	}
	if stats.TempFilesSizeBytes > 0 {
		s.tempFilesBytes = &stats.TempFilesSizeBytes
	}
	return s, nil
}

func (c *StatsCollector) publish(res store.Resource, s sample, level store.RiskLevel) {
	id := strconv.FormatInt(res.ID, 10)
	if s.cpuPercent != nil {
		telemetry.ResourceCPUPercent.WithLabelValues(id, res.Name).Set(*s.cpuPercent)
	}
	if s.memoryBytes != nil {
		telemetry.ResourceMemoryBytes.WithLabelValues(id, res.Name).Set(float64(*s.memoryBytes))
	}
	if s.memoryPercent != nil {
		telemetry.ResourceMemoryPercent.WithLabelValues(id, res.Name).Set(*s.memoryPercent)
	}
	if s.diskUsedPercent != nil {
		telemetry.ResourceDiskUsagePercent.WithLabelValues(id, res.Name).Set(*s.diskUsedPercent)
	}
	if s.cacheHitRatio != nil {
		telemetry.ResourceCacheHitRatio.WithLabelValues(id, res.Name).Set(*s.cacheHitRatio)
	}
	if s.connActive != nil {
		telemetry.ResourceConnections.WithLabelValues(id, res.Name, "active").Set(float64(*s.connActive))
	}
	if s.connTotal != nil {
		telemetry.ResourceConnections.WithLabelValues(id, res.Name, "total").Set(float64(*s.connTotal))
	}
	telemetry.ResourceRiskLevel.WithLabelValues(id, res.Name).Set(riskToNumber(level))
}

func severityFor(level store.RiskLevel) string {
	if level == store.RiskCritical {
		return "error"
	}
	return "warning"
}

func riskToNumber(level store.RiskLevel) float64 {
	switch level {
	case store.RiskLow:
		return 0
	case store.RiskMedium:
		return 1
	case store.RiskHigh:
		return 2
	case store.RiskCritical:
		return 3
	default:
		return 0
	}
}

func prometheusTimer(obs interface {
	Observe(float64)
}) func() {
	start := time.Now()
	return func() { obs.Observe(time.Since(start).Seconds()) }
}

// quantityToPercent interprets a Kubernetes CPU quantity (e.g. "120m" for
// 0.12 core, "2" for 2 cores) as a percent of a single core, the fleetd-local
// convention for CPU risk thresholds.
func quantityToPercent(q string) (float64, error) {
	if strings.HasSuffix(q, "m") {
		milli, err := strconv.ParseFloat(strings.TrimSuffix(q, "m"), 64)
		if err != nil {
			return 0, err
		}
		return milli / 1000 * 100, nil
	}
	cores, err := strconv.ParseFloat(q, 64)
	if err != nil {
		return 0, err
	}
	return cores * 100, nil
}

// parseQuantityBytes parses a Kubernetes memory quantity with binary
// (Ki/Mi/Gi/Ti, base 1024) or decimal (k/M/G/T, base 1000) suffixes into bytes.
func parseQuantityBytes(q string) (int64, error) {
	suffixes := []struct {
		suffix string
		factor float64
	}{
		{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
		{"k", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
	}
	for _, sfx := range suffixes {
		if strings.HasSuffix(q, sfx.suffix) {
			val, err := strconv.ParseFloat(strings.TrimSuffix(q, sfx.suffix), 64)
			if err != nil {
				return 0, err
			}
			return int64(val * sfx.factor), nil
		}
	}
	val, err := strconv.ParseFloat(q, 64)
	if err != nil {
		return 0, err
	}
	return int64(val), nil
}
