package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Per-resource gauges, named exactly per the stable metrics surface.
var (
	ResourceCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_cpu_percent", Help: "CPU usage percent of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_memory_bytes", Help: "Memory usage in bytes of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceMemoryPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_memory_percent", Help: "Memory usage percent of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceDiskUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_disk_usage_percent", Help: "Disk usage percent of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceNetworkInBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_network_in_bytes", Help: "Inbound network bytes of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceNetworkOutBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_network_out_bytes", Help: "Outbound network bytes of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_connections", Help: "Connection count of a managed resource by type."},
		[]string{"resource_id", "resource_name", "connection_type"},
	)
	ResourceCacheHitRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_cache_hit_ratio", Help: "Cache hit ratio of a managed resource."},
		[]string{"resource_id", "resource_name"},
	)
	ResourceRiskLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "resource_risk_level", Help: "Numeric risk level of a managed resource (0=low .. 3=critical)."},
		[]string{"resource_id", "resource_name"},
	)
	StatsCollectionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stats_collection_errors_total", Help: "Total stats collection errors by resource type."},
		[]string{"resource_type"},
	)
	StatsCollectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stats_collection_duration_seconds",
			Help:    "Stats collection duration in seconds by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	AlertsEscalatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleetd_alerts_escalated_total", Help: "Total number of risk-driven alerts escalated by worker."},
		[]string{"worker"},
	)
)

// All returns all fleetd-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ResourceCPUPercent,
		ResourceMemoryBytes,
		ResourceMemoryPercent,
		ResourceDiskUsagePercent,
		ResourceNetworkInBytes,
		ResourceNetworkOutBytes,
		ResourceConnections,
		ResourceCacheHitRatio,
		ResourceRiskLevel,
		StatsCollectionErrorsTotal,
		StatsCollectionDuration,
		AlertsEscalatedTotal,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors plus
// any additional service-specific collectors passed as arguments.
func NewRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
