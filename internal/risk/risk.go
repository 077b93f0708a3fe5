// Package risk implements the shared risk-evaluation function used by
// ExternalOps and StatsCollector: a pure mapping from a metrics sample to a
// severity level and the list of factors that produced it.
package risk

import (
	"fmt"

	"github.com/wisbric/fleetd/internal/store"
)

const giB = 1 << 30

var severityRank = map[store.RiskLevel]int{
	store.RiskLow:      0,
	store.RiskMedium:   1,
	store.RiskHigh:     2,
	store.RiskCritical: 3,
}

// Connections describes active/total connection counts.
type Connections struct {
	Active int
	Total  int
}

// Metrics is the subset of a stats sample the evaluator reasons about. Any
// field left at its zero value is treated as "not observed" and skipped —
// callers populate only what they actually collected.
type Metrics struct {
	DiskUsagePercent      *float64
	MemoryUsagePercent    *float64
	CPUPercent            *float64
	Connections           *Connections
	TempFilesSizeBytes    *int64
	ReplicationLagSeconds *float64
}

// Evaluate computes the overall severity and the human-readable factors
// that produced it. Every rule is evaluated independently and the result is
// the maximum severity observed — there is no early-exit gating, so adding
// a second medium-severity finding never changes the outcome, which keeps
// the result monotone in the inputs.
func Evaluate(m Metrics) (store.RiskLevel, []string) {
	level := store.RiskLow
	var factors []string

	raise := func(lvl store.RiskLevel, factor string) {
		if severityRank[lvl] > severityRank[level] {
			level = lvl
		}
		factors = append(factors, factor)
	}

	if m.DiskUsagePercent != nil {
		switch {
		case *m.DiskUsagePercent > 95:
			raise(store.RiskCritical, fmt.Sprintf("Disk usage critical: %.1f%%", *m.DiskUsagePercent))
		case *m.DiskUsagePercent > 85:
			raise(store.RiskHigh, fmt.Sprintf("Disk usage high: %.1f%%", *m.DiskUsagePercent))
		}
	}

	if m.MemoryUsagePercent != nil {
		switch {
		case *m.MemoryUsagePercent > 90:
			raise(store.RiskHigh, fmt.Sprintf("Memory usage high: %.1f%%", *m.MemoryUsagePercent))
		case *m.MemoryUsagePercent > 85:
			raise(store.RiskMedium, fmt.Sprintf("Memory usage moderate: %.1f%%", *m.MemoryUsagePercent))
		}
	}

	if m.Connections != nil && m.Connections.Total > 0 {
		pct := float64(m.Connections.Active) / float64(m.Connections.Total)
		if pct > 0.80 {
			raise(store.RiskMedium, fmt.Sprintf("Connection saturation: %.0f%%", pct*100))
		}
	}

	if m.TempFilesSizeBytes != nil && *m.TempFilesSizeBytes > giB {
		raise(store.RiskMedium, fmt.Sprintf("Temporary space usage: %.1fGB", float64(*m.TempFilesSizeBytes)/giB))
	}

	if m.ReplicationLagSeconds != nil && *m.ReplicationLagSeconds > 3600 {
		raise(store.RiskMedium, fmt.Sprintf("Replication lag: %.0fs", *m.ReplicationLagSeconds))
	}

	if m.CPUPercent != nil && *m.CPUPercent > 85 {
		raise(store.RiskMedium, fmt.Sprintf("CPU usage high: %.1f%%", *m.CPUPercent))
	}

	return level, factors
}
