package risk

import (
	"testing"

	"github.com/wisbric/fleetd/internal/store"
)

func f(v float64) *float64 { return &v }
func i(v int64) *int64     { return &v }

func TestEvaluateCephDiskCritical(t *testing.T) {
	level, factors := Evaluate(Metrics{DiskUsagePercent: f(96.0)})
	if level != store.RiskCritical {
		t.Fatalf("got %s, want critical", level)
	}
	if len(factors) != 1 {
		t.Fatalf("got %d factors, want 1: %v", len(factors), factors)
	}
}

func TestEvaluateLowWhenNothingObserved(t *testing.T) {
	level, factors := Evaluate(Metrics{})
	if level != store.RiskLow {
		t.Fatalf("got %s, want low", level)
	}
	if len(factors) != 0 {
		t.Fatalf("expected no factors, got %v", factors)
	}
}

func TestEvaluateMultipleMediumFindingsStayMedium(t *testing.T) {
	level, factors := Evaluate(Metrics{
		MemoryUsagePercent:    f(88),
		CPUPercent:            f(90),
		ReplicationLagSeconds: f(4000),
	})
	if level != store.RiskMedium {
		t.Fatalf("got %s, want medium", level)
	}
	if len(factors) != 3 {
		t.Fatalf("got %d factors, want 3: %v", len(factors), factors)
	}
}

func TestEvaluateTakesMaxAcrossRules(t *testing.T) {
	level, _ := Evaluate(Metrics{
		MemoryUsagePercent: f(88), // medium
		DiskUsagePercent:   f(97), // critical
	})
	if level != store.RiskCritical {
		t.Fatalf("got %s, want critical (max of medium and critical)", level)
	}
}

func TestEvaluateConnectionSaturation(t *testing.T) {
	level, factors := Evaluate(Metrics{
		Connections: &Connections{Active: 85, Total: 100},
	})
	if level != store.RiskMedium {
		t.Fatalf("got %s, want medium", level)
	}
	if len(factors) != 1 {
		t.Fatalf("got %d factors, want 1: %v", len(factors), factors)
	}
}

func TestEvaluateTempFilesThresholdInGiB(t *testing.T) {
	level, _ := Evaluate(Metrics{TempFilesSizeBytes: i(2 * giB)})
	if level != store.RiskMedium {
		t.Fatalf("got %s, want medium", level)
	}

	levelBelow, factorsBelow := Evaluate(Metrics{TempFilesSizeBytes: i(giB / 2)})
	if levelBelow != store.RiskLow || len(factorsBelow) != 0 {
		t.Fatalf("expected no finding below threshold, got %s %v", levelBelow, factorsBelow)
	}
}
