package workers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wisbric/fleetd/internal/errs"
)

// fixedCron reports every call to Next as due at a fixed offset from its
// argument, regardless of wall-clock time — enough to drive schedule.due
// deterministically without waiting on real cron cadences.
type fixedCron struct{ offset time.Duration }

func (f fixedCron) Next(t time.Time) time.Time { return t.Add(f.offset) }

func TestScheduleDueFiresImmediatelyOnFirstObservation(t *testing.T) {
	s := &schedule{cronSchedule: fixedCron{offset: time.Hour}, enabled: true}
	now := time.Now()
	if !s.due(now) {
		t.Fatal("expected a never-run schedule to be due on first observation")
	}
	if s.lastRun != now {
		t.Fatalf("lastRun = %v, want %v", s.lastRun, now)
	}
}

func TestScheduleDueWaitsForNextFireTime(t *testing.T) {
	now := time.Now()
	s := &schedule{cronSchedule: fixedCron{offset: time.Hour}, enabled: true, lastRun: now}
	if s.due(now.Add(time.Minute)) {
		t.Fatal("expected schedule not due before its next cron fire time")
	}
	if s.due(now.Add(2 * time.Hour)) != true {
		t.Fatal("expected schedule due once its next cron fire time has passed")
	}
}

func TestScheduleDueNeverFiresWhenDisabled(t *testing.T) {
	s := &schedule{cronSchedule: fixedCron{offset: 0}, enabled: false}
	if s.due(time.Now()) {
		t.Fatal("expected a disabled schedule never to be due")
	}
}

func TestScheduleRecordResultDisablesAfterRepeatedFailures(t *testing.T) {
	s := &schedule{enabled: true}
	failure := errs.New(errs.ConnectorErr, "boom")
	now := time.Now()

	for i := 0; i < maxScheduleRetries-1; i++ {
		if run := s.recordResult(now, failure); run {
			t.Fatal("retention must never run on a failed trigger")
		}
		if !s.enabled {
			t.Fatalf("schedule disabled after only %d failures, want %d", i+1, maxScheduleRetries)
		}
	}
	s.recordResult(now, failure)
	if s.enabled {
		t.Fatalf("expected schedule to disable itself after %d consecutive failures", maxScheduleRetries)
	}
}

func TestScheduleRecordResultResetsRetriesOnSuccess(t *testing.T) {
	s := &schedule{enabled: true, retries: maxScheduleRetries - 1}
	s.recordResult(time.Now(), nil)
	if s.retries != 0 {
		t.Fatalf("retries = %d, want 0 after a successful trigger", s.retries)
	}
	if !s.enabled {
		t.Fatal("a successful trigger must not disable the schedule")
	}
}

func TestScheduleRecordResultRunsRetentionOnceADay(t *testing.T) {
	s := &schedule{enabled: true}
	now := time.Now()

	if !s.recordResult(now, nil) {
		t.Fatal("expected retention to run on the first successful trigger")
	}
	if s.recordResult(now.Add(time.Hour), nil) {
		t.Fatal("expected retention to be skipped within the same day")
	}
	if !s.recordResult(now.Add(25*time.Hour), nil) {
		t.Fatal("expected retention to run again after retentionInterval has elapsed")
	}
}

func TestLocalBackendDeleteIsIdempotentAgainstMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.tar.gz")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("seeding backup file: %v", err)
	}

	backend := LocalBackend{Dir: dir}
	if err := backend.Delete(t.Context(), path); err != nil {
		t.Fatalf("deleting existing backup: %v", err)
	}
	if err := backend.Delete(t.Context(), path); err != nil {
		t.Fatalf("deleting an already-removed backup must be a no-op, got: %v", err)
	}
}
