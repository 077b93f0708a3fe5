package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"

	"github.com/wisbric/fleetd/internal/externalops"
	"github.com/wisbric/fleetd/internal/store"
)

// Backend deletes a retired backup artifact, letting retention cleanup stay
// agnostic to where backups actually live.
type Backend interface {
	Delete(ctx context.Context, location string) error
}

// LocalBackend deletes backup files from a local path or NFS mount — both
// are just a filesystem path from fleetd's point of view.
type LocalBackend struct{ Dir string }

func (b LocalBackend) Delete(ctx context.Context, location string) error {
	err := os.Remove(location)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// S3Backend deletes backup objects from an S3 bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend builds an S3Backend using the default AWS credential chain,
// pinned to region.
func NewS3Backend(ctx context.Context, bucket, region string) (*S3Backend, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &S3Backend{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (b *S3Backend) Delete(ctx context.Context, location string) error {
	key := strings.TrimPrefix(location, "s3://"+b.bucket+"/")
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}

// maxScheduleRetries is how many consecutive trigger failures a schedule
// tolerates before it stops firing — a persistently broken connector
// shouldn't spin forever re-failing a backup every cycle.
const maxScheduleRetries = 3

// retentionInterval bounds how often enforceRetention runs per resource:
// retention is a once-a-day cleanup, not something to redo on every
// successful backup tick.
const retentionInterval = 24 * time.Hour

// schedule is a resource's parsed backup cadence.
type schedule struct {
	cronSchedule     cron.Schedule
	backupType       store.BackupType
	lastRun          time.Time
	lastRetentionRun time.Time
	retries          int
	enabled          bool
}

// due reports whether the schedule should fire at now, advancing lastRun as
// a side effect so the next call computes from the new baseline. A disabled
// schedule is never due.
func (s *schedule) due(now time.Time) bool {
	if !s.enabled {
		return false
	}
	if s.lastRun.IsZero() {
		s.lastRun = now // due immediately on first observation
		return true
	}
	if now.Before(s.cronSchedule.Next(s.lastRun)) {
		return false
	}
	s.lastRun = now
	return true
}

// recordResult updates retry/enabled bookkeeping after a trigger attempt and
// reports whether retention should run this cycle. A schedule disables
// itself after maxScheduleRetries consecutive failures rather than retrying
// a persistently broken connector forever; a later success resets the
// counter but does not re-enable a schedule that already gave up.
func (s *schedule) recordResult(now time.Time, triggerErr error) (runRetention bool) {
	if triggerErr != nil {
		s.retries++
		if s.retries >= maxScheduleRetries {
			s.enabled = false
		}
		return false
	}
	s.retries = 0
	if s.lastRetentionRun.IsZero() || now.Sub(s.lastRetentionRun) >= retentionInterval {
		s.lastRetentionRun = now
		return true
	}
	return false
}

// BackupScheduler triggers backups on their configured cadence and enforces
// retention afterward. Resources without an explicit "backup_schedule" in
// their config run daily, spread across the hour by resource ID to avoid a
// thundering herd at the top of the hour.
type BackupScheduler struct {
	store         *store.Store
	ops           *externalops.ExternalOps
	backend       Backend
	logger        *slog.Logger
	retentionDays int

	mu        sync.Mutex
	schedules map[int64]*schedule
}

const defaultDailySchedule = "0 2 * * *"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewBackupScheduler creates a BackupScheduler.
func NewBackupScheduler(s *store.Store, ops *externalops.ExternalOps, backend Backend, logger *slog.Logger, retentionDays int) *BackupScheduler {
	return &BackupScheduler{store: s, ops: ops, backend: backend, logger: logger,
		retentionDays: retentionDays, schedules: map[int64]*schedule{}}
}

func (b *BackupScheduler) Name() string { return "backup_scheduler" }

// Run polls every 5 minutes; a schedule whose cron fire time has passed
// since its last run fires on the next poll.
func (b *BackupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *BackupScheduler) tick(ctx context.Context) {
	resources, err := b.store.QueryResources(ctx, store.ResourceFilter{Status: store.StatusActive}, 1000, 0)
	if err != nil {
		b.logger.Error("querying resources for backup scheduling", "error", err)
		return
	}

	now := time.Now()
	for _, res := range resources {
		if !res.CanBackup {
			continue
		}
		sched := b.scheduleFor(res)

		b.mu.Lock()
		due := sched.due(now)
		b.mu.Unlock()
		if !due {
			continue
		}

		_, triggerErr := b.ops.TriggerScheduledBackup(ctx, res.ID, sched.backupType)

		b.mu.Lock()
		runRetention := sched.recordResult(now, triggerErr)
		disabled := !sched.enabled
		retries := sched.retries
		b.mu.Unlock()

		if triggerErr != nil {
			b.logger.Error("triggering scheduled backup", "error", triggerErr, "resource_id", res.ID)
			if disabled {
				b.logger.Warn("disabling backup schedule after repeated failures", "resource_id", res.ID, "retries", retries)
			}
			continue
		}

		if runRetention {
			b.enforceRetention(ctx, res.ID)
		}
	}
}

// scheduleFor resolves (and caches) a resource's cron schedule from its
// config, falling back to a daily backup spread across the hour by ID.
func (b *BackupScheduler) scheduleFor(res store.Resource) *schedule {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.schedules[res.ID]; ok {
		return s
	}

	var config struct {
		BackupSchedule string `json:"backup_schedule"`
	}
	_ = json.Unmarshal(res.Config, &config)

	expr := config.BackupSchedule
	if expr == "" {
		expr = minuteSpread(res.ID)
	}

	cs, err := cronParser.Parse(expr)
	if err != nil {
		b.logger.Warn("invalid backup schedule, falling back to daily", "resource_id", res.ID, "schedule", expr, "error", err)
		cs, _ = cronParser.Parse(defaultDailySchedule)
	}

	s := &schedule{cronSchedule: cs, backupType: store.BackupFull, enabled: true}
	b.schedules[res.ID] = s
	return s
}

// minuteSpread returns a daily 02:xx cron expression, with the minute
// derived from the resource ID so every resource's default backup doesn't
// fire in the same 60-second window.
func minuteSpread(resourceID int64) string {
	return fmt.Sprintf("%d 2 * * *", resourceID%60)
}

// enforceRetention deletes the backend artifact of every finished backup job
// older than retentionDays. The job record itself is left in place as a
// historical log — only the artifact is reclaimed.
func (b *BackupScheduler) enforceRetention(ctx context.Context, resourceID int64) {
	jobs, err := b.store.ListBackupJobsForResource(ctx, resourceID)
	if err != nil {
		b.logger.Error("listing backup jobs for retention", "error", err, "resource_id", resourceID)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.retentionDays)
	for _, job := range jobs {
		if job.FinishedAt == nil || job.FinishedAt.After(cutoff) || job.Location == nil {
			continue
		}
		if err := b.backend.Delete(ctx, *job.Location); err != nil {
			b.logger.Error("deleting retired backup artifact", "error", err, "backup_job_id", job.ID)
		}
	}
}
