package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/fleetd/internal/externalops"
	"github.com/wisbric/fleetd/internal/store"
)

// UserSyncWorker reconciles pending/error ResourceUser rows onto their
// resource's connector in small batches.
type UserSyncWorker struct {
	store     *store.Store
	ops       *externalops.ExternalOps
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewUserSyncWorker creates a UserSyncWorker.
func NewUserSyncWorker(s *store.Store, ops *externalops.ExternalOps, logger *slog.Logger, interval time.Duration, batchSize int) *UserSyncWorker {
	return &UserSyncWorker{store: s, ops: ops, logger: logger, interval: interval, batchSize: batchSize}
}

func (w *UserSyncWorker) Name() string { return "user_sync" }

func (w *UserSyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *UserSyncWorker) tick(ctx context.Context) {
	pending, err := w.store.ListResourceUsersPendingSync(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("listing pending resource users", "error", err)
		return
	}

	// SyncUsers reconciles every ResourceUser row for a resource in one
	// call, so a resource with several pending rows is only synced once per
	// tick regardless of how many of its rows came back pending.
	seen := make(map[int64]bool, len(pending))
	for _, ru := range pending {
		if seen[ru.ResourceID] {
			continue
		}
		seen[ru.ResourceID] = true
		if _, err := w.ops.SyncUsersScheduled(ctx, ru.ResourceID); err != nil {
			w.logger.Error("syncing resource users", "error", err, "resource_id", ru.ResourceID)
		}
	}
}
