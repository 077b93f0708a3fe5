// Package externalops implements ExternalOps, the partial/monitor-only
// counterpart to Provisioner: it never touches a ClusterClient, only the
// ResourceConnector reachable over the network.
package externalops

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/imdario/mergo"
	passwordgen "github.com/sethvargo/go-password/password"

	"github.com/wisbric/fleetd/internal/connector"
	"github.com/wisbric/fleetd/internal/errs"
	"github.com/wisbric/fleetd/internal/rbac"
	"github.com/wisbric/fleetd/internal/risk"
	"github.com/wisbric/fleetd/internal/store"
	"github.com/wisbric/fleetd/internal/vault"
)

// ExternalOps drives the six operations available against
// externally-connected resources.
type ExternalOps struct {
	store    *store.Store
	vault    *vault.Vault
	registry *connector.Registry
	rbac     *rbac.Checker
	logger   *slog.Logger
}

// New creates an ExternalOps.
func New(s *store.Store, v *vault.Vault, reg *connector.Registry, rb *rbac.Checker, logger *slog.Logger) *ExternalOps {
	return &ExternalOps{store: s, vault: v, registry: reg, rbac: rb, logger: logger}
}

// connectorFor builds a ResourceConnector for res using its stored
// connection info and decrypted credentials.
func (o *ExternalOps) connectorFor(ctx context.Context, res store.Resource) (connector.ResourceConnector, error) {
	rtype, err := o.store.GetResourceType(ctx, res.ResourceTypeID)
	if err != nil {
		return nil, err
	}

	var connInfo map[string]any
	if err := json.Unmarshal(res.ConnectionInfo, &connInfo); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "unmarshaling connection info", err)
	}

	var encrypted map[string]string
	if err := json.Unmarshal(res.Credentials, &encrypted); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "unmarshaling credentials", err)
	}
	creds := make(map[string]any, len(encrypted))
	for k, token := range encrypted {
		plain, err := o.vault.DecryptString(token)
		if err != nil {
			return nil, errs.Wrap(errs.VaultError, "decrypting credential "+k, err)
		}
		creds[k] = plain
	}

	return o.registry.New(rtype.Name, connInfo, creds)
}

// validateLifecycleMode rejects operations against a resource ExternalOps
// has no business touching: full-lifecycle resources are Provisioner's
// domain, not a connector's.
func validateLifecycleMode(res store.Resource) error {
	switch res.LifecycleMode {
	case store.LifecyclePartial, store.LifecycleMonitorOnly:
		return nil
	default:
		return errs.New(errs.InvalidInput, "resource is not externally managed")
	}
}

func (o *ExternalOps) resourceAndAccess(ctx context.Context, userID, resourceID int64, need rbac.Level) (store.Resource, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return store.Resource{}, err
	}
	if err := validateLifecycleMode(res); err != nil {
		return store.Resource{}, err
	}
	if err := o.rbac.Check(ctx, userID, res.TeamID, need); err != nil {
		return store.Resource{}, err
	}
	return res, nil
}

// audit records one audit log entry. A nil userID records the action as
// system-initiated (e.g. a scheduled job, not a user request). Failures are
// logged but never surfaced: an audit write must not fail the operation it
// is recording.
func (o *ExternalOps) audit(ctx context.Context, userID *int64, action string, resourceID, teamID int64, details map[string]any) {
	b, _ := json.Marshal(details)
	err := o.store.AppendAudit(ctx, store.AuditLog{
		UserID: userID, Action: action, ResourceType: "resource", ResourceID: &resourceID,
		TeamID: &teamID, Details: b,
	})
	if err != nil {
		o.logger.Error("appending audit log", "error", err, "action", action)
	}
}

// ConnectorFor builds a ResourceConnector for a resource by ID, for callers
// (CertRotator's post-rotation reload) that need connector access without
// going through one of ExternalOps's own operations.
func (o *ExternalOps) ConnectorFor(ctx context.Context, resourceID int64) (connector.ResourceConnector, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return o.connectorFor(ctx, res)
}

// TestConnection verifies connectivity to the resource.
func (o *ExternalOps) TestConnection(ctx context.Context, userID, resourceID int64) error {
	res, err := o.resourceAndAccess(ctx, userID, resourceID, rbac.LevelRead)
	if err != nil {
		return err
	}
	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		return err
	}
	return conn.TestConnection(ctx)
}

// SyncUserResult is one ResourceUser's outcome within a SyncUsers call.
type SyncUserResult struct {
	ResourceUserID int64
	Username       string
	Synced         bool
	Error          string
}

// SyncUsersResult summarizes a batch reconciliation of every ResourceUser
// row bound to a resource.
type SyncUsersResult struct {
	Results []SyncUserResult
	Synced  int
	Failed  int
}

// SyncUsers reconciles every ResourceUser row for resourceID onto the
// connector, authorized against userID's access to the owning team.
func (o *ExternalOps) SyncUsers(ctx context.Context, userID, resourceID int64) (SyncUsersResult, error) {
	res, err := o.resourceAndAccess(ctx, userID, resourceID, rbac.LevelWrite)
	if err != nil {
		return SyncUsersResult{}, err
	}
	if !res.CanModifyUsers {
		return SyncUsersResult{}, errs.New(errs.InvalidInput, "resource does not support user management")
	}
	return o.syncUsers(ctx, res, &userID)
}

// SyncUsersScheduled runs user sync on UserSyncWorker's behalf: the cadence
// itself has no acting user, the same rationale as TriggerScheduledBackup.
func (o *ExternalOps) SyncUsersScheduled(ctx context.Context, resourceID int64) (SyncUsersResult, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return SyncUsersResult{}, err
	}
	if err := validateLifecycleMode(res); err != nil {
		return SyncUsersResult{}, err
	}
	if !res.CanModifyUsers {
		return SyncUsersResult{}, errs.New(errs.InvalidInput, "resource does not support user management")
	}
	return o.syncUsers(ctx, res, nil)
}

func (o *ExternalOps) syncUsers(ctx context.Context, res store.Resource, actingUserID *int64) (SyncUsersResult, error) {
	users, err := o.store.ListResourceUsersForResource(ctx, res.ID)
	if err != nil {
		return SyncUsersResult{}, err
	}

	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		return SyncUsersResult{}, err
	}

	result := SyncUsersResult{Results: make([]SyncUserResult, 0, len(users))}
	for _, ru := range users {
		if err := o.syncOne(ctx, conn, ru); err != nil {
			result.Failed++
			result.Results = append(result.Results, SyncUserResult{ResourceUserID: ru.ID, Username: ru.Username, Error: err.Error()})
			continue
		}
		result.Synced++
		result.Results = append(result.Results, SyncUserResult{ResourceUserID: ru.ID, Username: ru.Username, Synced: true})
	}

	o.audit(ctx, actingUserID, "sync_users", res.ID, res.TeamID, map[string]any{
		"synced": result.Synced, "failed": result.Failed,
	})
	return result, nil
}

// syncOne reconciles one ResourceUser's desired state onto the resource,
// generating a password on first creation when none is supplied.
func (o *ExternalOps) syncOne(ctx context.Context, conn connector.ResourceConnector, ru store.ResourceUser) error {
	if err := o.store.MarkResourceUserSyncing(ctx, ru.ID); err != nil {
		return err
	}

	var password string
	var err error
	if ru.EncryptedPassword != "" {
		password, err = o.vault.DecryptString(ru.EncryptedPassword)
		if err != nil {
			_ = o.store.MarkResourceUserError(ctx, ru.ID, err.Error())
			return errs.Wrap(errs.VaultError, "decrypting resource user password", err)
		}
	} else {
		password, err = passwordgen.Generate(32, 8, 4, false, false)
		if err != nil {
			_ = o.store.MarkResourceUserError(ctx, ru.ID, err.Error())
			return errs.Wrap(errs.InvalidInput, "generating resource user password", err)
		}
	}

	exists, err := conn.UserExists(ctx, ru.Username)
	if err != nil {
		_ = o.store.MarkResourceUserError(ctx, ru.ID, err.Error())
		return err
	}
	if exists {
		err = conn.UpdateUser(ctx, ru.Username, password, ru.Roles)
	} else {
		err = conn.CreateUser(ctx, ru.Username, password, ru.Roles)
	}
	if err != nil {
		_ = o.store.MarkResourceUserError(ctx, ru.ID, err.Error())
		return err
	}

	return o.store.MarkResourceUserSynced(ctx, ru.ID, time.Now())
}

// TriggerBackup asks the connector to perform a backup and records the job.
func (o *ExternalOps) TriggerBackup(ctx context.Context, userID, resourceID int64, backupType store.BackupType) (store.BackupJob, error) {
	res, err := o.resourceAndAccess(ctx, userID, resourceID, rbac.LevelWrite)
	if err != nil {
		return store.BackupJob{}, err
	}
	return o.triggerBackup(ctx, res, backupType)
}

// TriggerScheduledBackup runs a backup on BackupScheduler's behalf: the
// cadence itself was authorized when the schedule was configured, so there
// is no acting user to check against RBAC here.
func (o *ExternalOps) TriggerScheduledBackup(ctx context.Context, resourceID int64, backupType store.BackupType) (store.BackupJob, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return store.BackupJob{}, err
	}
	if err := validateLifecycleMode(res); err != nil {
		return store.BackupJob{}, err
	}
	return o.triggerBackup(ctx, res, backupType)
}

func (o *ExternalOps) triggerBackup(ctx context.Context, res store.Resource, backupType store.BackupType) (store.BackupJob, error) {
	if !res.CanBackup {
		return store.BackupJob{}, errs.New(errs.InvalidInput, "resource does not support backups")
	}

	now := time.Now()
	job, err := o.store.InsertBackupJob(ctx, store.BackupJob{ResourceID: res.ID, Type: backupType, Status: store.JobRunning, StartedAt: &now})
	if err != nil {
		return store.BackupJob{}, err
	}

	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		failed, ferr := o.store.FailBackupJob(ctx, job.ID, err.Error(), time.Now())
		if ferr != nil {
			o.logger.Error("failing backup job", "error", ferr)
		}
		return failed, err
	}

	location, size, err := conn.TriggerBackup(ctx, string(backupType))
	if err != nil {
		failed, ferr := o.store.FailBackupJob(ctx, job.ID, err.Error(), time.Now())
		if ferr != nil {
			o.logger.Error("failing backup job", "error", ferr)
		}
		return failed, err
	}

	return o.store.CompleteBackupJob(ctx, job.ID, location, size, time.Now())
}

// RestoreBackup asks the connector to restore from a prior backup location.
func (o *ExternalOps) RestoreBackup(ctx context.Context, userID, resourceID int64, location string) (store.BackupJob, error) {
	res, err := o.resourceAndAccess(ctx, userID, resourceID, rbac.LevelWrite)
	if err != nil {
		return store.BackupJob{}, err
	}
	if !res.CanBackup {
		return store.BackupJob{}, errs.New(errs.InvalidInput, "resource does not support backups")
	}

	now := time.Now()
	job, err := o.store.InsertBackupJob(ctx, store.BackupJob{ResourceID: res.ID, Type: store.BackupRestore, Status: store.JobRunning, StartedAt: &now})
	if err != nil {
		return store.BackupJob{}, err
	}

	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		return o.store.FailBackupJob(ctx, job.ID, err.Error(), time.Now())
	}

	if err := conn.RestoreBackup(ctx, location); err != nil {
		return o.store.FailBackupJob(ctx, job.ID, err.Error(), time.Now())
	}
	return o.store.CompleteBackupJob(ctx, job.ID, location, 0, time.Now())
}

// rawStats fetches a fresh sample from the connector without evaluating
// risk or persisting it. StatsCollector calls this directly when it needs
// to merge a connector reading with cluster-sourced metrics into one
// ResourceStat row that it persists itself.
func (o *ExternalOps) rawStats(ctx context.Context, res store.Resource) (connector.Stats, error) {
	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		return connector.Stats{}, err
	}
	return conn.CollectStats(ctx)
}

// RawStats is the exported form of rawStats, for StatsCollector.
func (o *ExternalOps) RawStats(ctx context.Context, resourceID int64) (connector.Stats, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return connector.Stats{}, err
	}
	return o.rawStats(ctx, res)
}

// CollectStats pulls a fresh statistics sample from the connector, evaluates
// its risk level, persists a ResourceStat row, and raises an audit entry
// when the result is high or critical. This is the standalone entry point
// for a resource whose only telemetry source is its connector; a
// full-lifecycle resource's combined cluster+connector sample is owned by
// StatsCollector instead, via RawStats.
func (o *ExternalOps) CollectStats(ctx context.Context, resourceID int64) (connector.Stats, error) {
	res, err := o.store.GetResource(ctx, resourceID)
	if err != nil {
		return connector.Stats{}, err
	}
	if err := validateLifecycleMode(res); err != nil {
		return connector.Stats{}, err
	}

	stats, err := o.rawStats(ctx, res)
	if err != nil {
		return connector.Stats{}, err
	}

	level, factors := risk.Evaluate(connectorRiskMetrics(stats))

	metricsJSON, err := json.Marshal(stats)
	if err != nil {
		return connector.Stats{}, errs.Wrap(errs.InvalidInput, "marshaling metrics", err)
	}
	if _, err := o.store.InsertResourceStat(ctx, store.ResourceStat{
		ResourceID: res.ID, Timestamp: time.Now(), Metrics: metricsJSON,
		RiskLevel: level, RiskFactors: factors,
	}); err != nil {
		o.logger.Error("persisting resource stat", "error", err, "resource_id", res.ID)
	}

	if level == store.RiskHigh || level == store.RiskCritical {
		o.audit(ctx, nil, "collect_stats", res.ID, res.TeamID, map[string]any{
			"risk_level": level, "factors": factors,
		})
	}

	return stats, nil
}

// connectorRiskMetrics maps a connector's raw sample onto the subset of
// fields risk.Evaluate reasons about.
func connectorRiskMetrics(s connector.Stats) risk.Metrics {
	var m risk.Metrics
	if s.ConnectionsTotal > 0 {
		m.Connections = &risk.Connections{Active: s.ConnectionsActive, Total: s.ConnectionsTotal}
	}
	if s.UsedMemoryPercent > 0 {
		v := s.UsedMemoryPercent
		m.MemoryUsagePercent = &v
	}
	if s.TotalBytes > 0 {
		pct := float64(s.UsedBytes) / float64(s.TotalBytes) * 100
		m.DiskUsagePercent = &pct
	}
	if s.ReplicationLagSecs > 0 {
		v := s.ReplicationLagSecs
		m.ReplicationLagSeconds = &v
	}
	if s.TempFilesSizeBytes > 0 {
		v := s.TempFilesSizeBytes
		m.TempFilesSizeBytes = &v
	}
	return m
}

// UpdateConfig merges config into the resource's stored config (the same
// deep-merge-with-override Provisioner.UpdateConfig applies) and pushes the
// result to the connector. The stored config is kept as the source of truth
// even though partial/monitor-only resources are not fleetd-templated: it
// is what the next CollectStats/TestConnection call and the admin surface
// read back.
func (o *ExternalOps) UpdateConfig(ctx context.Context, userID, resourceID int64, config map[string]any) error {
	res, err := o.resourceAndAccess(ctx, userID, resourceID, rbac.LevelWrite)
	if err != nil {
		return err
	}
	if !res.CanModifyConfig {
		return errs.New(errs.InvalidInput, "resource does not support config modification")
	}

	var existing map[string]any
	_ = json.Unmarshal(res.Config, &existing)
	if existing == nil {
		existing = map[string]any{}
	}
	if err := mergo.Merge(&existing, config, mergo.WithOverride); err != nil {
		return errs.Wrap(errs.InvalidInput, "merging config", err)
	}
	mergedJSON, err := json.Marshal(existing)
	if err != nil {
		return errs.Wrap(errs.InvalidInput, "marshaling merged config", err)
	}

	conn, err := o.connectorFor(ctx, res)
	if err != nil {
		return err
	}
	if err := conn.UpdateConfig(ctx, config); err != nil {
		return err
	}
	if err := conn.ReloadConfig(ctx); err != nil {
		return err
	}

	if _, err := o.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Config: mergedJSON}); err != nil {
		return err
	}
	o.audit(ctx, &userID, "update_config", res.ID, res.TeamID, map[string]any{"config": config})
	return nil
}
