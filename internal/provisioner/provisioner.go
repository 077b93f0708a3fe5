// Package provisioner implements the full-lifecycle state machine for
// Kubernetes-provisioned resources: provision, deprovision, scale, and
// update-config, with failure/rollback semantics.
package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/imdario/mergo"
	passwordgen "github.com/sethvargo/go-password/password"

	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/errs"
	"github.com/wisbric/fleetd/internal/manifest"
	"github.com/wisbric/fleetd/internal/rbac"
	"github.com/wisbric/fleetd/internal/store"
	"github.com/wisbric/fleetd/internal/vault"
)

// defaultPorts maps a resource type name to the port its endpoint resolves on.
var defaultPorts = map[string]int{
	"db-postgresql": 5432,
	"db-mariadb":    3306,
	"db-redis":      6379,
	"db-valkey":     6379,
}

const (
	readinessPollInterval = 5 * time.Second
	readinessTimeout      = 5 * time.Minute
	deletionPollInterval  = 2 * time.Second
	deletionTimeout       = 60 * time.Second
)

// Provisioner drives the full-lifecycle state machine.
type Provisioner struct {
	store     *store.Store
	vault     *vault.Vault
	cluster   cluster.Client
	templater manifest.Templater
	rbac      *rbac.Checker
	logger    *slog.Logger

	readinessTimeout      time.Duration
	readinessPollInterval time.Duration
}

// Option configures a Provisioner beyond its required dependencies.
type Option func(*Provisioner)

// WithReadinessTiming overrides the poll interval and timeout Provision/Scale
// use while waiting for a workload to report ready. Tests use this to shrink
// a 5-minute timeout down to milliseconds instead of actually waiting.
func WithReadinessTiming(timeout, interval time.Duration) Option {
	return func(p *Provisioner) {
		p.readinessTimeout = timeout
		p.readinessPollInterval = interval
	}
}

// New creates a Provisioner.
func New(s *store.Store, v *vault.Vault, cl cluster.Client, tpl manifest.Templater, rb *rbac.Checker, logger *slog.Logger, opts ...Option) *Provisioner {
	p := &Provisioner{store: s, vault: v, cluster: cl, templater: tpl, rbac: rb, logger: logger,
		readinessTimeout: readinessTimeout, readinessPollInterval: readinessPollInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// retryCluster wraps a ClusterClient/Store call with bounded retries inside
// ctx's deadline, per the suspension-point timeout guidance.
func retryCluster(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
}

// Provision runs the 11-step full-lifecycle provisioning algorithm.
func (p *Provisioner) Provision(ctx context.Context, userID, resourceID int64) (store.Resource, error) {
	res, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		return store.Resource{}, err
	}
	if err := p.rbac.Check(ctx, userID, res.TeamID, rbac.LevelWrite); err != nil {
		return store.Resource{}, err
	}

	rtype, err := p.store.GetResourceType(ctx, res.ResourceTypeID)
	if err != nil {
		return store.Resource{}, err
	}
	if !rtype.SupportsFullLifecycle {
		return store.Resource{}, errs.New(errs.InvalidInput, "resource type does not support full lifecycle provisioning")
	}
	port, ok := defaultPorts[rtype.Name]
	if !ok {
		return store.Resource{}, errs.New(errs.InvalidInput, "resource type is not provisionable: "+rtype.Name)
	}

	provisioning := store.StatusProvisioning
	if _, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &provisioning}); err != nil {
		return store.Resource{}, err
	}

	namespace := fmt.Sprintf("team-%d", res.TeamID)
	if err := retryCluster(ctx, func() error { return p.cluster.CreateNamespace(ctx, namespace) }); err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, errs.Wrap(errs.ClusterError, "creating namespace", err))
	}

	creds, err := generateCredentials(rtype.Name)
	if err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, err)
	}

	secretName := res.Name + "-secret"
	secretData := map[string][]byte{}
	for k, v := range creds {
		secretData[rtype.Name+"_"+k] = []byte(v)
	}
	if err := retryCluster(ctx, func() error {
		return p.cluster.CreateSecret(ctx, cluster.SecretSpec{
			ObjectMeta: cluster.ObjectMeta{Namespace: namespace, Name: secretName},
			Type:       "Opaque",
			Data:       secretData,
		})
	}); err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, errs.Wrap(errs.ClusterError, "creating secret", err))
	}

	var config map[string]any
	_ = json.Unmarshal(res.Config, &config)

	credentialKeys := make([]string, 0, len(creds))
	for k := range creds {
		credentialKeys = append(credentialKeys, rtype.Name+"_"+k)
	}

	bundle, err := p.templater.Render(manifest.Params{
		Namespace:       namespace,
		Name:            res.Name,
		SecretName:      secretName,
		Replicas:        1,
		TypePrefix:      rtype.Name,
		CredentialKeys:  credentialKeys,
		ConfigOverrides: config,
	})
	if err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, errs.Wrap(errs.InvalidInput, "rendering manifest", err))
	}

	if err := retryCluster(ctx, func() error {
		return p.cluster.CreateService(ctx, cluster.ObjectMeta{Namespace: namespace, Name: res.Name}, bundle.ServiceManifest)
	}); err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, errs.Wrap(errs.ClusterError, "creating service", err))
	}
	if err := retryCluster(ctx, func() error {
		return p.cluster.CreateStatefulWorkload(ctx, cluster.ObjectMeta{Namespace: namespace, Name: res.Name}, bundle.WorkloadManifest, 1)
	}); err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, errs.Wrap(errs.ClusterError, "applying stateful workload manifest", err))
	}

	meta := cluster.ObjectMeta{Namespace: namespace, Name: res.Name}
	if err := p.waitReady(ctx, meta, 1, p.readinessTimeout, p.readinessPollInterval); err != nil {
		return p.fail(ctx, res, store.ProvisionCreate, err)
	}

	endpoint := fmt.Sprintf("%s.%s.svc.cluster.local", res.Name, namespace)
	connInfo, _ := json.Marshal(map[string]any{"host": endpoint, "port": port})

	encryptedCreds := map[string]string{}
	for k, v := range creds {
		token, err := p.vault.EncryptString(v)
		if err != nil {
			return p.fail(ctx, res, store.ProvisionCreate, err)
		}
		encryptedCreds[k] = token
	}
	credsJSON, _ := json.Marshal(encryptedCreds)

	status := store.StatusActive
	updated, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{
		Status:          &status,
		K8sNamespace:    &namespace,
		K8sResourceName: &res.Name,
		K8sResourceType: strPtr(rtype.Name),
		ConnectionInfo:  connInfo,
		Credentials:     credsJSON,
	})
	if err != nil {
		return store.Resource{}, err
	}

	p.recordJob(ctx, res.ID, store.ProvisionCreate, store.JobCompleted, nil)
	p.audit(ctx, userID, "provision", res.ID, res.TeamID, map[string]any{"namespace": namespace})

	return updated, nil
}

func strPtr(s string) *string { return &s }

// fail transitions the resource to StatusError, best-effort rolls back the
// namespace, records a failed job, and returns the original error — rollback
// failures are logged but never mask it.
func (p *Provisioner) fail(ctx context.Context, res store.Resource, jobType store.ProvisioningType, cause error) (store.Resource, error) {
	status := store.StatusError
	if _, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &status}); err != nil {
		p.logger.Error("updating resource to error status", "error", err, "resource_id", res.ID)
	}

	namespace := fmt.Sprintf("team-%d", res.TeamID)
	rollbackCtx, cancel := context.WithTimeout(context.Background(), deletionTimeout)
	defer cancel()
	if err := p.cluster.DeleteNamespace(rollbackCtx, namespace); err != nil {
		p.logger.Error("rollback: deleting namespace", "error", err, "namespace", namespace)
	}

	msg := cause.Error()
	p.recordJob(ctx, res.ID, jobType, store.JobFailed, &msg)
	return store.Resource{}, cause
}

func (p *Provisioner) recordJob(ctx context.Context, resourceID int64, jobType store.ProvisioningType, status store.JobStatus, errMsg *string) {
	now := time.Now()
	_, err := p.store.InsertProvisioningJob(ctx, store.ProvisioningJob{
		ResourceID: resourceID, Type: jobType, Status: status, Error: errMsg,
		StartedAt: &now, FinishedAt: &now,
	})
	if err != nil {
		p.logger.Error("recording provisioning job", "error", err)
	}
}

func (p *Provisioner) audit(ctx context.Context, userID int64, action string, resourceID, teamID int64, details map[string]any) {
	b, _ := json.Marshal(details)
	err := p.store.AppendAudit(ctx, store.AuditLog{
		UserID: &userID, Action: action, ResourceType: "resource", ResourceID: &resourceID,
		TeamID: &teamID, Details: b,
	})
	if err != nil {
		p.logger.Error("appending audit log", "error", err, "action", action)
	}
}

// waitReady polls GetStatefulWorkload until ReadyReplicas >= desired or timeout elapses.
func (p *Provisioner) waitReady(ctx context.Context, meta cluster.ObjectMeta, desired int, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := p.cluster.GetStatefulWorkload(ctx, meta)
		if err == nil && status.ReadyReplicas >= desired {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ClusterError, "timed out waiting for workload readiness")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// generateCredentials builds the per-type credential set, using
// sethvargo/go-password for secure random generation (32 chars,
// alphanumeric + symbols) exactly as the design calls for.
func generateCredentials(resourceTypeName string) (map[string]string, error) {
	gen := func() (string, error) {
		return passwordgen.Generate(32, 8, 4, false, false)
	}

	switch resourceTypeName {
	case "db-postgresql":
		pw, err := gen()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, "generating password", err)
		}
		return map[string]string{
			"username": "app_" + shortID(),
			"password": pw,
			"database": "app_" + shortID(),
		}, nil
	case "db-mariadb":
		pw, err := gen()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, "generating password", err)
		}
		rootPw, err := gen()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, "generating root password", err)
		}
		return map[string]string{
			"username":      "app_" + shortID(),
			"password":      pw,
			"root_password": rootPw,
			"database":      "app_" + shortID(),
		}, nil
	case "db-redis", "db-valkey":
		pw, err := gen()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidInput, "generating password", err)
		}
		return map[string]string{"password": pw}, nil
	default:
		return nil, errs.New(errs.InvalidInput, "unknown resource type for credential generation: "+resourceTypeName)
	}
}

func shortID() string {
	return uuid.New().String()[:8]
}

// Deprovision deletes the cluster namespace and marks the resource deleted.
func (p *Provisioner) Deprovision(ctx context.Context, userID, resourceID int64) error {
	res, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if err := p.rbac.Check(ctx, userID, res.TeamID, rbac.LevelWrite); err != nil {
		return err
	}
	if res.K8sNamespace == nil {
		return errs.New(errs.InvalidInput, "resource has no cluster binding to deprovision")
	}

	if err := retryCluster(ctx, func() error { return p.cluster.DeleteNamespace(ctx, *res.K8sNamespace) }); err != nil {
		p.recordJob(ctx, res.ID, store.ProvisionDeprovision, store.JobFailed, strPtr(err.Error()))
		return errs.Wrap(errs.ClusterError, "deleting namespace", err)
	}

	deadline := time.Now().Add(deletionTimeout)
	for {
		if err := p.cluster.GetNamespace(ctx, *res.K8sNamespace); errs.Is(err, errs.NotFound) {
			break
		}
		if time.Now().After(deadline) {
			break // best-effort: proceed with soft-delete regardless
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(deletionPollInterval):
		}
	}

	if err := p.store.SoftDeleteResource(ctx, res.ID); err != nil {
		return err
	}
	p.recordJob(ctx, res.ID, store.ProvisionDeprovision, store.JobCompleted, nil)
	p.audit(ctx, userID, "deprovision", res.ID, res.TeamID, nil)
	return nil
}

// Scale changes a resource's replica count.
func (p *Provisioner) Scale(ctx context.Context, userID, resourceID int64, replicas int) (store.Resource, error) {
	res, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		return store.Resource{}, err
	}
	if err := p.rbac.Check(ctx, userID, res.TeamID, rbac.LevelWrite); err != nil {
		return store.Resource{}, err
	}
	if !res.CanScale {
		return store.Resource{}, errs.New(errs.InvalidInput, "resource does not support scaling")
	}
	if res.K8sNamespace == nil || res.K8sResourceName == nil {
		return store.Resource{}, errs.New(errs.InvalidInput, "resource has no cluster binding")
	}

	updating := store.StatusUpdating
	if _, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &updating}); err != nil {
		return store.Resource{}, err
	}

	meta := cluster.ObjectMeta{Namespace: *res.K8sNamespace, Name: *res.K8sResourceName}
	if err := retryCluster(ctx, func() error { return p.cluster.ScaleStatefulWorkload(ctx, meta, replicas) }); err != nil {
		status := store.StatusError
		_, _ = p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &status})
		return store.Resource{}, errs.Wrap(errs.ClusterError, "scaling workload", err)
	}

	if err := p.waitReady(ctx, meta, replicas, p.readinessTimeout, p.readinessPollInterval); err != nil {
		status := store.StatusError
		_, _ = p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &status})
		return store.Resource{}, err
	}

	var config map[string]any
	_ = json.Unmarshal(res.Config, &config)
	if config == nil {
		config = map[string]any{}
	}
	config["replicas"] = replicas
	configJSON, _ := json.Marshal(config)

	active := store.StatusActive
	updated, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &active, Config: configJSON})
	if err != nil {
		return store.Resource{}, err
	}
	p.recordJob(ctx, res.ID, store.ProvisionScale, store.JobCompleted, nil)
	p.audit(ctx, userID, "scale", res.ID, res.TeamID, map[string]any{"replicas": replicas})
	return updated, nil
}

// UpdateConfig deep-merges newConfig onto the resource's existing config.
// It does NOT re-render or re-apply the cluster manifest: reconciliation of
// the live workload against the merged config is a deliberately deferred
// concern, left to a future resync operation.
func (p *Provisioner) UpdateConfig(ctx context.Context, userID, resourceID int64, newConfig map[string]any) (store.Resource, error) {
	res, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		return store.Resource{}, err
	}
	if err := p.rbac.Check(ctx, userID, res.TeamID, rbac.LevelWrite); err != nil {
		return store.Resource{}, err
	}
	if !res.CanModifyConfig {
		return store.Resource{}, errs.New(errs.InvalidInput, "resource does not support config modification")
	}

	var existing map[string]any
	_ = json.Unmarshal(res.Config, &existing)
	if existing == nil {
		existing = map[string]any{}
	}
	if err := mergo.Merge(&existing, newConfig, mergo.WithOverride); err != nil {
		return store.Resource{}, errs.Wrap(errs.InvalidInput, "merging config", err)
	}

	updating := store.StatusUpdating
	if _, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &updating}); err != nil {
		return store.Resource{}, err
	}

	mergedJSON, err := json.Marshal(existing)
	if err != nil {
		return store.Resource{}, errs.Wrap(errs.InvalidInput, "marshaling merged config", err)
	}

	active := store.StatusActive
	updated, err := p.store.UpdateResourceFields(ctx, res.ID, store.ResourceUpdate{Status: &active, Config: mergedJSON})
	if err != nil {
		return store.Resource{}, err
	}
	p.recordJob(ctx, res.ID, store.ProvisionUpdateConfig, store.JobCompleted, nil)
	p.audit(ctx, userID, "update_config", res.ID, res.TeamID, map[string]any{"config": newConfig})
	return updated, nil
}
