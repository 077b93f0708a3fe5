package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/wisbric/fleetd/internal/caservice"
	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/errs"
	"github.com/wisbric/fleetd/internal/externalops"
	"github.com/wisbric/fleetd/internal/notify"
	"github.com/wisbric/fleetd/internal/store"
)

// CertRotator renews certificates approaching expiry and pushes the new
// material onto the resource they're bound to.
type CertRotator struct {
	store         *store.Store
	ca            *caservice.Service
	ops           *externalops.ExternalOps
	cluster       cluster.Client
	notifier      notify.Sink
	logger        *slog.Logger
	interval      time.Duration
	thresholdDays int
}

// NewCertRotator creates a CertRotator.
func NewCertRotator(s *store.Store, ca *caservice.Service, ops *externalops.ExternalOps, cl cluster.Client, notifier notify.Sink,
	logger *slog.Logger, interval time.Duration, thresholdDays int) *CertRotator {
	return &CertRotator{store: s, ca: ca, ops: ops, cluster: cl, notifier: notifier, logger: logger,
		interval: interval, thresholdDays: thresholdDays}
}

// retryCluster wraps a cluster write with bounded retries inside ctx's
// deadline, the same policy Provisioner applies to cluster calls.
func retryCluster(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
}

func (c *CertRotator) Name() string { return "cert_rotator" }

func (c *CertRotator) Run(ctx context.Context) {
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

func (c *CertRotator) tick(ctx context.Context) {
	now := time.Now()
	certs, err := c.store.ListCertificatesExpiringBefore(ctx, now.Add(30*24*time.Hour))
	if err != nil {
		c.logger.Error("listing expiring certificates", "error", err)
		return
	}

	for _, cert := range certs {
		// A certificate is handled once inside its own renewal threshold; one
		// that does not auto-renew is only warned about inside thresholdDays.
		daysUntilExpiry := int(cert.ValidUntil.Sub(now).Hours() / 24)
		if daysUntilExpiry > cert.RenewalThresholdDays || (!cert.AutoRenew && daysUntilExpiry > c.thresholdDays) {
			continue
		}
		if err := c.rotate(ctx, cert); err != nil {
			c.logger.Error("rotating certificate", "error", err, "certificate_id", cert.ID)
			c.notifyFailure(ctx, cert, err)
		}
	}
}

func (c *CertRotator) rotate(ctx context.Context, cert store.Certificate) error {
	if !cert.AutoRenew {
		c.notifyExpiring(ctx, cert)
		return nil
	}

	ca, err := c.store.GetCA(ctx, cert.CAID)
	if err != nil {
		return err
	}
	if ca.KeyPEM == nil {
		// Externally-managed CA: fleetd cannot self-sign a renewal, only warn.
		c.notifyExpiring(ctx, cert)
		return nil
	}

	renewed, err := c.ca.Renew(ctx, ca.CertPEM, *ca.KeyPEM, caservice.IssueParams{
		CommonName:  cert.CommonName,
		DNSNames:    cert.SANDNSNames,
		IPAddresses: cert.SANIPAddresses,
		ValidFor:    time.Duration(cert.RenewalThresholdDays) * 24 * time.Hour * 4,
	})
	if err != nil {
		return err
	}

	// For a full-lifecycle resource, the live TLS secret must be updated
	// before the certificate row is committed: if the cluster write fails,
	// the DB must keep pointing at the material that's actually deployed, so
	// the next tick retries the rotation instead of drifting out of sync.
	var res store.Resource
	if cert.ResourceID != nil {
		res, err = c.store.GetResource(ctx, *cert.ResourceID)
		if err != nil {
			return err
		}
		if res.LifecycleMode == store.LifecycleFull {
			if err := c.writeClusterTLSSecret(ctx, res, renewed); err != nil {
				return errs.Wrap(errs.ClusterError, "writing renewed TLS secret to cluster", err)
			}
		}
	}

	updated, err := c.store.UpdateCertificateMaterial(ctx, cert.ID, renewed.CertPEM, renewed.KeyPEM,
		renewed.ValidFrom, renewed.ValidUntil)
	if err != nil {
		// The cluster secret (if any) was already written by this point, so
		// a failure here leaves the deployed secret ahead of the DB row —
		// the next tick re-renews and rewrites both, which is safe since
		// CreateSecret replaces an existing secret's data.
		return err
	}

	// The reload is best effort: the renewed material is already stored, so
	// a failed reload is logged and does not fail the rotation.
	if updated.ResourceID != nil && res.LifecycleMode != store.LifecycleFull {
		if err := c.reloadExternalResourceCertificate(ctx, *updated.ResourceID); err != nil {
			c.logger.Error("reloading resource after certificate rotation", "error", err, "resource_id", *updated.ResourceID)
		}
	}

	var teamID *int64
	if cert.ResourceID != nil {
		teamID = &res.TeamID
	}
	details, _ := json.Marshal(map[string]any{"common_name": cert.CommonName, "valid_until": updated.ValidUntil})
	if err := c.store.AppendAudit(ctx, store.AuditLog{
		Action: "certificate_renewed", ResourceType: "certificate",
		ResourceID: &cert.ID, TeamID: teamID, Details: details,
	}); err != nil {
		c.logger.Error("appending audit log", "error", err, "action", "certificate_renewed")
	}

	c.notifier.Notify(ctx, notify.Message{
		Title:    "certificate renewed",
		Body:     cert.CommonName + " renewed, now valid until " + updated.ValidUntil.Format(time.RFC3339),
		Severity: "info",
	})
	return nil
}

// writeClusterTLSSecret pushes renewed material onto the resource's
// namespace as a kubernetes.io/tls Secret, named after the resource the same
// way Provisioner names its credential secret.
func (c *CertRotator) writeClusterTLSSecret(ctx context.Context, res store.Resource, renewed caservice.Issued) error {
	if res.K8sNamespace == nil || res.K8sResourceName == nil {
		return errs.New(errs.InvalidInput, "full-lifecycle resource has no cluster binding")
	}
	secretName := *res.K8sResourceName + "-tls"
	return retryCluster(ctx, func() error {
		return c.cluster.CreateSecret(ctx, cluster.SecretSpec{
			ObjectMeta: cluster.ObjectMeta{Namespace: *res.K8sNamespace, Name: secretName},
			Type:       "kubernetes.io/tls",
			Data: map[string][]byte{
				"tls.crt": []byte(renewed.CertPEM),
				"tls.key": []byte(renewed.KeyPEM),
			},
		})
	})
}

// reloadExternalResourceCertificate tells the bound resource's connector to
// reload its TLS material after rotation, so the renewed certificate takes
// effect without a restart.
func (c *CertRotator) reloadExternalResourceCertificate(ctx context.Context, resourceID int64) error {
	conn, err := c.ops.ConnectorFor(ctx, resourceID)
	if err != nil {
		return err
	}
	return conn.ReloadConfig(ctx)
}

func (c *CertRotator) notifyExpiring(ctx context.Context, cert store.Certificate) {
	_ = c.notifier.Notify(ctx, notify.Message{
		Title:    "certificate expiring soon",
		Body:     cert.CommonName + " expires " + cert.ValidUntil.Format(time.RFC3339) + " and is not set to auto-renew",
		Severity: "warning",
	})
}

func (c *CertRotator) notifyFailure(ctx context.Context, cert store.Certificate, cause error) {
	_ = c.notifier.Notify(ctx, notify.Message{
		Title:    "certificate rotation failed",
		Body:     cert.CommonName + ": " + cause.Error(),
		Severity: "error",
	})
}
