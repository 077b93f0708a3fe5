package workers

import (
	"context"
	"testing"

	"github.com/wisbric/fleetd/internal/caservice"
	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/errs"
	"github.com/wisbric/fleetd/internal/store"
)

func strPtr(s string) *string { return &s }

func TestWriteClusterTLSSecretPushesRenewedMaterial(t *testing.T) {
	cl := cluster.NewFake()
	c := &CertRotator{cluster: cl}

	res := store.Resource{K8sNamespace: strPtr("team-1"), K8sResourceName: strPtr("pg-main")}
	renewed := caservice.Issued{CertPEM: "new-cert", KeyPEM: "new-key"}

	if err := c.writeClusterTLSSecret(context.Background(), res, renewed); err != nil {
		t.Fatalf("writeClusterTLSSecret: %v", err)
	}

	secret, err := cl.GetSecret(cluster.ObjectMeta{Namespace: "team-1", Name: "pg-main-tls"})
	if err != nil {
		t.Fatalf("expected the TLS secret to have been created: %v", err)
	}
	if string(secret.Data["tls.crt"]) != "new-cert" || string(secret.Data["tls.key"]) != "new-key" {
		t.Fatalf("unexpected secret data: %+v", secret.Data)
	}
	if secret.Type != "kubernetes.io/tls" {
		t.Fatalf("secret type = %q, want kubernetes.io/tls", secret.Type)
	}
}

func TestWriteClusterTLSSecretRejectsUnboundResource(t *testing.T) {
	c := &CertRotator{cluster: cluster.NewFake()}
	err := c.writeClusterTLSSecret(context.Background(), store.Resource{}, caservice.Issued{})
	if !errs.Is(err, errs.InvalidInput) {
		t.Fatalf("expected errs.InvalidInput for a resource with no cluster binding, got %v", err)
	}
}
