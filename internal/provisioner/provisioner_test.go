package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/wisbric/fleetd/internal/cluster"
	"github.com/wisbric/fleetd/internal/errs"
)

func TestWaitReadySucceedsOnceWorkloadReportsReady(t *testing.T) {
	cl := cluster.NewFake()
	meta := cluster.ObjectMeta{Namespace: "team-1", Name: "pg-main"}
	cl.SetWorkloadStatus(meta, cluster.StatefulWorkloadStatus{DesiredReplicas: 1, ReadyReplicas: 1})

	p := &Provisioner{cluster: cl}
	if err := p.waitReady(context.Background(), meta, 1, time.Second, 5*time.Millisecond); err != nil {
		t.Fatalf("waitReady: %v", err)
	}
}

func TestWaitReadyTimesOutWhileWorkloadStaysUnready(t *testing.T) {
	cl := cluster.NewFake()
	meta := cluster.ObjectMeta{Namespace: "team-1", Name: "pg-main"}
	cl.SetWorkloadStatus(meta, cluster.StatefulWorkloadStatus{DesiredReplicas: 1, ReadyReplicas: 0})

	p := &Provisioner{cluster: cl}
	err := p.waitReady(context.Background(), meta, 1, 20*time.Millisecond, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected waitReady to time out against a workload that never becomes ready")
	}
	if !errs.Is(err, errs.ClusterError) {
		t.Fatalf("expected errs.ClusterError, got %v", err)
	}
}

func TestWaitReadyTreatsUnknownWorkloadAsNotReady(t *testing.T) {
	cl := cluster.NewFake()
	meta := cluster.ObjectMeta{Namespace: "team-1", Name: "never-applied"}

	p := &Provisioner{cluster: cl}
	err := p.waitReady(context.Background(), meta, 1, 20*time.Millisecond, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected waitReady to time out when the workload was never applied")
	}
}

func TestGenerateCredentialsPostgreSQL(t *testing.T) {
	creds, err := generateCredentials("db-postgresql")
	if err != nil {
		t.Fatalf("generateCredentials: %v", err)
	}
	for _, key := range []string{"username", "password", "database"} {
		if creds[key] == "" {
			t.Fatalf("expected non-empty %s", key)
		}
	}
	if len(creds["password"]) != 32 {
		t.Fatalf("expected 32-char password, got %d", len(creds["password"]))
	}
}

func TestGenerateCredentialsMariaDBIncludesRootPassword(t *testing.T) {
	creds, err := generateCredentials("db-mariadb")
	if err != nil {
		t.Fatalf("generateCredentials: %v", err)
	}
	if creds["root_password"] == "" || creds["password"] == "" {
		t.Fatalf("expected both root_password and password to be set")
	}
	if creds["root_password"] == creds["password"] {
		t.Fatalf("expected distinct root and app passwords")
	}
}

func TestGenerateCredentialsRedisAndValkeyShareShape(t *testing.T) {
	for _, name := range []string{"db-redis", "db-valkey"} {
		creds, err := generateCredentials(name)
		if err != nil {
			t.Fatalf("generateCredentials(%s): %v", name, err)
		}
		if len(creds) != 1 || creds["password"] == "" {
			t.Fatalf("expected only a password for %s, got %v", name, creds)
		}
	}
}

func TestGenerateCredentialsUnknownType(t *testing.T) {
	if _, err := generateCredentials("db-unknown"); err == nil {
		t.Fatal("expected error for unknown resource type")
	}
}
