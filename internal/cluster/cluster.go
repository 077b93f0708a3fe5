// Package cluster defines ClusterClient, the narrow capability the
// Provisioner and StatsCollector need from the Kubernetes substrate. No
// concrete implementation lives here — wiring a real k8s.io/client-go
// client is explicitly out of scope; production deployments supply their
// own implementation of this interface.
package cluster

import (
	"context"
	"time"
)

// ObjectMeta identifies a namespaced cluster object.
type ObjectMeta struct {
	Namespace string
	Name      string
}

// SecretSpec describes a Secret to create.
type SecretSpec struct {
	ObjectMeta
	Type string // "Opaque" or "kubernetes.io/tls"
	Data map[string][]byte
}

// ManifestBundle is an opaque value produced by a ManifestTemplater and
// consumed only by CreateStatefulWorkload/CreateService — the Provisioner
// never inspects its contents.
type ManifestBundle struct {
	ServiceManifest string
	WorkloadManifest string
}

// StatefulWorkloadStatus reports the observed state of a stateful workload.
type StatefulWorkloadStatus struct {
	DesiredReplicas int
	ReadyReplicas   int
}

// ServiceStatus reports the observed state of a Service.
type ServiceStatus struct {
	ClusterIP string
}

// PodMetrics holds a pod's resource usage sample, in the raw suffixed
// quantity form the Kubernetes Metrics API returns (e.g. "512Mi", "120m").
type PodMetrics struct {
	CPUUsage    string
	MemoryUsage string
	SampleTime  time.Time
}

// Client is the capability set the core depends on. Every operation is
// idempotent where noted so callers may retry safely.
type Client interface {
	// CreateNamespace is idempotent: creating an existing namespace succeeds.
	CreateNamespace(ctx context.Context, name string) error
	GetNamespace(ctx context.Context, name string) error // returns NotFound if absent

	// DeleteNamespace is idempotent: deleting an absent namespace succeeds.
	DeleteNamespace(ctx context.Context, name string) error

	// CreateSecret is an idempotent create-or-update: creating an existing
	// secret replaces its type and data.
	CreateSecret(ctx context.Context, spec SecretSpec) error

	// CreateStatefulWorkload applies the rendered workload manifest (a
	// StatefulSet or equivalent) at the desired replica count. It does not
	// wait for readiness; callers poll GetStatefulWorkload for that.
	CreateStatefulWorkload(ctx context.Context, meta ObjectMeta, manifest string, replicas int) error

	GetStatefulWorkload(ctx context.Context, meta ObjectMeta) (StatefulWorkloadStatus, error)
	ScaleStatefulWorkload(ctx context.Context, meta ObjectMeta, replicas int) error

	CreateService(ctx context.Context, meta ObjectMeta, manifest string) error
	GetService(ctx context.Context, meta ObjectMeta) (ServiceStatus, error)

	GetPodMetrics(ctx context.Context, meta ObjectMeta) (PodMetrics, error)
}
