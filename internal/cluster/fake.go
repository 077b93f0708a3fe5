package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/wisbric/fleetd/internal/errs"
)

// Fake is an in-memory Client for tests. A workload created through
// CreateStatefulWorkload reports zero ready replicas until a test seeds its
// status with SetWorkloadStatus, and a workload never created reports
// NotFound, letting tests exercise the Provisioner's polling loop.
type Fake struct {
	mu         sync.Mutex
	namespaces map[string]bool
	secrets    map[string]SecretSpec
	workloads  map[string]StatefulWorkloadStatus
	services   map[string]ServiceStatus
	podMetrics map[string]PodMetrics
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		namespaces: map[string]bool{},
		secrets:    map[string]SecretSpec{},
		workloads:  map[string]StatefulWorkloadStatus{},
		services:   map[string]ServiceStatus{},
		podMetrics: map[string]PodMetrics{},
	}
}

func key(m ObjectMeta) string { return m.Namespace + "/" + m.Name }

func (f *Fake) CreateNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[name] = true
	return nil
}

func (f *Fake) GetNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.namespaces[name] {
		return errs.New(errs.NotFound, "namespace not found")
	}
	return nil
}

func (f *Fake) DeleteNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, name)
	return nil
}

func (f *Fake) CreateSecret(ctx context.Context, spec SecretSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[key(spec.ObjectMeta)] = spec
	return nil
}

// GetSecret returns a previously created secret, used by tests to assert
// what was pushed to the cluster.
func (f *Fake) GetSecret(meta ObjectMeta) (SecretSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec, ok := f.secrets[key(meta)]
	if !ok {
		return SecretSpec{}, errs.New(errs.NotFound, "secret not found")
	}
	return spec, nil
}

// CreateStatefulWorkload records the workload as applied with replicas
// desired but none ready yet, mirroring a real StatefulSet's rollout: pods
// take time to become ready after the manifest is applied. Tests that want
// an immediately-ready workload call SetWorkloadStatus afterward.
func (f *Fake) CreateStatefulWorkload(ctx context.Context, meta ObjectMeta, manifest string, replicas int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workloads[key(meta)] = StatefulWorkloadStatus{DesiredReplicas: replicas, ReadyReplicas: 0}
	return nil
}

// SetWorkloadStatus seeds a workload's status, used by tests to exercise
// readiness polling.
func (f *Fake) SetWorkloadStatus(meta ObjectMeta, status StatefulWorkloadStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workloads[key(meta)] = status
}

// GetStatefulWorkload reports NotFound for a workload that was never
// created, rather than pretending it is ready — a caller's readiness poll
// must observe an actual CreateStatefulWorkload/SetWorkloadStatus call.
func (f *Fake) GetStatefulWorkload(ctx context.Context, meta ObjectMeta) (StatefulWorkloadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.workloads[key(meta)]
	if !ok {
		return StatefulWorkloadStatus{}, errs.New(errs.NotFound, "stateful workload not found")
	}
	return st, nil
}

func (f *Fake) ScaleStatefulWorkload(ctx context.Context, meta ObjectMeta, replicas int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workloads[key(meta)] = StatefulWorkloadStatus{DesiredReplicas: replicas, ReadyReplicas: replicas}
	return nil
}

func (f *Fake) CreateService(ctx context.Context, meta ObjectMeta, manifest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[key(meta)] = ServiceStatus{ClusterIP: "10.0.0.1"}
	return nil
}

func (f *Fake) GetService(ctx context.Context, meta ObjectMeta) (ServiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.services[key(meta)]
	if !ok {
		return ServiceStatus{}, errs.New(errs.NotFound, "service not found")
	}
	return st, nil
}

// SetPodMetrics seeds a pod's metrics sample for StatsCollector tests.
func (f *Fake) SetPodMetrics(meta ObjectMeta, m PodMetrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.podMetrics[key(meta)] = m
}

func (f *Fake) GetPodMetrics(ctx context.Context, meta ObjectMeta) (PodMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.podMetrics[key(meta)]
	if !ok {
		return PodMetrics{}, errs.New(errs.NotFound, "pod metrics not found")
	}
	m.SampleTime = time.Now()
	return m, nil
}
