package manifest

import (
	"fmt"

	"github.com/wisbric/fleetd/internal/cluster"
)

// FakeTemplater renders a minimal, syntactically-plausible manifest bundle
// from Params without depending on Helm or kustomize. It exists so fleetd
// boots standalone; production deployments supply their own Templater (a
// Helm chart or kustomize overlay render, for example) at the same seam.
type FakeTemplater struct{}

// NewFakeTemplater creates a FakeTemplater.
func NewFakeTemplater() *FakeTemplater { return &FakeTemplater{} }

func (FakeTemplater) Render(p Params) (cluster.ManifestBundle, error) {
	service := fmt.Sprintf("apiVersion: v1\nkind: Service\nmetadata:\n  name: %s\n  namespace: %s\nspec:\n  selector:\n    app: %s\n",
		p.Name, p.Namespace, p.Name)

	workload := fmt.Sprintf(
		"apiVersion: apps/v1\nkind: StatefulSet\nmetadata:\n  name: %s\n  namespace: %s\nspec:\n  replicas: %d\n  serviceName: %s\n  template:\n    spec:\n      containers:\n      - name: %s\n        image: %s\n        envFrom:\n        - secretRef:\n            name: %s\n",
		p.Name, p.Namespace, p.Replicas, p.Name, p.TypePrefix, p.TypePrefix, p.SecretName)

	return cluster.ManifestBundle{ServiceManifest: service, WorkloadManifest: workload}, nil
}
