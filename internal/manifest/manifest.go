// Package manifest defines ManifestTemplater, the capability that renders a
// resource type's cluster manifests. No concrete templating engine is
// implemented here — that is an external collaborator, consistent with
// "Templating: consumed via a ManifestTemplater capability."
package manifest

import "github.com/wisbric/fleetd/internal/cluster"

// Params carries everything a templater needs to render one resource's
// manifest bundle.
type Params struct {
	Namespace        string
	Name             string
	SecretName       string
	Replicas         int
	StorageClass     string
	StorageSizeGi    int
	TypePrefix       string // the resource type name, e.g. "db-postgresql", "db-redis"
	CredentialKeys   []string
	ConfigOverrides  map[string]any
}

// Templater renders a ManifestBundle for a resource.
type Templater interface {
	Render(params Params) (cluster.ManifestBundle, error)
}
