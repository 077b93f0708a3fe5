package connector

// RegisterDefaults binds every resource type fleetd knows about to a
// FakeConnector factory. It exists so fleetd boots standalone without a
// real driver for each managed engine; production deployments register
// their own PostgreSQL/MariaDB/Redis/Valkey/Ceph/SAN factories over these
// with Registry.Register before starting the worker supervisor.
func RegisterDefaults(r *Registry) {
	fake := func(connectionInfo, credentials map[string]any) (ResourceConnector, error) {
		return NewFakeConnector(Stats{}), nil
	}

	for _, name := range []string{
		"db-postgresql",
		"db-mariadb",
		"db-redis",
		"db-valkey",
		"storage-ceph",
		"storage-san",
	} {
		r.Register(name, fake)
	}
}
