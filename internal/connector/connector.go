// Package connector defines ResourceConnector, the capability set
// ExternalOps and the workers use to reach partial/monitor-only resources,
// and ConnectorRegistry, the typed factory lookup from a resource type name
// to a connector instance. No concrete PostgreSQL/MariaDB/Redis/Valkey/
// Ceph/SAN connector lives here — those are explicitly out of scope; only
// the capability surface and an in-memory fake for tests.
package connector

import (
	"context"

	"github.com/wisbric/fleetd/internal/errs"
)

// Stats is the normalized statistics sample a connector returns. Only the
// fields meaningful to the underlying resource type are populated.
type Stats struct {
	ConnectionsActive   int
	ConnectionsTotal    int
	DatabaseSizeBytes   int64
	CacheHitRatio       float64
	UsedMemoryBytes     int64
	UsedMemoryPercent   float64
	UsedBytes           int64
	AvailableBytes      int64
	TotalBytes          int64
	ReplicationLagSecs  float64
	TempFilesSizeBytes  int64
}

// ResourceConnector is the capability set for one connection to a
// partial/monitor-only resource instance.
type ResourceConnector interface {
	TestConnection(ctx context.Context) error

	UserExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, username, password string, roles []string) error
	UpdateUser(ctx context.Context, username, password string, roles []string) error
	DeleteUser(ctx context.Context, username string) error

	UpdateConfig(ctx context.Context, config map[string]any) error
	ReloadConfig(ctx context.Context) error

	TriggerBackup(ctx context.Context, backupType string) (location string, sizeBytes int64, err error)
	RestoreBackup(ctx context.Context, location string) error

	CollectStats(ctx context.Context) (Stats, error)
}

// Unsupported is embedded by connector implementations that don't support
// every capability, so a missing method returns a uniform
// errs.Unsupported instead of each stub having to repeat the boilerplate.
type Unsupported struct{ Name string }

func (u Unsupported) unsupported(op string) error {
	return errs.New(errs.Unsupported, u.Name+" does not support "+op)
}

func (u Unsupported) TestConnection(ctx context.Context) error { return u.unsupported("test_connection") }
func (u Unsupported) UserExists(ctx context.Context, username string) (bool, error) {
	return false, u.unsupported("user_exists")
}
func (u Unsupported) CreateUser(ctx context.Context, username, password string, roles []string) error {
	return u.unsupported("create_user")
}
func (u Unsupported) UpdateUser(ctx context.Context, username, password string, roles []string) error {
	return u.unsupported("update_user")
}
func (u Unsupported) DeleteUser(ctx context.Context, username string) error {
	return u.unsupported("delete_user")
}
func (u Unsupported) UpdateConfig(ctx context.Context, config map[string]any) error {
	return u.unsupported("update_config")
}
func (u Unsupported) ReloadConfig(ctx context.Context) error { return u.unsupported("reload_config") }
func (u Unsupported) TriggerBackup(ctx context.Context, backupType string) (string, int64, error) {
	return "", 0, u.unsupported("trigger_backup")
}
func (u Unsupported) RestoreBackup(ctx context.Context, location string) error {
	return u.unsupported("restore_backup")
}
func (u Unsupported) CollectStats(ctx context.Context) (Stats, error) {
	return Stats{}, u.unsupported("collect_stats")
}

// Factory builds a ResourceConnector for one resource instance given its
// connection info and decrypted credentials.
type Factory func(connectionInfo, credentials map[string]any) (ResourceConnector, error)

// Registry maps a resource type name to the Factory that builds connectors
// for it. Valkey is registered under the same factory as Redis — it is
// wire-compatible with the Redis protocol, so ExternalOps never needs to
// special-case it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds a resource type name to a Factory.
func (r *Registry) Register(resourceTypeName string, f Factory) {
	r.factories[resourceTypeName] = f
}

// New builds a ResourceConnector for resourceTypeName.
func (r *Registry) New(resourceTypeName string, connectionInfo, credentials map[string]any) (ResourceConnector, error) {
	f, ok := r.factories[resourceTypeName]
	if !ok {
		return nil, errs.New(errs.ConnectorErr, "no connector registered for resource type "+resourceTypeName)
	}
	conn, err := f(connectionInfo, credentials)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectorErr, "constructing connector", err)
	}
	return conn, nil
}
