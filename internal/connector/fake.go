package connector

import (
	"context"
	"sync"
)

// FakeConnector is an in-memory ResourceConnector covering every
// capability, used across Provisioner/ExternalOps/worker tests.
type FakeConnector struct {
	mu    sync.Mutex
	users map[string]fakeUser
	stats Stats

	TestConnectionErr error
	ReloadCalled      bool
	BackupLocation    string
	BackupSizeBytes   int64
}

type fakeUser struct {
	password string
	roles    []string
}

// NewFakeConnector creates a FakeConnector with the given pre-seeded stats.
func NewFakeConnector(stats Stats) *FakeConnector {
	return &FakeConnector{users: map[string]fakeUser{}, stats: stats}
}

func (c *FakeConnector) TestConnection(ctx context.Context) error { return c.TestConnectionErr }

func (c *FakeConnector) UserExists(ctx context.Context, username string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.users[username]
	return ok, nil
}

func (c *FakeConnector) CreateUser(ctx context.Context, username, password string, roles []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[username] = fakeUser{password: password, roles: roles}
	return nil
}

func (c *FakeConnector) UpdateUser(ctx context.Context, username, password string, roles []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[username] = fakeUser{password: password, roles: roles}
	return nil
}

func (c *FakeConnector) DeleteUser(ctx context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, username)
	return nil
}

func (c *FakeConnector) UpdateConfig(ctx context.Context, config map[string]any) error { return nil }

func (c *FakeConnector) ReloadConfig(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReloadCalled = true
	return nil
}

func (c *FakeConnector) TriggerBackup(ctx context.Context, backupType string) (string, int64, error) {
	if c.BackupLocation != "" {
		return c.BackupLocation, c.BackupSizeBytes, nil
	}
	return "fake://backup/1", 1024, nil
}

func (c *FakeConnector) RestoreBackup(ctx context.Context, location string) error { return nil }

func (c *FakeConnector) CollectStats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats, nil
}
