package store

import (
	"encoding/json"
	"time"
)

// Team is a unit of resource ownership. Exactly one team is flagged global.
type Team struct {
	ID        int64
	Name      string
	IsGlobal  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// User is an identity principal. Authentication itself is an external
// collaborator; fleetd only records identities and their team roles.
type User struct {
	ID        int64
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TeamRole is a member's role on a team.
type TeamRole string

const (
	RoleAdmin  TeamRole = "admin"
	RoleMember TeamRole = "member"
	RoleViewer TeamRole = "viewer"
)

// TeamMembership binds a user to a team with a role.
type TeamMembership struct {
	ID        int64
	UserID    int64
	TeamID    int64
	Role      TeamRole
	CreatedAt time.Time
}

// ResourceType names a kind of managed infrastructure resource and the
// capabilities that kind supports.
type ResourceType struct {
	ID                       int64
	Name                     string // e.g. "db-postgresql"
	Category                 string // "database" | "storage"
	SupportsFullLifecycle    bool
	SupportsUserManagement   bool
	SupportsBackup           bool
	SupportsPartialLifecycle bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// LifecycleMode describes how a Resource's real-world state is managed.
type LifecycleMode string

const (
	LifecycleFull        LifecycleMode = "full"
	LifecyclePartial     LifecycleMode = "partial"
	LifecycleMonitorOnly LifecycleMode = "monitor_only"
)

// Status is a Resource's provisioning/operational state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusUpdating     Status = "updating"
	StatusPaused       Status = "paused"
	StatusError        Status = "error"
	StatusDeleted      Status = "deleted"
)

// Resource is the central entity: a managed database or storage system.
type Resource struct {
	ID             int64
	TeamID         int64
	ResourceTypeID int64
	Name           string
	LifecycleMode  LifecycleMode
	Status         Status

	CanModifyConfig bool
	CanModifyUsers  bool
	CanBackup       bool
	CanScale        bool

	K8sNamespace    *string
	K8sResourceName *string
	K8sResourceType *string

	ConnectionInfo json.RawMessage
	Credentials    json.RawMessage
	Config         json.RawMessage

	TLSCAID   *int64
	TLSCertID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// SyncStatus is a ResourceUser's identity-sync state.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// ResourceUser is an identity managed on a Resource (a database role, a
// storage-system account).
type ResourceUser struct {
	ID               int64
	ResourceID       int64
	Username         string
	EncryptedPassword string // CredentialVault token
	Roles            []string
	SyncStatus       SyncStatus
	LastSyncedAt     *time.Time
	SyncError        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// CAType classifies a CertificateAuthority.
type CAType string

const (
	CARoot         CAType = "root"
	CAIntermediate CAType = "intermediate"
	CASelfSigned   CAType = "self_signed"
)

// CertificateAuthority is a trust root or intermediate used to issue
// Certificates for managed resources.
type CertificateAuthority struct {
	ID             int64
	Name           string
	Type           CAType
	CommonName     string
	Organization   string
	CertPEM        string
	KeyPEM         *string // nil for externally-managed CAs
	IsManaged      bool
	ValidFrom      time.Time
	ValidUntil     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Certificate is a leaf certificate, optionally bound to a Resource.
type Certificate struct {
	ID                    int64
	CAID                  int64
	ResourceID            *int64
	CertPEM               string
	KeyPEM                string
	CommonName            string
	SANDNSNames           []string
	SANIPAddresses        []string
	ValidFrom             time.Time
	ValidUntil            time.Time
	AutoRenew             bool
	RenewalThresholdDays  int
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// BackupType classifies a BackupJob.
type BackupType string

const (
	BackupFull         BackupType = "full"
	BackupIncremental  BackupType = "incremental"
	BackupDifferential BackupType = "differential"
	BackupRestore      BackupType = "restore"
)

// JobStatus is shared by BackupJob and ProvisioningJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobRunning    JobStatus = "running"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
	JobRolledBack JobStatus = "rolled_back"
)

// BackupJob records one backup or restore attempt for a Resource.
type BackupJob struct {
	ID         int64
	ResourceID int64
	Type       BackupType
	Status     JobStatus
	Location   *string
	SizeBytes  *int64
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      *string
	CreatedAt  time.Time
}

// ProvisioningType classifies a ProvisioningJob.
type ProvisioningType string

const (
	ProvisionCreate       ProvisioningType = "provision"
	ProvisionDeprovision  ProvisioningType = "deprovision"
	ProvisionScale        ProvisioningType = "scale"
	ProvisionUpdateConfig ProvisioningType = "update_config"
)

// ProvisioningJob records one lifecycle operation attempt on a Resource.
type ProvisioningJob struct {
	ID         int64
	ResourceID int64
	Type       ProvisioningType
	Status     JobStatus
	Logs       []string
	Error      *string
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// RiskLevel is the severity computed by the risk evaluator.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ResourceStat is one point-in-time statistics sample for a Resource.
// Append-only.
type ResourceStat struct {
	ID          int64
	ResourceID  int64
	Timestamp   time.Time
	Metrics     json.RawMessage
	RiskLevel   RiskLevel
	RiskFactors []string
}

// AuditLog is an append-only record of a mutating action. Never deleted.
type AuditLog struct {
	ID           int64
	UserID       *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	TeamID       *int64
	Details      json.RawMessage
	Timestamp    time.Time
}
