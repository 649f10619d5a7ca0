package domain

import (
	"context"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Audit artifacts
	SaveAudit(ctx context.Context, tenantID string, audit *Audit) error
	GetAudit(ctx context.Context, tenantID string, auditID string) (*Audit, error)
	ListAudits(ctx context.Context, tenantID string, limit int) ([]*Audit, error)

	// Custom rule configurations (appended to the built-in catalogue)
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgresHost"`
	PostgresPort     int    `koanf:"postgresPort"`
	PostgresUser     string `koanf:"postgresUser"`
	PostgresPassword string `koanf:"postgresPassword"`
	PostgresDB       string `koanf:"postgresDb"`
	PostgresSSLMode  string `koanf:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int `koanf:"maxOpenConns"`
	MaxIdleConns    int `koanf:"maxIdleConns"`
	ConnMaxLifetime int `koanf:"connMaxLifetimeSecs"`
}
