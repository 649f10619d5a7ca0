// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers. Audit artifacts are
// stored as one JSON document per row with the queryable columns
// (digest, timestamp, breach score) denormalized beside it.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAudit stores a complete audit artifact with tenant isolation.
func (r *SQLRepository) SaveAudit(ctx context.Context, tenantID string, audit *domain.Audit) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	artifact, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("failed to serialize audit: %w", err)
	}

	query := `
		INSERT INTO audits (
			id, tenant_id, digest, timestamp, summary, breach_score, artifact
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		audit.ID, tenantID, audit.Digest, audit.Timestamp,
		audit.Summary, audit.BreachScore, string(artifact),
	)
	return err
}

// GetAudit retrieves an audit by ID with tenant isolation.
func (r *SQLRepository) GetAudit(ctx context.Context, tenantID string, auditID string) (*domain.Audit, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT artifact
		FROM audits
		WHERE tenant_id = ? AND id = ?
	`

	var artifact string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, auditID).Scan(&artifact)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var audit domain.Audit
	if err := json.Unmarshal([]byte(artifact), &audit); err != nil {
		return nil, fmt.Errorf("failed to parse audit artifact %s: %w", auditID, err)
	}
	return &audit, nil
}

// ListAudits retrieves the most recent audits for a tenant, newest first.
func (r *SQLRepository) ListAudits(ctx context.Context, tenantID string, limit int) ([]*domain.Audit, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT artifact
		FROM audits
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []*domain.Audit
	for rows.Next() {
		var artifact string
		if err := rows.Scan(&artifact); err != nil {
			return nil, err
		}
		var audit domain.Audit
		if err := json.Unmarshal([]byte(artifact), &audit); err != nil {
			return nil, fmt.Errorf("failed to parse audit artifact: %w", err)
		}
		audits = append(audits, &audit)
	}

	return audits, rows.Err()
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, standard, clause, description, severity, version, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			standard = excluded.standard,
			clause = excluded.clause,
			description = excluded.description,
			severity = excluded.severity,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Standard, rule.Clause, rule.Description,
		string(rule.Severity), rule.Version, rule.Expression, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule with tenant
// isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, standard, clause, description, severity, version, expression, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var severity string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Standard, &cfg.Clause, &cfg.Description,
		&severity, &cfg.Version, &cfg.Expression, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Severity = domain.Severity(severity)
	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, standard, clause, description, severity, version, expression, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var severity string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Standard, &cfg.Clause, &cfg.Description,
			&severity, &cfg.Version, &cfg.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Severity = domain.Severity(severity)
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes every version of a rule by setting
// enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE rule_configs
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
