package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaAudits = `
CREATE TABLE IF NOT EXISTS audits (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    digest TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    summary TEXT NOT NULL,
    breach_score REAL NOT NULL DEFAULT 0,
    artifact TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audits_tenant ON audits(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audits_digest ON audits(tenant_id, digest);
CREATE INDEX IF NOT EXISTS idx_audits_timestamp ON audits(tenant_id, timestamp);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    standard TEXT NOT NULL,
    clause TEXT,
    description TEXT,
    severity TEXT NOT NULL,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAudits,
		schemaRuleConfigs,
	}
}
