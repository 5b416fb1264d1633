package sqlite

// schema is applied in full on open. Statements are idempotent so an
// existing database is never damaged.
const schema = `
CREATE TABLE IF NOT EXISTS tenant_configs (
	tenant_id   TEXT PRIMARY KEY,
	primary_ep  TEXT NOT NULL,
	backup_ep   TEXT,
	settings    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dlq_entries (
	id               TEXT PRIMARY KEY,
	envelope_id      TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	event_type       TEXT NOT NULL,
	priority         TEXT NOT NULL,
	url              TEXT NOT NULL,
	payload          TEXT,
	error            TEXT NOT NULL,
	attempts         INTEGER NOT NULL,
	last_status_code INTEGER NOT NULL DEFAULT 0,
	replayed_at      TEXT,
	failed_at        TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_failed_at ON dlq_entries (failed_at);
CREATE INDEX IF NOT EXISTS idx_dlq_tenant ON dlq_entries (tenant_id, failed_at);
`
