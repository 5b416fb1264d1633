// Package sqlite implements the store contract on SQLite, suitable for
// single-node deployments and tests that need durability.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/registry"
	spstore "github.com/signalpost/signalpost/store"
)

// compile-time interface check
var _ spstore.Store = (*Store)(nil)

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path and applies
// the schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("signalpost/sqlite: open: %w", err)
	}
	// modernc.org/sqlite connections do not share in-memory databases
	// and serialize writes anyway.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and applies the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("signalpost/sqlite: apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Times are stored as fixed-width RFC 3339 text: readable with the
// sqlite3 CLI, and lexicographic order matches chronological order so
// failed_at comparisons work as plain string comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// ==================== Tenant configurations ====================

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*registry.TenantConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, primary_ep, backup_ep, settings, created_at, updated_at
		FROM tenant_configs WHERE tenant_id = ?`, tenantID)
	cfg, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, signalpost.ErrTenantNotFound
		}
		return nil, fmt.Errorf("signalpost/sqlite: get tenant: %w", err)
	}
	return cfg, nil
}

func (s *Store) PutTenant(ctx context.Context, cfg *registry.TenantConfig) error {
	primary, err := json.Marshal(cfg.Primary)
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: marshal primary endpoint: %w", err)
	}
	var backup any
	if cfg.Backup != nil {
		raw, err := json.Marshal(cfg.Backup)
		if err != nil {
			return fmt.Errorf("signalpost/sqlite: marshal backup endpoint: %w", err)
		}
		backup = string(raw)
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: marshal settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_configs (tenant_id, primary_ep, backup_ep, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			primary_ep = excluded.primary_ep,
			backup_ep  = excluded.backup_ep,
			settings   = excluded.settings,
			updated_at = excluded.updated_at`,
		cfg.TenantID, string(primary), backup, string(settings),
		formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: put tenant: %w", err)
	}
	return nil
}

func (s *Store) DeleteTenant(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_configs WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: delete tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return signalpost.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ListTenants(ctx context.Context, opts registry.ListOpts) ([]*registry.TenantConfig, error) {
	q := `SELECT tenant_id, primary_ep, backup_ep, settings, created_at, updated_at
		FROM tenant_configs ORDER BY tenant_id`
	args := []any{}
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		q += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("signalpost/sqlite: list tenants: %w", err)
	}
	defer rows.Close()

	var result []*registry.TenantConfig
	for rows.Next() {
		cfg, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("signalpost/sqlite: list tenants: %w", err)
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*registry.TenantConfig, error) {
	var (
		cfg                  registry.TenantConfig
		primary, settings    string
		backup               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&cfg.TenantID, &primary, &backup, &settings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(primary), &cfg.Primary); err != nil {
		return nil, fmt.Errorf("unmarshal primary endpoint: %w", err)
	}
	if backup.Valid {
		cfg.Backup = new(registry.Endpoint)
		if err := json.Unmarshal([]byte(backup.String), cfg.Backup); err != nil {
			return nil, fmt.Errorf("unmarshal backup endpoint: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(settings), &cfg.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	var err error
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &cfg, nil
}

// ==================== Dead letter queue ====================

func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	var payload any
	if entry.Payload != nil {
		payload = string(entry.Payload)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dlq_entries (id, envelope_id, tenant_id, event_type, priority,
			url, payload, error, attempts, last_status_code, replayed_at,
			failed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		entry.ID.String(), entry.EnvelopeID.String(), entry.TenantID,
		entry.EventType, entry.Priority, entry.URL, payload, entry.Error,
		entry.Attempts, entry.LastStatusCode, formatTime(entry.FailedAt),
		formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: push dlq: %w", err)
	}
	return nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, envelope_id, tenant_id, event_type, priority, url, payload,
			error, attempts, last_status_code, replayed_at, failed_at,
			created_at, updated_at
		FROM dlq_entries WHERE id = ?`, dlqID.String())
	entry, err := scanDLQEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, signalpost.ErrDLQNotFound
		}
		return nil, fmt.Errorf("signalpost/sqlite: get dlq: %w", err)
	}
	return entry, nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	q := `SELECT id, envelope_id, tenant_id, event_type, priority, url, payload,
		error, attempts, last_status_code, replayed_at, failed_at,
		created_at, updated_at
		FROM dlq_entries WHERE 1=1`
	args := []any{}
	if opts.TenantID != "" {
		q += ` AND tenant_id = ?`
		args = append(args, opts.TenantID)
	}
	if opts.From != nil {
		q += ` AND failed_at >= ?`
		args = append(args, formatTime(*opts.From))
	}
	if opts.To != nil {
		q += ` AND failed_at <= ?`
		args = append(args, formatTime(*opts.To))
	}
	q += ` ORDER BY failed_at DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		q += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("signalpost/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var result []*dlq.Entry
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("signalpost/sqlite: list dlq: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) MarkReplayed(ctx context.Context, dlqID id.ID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dlq_entries SET replayed_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(at), dlqID.String())
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: mark replayed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("signalpost/sqlite: mark replayed: %w", err)
	}
	if n == 0 {
		return signalpost.ErrDLQNotFound
	}
	return nil
}

func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dlq_entries WHERE failed_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("signalpost/sqlite: purge dlq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("signalpost/sqlite: purge dlq: %w", err)
	}
	return n, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dlq_entries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("signalpost/sqlite: count dlq: %w", err)
	}
	return count, nil
}

func scanDLQEntry(row rowScanner) (*dlq.Entry, error) {
	var (
		entry                dlq.Entry
		replayedAt           sql.NullString
		payload              sql.NullString
		idStr, envIDStr      string
		failedAt             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&idStr, &envIDStr, &entry.TenantID, &entry.EventType,
		&entry.Priority, &entry.URL, &payload, &entry.Error, &entry.Attempts,
		&entry.LastStatusCode, &replayedAt, &failedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if entry.ID, err = id.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse dlq id %q: %w", idStr, err)
	}
	if entry.EnvelopeID, err = id.Parse(envIDStr); err != nil {
		return nil, fmt.Errorf("parse envelope id %q: %w", envIDStr, err)
	}
	if payload.Valid {
		entry.Payload = json.RawMessage(payload.String)
	}
	if replayedAt.Valid {
		t, err := parseTime(replayedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse replayed_at: %w", err)
		}
		entry.ReplayedAt = &t
	}
	if entry.FailedAt, err = parseTime(failedAt); err != nil {
		return nil, fmt.Errorf("parse failed_at: %w", err)
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &entry, nil
}
