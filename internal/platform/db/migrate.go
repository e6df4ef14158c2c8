package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateMigration is returned when two files share a version number.
var ErrDuplicateMigration = errors.New("db: duplicate migration version")

// Migration is one numbered SQL file, e.g. 001_cda_document.sql.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus pairs a known migration with its record in a tenant
// schema. Changed means the file no longer matches what was applied.
type MigrationStatus struct {
	Version   int
	Name      string
	AppliedAt *time.Time
	Changed   bool
}

func (s MigrationStatus) Applied() bool { return s.AppliedAt != nil }

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// Migrator brings tenant schemas up to the migration set in fsys. All work
// for one tenant runs in a single transaction holding an advisory lock on
// the schema, so concurrent runs for the same tenant serialize.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

// NewMigrator reads .sql files from the root of fsys, usually the embedded
// migrations.FS or os.DirFS for an override directory. A nil fsys has no
// migrations.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

// Migrations returns the migration set ordered by version. Files without a
// numeric prefix are skipped.
func (m *Migrator) Migrations() ([]Migration, error) {
	if m.fsys == nil {
		return nil, nil
	}
	names, err := fs.Glob(m.fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int]string, len(names))
	var out []Migration
	for _, name := range names {
		version, ok := migrationVersion(name)
		if !ok {
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateMigration, prev, name)
		}
		byVersion[version] = name

		body, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func migrationVersion(name string) (int, bool) {
	prefix, _, ok := strings.Cut(path.Base(name), "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Up creates the tenant's schema if needed and applies every pending
// migration. Either all pending migrations are applied or none is.
func (m *Migrator) Up(ctx context.Context, tenantID string) (int, error) {
	migrations, err := m.Migrations()
	if err != nil {
		return 0, err
	}

	count := 0
	err = m.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		applied, err := appliedMigrations(ctx, tx)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("apply migration %s: %w", mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, mig.Checksum,
			); err != nil {
				return fmt.Errorf("record migration %s: %w", mig.Name, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Status reports every known migration for the tenant. A tenant without a
// schema has everything pending.
func (m *Migrator) Status(ctx context.Context, tenantID string) ([]MigrationStatus, error) {
	if !ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	migrations, err := m.Migrations()
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := m.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		strings.ToLower(SchemaName(tenantID)),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("look up schema: %w", err)
	}
	if !exists {
		return statusOf(migrations, nil), nil
	}

	var applied map[int]appliedMigration
	err = m.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		applied, err = appliedMigrations(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return statusOf(migrations, applied), nil
}

// inTenant runs fn in a transaction scoped to the tenant's schema, creating
// the schema and its migration table on first use.
func (m *Migrator) inTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	schema := SchemaName(tenantID)

	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, schema); err != nil {
			return fmt.Errorf("lock %s: %w", schema, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
		if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schema+", public"); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			checksum   CHAR(64)     NOT NULL,
			applied_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`); err != nil {
			return fmt.Errorf("create migration table in %s: %w", schema, err)
		}
		return fn(tx)
	})
}

func appliedMigrations(ctx context.Context, tx pgx.Tx) (map[int]appliedMigration, error) {
	rows, err := tx.Query(ctx, `SELECT version, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var (
			v int
			a appliedMigration
		)
		if err := rows.Scan(&v, &a.checksum, &a.appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = a
	}
	return applied, rows.Err()
}

func statusOf(migrations []Migration, applied map[int]appliedMigration) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if a, ok := applied[mig.Version]; ok {
			at := a.appliedAt
			s.AppliedAt = &at
			s.Changed = a.checksum != mig.Checksum
		}
		out = append(out, s)
	}
	return out
}
