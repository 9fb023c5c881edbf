package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner applies versioned SQL migrations and idempotent seed files
// from disk. File order is lexical, so files carry a numeric prefix
// (0001_users.up.sql). Each file is applied and recorded inside a
// single transaction.
type Runner struct {
	db       *sql.DB
	dir      string
	seedsDir string
}

// NewRunner constructs a Runner over the given database handle.
func NewRunner(db *sql.DB, dir, seedsDir string) *Runner {
	return &Runner{db: db, dir: dir, seedsDir: seedsDir}
}

// Migration describes one migration file and its applied state.
type Migration struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Up applies every pending migration in order and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return 0, err
	}
	names, err := listSQL(r.dir, upSuffix)
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, name := range names {
		if _, done := applied[name]; done {
			continue
		}
		if err := r.applyFile(ctx, migrationsTable, r.dir, name); err != nil {
			return ran, fmt.Errorf("migration %s: %w", name, err)
		}
		ran++
	}
	return ran, nil
}

// Down rolls back the most recently applied migration and returns its
// name. The matching .down.sql file must exist.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return "", err
	}
	last, err := r.lastApplied(ctx)
	if err != nil {
		return "", err
	}
	if last == "" {
		return "", errors.New("no migrations applied")
	}
	downName := strings.TrimSuffix(last, upSuffix) + downSuffix
	downPath := filepath.Join(r.dir, downName)
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("missing down migration %s", downName)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if err := execFile(ctx, tx, downPath); err != nil {
		return "", fmt.Errorf("rollback %s: %w", last, err)
	}
	if _, err := tx.ExecContext(ctx, `delete from `+migrationsTable+` where name = $1`, last); err != nil {
		return "", err
	}
	return last, tx.Commit()
}

// Status returns every known migration, applied ones first in apply
// order, then pending files in lexical order.
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return nil, err
	}
	names, err := listSQL(r.dir, upSuffix)
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, name := range names {
		at, done := applied[name]
		out = append(out, Migration{Name: name, Applied: done, AppliedAt: at})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Applied != out[j].Applied {
			return out[i].Applied
		}
		if out[i].Applied {
			return out[i].AppliedAt.Before(out[j].AppliedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Seed applies seed files that have not run yet and returns how many ran.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx, seedsTable)
	if err != nil {
		return 0, err
	}
	names, err := listSQL(r.seedsDir, ".sql")
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, name := range names {
		if _, done := applied[name]; done {
			continue
		}
		if err := r.applyFile(ctx, seedsTable, r.seedsDir, name); err != nil {
			return ran, fmt.Errorf("seed %s: %w", name, err)
		}
		ran++
	}
	return ran, nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// applyFile runs one SQL file and records it in the bookkeeping table
// within the same transaction, so a crash cannot leave an applied but
// unrecorded file.
func (r *Runner) applyFile(ctx context.Context, table, dir, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := execFile(ctx, tx, filepath.Join(dir, name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `insert into `+table+`(name, applied_at) values ($1, $2)`,
		name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `select name, applied_at from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

func (r *Runner) lastApplied(ctx context.Context) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`select name from `+migrationsTable+` order by applied_at desc limit 1`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func execFile(ctx context.Context, tx *sql.Tx, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks a file into statements on semicolons outside
// string literals. Good enough for DDL; no dollar-quoting support.
func splitStatements(src string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false
	for _, r := range src {
		switch {
		case r == '\'':
			inString = !inString
			cur.WriteRune(r)
		case r == ';' && !inString:
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
