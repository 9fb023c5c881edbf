package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cleanops.io/internal/directory"
)

// Full column list, including credentials. Used by the single-record
// loaders; the listing query never selects credential columns.
const userColumns = `id, email, first_name, last_name, phone, role, status,
	supervisor_id, password_hash, failed_logins, deleted_at, created_at, updated_at`

// listColumns backs FindAll. password_hash and failed_logins are left
// out of the projection entirely, so redaction cannot be forgotten.
const listColumns = `id, email, first_name, last_name, phone, role, status,
	supervisor_id, deleted_at, created_at, updated_at`

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"email":      "email",
	"first_name": "first_name",
	"last_name":  "last_name",
	"role":       "role",
	"status":     "status",
}

func (s *Store) FindAll(ctx context.Context, f directory.Filter) ([]*directory.Record, int, error) {
	where, args := buildWhere(f)

	var total int
	countQuery := `select count(*) from users` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "asc"
	if f.SortDesc {
		dir = "desc"
	}
	query := fmt.Sprintf(`select %s from users%s order by %s %s limit $%d offset $%d`,
		listColumns, where, col, dir, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []*directory.Record{}
	for rows.Next() {
		rec, err := scanListRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// buildWhere translates a filter into SQL. The scope conditions (role
// set, supervisor) are top-level ANDs, so the parenthesized free-text
// OR group can never escape them.
func buildWhere(f directory.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func() int { return len(args) + 1 }

	if f.MatchNone {
		// Impossible-match predicate: a forbidden role filter yields
		// zero rows, never an error.
		conds = append(conds, "1 = 0")
	}
	if !f.IncludeDeleted {
		conds = append(conds, "deleted_at is null")
	}
	if len(f.Roles) > 0 {
		ph := make([]string, 0, len(f.Roles))
		for _, r := range f.Roles {
			ph = append(ph, fmt.Sprintf("$%d", next()))
			args = append(args, string(r))
		}
		conds = append(conds, fmt.Sprintf("role in (%s)", strings.Join(ph, ", ")))
	}
	if f.SupervisorID != "" {
		conds = append(conds, fmt.Sprintf("supervisor_id = $%d", next()))
		args = append(args, f.SupervisorID)
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", next()))
		args = append(args, string(*f.Status))
	}
	if f.FirstName != "" {
		conds = append(conds, fmt.Sprintf("first_name ilike $%d", next()))
		args = append(args, "%"+f.FirstName+"%")
	}
	if f.LastName != "" {
		conds = append(conds, fmt.Sprintf("last_name ilike $%d", next()))
		args = append(args, "%"+f.LastName+"%")
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		branch := fmt.Sprintf(
			"(email ilike $%d or first_name ilike $%d or last_name ilike $%d or phone ilike $%d)",
			next(), next()+1, next()+2, next()+3)
		args = append(args, pattern, pattern, pattern, pattern)
		conds = append(conds, branch)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}

func (s *Store) FindByID(ctx context.Context, id string, includeDeleted bool) (*directory.Record, error) {
	query := `select ` + userColumns + ` from users where id = $1`
	if !includeDeleted {
		query += ` and deleted_at is null`
	}
	rec, err := scanFullRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*directory.Record, error) {
	// Soft-deleted rows are intentionally included: an archived
	// identity still owns its address.
	rec, err := scanFullRecord(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec *directory.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, first_name, last_name, phone, role, status,
			supervisor_id, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.Email, rec.FirstName, rec.LastName, nullIfEmpty(rec.Phone),
		string(rec.Role), string(rec.Status), nullIfEmpty(rec.SupervisorID),
		rec.PasswordHash, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: email already in use", directory.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: supervisor does not exist", directory.ErrNotFound)
			}
		}
		return err
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, upd directory.StoreUpdate) (*directory.Record, error) {
	var (
		sets []string
		args []any
	)
	next := func() int { return len(args) + 1 }

	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", next()))
		args = append(args, *upd.Email)
	}
	if upd.FirstName != nil {
		sets = append(sets, fmt.Sprintf("first_name = $%d", next()))
		args = append(args, *upd.FirstName)
	}
	if upd.LastName != nil {
		sets = append(sets, fmt.Sprintf("last_name = $%d", next()))
		args = append(args, *upd.LastName)
	}
	if upd.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", next()))
		args = append(args, nullIfEmpty(*upd.Phone))
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", next()))
		args = append(args, string(*upd.Role))
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", next()))
		args = append(args, string(*upd.Status))
	}
	if upd.SupervisorID != nil {
		sets = append(sets, fmt.Sprintf("supervisor_id = $%d", next()))
		args = append(args, nullIfEmpty(*upd.SupervisorID))
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", next()))
		args = append(args, *upd.PasswordHash)
	}
	if upd.ClearDeletedAt {
		sets = append(sets, "deleted_at = null")
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), next())
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, fmt.Errorf("%w: email already in use", directory.ErrConflict)
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, directory.ErrNotFound
		}
	}
	return s.FindByID(ctx, id, true)
}

func (s *Store) Archive(ctx context.Context, id string) (*directory.Record, error) {
	// Status flip and soft-delete marker land in one statement, so no
	// reader can observe one without the other.
	rec, err := scanFullRecord(s.db.QueryRowContext(ctx, `
		update users
		set status = $2, deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
		returning `+userColumns, id, string(directory.StatusArchived)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Restore(ctx context.Context, id string) (*directory.Record, error) {
	rec, err := scanFullRecord(s.db.QueryRowContext(ctx, `
		update users
		set status = $2, deleted_at = null, updated_at = now()
		where id = $1 and deleted_at is not null
		returning `+userColumns, id, string(directory.StatusInactive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFullRecord(row rowScanner) (*directory.Record, error) {
	var (
		rec        directory.Record
		phone      sql.NullString
		supervisor sql.NullString
		deletedAt  sql.NullTime
		role       string
		status     string
	)
	err := row.Scan(&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName, &phone,
		&role, &status, &supervisor, &rec.PasswordHash, &rec.FailedLogins,
		&deletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fillRecord(&rec, phone, supervisor, deletedAt, role, status)
	return &rec, nil
}

func scanListRecord(row rowScanner) (*directory.Record, error) {
	var (
		rec        directory.Record
		phone      sql.NullString
		supervisor sql.NullString
		deletedAt  sql.NullTime
		role       string
		status     string
	)
	err := row.Scan(&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName, &phone,
		&role, &status, &supervisor, &deletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fillRecord(&rec, phone, supervisor, deletedAt, role, status)
	return &rec, nil
}

func fillRecord(rec *directory.Record, phone, supervisor sql.NullString, deletedAt sql.NullTime, role, status string) {
	if phone.Valid {
		rec.Phone = phone.String
	}
	if supervisor.Valid {
		rec.SupervisorID = supervisor.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	rec.Role = directory.Role(role)
	rec.Status = directory.Status(status)
}
