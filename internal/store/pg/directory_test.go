package pg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"cleanops.io/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func fullRecordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "phone", "role", "status",
		"supervisor_id", "password_hash", "failed_logins", "deleted_at",
		"created_at", "updated_at",
	})
}

func TestBuildWhere(t *testing.T) {
	active := directory.StatusActive

	tests := []struct {
		name     string
		f        directory.Filter
		contains []string
		absent   []string
		argCount int
	}{
		{
			name:     "match none",
			f:        directory.Filter{MatchNone: true},
			contains: []string{"1 = 0", "deleted_at is null"},
		},
		{
			name:     "role set",
			f:        directory.Filter{Roles: []directory.Role{directory.RoleAgent, directory.RoleClient}},
			contains: []string{"role in ($1, $2)"},
			argCount: 2,
		},
		{
			name: "supervisor restriction survives search",
			f: directory.Filter{
				Roles:        []directory.Role{directory.RoleAgent},
				SupervisorID: "sup-1",
				Search:       "smith",
			},
			contains: []string{
				"supervisor_id = $2",
				"and (email ilike $3 or first_name ilike $4 or last_name ilike $5 or phone ilike $6)",
			},
			argCount: 6,
		},
		{
			name:     "status and names",
			f:        directory.Filter{Status: &active, FirstName: "jo", LastName: "do"},
			contains: []string{"status = $1", "first_name ilike $2", "last_name ilike $3"},
			argCount: 3,
		},
		{
			name:     "include deleted drops the marker clause",
			f:        directory.Filter{IncludeDeleted: true},
			absent:   []string{"deleted_at is null"},
			argCount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(tt.f)
			for _, sub := range tt.contains {
				if !strings.Contains(where, sub) {
					t.Fatalf("where %q missing %q", where, sub)
				}
			}
			for _, sub := range tt.absent {
				if strings.Contains(where, sub) {
					t.Fatalf("where %q must not contain %q", where, sub)
				}
			}
			if len(args) != tt.argCount {
				t.Fatalf("args = %v, want %d values", args, tt.argCount)
			}
		})
	}
}

func TestFindAllMatchNoneYieldsEmptyPage(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count\(\*\) from users where 1 = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`select .+ from users where 1 = 0 .+ order by created_at desc limit \$1 offset \$2`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "first_name", "last_name", "phone", "role", "status",
			"supervisor_id", "deleted_at", "created_at", "updated_at",
		}))

	records, total, err := store.FindAll(context.Background(), directory.Filter{
		MatchNone: true, Limit: 20,
	})
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Fatalf("expected empty result, got %d/%d", len(records), total)
	}
	if records == nil {
		t.Fatal("records must be a non-nil slice")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindAllExcludesCredentialColumns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select count\(\*\) from users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`select id, email, .+ supervisor_id, deleted_at, created_at, updated_at\s+from users`).
		WithArgs("AGENT", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "first_name", "last_name", "phone", "role", "status",
			"supervisor_id", "deleted_at", "created_at", "updated_at",
		}).AddRow("u-1", "a@x.io", "A", "B", nil, "AGENT", "ACTIVE", "sup-1", nil, now, now))

	records, total, err := store.FindAll(context.Background(), directory.Filter{
		Roles: []directory.Role{directory.RoleAgent},
		Limit: 20, SortBy: "created_at", SortDesc: true,
	})
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if total != 1 || len(records) != 1 {
		t.Fatalf("got %d/%d", len(records), total)
	}
	if records[0].PasswordHash != "" {
		t.Fatal("listing projection must not carry credentials")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from users where id = \$1 and deleted_at is null`).
		WithArgs("missing").
		WillReturnRows(fullRecordRows())

	_, err := store.FindByID(context.Background(), "missing", false)
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFindByIDIncludeDeleted(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select .+ from users where id = \$1$`).
		WithArgs("u-1").
		WillReturnRows(fullRecordRows().
			AddRow("u-1", "a@x.io", "A", "B", nil, "AGENT", "ARCHIVED", nil, "hash", 0, now, now, now))

	rec, err := store.FindByID(context.Background(), "u-1", true)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !rec.Deleted() {
		t.Fatal("deleted_at must be mapped")
	}
	if rec.PasswordHash != "hash" {
		t.Fatal("full projection carries the hash for internal use")
	}
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Create(context.Background(), &directory.Record{
		ID: "u-1", Email: "a@x.io", Role: directory.RoleAgent,
		Status: directory.StatusActive, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateMapsMissingSupervisor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Create(context.Background(), &directory.Record{
		ID: "u-1", Email: "a@x.io", Role: directory.RoleAgent,
		SupervisorID: "ghost", Status: directory.StatusActive,
	})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateBuildsDynamicSet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`update users set first_name = \$1, status = \$2, deleted_at = null, updated_at = now\(\) where id = \$3`).
		WithArgs("Jane", "ACTIVE", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`select .+ from users where id = \$1$`).
		WithArgs("u-1").
		WillReturnRows(fullRecordRows().
			AddRow("u-1", "a@x.io", "Jane", "B", nil, "AGENT", "ACTIVE", nil, "hash", 0, nil, now, now))

	first := "Jane"
	status := directory.StatusActive
	rec, err := store.Update(context.Background(), "u-1", directory.StoreUpdate{
		FirstName:      &first,
		Status:         &status,
		ClearDeletedAt: true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.FirstName != "Jane" || rec.Deleted() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateEmptyPatchOnlyRefetches(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select .+ from users where id = \$1$`).
		WithArgs("u-1").
		WillReturnRows(fullRecordRows().
			AddRow("u-1", "a@x.io", "A", "B", nil, "AGENT", "ACTIVE", nil, "hash", 0, nil, now, now))

	if _, err := store.Update(context.Background(), "u-1", directory.StoreUpdate{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update users set`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	phone := "555"
	_, err := store.Update(context.Background(), "missing", directory.StoreUpdate{Phone: &phone})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestArchiveIsSingleStatement(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`update users\s+set status = \$2, deleted_at = now\(\), updated_at = now\(\)\s+where id = \$1 and deleted_at is null\s+returning`).
		WithArgs("u-1", "ARCHIVED").
		WillReturnRows(fullRecordRows().
			AddRow("u-1", "a@x.io", "A", "B", nil, "AGENT", "ARCHIVED", nil, "hash", 0, now, now, now))

	rec, err := store.Archive(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if rec.Status != directory.StatusArchived || !rec.Deleted() {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestArchiveAlreadyDeleted(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`update users`).
		WithArgs("u-1", "ARCHIVED").
		WillReturnRows(fullRecordRows())

	if _, err := store.Archive(context.Background(), "u-1"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRestoreForcesInactive(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`update users\s+set status = \$2, deleted_at = null, updated_at = now\(\)\s+where id = \$1 and deleted_at is not null\s+returning`).
		WithArgs("u-1", "INACTIVE").
		WillReturnRows(fullRecordRows().
			AddRow("u-1", "a@x.io", "A", "B", nil, "AGENT", "INACTIVE", nil, "hash", 0, nil, now, now))

	rec, err := store.Restore(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if rec.Status != directory.StatusInactive || rec.Deleted() {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
