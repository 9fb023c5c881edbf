package directory

import "context"

// StoreUpdate is the explicit column set a lifecycle operation may
// touch. Nil pointers leave the column alone.
type StoreUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Phone        *string
	Role         *Role
	Status       *Status
	SupervisorID *string
	PasswordHash *string

	// ClearDeletedAt removes the soft-delete marker in the same UPDATE
	// as the rest of the patch (implicit restore via status change).
	ClearDeletedAt bool
}

// Store is the persistence contract the directory core consumes. The
// relational schema, row-level atomicity and the authoritative email
// uniqueness constraint all live behind it.
type Store interface {
	// FindAll returns one page of records matching the filter plus the
	// total match count. A MatchNone filter yields ([], 0, nil).
	FindAll(ctx context.Context, f Filter) ([]*Record, int, error)

	// FindByID loads one record; soft-deleted rows are visible only
	// when includeDeleted is set. ErrNotFound when absent.
	FindByID(ctx context.Context, id string, includeDeleted bool) (*Record, error)

	// FindByEmail always searches live and soft-deleted rows: an
	// archived identity still owns its address. ErrNotFound when free.
	FindByEmail(ctx context.Context, email string) (*Record, error)

	// Create inserts a new record. ErrConflict on a duplicate email.
	Create(ctx context.Context, rec *Record) error

	// Update applies the patch to a record regardless of its deletion
	// state and returns the fresh row. ErrNotFound, ErrConflict.
	Update(ctx context.Context, id string, upd StoreUpdate) (*Record, error)

	// Archive sets status=ARCHIVED and deleted_at in one statement so
	// no reader ever observes one without the other. ErrNotFound when
	// the record is absent or already archived.
	Archive(ctx context.Context, id string) (*Record, error)

	// Restore clears deleted_at and forces status=INACTIVE in one
	// statement. ErrNotFound when the record is absent or not deleted.
	Restore(ctx context.Context, id string) (*Record, error)
}
