package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cleanops.io/internal/audit"
	"cleanops.io/internal/ids"
	"cleanops.io/internal/obs"
)

// EntityType tags directory records in the audit ledger.
const EntityType = "user"

// PasswordHasher derives a storable hash from a plaintext password.
type PasswordHasher func(password string) (string, error)

// Notifier is the fire-and-forget mail dispatch boundary. Failures are
// ignored; no lifecycle operation depends on delivery.
type Notifier interface {
	Welcome(ctx context.Context, email string) error
	Restored(ctx context.Context, email string) error
}

// Service is the directory lifecycle manager. Every mutation runs its
// authorization checks against the same AccessScope the query engine
// uses, and records what happened in the audit ledger.
type Service struct {
	store    Store
	ledger   *audit.Recorder
	hash     PasswordHasher
	notifier Notifier
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithNotifier attaches the mail dispatch collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle manager.
func NewService(store Store, ledger *audit.Recorder, hash PasswordHasher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		hash:   hash,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one scoped, redacted page of the directory.
func (s *Service) List(ctx context.Context, caller Principal, q SearchQuery) (Page, error) {
	scope := ResolveScope(caller)
	if scope.Empty() {
		return Page{}, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	f := BuildFilter(scope, q)
	records, total, err := s.store.FindAll(ctx, f)
	if err != nil {
		return Page{}, err
	}
	redacted := make([]*Record, 0, len(records))
	for _, rec := range records {
		redacted = append(redacted, rec.Redacted())
	}
	return PageOf(redacted, total, f.Offset, f.Limit), nil
}

// Get returns one visible record. A record outside the caller's scope
// is reported as not found, never as forbidden.
func (s *Service) Get(ctx context.Context, caller Principal, id string, includeDeleted bool) (*Record, error) {
	scope := ResolveScope(caller)
	if scope.Empty() {
		return nil, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	rec, err := s.store.FindByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsRecord(rec) {
		return nil, ErrNotFound
	}
	return rec.Redacted(), nil
}

// Create adds a new directory record in ACTIVE state.
//
// The email must be free among live AND soft-deleted records: an
// archived identity keeps its address until it is changed or purged.
// The application-level check is a fast path; the unique index on
// lower(email) is the authoritative guard under concurrent creates.
func (s *Service) Create(ctx context.Context, caller Principal, in CreateInput) (rec *Record, err error) {
	defer func() { obs.DirectoryOp("create", err) }()

	scope := ResolveScope(caller)
	if scope.Empty() {
		return nil, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if !CanAssignRole(caller.Role, in.Role) {
		s.ledger.Record(ctx, audit.Entry{
			Action:     audit.ActionAccessDenied,
			EntityType: EntityType,
			ActorID:    caller.ID,
			Changes:    map[string]any{"operation": "create", "attempted_role": string(in.Role)},
		})
		return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, in.Role)
	}

	supervisorID := strings.TrimSpace(in.SupervisorID)
	if caller.Role == RoleSupervisor {
		// A supervisor only ever owns its own agents; anything else
		// would be invisible to its creator.
		supervisorID = caller.ID
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email %s already in use", ErrConflict, email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	rec = &Record{
		ID:           ids.New(),
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		Status:       StatusActive,
		SupervisorID: supervisorID,
		CreatedAt:    now,
		UpdatedAt:    now,
		PasswordHash: hash,
	}
	if err = s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.ledger.Record(ctx, audit.Entry{
		Action:     audit.ActionCreate,
		EntityType: EntityType,
		EntityID:   rec.ID,
		ActorID:    caller.ID,
		Changes: map[string]any{
			"email":         rec.Email,
			"first_name":    rec.FirstName,
			"last_name":     rec.LastName,
			"phone":         rec.Phone,
			"role":          string(rec.Role),
			"status":        string(rec.Status),
			"supervisor_id": rec.SupervisorID,
			"password":      audit.Redacted,
		},
	})
	if s.notifier != nil {
		_ = s.notifier.Welcome(ctx, rec.Email)
	}
	return rec.Redacted(), nil
}

// Update applies an allow-listed patch to a record.
//
// The record is loaded including soft-deleted rows so an admin can
// revive by edit: setting status to ACTIVE on a soft-deleted record
// clears deleted_at in the same update. This dual effect is intended.
func (s *Service) Update(ctx context.Context, caller Principal, id string, in UpdateInput) (rec *Record, err error) {
	defer func() { obs.DirectoryOp("update", err) }()

	scope := ResolveScope(caller)
	if scope.Empty() {
		return nil, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	before, err := s.store.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsRecord(before) {
		return nil, ErrNotFound
	}

	upd := StoreUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
	}

	if in.Role != nil && *in.Role != before.Role {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *in.Role)
		}
		if !CanAssignRole(caller.Role, *in.Role) {
			s.ledger.Record(ctx, audit.Entry{
				Action:     audit.ActionAccessDenied,
				EntityType: EntityType,
				EntityID:   before.ID,
				ActorID:    caller.ID,
				Changes:    map[string]any{"operation": "update", "attempted_role": string(*in.Role)},
			})
			return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, *in.Role)
		}
		upd.Role = in.Role
	}

	if in.Status != nil && *in.Status != before.Status {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		if *in.Status == StatusArchived {
			return nil, fmt.Errorf("%w: archive via delete, not status update", ErrInvalidInput)
		}
		upd.Status = in.Status
		if *in.Status == StatusActive && before.Deleted() {
			upd.ClearDeletedAt = true
		}
	}

	if in.SupervisorID != nil && *in.SupervisorID != before.SupervisorID {
		upd.SupervisorID = in.SupervisorID
	}

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		if email != before.Email {
			if other, err := s.store.FindByEmail(ctx, email); err == nil && other.ID != before.ID {
				return nil, fmt.Errorf("%w: email %s already in use", ErrConflict, email)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			upd.Email = &email
		}
	}

	after, err := s.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.recordUpdateAudit(ctx, caller, before, after)
	return after.Redacted(), nil
}

// recordUpdateAudit emits ROLE_CHANGE and STATUS_CHANGE entries for
// those transitions plus a generic UPDATE entry for any other diff.
func (s *Service) recordUpdateAudit(ctx context.Context, caller Principal, before, after *Record) {
	if after.Role != before.Role {
		s.ledger.Record(ctx, audit.Entry{
			Action:     audit.ActionRoleChange,
			EntityType: EntityType,
			EntityID:   after.ID,
			ActorID:    caller.ID,
			Changes:    map[string]any{"from": string(before.Role), "to": string(after.Role)},
		})
	}
	if after.Status != before.Status {
		s.ledger.Record(ctx, audit.Entry{
			Action:     audit.ActionStatusChange,
			EntityType: EntityType,
			EntityID:   after.ID,
			ActorID:    caller.ID,
			Changes:    map[string]any{"from": string(before.Status), "to": string(after.Status)},
		})
	}

	diff := map[string]any{}
	if after.Email != before.Email {
		diff["email"] = map[string]string{"from": before.Email, "to": after.Email}
	}
	if after.FirstName != before.FirstName {
		diff["first_name"] = map[string]string{"from": before.FirstName, "to": after.FirstName}
	}
	if after.LastName != before.LastName {
		diff["last_name"] = map[string]string{"from": before.LastName, "to": after.LastName}
	}
	if after.Phone != before.Phone {
		diff["phone"] = map[string]string{"from": before.Phone, "to": after.Phone}
	}
	if after.SupervisorID != before.SupervisorID {
		diff["supervisor_id"] = map[string]string{"from": before.SupervisorID, "to": after.SupervisorID}
	}
	if before.Deleted() && !after.Deleted() {
		diff["deleted_at"] = map[string]any{"from": before.DeletedAt, "to": nil}
	}
	if len(diff) > 0 {
		s.ledger.Record(ctx, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: EntityType,
			EntityID:   after.ID,
			ActorID:    caller.ID,
			Changes:    diff,
		})
	}
}

// SoftDelete archives a record: status becomes ARCHIVED and deleted_at
// is set in one statement, so no reader observes a half-archived row.
func (s *Service) SoftDelete(ctx context.Context, caller Principal, id string) (rec *Record, err error) {
	defer func() { obs.DirectoryOp("archive", err) }()

	scope := ResolveScope(caller)
	if scope.Empty() {
		return nil, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	before, err := s.store.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsRecord(before) {
		return nil, ErrNotFound
	}
	if before.Deleted() {
		return nil, fmt.Errorf("%w: record already archived", ErrConflict)
	}

	archived, err := s.store.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.ledger.Record(ctx, audit.Entry{
		Action:     audit.ActionArchive,
		EntityType: EntityType,
		EntityID:   archived.ID,
		ActorID:    caller.ID,
		Changes:    map[string]any{"status": string(archived.Status)},
	})
	return archived.Redacted(), nil
}

// Restore clears the soft-delete marker. The record always lands in
// INACTIVE, even if it was ACTIVE before archiving; reactivation is a
// deliberate follow-up step.
func (s *Service) Restore(ctx context.Context, caller Principal, id string) (rec *Record, err error) {
	defer func() { obs.DirectoryOp("restore", err) }()

	scope := ResolveScope(caller)
	if scope.Empty() {
		return nil, fmt.Errorf("%w: no directory access", ErrForbidden)
	}
	before, err := s.store.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsRecord(before) {
		return nil, ErrNotFound
	}
	if !before.Deleted() {
		return nil, fmt.Errorf("%w: record is not deleted", ErrConflict)
	}

	restored, err := s.store.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	s.ledger.Record(ctx, audit.Entry{
		Action:     audit.ActionRestore,
		EntityType: EntityType,
		EntityID:   restored.ID,
		ActorID:    caller.ID,
		Changes:    map[string]any{"status": string(restored.Status)},
	})
	if s.notifier != nil {
		_ = s.notifier.Restored(ctx, restored.Email)
	}
	return restored.Redacted(), nil
}
