package directory

import "time"

// Status is the lifecycle state of a directory record.
//
// new -> ACTIVE <-> INACTIVE -> ARCHIVED -> (restore) -> INACTIVE
//
// ARCHIVED is reachable only through SoftDelete; Restore always lands
// in INACTIVE so that reactivation stays a deliberate, separate step.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// Record is a user or client entry in the company directory.
type Record struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         Role       `json:"role"`
	Status       Status     `json:"status"`
	SupervisorID string     `json:"supervisor_id,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Credential fields. Never serialized and stripped by Redacted
	// before a record leaves the service.
	PasswordHash string `json:"-"`
	FailedLogins int    `json:"-"`
}

// Deleted reports whether the record is soft-deleted.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }

// Redacted returns a copy with credential fields cleared. Every read
// path applies it unconditionally before returning records outward.
func (r *Record) Redacted() *Record {
	cp := *r
	cp.PasswordHash = ""
	cp.FailedLogins = 0
	return &cp
}

// CreateInput is the allow-listed field set for Create. The HTTP layer
// has already shape-validated it.
type CreateInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Phone        string
	Role         Role
	SupervisorID string
}

// UpdateInput is the allow-listed patch for Update. Nil pointers leave
// the field untouched; only fields listed here can ever change through
// the lifecycle manager, which also makes the audit diff explicit.
type UpdateInput struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Phone        *string
	Role         *Role
	Status       *Status
	SupervisorID *string
}

// Empty reports whether the patch changes nothing.
func (u UpdateInput) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil &&
		u.Phone == nil && u.Role == nil && u.Status == nil && u.SupervisorID == nil
}
