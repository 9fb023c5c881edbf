package audit

import (
	"context"
	"strings"
	"time"

	"cleanops.io/internal/ids"
	"cleanops.io/internal/obs"
)

// Action identifies what a ledger entry describes.
type Action string

const (
	ActionCreate                Action = "CREATE"
	ActionUpdate                Action = "UPDATE"
	ActionStatusChange          Action = "STATUS_CHANGE"
	ActionRoleChange            Action = "ROLE_CHANGE"
	ActionArchive               Action = "ARCHIVE"
	ActionRestore               Action = "RESTORE"
	ActionAccessDenied          Action = "ACCESS_DENIED"
	ActionPasswordResetRequest  Action = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetComplete Action = "PASSWORD_RESET_COMPLETE"
	ActionVerificationSent      Action = "VERIFICATION_SENT"
	ActionVerificationConfirm   Action = "VERIFICATION_CONFIRMED"
)

// Redacted replaces secret values inside audit payloads.
const Redacted = "[REDACTED]"

// Entry is an immutable fact in the compliance ledger: who did what to
// which entity and when. Entries are written once and never mutated.
type Entry struct {
	ID         string         `json:"id"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Changes    map[string]any `json:"changes,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store is the persistence contract for the ledger. Append-only; reads
// are reverse-chronological and bounded.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]Entry, error)
	ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const (
	defaultReadLimit = 50
	maxReadLimit     = 500
)

type ctxKey string

const clientIPKey ctxKey = "audit_client_ip"

// WithClientIP attaches the caller's address to the context so every
// entry recorded during the request carries it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes ledger entries on behalf of the lifecycle manager.
//
// Writes are fail-open: a failed append must never revert or block the
// mutation it describes, so the error is logged, counted, and dropped.
// Losing one compliance row is less severe than rejecting a legitimate
// administrative action.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source. Used by tests.
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry, filling in id, timestamp and client address.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = clientIPFromContext(ctx)
	}
	if err := r.store.Append(ctx, &entry); err != nil {
		obs.AuditWriteFailed()
		obs.LogRequest(map[string]any{
			"ts":        r.now().UTC().Format(time.RFC3339Nano),
			"level":     "warn",
			"msg":       "audit append failed",
			"action":    string(entry.Action),
			"entity_id": entry.EntityID,
			"error":     err.Error(),
		})
	}
}

// ByEntity returns the newest entries for one entity.
func (r *Recorder) ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]Entry, error) {
	return r.store.ByEntity(ctx, entityType, entityID, clampLimit(limit))
}

// ByActor returns the newest entries produced by one actor.
func (r *Recorder) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return r.store.ByActor(ctx, actorID, clampLimit(limit))
}

// Recent returns the newest entries across the whole ledger.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.store.Recent(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultReadLimit
	}
	if limit > maxReadLimit {
		return maxReadLimit
	}
	return limit
}
