package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type captureStore struct {
	entries   []Entry
	appendErr error
	lastLimit int
}

func (s *captureStore) Append(_ context.Context, entry *Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *captureStore) ByEntity(_ context.Context, _, _ string, limit int) ([]Entry, error) {
	s.lastLimit = limit
	return nil, nil
}

func (s *captureStore) ByActor(_ context.Context, _ string, limit int) ([]Entry, error) {
	s.lastLimit = limit
	return nil, nil
}

func (s *captureStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.lastLimit = limit
	return nil, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	store := &captureStore{}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, WithClock(func() time.Time { return fixed }))

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	rec.Record(ctx, Entry{
		Action:     ActionCreate,
		EntityType: "user",
		EntityID:   "u-1",
		ActorID:    "admin-1",
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	got := store.entries[0]
	if got.ID == "" {
		t.Fatal("entry id must be generated")
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, fixed)
	}
	if got.IPAddress != "203.0.113.9" {
		t.Fatalf("ip = %q", got.IPAddress)
	}
}

func TestRecordKeepsExplicitValues(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.Record(context.Background(), Entry{
		ID:        "fixed-id",
		Action:    ActionArchive,
		ActorID:   "a",
		IPAddress: "198.51.100.1",
		CreatedAt: at,
	})

	got := store.entries[0]
	if got.ID != "fixed-id" || got.IPAddress != "198.51.100.1" || !got.CreatedAt.Equal(at) {
		t.Fatalf("explicit fields were overwritten: %+v", got)
	}
}

func TestRecordFailOpen(t *testing.T) {
	store := &captureStore{appendErr: errors.New("disk full")}
	rec := NewRecorder(store)

	// Must not panic or propagate; the caller's mutation already
	// happened.
	rec.Record(context.Background(), Entry{Action: ActionUpdate, ActorID: "a"})
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), Entry{Action: ActionUpdate})
}

func TestReadLimitsClamped(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store)
	ctx := context.Background()

	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: 50},
		{in: -5, want: 50},
		{in: 25, want: 25},
		{in: 9999, want: 500},
	}
	for _, tt := range tests {
		if _, err := rec.Recent(ctx, tt.in); err != nil {
			t.Fatalf("recent: %v", err)
		}
		if store.lastLimit != tt.want {
			t.Fatalf("limit %d clamped to %d, want %d", tt.in, store.lastLimit, tt.want)
		}
	}

	if _, err := rec.ByEntity(ctx, "user", "u-1", 0); err != nil {
		t.Fatalf("by entity: %v", err)
	}
	if store.lastLimit != 50 {
		t.Fatalf("by-entity default limit = %d", store.lastLimit)
	}
}

func TestWithClientIPIgnoresBlank(t *testing.T) {
	ctx := context.Background()
	if got := WithClientIP(ctx, "  "); got != ctx {
		t.Fatal("blank ip must not allocate a context value")
	}
}
