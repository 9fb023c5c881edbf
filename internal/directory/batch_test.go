package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cleanops.io/internal/audit"
)

func TestRunBatchIsolatesFailures(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e"}
	res := RunBatch(keys, func(key string) (string, error) {
		if key == "c" {
			return "", errors.New("boom")
		}
		return "ok-" + key, nil
	})
	if len(res.Succeeded) != 4 {
		t.Fatalf("succeeded = %v", res.Succeeded)
	}
	if len(res.Errors) != 1 || res.Errors[0].Key != "c" {
		t.Fatalf("errors = %+v", res.Errors)
	}
	// Order is preserved so results line up with the request.
	if res.Succeeded[0] != "ok-a" || res.Succeeded[3] != "ok-e" {
		t.Fatalf("succeeded order wrong: %v", res.Succeeded)
	}
}

func TestRunBatchEmptySlicesSerializeAsArrays(t *testing.T) {
	res := RunBatch(nil, func(string) (int, error) { return 0, nil })
	if res.Succeeded == nil || res.Errors == nil {
		t.Fatal("result slices must not be nil")
	}
}

func TestBatchArchivePartialFailure(t *testing.T) {
	svc, store, ledger, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		rec, err := svc.Create(ctx, admin, CreateInput{
			Email:    fmt.Sprintf("w%d@x.io", i),
			Password: "x",
			Role:     RoleAgent,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	// Insert a missing id in the middle.
	ids = append(ids[:2], append([]string{"missing"}, ids[2:]...)...)

	res := svc.BatchArchive(ctx, admin, ids)
	if len(res.Succeeded) != 4 {
		t.Fatalf("expected 4 successes, got %d", len(res.Succeeded))
	}
	if len(res.Errors) != 1 || res.Errors[0].Key != "missing" {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if !errors.Is(res.Errors[0].Err, ErrNotFound) {
		t.Fatalf("error taxonomy must survive batching, got %v", res.Errors[0].Err)
	}

	// Earlier successes stay committed after the failure.
	for _, rec := range res.Succeeded {
		stored, err := store.FindByID(ctx, rec.ID, true)
		if err != nil {
			t.Fatalf("find %s: %v", rec.ID, err)
		}
		if !stored.Deleted() {
			t.Fatalf("record %s must stay archived", rec.ID)
		}
	}

	// One ARCHIVE entry per archived item, after the four CREATEs.
	archives := 0
	for _, a := range ledger.actions() {
		if a == audit.ActionArchive {
			archives++
		}
	}
	if archives != 4 {
		t.Fatalf("expected 4 ARCHIVE entries, got %d", archives)
	}
}

func TestBatchSetStatusRunsFullUpdateChecks(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, admin, CreateInput{
		Email: "w@x.io", Password: "x", Role: RoleAgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Out-of-scope record fails its item without touching the rest.
	store.put(&Record{ID: "other-admin", Email: "oa@x.io", Role: RoleAdmin, Status: StatusActive})

	res := svc.BatchSetStatus(ctx, admin, []string{rec.ID, "other-admin"}, StatusInactive)
	if len(res.Succeeded) != 1 || res.Succeeded[0].Status != StatusInactive {
		t.Fatalf("succeeded = %+v", res.Succeeded)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0].Err, ErrNotFound) {
		t.Fatalf("errors = %+v", res.Errors)
	}
}
