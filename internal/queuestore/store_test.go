package queuestore

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queues.db"))
	ctx := context.Background()

	if err := store.Put(ctx, "queue:q1", []byte(`{"status":"draft"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "queue:q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"status":"draft"}` {
		t.Fatalf("unexpected value %q", got)
	}

	// Replace in place.
	if err := store.Put(ctx, "queue:q1", []byte(`{"status":"submitting"}`)); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, err = store.Get(ctx, "queue:q1")
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if string(got) != `{"status":"submitting"}` {
		t.Fatalf("unexpected value after replace %q", got)
	}

	if err := store.Delete(ctx, "queue:q1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = store.Get(ctx, "queue:q1")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %q", got)
	}

	if err := store.Delete(ctx, "queue:q1"); err != nil {
		t.Fatalf("Delete absent key: %v", err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queues.db"))

	got, err := store.Get(context.Background(), "queue:nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing key, got %q", got)
	}
}

func TestWritesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queues.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Put(ctx, "queue:q1", []byte("durable")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTestStore(t, path)
	got, err := second.Get(ctx, "queue:q1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "durable" {
		t.Fatalf("expected durable value after reopen, got %q", got)
	}
}

func TestKeysByPrefix(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queues.db"))
	ctx := context.Background()

	for _, k := range []string{"queue:a", "queue:b", "session:s1"} {
		if err := store.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx, "queue:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "queue:a" || keys[1] != "queue:b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queues.db"))
	if err := store.Put(context.Background(), "", []byte("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
}
