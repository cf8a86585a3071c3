package memos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	store, err := Open(filepath.Join(t.TempDir(), "memos.db"), WithClock(clk))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clk
}

func TestCreateAndFetch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memo, err := store.Create(ctx, "/inbox/standup-notes.m4a", 42.5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if memo.ID == "" {
		t.Fatal("memo ID not assigned")
	}
	if memo.Title != "standup-notes.m4a" {
		t.Fatalf("default title = %q", memo.Title)
	}

	got, err := store.ByID(ctx, memo.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got == nil || got.AudioPath != "/inbox/standup-notes.m4a" || got.DurationSeconds != 42.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestByAudioPathDedupes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, _ := store.Create(ctx, "/inbox/idea.m4a", 0)

	got, err := store.ByAudioPath(ctx, "/inbox/idea.m4a")
	if err != nil {
		t.Fatalf("ByAudioPath: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("got %+v, want the created memo", got)
	}

	missing, err := store.ByAudioPath(ctx, "/inbox/never-seen.m4a")
	if err != nil || missing != nil {
		t.Fatalf("unseen path: memo=%+v err=%v", missing, err)
	}

	// A second create for the same file must fail on the unique constraint.
	if _, err := store.Create(ctx, "/inbox/idea.m4a", 0); err == nil {
		t.Fatal("duplicate audio path accepted")
	}
}

func TestUpdateTitle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memo, _ := store.Create(ctx, "/inbox/rec-001.m4a", 12)
	if err := store.UpdateTitle(ctx, memo.ID, "Grocery List for the Week"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	got, _ := store.ByID(ctx, memo.ID)
	if got.Title != "Grocery List for the Week" {
		t.Fatalf("title = %q", got.Title)
	}

	if err := store.UpdateTitle(ctx, "missing-id", "x"); err == nil {
		t.Fatal("expected error for unknown memo")
	}
}

func TestAllNewestFirst(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "/inbox/first.m4a", 1)
	clk.Advance(time.Minute)
	store.Create(ctx, "/inbox/second.m4a", 2)

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].AudioPath != "/inbox/second.m4a" {
		t.Fatalf("order = [%s, %s]", all[0].AudioPath, all[1].AudioPath)
	}
}

func TestDeleteAndCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memo, _ := store.Create(ctx, "/inbox/tmp.m4a", 3)
	count, _ := store.Count(ctx)
	if count != 1 {
		t.Fatalf("count = %d", count)
	}

	if err := store.Delete(ctx, memo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, memo.ID); err != nil {
		t.Fatalf("repeat delete should be a no-op: %v", err)
	}
	count, _ = store.Count(ctx)
	if count != 0 {
		t.Fatalf("count after delete = %d", count)
	}
}
