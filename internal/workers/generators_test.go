package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/clock"
	"murmur/internal/events"
	"murmur/internal/jobs"
	"murmur/internal/memos"
	"murmur/internal/results"
	"murmur/internal/services"
)

type fakeLLM struct {
	reply string
	err   error
	seen  []string
}

func (f *fakeLLM) Generate(_ context.Context, _, prompt string) (string, error) {
	f.seen = append(f.seen, prompt)
	return f.reply, f.err
}

func newMemoStore(t *testing.T) *memos.Store {
	t.Helper()
	store, err := memos.Open(filepath.Join(t.TempDir(), "memos.db"))
	if err != nil {
		t.Fatalf("open memo store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTitlerGeneratesAndPersistsTitle(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	bus := events.NewBus(clk, nil)
	transcripts := results.NewTranscriptionRepository(newFakeRecordStore(), nil)
	memoStore := newMemoStore(t)

	memo, _ := memoStore.Create(ctx, "/inbox/rec-001.m4a", 30)
	transcripts.Save(ctx, memo.ID, results.Transcription{
		MemoID: memo.ID,
		State:  results.TranscriptionCompleted,
		Text:   "pick up the dry cleaning before friday",
	})

	llm := &fakeLLM{reply: "\"dry cleaning reminder.\""}
	titler := NewTitler(transcripts, memoStore, llm, bus, nil)

	if err := titler.Generate(ctx, jobs.Job{MemoID: memo.ID, Kind: jobs.KindTitle}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	got, _ := memoStore.ByID(ctx, memo.ID)
	if got.Title != "Dry Cleaning Reminder" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(llm.seen) != 1 || llm.seen[0] != "pick up the dry cleaning before friday" {
		t.Fatalf("prompts = %v", llm.seen)
	}
}

func TestTitlerWithoutTranscriptIsValidationError(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	bus := events.NewBus(clk, nil)
	transcripts := results.NewTranscriptionRepository(newFakeRecordStore(), nil)
	memoStore := newMemoStore(t)
	memo, _ := memoStore.Create(ctx, "/inbox/rec-002.m4a", 5)

	titler := NewTitler(transcripts, memoStore, &fakeLLM{reply: "x"}, bus, nil)
	err := titler.Generate(ctx, jobs.Job{MemoID: memo.ID, Kind: jobs.KindTitle})
	if err == nil {
		t.Fatal("expected error without transcript")
	}
	if services.ClassifyFailure(err) != services.FailureValidation {
		t.Fatalf("classified as %s", services.ClassifyFailure(err))
	}
}

func TestDistillerPersistsAnalysisAndPublishes(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	bus := events.NewBus(clk, nil)
	store := newFakeRecordStore()
	transcripts := results.NewTranscriptionRepository(store, nil)
	analyses := results.NewAnalysisRepository(store, nil)

	transcripts.Save(ctx, "memo-1", results.Transcription{
		MemoID: "memo-1",
		State:  results.TranscriptionCompleted,
		Text:   "call mom about the trip, book hotel by monday",
	})

	var published []events.Event
	owner := events.NewOwner()
	defer owner.Close()
	bus.Subscribe(owner, func(e events.Event) {
		published = append(published, e)
	}, events.KindAnalysisCompleted)

	llm := &fakeLLM{reply: "- call mom about the trip\n- book hotel by monday"}
	distiller := NewDistiller(transcripts, analyses, llm, bus, clk, "test-model", nil)

	if err := distiller.Generate(ctx, jobs.Job{MemoID: "memo-1", Kind: jobs.KindDistill, Mode: "distill"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	saved, err := analyses.Get(ctx, "memo-1", "distill")
	if err != nil || saved == nil {
		t.Fatalf("Get: saved=%+v err=%v", saved, err)
	}
	if saved.Model != "test-model" || saved.Content == "" {
		t.Fatalf("analysis = %+v", saved)
	}
	if !saved.CreatedAt.Equal(clk.Now()) {
		t.Fatalf("CreatedAt = %v", saved.CreatedAt)
	}

	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	if ev := published[0].(events.AnalysisCompleted); ev.MemoID != "memo-1" || ev.Mode != "distill" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDistillerNetworkFailurePropagates(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	bus := events.NewBus(clk, nil)
	store := newFakeRecordStore()
	transcripts := results.NewTranscriptionRepository(store, nil)
	analyses := results.NewAnalysisRepository(store, nil)
	transcripts.Save(ctx, "memo-1", results.Transcription{
		MemoID: "memo-1",
		State:  results.TranscriptionCompleted,
		Text:   "x",
	})

	llm := &fakeLLM{err: services.Wrap(services.ErrRateLimited, "llm", "generate", "slow down", nil)}
	distiller := NewDistiller(transcripts, analyses, llm, bus, clk, "m", nil)

	err := distiller.Generate(ctx, jobs.Job{MemoID: "memo-1", Kind: jobs.KindDistill})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.ClassifyFailure(err) != services.FailureRateLimited {
		t.Fatalf("classified as %s", services.ClassifyFailure(err))
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "grocery run", "Grocery Run"},
		{"wrapped quotes", "\"Standup Notes\"", "Standup Notes"},
		{"trailing punctuation", "Call The Plumber.", "Call The Plumber"},
		{"collapsed whitespace", "  weekly   review \n", "Weekly Review"},
		{"preserves acronyms", "API Design Ideas", "API Design Ideas"},
		{"empty", "   ", ""},
		{"quotes only", "\"\"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.raw); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
