package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"murmur/internal/clock"
	"murmur/internal/events"
	"murmur/internal/jobs"
)

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	return events.NewBus(clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)), nil)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (r *fakeRunner) Transcribe(_ context.Context, memoID, audioPath string) error {
	r.mu.Lock()
	r.calls = append(r.calls, memoID+":"+audioPath)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestTranscriptionStarterReactsToMemoCreated(t *testing.T) {
	bus := newTestBus(t)
	runner := &fakeRunner{done: make(chan struct{}, 1)}
	starter := NewTranscriptionStarter(bus, runner, nil)

	if err := starter.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer starter.Stop()

	bus.Publish(events.MemoCreated{MemoID: "memo-1", AudioPath: "/inbox/a.m4a"})
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("transcription never started")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.calls) != 1 || runner.calls[0] != "memo-1:/inbox/a.m4a" {
		t.Fatalf("calls = %v", runner.calls)
	}
}

func TestTranscriptionStarterIgnoresOtherEventsAfterStop(t *testing.T) {
	bus := newTestBus(t)
	runner := &fakeRunner{done: make(chan struct{}, 1)}
	starter := NewTranscriptionStarter(bus, runner, nil)
	starter.Start(context.Background())
	starter.Stop()

	bus.Publish(events.MemoCreated{MemoID: "memo-1", AudioPath: "/inbox/a.m4a"})
	select {
	case <-runner.done:
		t.Fatal("stopped handler still received events")
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, memoID string, kind jobs.Kind, mode string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, memoID+"/"+string(kind)+"/"+mode)
	return &jobs.Job{MemoID: memoID, Kind: kind, Mode: mode, Status: jobs.StatusQueued}, nil
}

func TestJobSchedulerEnqueuesTitleAndDistill(t *testing.T) {
	bus := newTestBus(t)
	store := &fakeEnqueuer{}
	scheduler := NewJobScheduler(bus, store, nil)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	bus.Publish(events.TranscriptionCompleted{MemoID: "memo-1", Text: "hello"})

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.calls) != 2 {
		t.Fatalf("enqueued %d jobs, want 2: %v", len(store.calls), store.calls)
	}
	if store.calls[0] != "memo-1/title/" || store.calls[1] != "memo-1/distill/distill" {
		t.Fatalf("calls = %v", store.calls)
	}
}

type fakeHost struct {
	unloaded chan struct{}
}

func (h *fakeHost) UnloadModel() { h.unloaded <- struct{}{} }

func TestModelUnloaderFiresAfterIdle(t *testing.T) {
	bus := newTestBus(t)
	host := &fakeHost{unloaded: make(chan struct{}, 1)}
	unloader := NewModelUnloader(bus, host, 20*time.Millisecond, nil)
	unloader.Start(context.Background())
	defer unloader.Stop()

	bus.Publish(events.TranscriptionCompleted{MemoID: "memo-1"})
	select {
	case <-host.unloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("model never unloaded")
	}
}

func TestModelUnloaderDisarmedByNewActivity(t *testing.T) {
	bus := newTestBus(t)
	host := &fakeHost{unloaded: make(chan struct{}, 1)}
	unloader := NewModelUnloader(bus, host, 30*time.Millisecond, nil)
	unloader.Start(context.Background())
	defer unloader.Stop()

	bus.Publish(events.TranscriptionCompleted{MemoID: "memo-1"})
	bus.Publish(events.TranscriptionProgress{MemoID: "memo-2", Fraction: 0.1})

	select {
	case <-host.unloaded:
		t.Fatal("unload fired despite new activity")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestModelUnloaderDisabledWithZeroIdle(t *testing.T) {
	bus := newTestBus(t)
	host := &fakeHost{unloaded: make(chan struct{}, 1)}
	unloader := NewModelUnloader(bus, host, 0, nil)
	if err := unloader.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer unloader.Stop()

	bus.Publish(events.TranscriptionCompleted{MemoID: "memo-1"})
	if bus.SubscriberCount() != 0 {
		t.Fatalf("disabled unloader subscribed anyway, count = %d", bus.SubscriberCount())
	}
}
