package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/clock"
	"murmur/internal/services"
)

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	opts = append([]StoreOption{WithClock(clk)}, opts...)
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clk
}

func TestEnqueueCreatesQueuedJob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "memo-1", KindTitle, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.RetryCount != 0 {
		t.Fatalf("job = %+v, want queued with zero retries", job)
	}
}

func TestEnqueueExistingQueuedJobIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, _ := store.Enqueue(ctx, "memo-1", KindTitle, "")
	second, err := store.Enqueue(ctx, "memo-1", KindTitle, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if second.Status != StatusQueued || second.CreatedAt != first.CreatedAt {
		t.Fatalf("second enqueue changed the job: %+v", second)
	}
}

func TestRetryCountPreservedOnRequeueAndIncrementedOnlyOnFailure(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	backoff := DefaultBackoff()

	store.Enqueue(ctx, "memo-1", KindDistill, "summary")
	store.MarkProcessing(ctx, "memo-1", KindDistill)
	job, err := store.MarkFailed(ctx, "memo-1", KindDistill, services.FailureNetwork, "connection reset", backoff)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if job.Status != StatusFailed || job.RetryCount != 1 {
		t.Fatalf("after first failure: %+v, want failed with retryCount 1", job)
	}

	// failed -> queued must preserve the retry count, not reset or bump it.
	job, err = store.Enqueue(ctx, "memo-1", KindDistill, "summary")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.RetryCount != 1 {
		t.Fatalf("after re-enqueue: status=%s retryCount=%d, want queued/1", job.Status, job.RetryCount)
	}
	if job.LastError != "" || job.FailureReason != "" {
		t.Fatalf("error fields must be cleared on requeue: %+v", job)
	}
	if job.NextRetryAt == nil {
		t.Fatal("backoff window must survive the requeue")
	}

	store.MarkProcessing(ctx, "memo-1", KindDistill)
	job, err = store.MarkFailed(ctx, "memo-1", KindDistill, services.FailureTimeout, "deadline exceeded", backoff)
	if err != nil {
		t.Fatalf("second MarkFailed: %v", err)
	}
	if job.RetryCount != 2 {
		t.Fatalf("after second failure retryCount = %d, want exactly 2", job.RetryCount)
	}
	if job.FailureReason != services.FailureTimeout || job.LastError != "deadline exceeded" {
		t.Fatalf("failure fields = %+v", job)
	}
}

func TestMarkFailedSchedulesExponentialBackoff(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()
	backoff := Backoff{Base: 2 * time.Second, Max: time.Hour}

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	job, _ := store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", backoff)

	if job.NextRetryAt == nil {
		t.Fatal("expected next retry to be scheduled")
	}
	want := clk.Now().Add(4 * time.Second) // base × 2^1 after the first failure
	if !job.NextRetryAt.Equal(want) {
		t.Fatalf("NextRetryAt = %v, want %v", job.NextRetryAt, want)
	}
}

func TestMarkProcessingRequiresQueued(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.MarkProcessing(ctx, "memo-1", KindTitle); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	if _, err := store.MarkProcessing(ctx, "memo-1", KindTitle); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkFailedRequiresProcessing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	if _, err := store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureUnknown, "x", DefaultBackoff()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from queued, got %v", err)
	}
}

func TestEnqueueCompletedJobRefused(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkCompleted(ctx, "memo-1", KindTitle)

	if _, err := store.Enqueue(ctx, "memo-1", KindTitle, ""); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
}

func TestDueJobsHonorsBackoffWindow(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()
	backoff := Backoff{Base: 10 * time.Second, Max: time.Hour}

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", backoff)
	store.Enqueue(ctx, "memo-1", KindTitle, "")

	due, err := store.DueJobs(ctx, clk.Now())
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("job should not be due inside the backoff window, got %d", len(due))
	}

	clk.Advance(time.Minute)
	due, err = store.DueJobs(ctx, clk.Now())
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 1 || due[0].MemoID != "memo-1" {
		t.Fatalf("expected job due after backoff, got %v", due)
	}
}

func TestRequeueClearsBackoffWindow(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	due, _ := store.DueJobs(ctx, clk.Now())
	if len(due) != 1 {
		t.Fatalf("fresh queued job should be immediately due, got %d", len(due))
	}
}

func TestRetryNowClearsBackoffWindow(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()
	backoff := Backoff{Base: time.Hour, Max: 24 * time.Hour}

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", backoff)

	job, err := store.RetryNow(ctx, "memo-1", KindTitle)
	if err != nil {
		t.Fatalf("RetryNow: %v", err)
	}
	if job.Status != StatusQueued || job.RetryCount != 1 || job.NextRetryAt != nil {
		t.Fatalf("after RetryNow: %+v", job)
	}

	due, _ := store.DueJobs(ctx, clk.Now())
	if len(due) != 1 {
		t.Fatalf("job should be immediately due after manual retry, got %d", len(due))
	}

	// Only failed jobs can be manually retried.
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	if _, err := store.RetryNow(ctx, "memo-1", KindTitle); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDueJobsCorrectWithNonUTCClock(t *testing.T) {
	zone := time.FixedZone("UTC+9", 9*3600)
	clk := clock.NewManual(time.Date(2026, 3, 1, 17, 0, 0, 0, zone))
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"), WithClock(clk))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	backoff := Backoff{Base: 10 * time.Second, Max: time.Hour}

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", backoff)
	store.Enqueue(ctx, "memo-1", KindTitle, "")

	if due, _ := store.DueJobs(ctx, clk.Now()); len(due) != 0 {
		t.Fatalf("job should not be due inside the backoff window, got %d", len(due))
	}

	clk.Advance(time.Minute)
	due, err := store.DueJobs(ctx, clk.Now())
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("job with an elapsed window must be due regardless of clock zone, got %d", len(due))
	}
}

func TestRequeueProcessingReleasesSingleClaim(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", DefaultBackoff())
	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)

	store.Enqueue(ctx, "memo-2", KindDistill, "")
	store.MarkProcessing(ctx, "memo-2", KindDistill)

	job, err := store.RequeueProcessing(ctx, "memo-1", KindTitle)
	if err != nil {
		t.Fatalf("RequeueProcessing: %v", err)
	}
	if job.Status != StatusQueued || job.RetryCount != 1 || job.NextRetryAt != nil {
		t.Fatalf("after requeue: %+v, want queued with retryCount 1 and no window", job)
	}

	// The other claim stays untouched.
	other, _ := store.JobFor(ctx, "memo-2", KindDistill)
	if other.Status != StatusProcessing {
		t.Fatalf("unrelated job = %s, want processing", other.Status)
	}

	if _, err := store.RequeueProcessing(ctx, "memo-1", KindTitle); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for a queued job, got %v", err)
	}
}

func TestResetStuckProcessingPreservesRetryCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkFailed(ctx, "memo-1", KindTitle, services.FailureNetwork, "x", DefaultBackoff())
	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)

	affected, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	job, _ := store.JobFor(ctx, "memo-1", KindTitle)
	if job.Status != StatusQueued || job.RetryCount != 1 {
		t.Fatalf("after reset: status=%s retryCount=%d, want queued/1", job.Status, job.RetryCount)
	}
}

func TestChangePublisherSeesEveryTransition(t *testing.T) {
	var statuses []Status
	store, _ := newTestStore(t, WithChangePublisher(func(j Job) {
		statuses = append(statuses, j.Status)
	}))
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.MarkProcessing(ctx, "memo-1", KindTitle)
	store.MarkCompleted(ctx, "memo-1", KindTitle)

	want := []Status{StatusQueued, StatusProcessing, StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("published statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("published statuses = %v, want %v", statuses, want)
		}
	}
}

func TestJobForUnknownReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)
	job, err := store.JobFor(context.Background(), "nobody", KindTitle)
	if err != nil {
		t.Fatalf("JobFor: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestDeleteForMemoAndStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Enqueue(ctx, "memo-1", KindTitle, "")
	store.Enqueue(ctx, "memo-1", KindDistill, "summary")
	store.Enqueue(ctx, "memo-2", KindTitle, "")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StatusQueued] != 3 {
		t.Fatalf("queued count = %d, want 3", stats[StatusQueued])
	}

	removed, err := store.DeleteForMemo(ctx, "memo-1")
	if err != nil {
		t.Fatalf("DeleteForMemo: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	all, _ := store.AllJobs(ctx)
	if len(all) != 1 || all[0].MemoID != "memo-2" {
		t.Fatalf("remaining jobs = %v", all)
	}
}

func TestExhaustedRetries(t *testing.T) {
	job := Job{RetryCount: 5}
	if !job.ExhaustedRetries(5) {
		t.Fatal("retryCount at ceiling should be exhausted")
	}
	if job.ExhaustedRetries(6) {
		t.Fatal("retryCount below ceiling should not be exhausted")
	}
	if job.ExhaustedRetries(0) {
		t.Fatal("zero ceiling disables the check")
	}
}
