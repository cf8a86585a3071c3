package operations

import (
	"testing"
	"time"

	"murmur/internal/clock"
	"murmur/internal/events"
)

func newTestCoordinator(t *testing.T, opts ...CoordinatorOption) (*Coordinator, *events.Bus, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := events.NewBus(clk, nil)
	return NewCoordinator(bus, clk, nil, opts...), bus, clk
}

func TestRegisterRefusesSecondRecordingForSameMemo(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	first, ok := c.Register(TypeRecording, "memo-1")
	if !ok || first == "" {
		t.Fatal("first recording should be admitted")
	}
	if _, ok := c.Register(TypeRecording, "memo-1"); ok {
		t.Fatal("second recording for the same memo must be refused")
	}
	if _, ok := c.Register(TypeRecording, "memo-2"); !ok {
		t.Fatal("recording for a different memo must be unaffected")
	}
}

func TestRegisterGroupsActiveMemoWork(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	txID, _ := c.Register(TypeTranscription, "memo-1")
	anID, _ := c.Register(TypeAnalysis, "memo-1")
	tx, _ := c.Get(txID)
	an, _ := c.Get(anID)
	if tx.GroupID == "" {
		t.Fatal("operation has no group")
	}
	if tx.GroupID != an.GroupID {
		t.Fatalf("concurrent work for one memo split across groups %q and %q", tx.GroupID, an.GroupID)
	}

	otherID, _ := c.Register(TypeTranscription, "memo-2")
	if other, _ := c.Get(otherID); other.GroupID == tx.GroupID {
		t.Fatal("different memos must not share a group")
	}

	c.Cancel(txID)
	c.Cancel(anID)
	nextID, _ := c.Register(TypeTranscription, "memo-1")
	if next, _ := c.Get(nextID); next.GroupID == tx.GroupID {
		t.Fatal("new batch after all work finished should open a new group")
	}
}

func TestRegisterRefusesTranscriptionWhileRecordingActive(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	recID, _ := c.Register(TypeRecording, "memo-1")
	if _, ok := c.Register(TypeTranscription, "memo-1"); ok {
		t.Fatal("transcription must be refused while recording is active")
	}

	c.Complete(recID)
	if _, ok := c.Register(TypeTranscription, "memo-1"); !ok {
		t.Fatal("transcription should be admitted after recording completed")
	}
}

func TestCeilingQueuesInsteadOfRefusing(t *testing.T) {
	c, _, _ := newTestCoordinator(t, WithMaxRunning(2))

	var ids []string
	for i := 0; i < 3; i++ {
		id, ok := c.Register(TypeAnalysis, "memo-1")
		if !ok {
			t.Fatalf("analysis registration %d refused; ceiling must queue, not refuse", i)
		}
		ids = append(ids, id)
	}

	if !c.Start(ids[0]) || !c.Start(ids[1]) {
		t.Fatal("first two operations should start under ceiling 2")
	}
	if c.Start(ids[2]) {
		t.Fatal("third start must be refused while ceiling exhausted")
	}

	if pos, ok := c.QueuePosition(ids[2]); !ok || pos != 0 {
		t.Fatalf("queued operation position = %d, %v; want 0, true", pos, ok)
	}

	c.Complete(ids[0])
	if !c.Start(ids[2]) {
		t.Fatal("third start should succeed after a completion freed the ceiling")
	}
	if _, ok := c.QueuePosition(ids[2]); ok {
		t.Fatal("running operation must have no queue position")
	}
}

func TestQueuePositionCountsOnlySameCategory(t *testing.T) {
	c, _, _ := newTestCoordinator(t, WithMaxRunning(1))

	recID, _ := c.Register(TypeRecording, "memo-1")
	a1, _ := c.Register(TypeAnalysis, "memo-2")
	a2, _ := c.Register(TypeAnalysis, "memo-3")

	if pos, ok := c.QueuePosition(recID); !ok || pos != 0 {
		t.Fatalf("recording position = %d, %v; want 0, true", pos, ok)
	}
	if pos, ok := c.QueuePosition(a1); !ok || pos != 0 {
		t.Fatalf("first analysis position = %d, %v; want 0, true", pos, ok)
	}
	if pos, ok := c.QueuePosition(a2); !ok || pos != 1 {
		t.Fatalf("second analysis position = %d, %v; want 1, true", pos, ok)
	}
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id, _ := c.Register(TypeAnalysis, "memo-1")
	c.Start(id)
	c.Complete(id)
	c.Complete(id)
	c.Fail(id, "late failure signal")
	c.Cancel(id)

	op, ok := c.Get(id)
	if !ok {
		t.Fatal("operation should still be retained")
	}
	if op.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed after duplicate terminal signals", op.Status)
	}
	if op.FailureReason != "" {
		t.Fatalf("failure reason should stay empty, got %q", op.FailureReason)
	}
}

func TestUpdateProgressIgnoredUnlessRunning(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id, _ := c.Register(TypeTranscription, "memo-1")
	c.UpdateProgress(id, 0.5, "transcribing")
	op, _ := c.Get(id)
	if op.Progress != 0 {
		t.Fatalf("queued operation progress = %v, want 0", op.Progress)
	}

	c.Start(id)
	c.UpdateProgress(id, 0.5, "transcribing")
	op, _ = c.Get(id)
	if op.Progress != 0.5 || op.ProgressLabel != "transcribing" {
		t.Fatalf("progress = %v %q, want 0.5 transcribing", op.Progress, op.ProgressLabel)
	}

	c.Complete(id)
	c.UpdateProgress(id, 0.7, "late")
	op, _ = c.Get(id)
	if op.Progress != 1 {
		t.Fatalf("completed operation progress = %v, want 1", op.Progress)
	}
}

func TestProgressEventsThrottledButOrdered(t *testing.T) {
	c, bus, _ := newTestCoordinator(t, WithProgressBucket(10))

	var fractions []float64
	bus.Subscribe(nil, func(e events.Event) {
		if prog, ok := e.(events.OperationProgress); ok {
			fractions = append(fractions, prog.Fraction)
		}
	}, events.KindOperationProgress)

	id, _ := c.Register(TypeTranscription, "memo-1")
	c.Start(id)
	for _, f := range []float64{0.01, 0.02, 0.05, 0.12, 0.13, 0.31, 0.32, 0.95} {
		c.UpdateProgress(id, f, "transcribing")
	}

	if len(fractions) >= 8 {
		t.Fatalf("expected throttling to drop some broadcasts, got all %d", len(fractions))
	}
	if len(fractions) == 0 {
		t.Fatal("expected at least one progress broadcast")
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("broadcast order %v does not match update order", fractions)
		}
	}
}

func TestCancelAllForMemo(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	r1, _ := c.Register(TypeRecording, "memo-1")
	a1, _ := c.Register(TypeAnalysis, "memo-1")
	other, _ := c.Register(TypeAnalysis, "memo-2")
	done, _ := c.Register(TypeDistillGeneration, "memo-1")
	c.Start(done)
	c.Complete(done)

	if got := c.CancelAllForMemo("memo-1"); got != 2 {
		t.Fatalf("CancelAllForMemo = %d, want 2", got)
	}
	for _, id := range []string{r1, a1} {
		op, _ := c.Get(id)
		if op.Status != StatusCancelled {
			t.Fatalf("operation %s status = %q, want cancelled", id, op.Status)
		}
	}
	op, _ := c.Get(other)
	if op.Status != StatusQueued {
		t.Fatalf("other memo's operation status = %q, want queued", op.Status)
	}
	op, _ = c.Get(done)
	if op.Status != StatusCompleted {
		t.Fatalf("terminal operation status = %q, must stay completed", op.Status)
	}
}

func TestCancelAllOfTypeAndCancelAll(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	c.Register(TypeAnalysis, "memo-1")
	c.Register(TypeAnalysis, "memo-2")
	c.Register(TypeRecording, "memo-3")

	if got := c.CancelAllOfType(TypeAnalysis); got != 2 {
		t.Fatalf("CancelAllOfType = %d, want 2", got)
	}
	if got := c.CancelAll(); got != 1 {
		t.Fatalf("CancelAll = %d, want 1", got)
	}
	if got := c.CancelAll(); got != 0 {
		t.Fatalf("repeat CancelAll = %d, want 0", got)
	}
}

func TestExclusivityQueries(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if c.IsRecordingActive("memo-1") {
		t.Fatal("no recording should be active initially")
	}
	if !c.CanStartTranscription("memo-1") {
		t.Fatal("transcription should be allowed initially")
	}

	id, _ := c.Register(TypeRecording, "memo-1")
	if !c.IsRecordingActive("memo-1") {
		t.Fatal("recording should be active after registration")
	}
	if c.CanStartTranscription("memo-1") {
		t.Fatal("transcription should be blocked while recording active")
	}
	if !c.CanStartTranscription("memo-2") {
		t.Fatal("other memo must be unaffected")
	}

	c.Cancel(id)
	if c.IsRecordingActive("memo-1") {
		t.Fatal("cancelled recording must stop counting immediately")
	}
}

func TestSystemMetrics(t *testing.T) {
	c, _, clk := newTestCoordinator(t, WithMaxRunning(3))

	a, _ := c.Register(TypeAnalysis, "memo-1")
	b, _ := c.Register(TypeAnalysis, "memo-2")
	c.Register(TypeAnalysis, "memo-3")

	c.Start(a)
	c.Start(b)
	clk.Advance(4 * time.Second)
	c.Complete(a)
	clk.Advance(4 * time.Second)
	c.Complete(b)

	m := c.SystemMetrics()
	if m.Total != 3 || m.Queued != 1 || m.Running != 0 || m.Completed != 2 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.Ceiling != 3 {
		t.Fatalf("ceiling = %d, want 3", m.Ceiling)
	}
	if m.AverageDuration != 6*time.Second {
		t.Fatalf("average duration = %v, want 6s", m.AverageDuration)
	}
}

func TestReapRemovesOldTerminalOperations(t *testing.T) {
	c, _, clk := newTestCoordinator(t, WithRetention(time.Minute))

	done, _ := c.Register(TypeAnalysis, "memo-1")
	c.Start(done)
	c.Complete(done)
	live, _ := c.Register(TypeAnalysis, "memo-2")

	if got := c.Reap(); got != 0 {
		t.Fatalf("Reap before retention elapsed = %d, want 0", got)
	}

	clk.Advance(2 * time.Minute)
	if got := c.Reap(); got != 1 {
		t.Fatalf("Reap = %d, want 1", got)
	}
	if _, ok := c.Get(done); ok {
		t.Fatal("reaped operation should be gone")
	}
	if _, ok := c.Get(live); !ok {
		t.Fatal("queued operation must survive reaping")
	}
}

func TestSummariesFilterAndOrder(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	a, _ := c.Register(TypeAnalysis, "memo-1")
	b, _ := c.Register(TypeRecording, "memo-2")
	c.Start(a)

	all := c.Summaries()
	if len(all) != 2 || all[0].ID != a || all[1].ID != b {
		t.Fatalf("expected registration order, got %v", all)
	}

	queued := c.Summaries(StatusQueued)
	if len(queued) != 1 || queued[0].ID != b {
		t.Fatalf("queued filter returned %v", queued)
	}

	forMemo := c.SummariesForMemo("memo-1")
	if len(forMemo) != 1 || forMemo[0].ID != a {
		t.Fatalf("memo filter returned %v", forMemo)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	c, bus, _ := newTestCoordinator(t)

	var kinds []events.Kind
	bus.Subscribe(nil, func(e events.Event) { kinds = append(kinds, e.EventKind()) })

	id, _ := c.Register(TypeAnalysis, "memo-1")
	c.Start(id)
	c.Complete(id)

	want := []events.Kind{events.KindOperationRegistered, events.KindOperationStarted, events.KindOperationCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("published kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("published kinds = %v, want %v", kinds, want)
		}
	}
}
