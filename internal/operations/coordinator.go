package operations

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/internal/clock"
	"murmur/internal/events"
	"murmur/internal/logging"
)

const (
	defaultMaxRunning = 2
	defaultRetention  = 10 * time.Minute
)

// Coordinator is the central registry of in-flight operations. It enforces
// per-memo exclusivity, the global running ceiling, and per-operation
// lifecycle ordering, and emits lifecycle events on the shared bus.
//
// All methods return quickly; the work an operation represents runs outside
// the coordinator and reports back through the transition methods. Mutating
// calls are expected to arrive from a single logical owner, so events are
// published in the order transitions were applied.
type Coordinator struct {
	bus    *events.Bus
	clk    clock.Clock
	logger *slog.Logger

	maxRunning     int
	retention      time.Duration
	progressBucket float64

	mu       sync.Mutex
	ops      map[string]*Operation
	order    []string
	samplers map[string]*logging.ProgressSampler
}

// CoordinatorOption configures optional Coordinator behavior.
type CoordinatorOption func(*Coordinator)

// WithMaxRunning overrides the global running ceiling.
func WithMaxRunning(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxRunning = n
		}
	}
}

// WithRetention overrides how long terminal operations are retained for
// reporting before Reap removes them.
func WithRetention(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithProgressBucket overrides the percent bucket used to throttle progress
// event re-broadcasts.
func WithProgressBucket(percent float64) CoordinatorOption {
	return func(c *Coordinator) {
		if percent > 0 {
			c.progressBucket = percent
		}
	}
}

// NewCoordinator constructs a coordinator publishing lifecycle events on bus.
func NewCoordinator(bus *events.Bus, clk clock.Clock, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if clk == nil {
		clk = clock.System()
	}
	c := &Coordinator{
		bus:            bus,
		clk:            clk,
		logger:         logging.NewComponentLogger(logger, "operations"),
		maxRunning:     defaultMaxRunning,
		retention:      defaultRetention,
		progressBucket: 5,
		ops:            make(map[string]*Operation),
		samplers:       make(map[string]*logging.ProgressSampler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register admits a new operation in the queued state and returns its ID.
// Registration is refused (empty ID, false) when admitting the operation
// would violate an exclusivity rule: a second recording for a memo that
// already has an active one, or a transcription for a memo whose recording
// is still active. The running ceiling never refuses registration; excess
// operations queue and drain through Start.
func (c *Coordinator) Register(typ Type, memoID string) (string, bool) {
	c.mu.Lock()
	if refused, rule := c.violatesExclusivityLocked(typ, memoID); refused {
		c.mu.Unlock()
		c.logger.Info("operation registration refused",
			logging.String(logging.FieldOperationType, string(typ)),
			logging.String(logging.FieldMemoID, memoID),
			logging.String("rule", rule),
			logging.String(logging.FieldEventType, "registration_refused"),
		)
		return "", false
	}

	op := &Operation{
		ID:        uuid.NewString(),
		Type:      typ,
		Category:  CategoryForType(typ),
		GroupID:   c.groupForLocked(memoID),
		MemoID:    memoID,
		Status:    StatusQueued,
		CreatedAt: c.clk.Now(),
	}
	c.ops[op.ID] = op
	c.order = append(c.order, op.ID)
	c.mu.Unlock()

	c.publish(events.OperationRegistered{OperationID: op.ID, MemoID: memoID, Type: string(typ)})
	return op.ID, true
}

// Start transitions an operation from queued to running. It returns false
// when the operation is unknown, not queued, or the running ceiling is
// exhausted; callers treat a ceiling refusal as "stay queued" and retry on a
// later completion event.
func (c *Coordinator) Start(id string) bool {
	c.mu.Lock()
	op, ok := c.ops[id]
	if !ok || op.Status != StatusQueued {
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("start requested for unknown operation",
				logging.String(logging.FieldOperationID, id))
		}
		return false
	}
	if c.runningCountLocked() >= c.maxRunning {
		c.mu.Unlock()
		return false
	}
	now := c.clk.Now()
	op.Status = StatusRunning
	op.StartedAt = &now
	c.samplers[id] = logging.NewProgressSampler(c.progressBucket)
	ev := events.OperationStarted{OperationID: op.ID, MemoID: op.MemoID, Type: string(op.Type)}
	c.mu.Unlock()

	c.publish(ev)
	return true
}

// UpdateProgress records progress for a running operation; updates for any
// other state are ignored. Re-broadcasts on the bus are throttled through a
// progress sampler, but the broadcasts that do happen preserve the order the
// updates were applied.
func (c *Coordinator) UpdateProgress(id string, fraction float64, label string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	c.mu.Lock()
	op, ok := c.ops[id]
	if !ok || op.Status != StatusRunning {
		c.mu.Unlock()
		return
	}
	op.Progress = fraction
	if label != "" {
		op.ProgressLabel = label
	}
	emit := c.samplers[id].ShouldEmit(fraction*100, label)
	var ev events.Event
	if emit {
		ev = events.OperationProgress{
			OperationID: op.ID,
			MemoID:      op.MemoID,
			Type:        string(op.Type),
			Fraction:    fraction,
			Label:       op.ProgressLabel,
		}
	}
	c.mu.Unlock()

	if ev != nil {
		c.publish(ev)
	}
}

// groupForLocked returns the processing-group ID for a registration.
// Operations registered while the memo still has active work join that
// work's group; once everything for the memo is terminal, the next
// registration opens a new group.
func (c *Coordinator) groupForLocked(memoID string) string {
	if memoID != "" {
		for _, op := range c.ops {
			if op.MemoID == memoID && op.Active() {
				return op.GroupID
			}
		}
	}
	return uuid.NewString()
}

func (c *Coordinator) violatesExclusivityLocked(typ Type, memoID string) (bool, string) {
	if memoID == "" {
		return false, ""
	}
	switch typ {
	case TypeRecording:
		if c.hasActiveLocked(TypeRecording, memoID) {
			return true, "one active recording per memo"
		}
	case TypeTranscription:
		if c.hasActiveLocked(TypeRecording, memoID) {
			return true, "transcription blocked while recording active"
		}
	}
	return false, ""
}

func (c *Coordinator) hasActiveLocked(typ Type, memoID string) bool {
	for _, op := range c.ops {
		if op.Type == typ && op.MemoID == memoID && op.Active() {
			return true
		}
	}
	return false
}

func (c *Coordinator) runningCountLocked() int {
	count := 0
	for _, op := range c.ops {
		if op.Status == StatusRunning {
			count++
		}
	}
	return count
}

func (c *Coordinator) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}
