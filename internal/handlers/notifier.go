package handlers

import (
	"context"
	"log/slog"
	"time"

	"murmur/internal/events"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/memos"
	"murmur/internal/notifications"
)

// MemoTitles resolves a memo's current title for notification text.
type MemoTitles interface {
	ByID(ctx context.Context, id string) (*memos.Memo, error)
}

const notifyTimeout = 15 * time.Second

// Notifier bridges bus events to the push notification service. Sends run
// on their own goroutine so network latency never blocks a publisher.
type Notifier struct {
	bus    *events.Bus
	svc    notifications.Service
	titles MemoTitles
	logger *slog.Logger
	owner  *events.Owner
}

// NewNotifier wires the notification bridge over the shared bus.
func NewNotifier(bus *events.Bus, svc notifications.Service, titles MemoTitles, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{bus: bus, svc: svc, titles: titles, logger: logger}
}

func (n *Notifier) Kind() Kind { return KindNotifier }

// Start subscribes to the notification-worthy events.
func (n *Notifier) Start(context.Context) error {
	n.owner = events.NewOwner()
	n.bus.Subscribe(n.owner, func(e events.Event) {
		go n.deliver(e)
	},
		events.KindMemoCreated,
		events.KindTranscriptionCompleted,
		events.KindAnalysisCompleted,
		events.KindJobsChanged,
	)
	return nil
}

func (n *Notifier) deliver(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	switch ev := e.(type) {
	case events.MemoCreated:
		err = n.svc.NotifyMemoDetected(ctx, ev.Title)
	case events.TranscriptionCompleted:
		title, duration := n.describe(ctx, ev.MemoID)
		err = n.svc.NotifyTranscriptionCompleted(ctx, title, duration)
	case events.AnalysisCompleted:
		if ev.Mode != "distill" {
			return
		}
		title, _ := n.describe(ctx, ev.MemoID)
		err = n.svc.NotifyMemoReady(ctx, title, title)
	case events.JobsChanged:
		if ev.Status != string(jobs.StatusFailed) {
			return
		}
		title, _ := n.describe(ctx, ev.MemoID)
		err = n.svc.NotifyJobFailed(ctx, title, ev.Kind, ev.Error)
	default:
		return
	}
	if err != nil {
		n.logger.Warn("notification delivery failed",
			logging.String(logging.FieldEventType, string(e.EventKind())),
			logging.Error(err),
		)
	}
}

func (n *Notifier) describe(ctx context.Context, memoID string) (string, time.Duration) {
	if n.titles == nil {
		return memoID, 0
	}
	memo, err := n.titles.ByID(ctx, memoID)
	if err != nil || memo == nil {
		return memoID, 0
	}
	return memo.Title, time.Duration(memo.DurationSeconds * float64(time.Second))
}

// Stop releases the bus subscription.
func (n *Notifier) Stop() {
	if n.owner != nil {
		n.owner.Close()
	}
}
