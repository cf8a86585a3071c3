package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/events"
	"murmur/internal/logging"
)

// ModelHost can release a loaded transcription model from memory.
type ModelHost interface {
	UnloadModel()
}

// ModelUnloader frees the transcription model after a configurable idle
// period. New transcription activity disarms the timer; the next completion
// re-arms it.
type ModelUnloader struct {
	bus    *events.Bus
	host   ModelHost
	idle   time.Duration
	logger *slog.Logger
	owner  *events.Owner

	mu    sync.Mutex
	timer *time.Timer
}

// NewModelUnloader wires the unloader over the shared bus. An idle duration
// of zero disables it.
func NewModelUnloader(bus *events.Bus, host ModelHost, idle time.Duration, logger *slog.Logger) *ModelUnloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ModelUnloader{bus: bus, host: host, idle: idle, logger: logger}
}

func (u *ModelUnloader) Kind() Kind { return KindModelUnloader }

// Start subscribes to transcription lifecycle events.
func (u *ModelUnloader) Start(context.Context) error {
	if u.idle <= 0 {
		return nil
	}
	u.owner = events.NewOwner()
	u.bus.Subscribe(u.owner, func(e events.Event) {
		switch e.EventKind() {
		case events.KindTranscriptionCompleted:
			u.arm()
		case events.KindTranscriptionProgress, events.KindRecordingStarted:
			u.disarm()
		}
	}, events.KindTranscriptionCompleted, events.KindTranscriptionProgress, events.KindRecordingStarted)
	return nil
}

func (u *ModelUnloader) arm() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.timer != nil {
		u.timer.Stop()
	}
	u.timer = time.AfterFunc(u.idle, func() {
		u.logger.Info("unloading idle transcription model",
			logging.Duration("idle", u.idle),
		)
		u.host.UnloadModel()
	})
}

func (u *ModelUnloader) disarm() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
}

// Stop releases the subscription and any pending timer.
func (u *ModelUnloader) Stop() {
	if u.owner != nil {
		u.owner.Close()
	}
	u.disarm()
}
