package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"murmur/internal/logging"
)

// Kind identifies a handler in the registry.
type Kind string

const (
	KindTranscriptionStarter Kind = "transcription_starter"
	KindJobScheduler         Kind = "job_scheduler"
	KindModelUnloader        Kind = "model_unloader"
	KindNotifier             Kind = "notifier"
)

// ErrDuplicateHandler is returned when two handlers claim the same kind.
var ErrDuplicateHandler = errors.New("handler kind already registered")

// Handler is the lifecycle contract every cross-cutting handler implements.
// Start subscribes the handler to the bus; Stop releases its subscriptions.
type Handler interface {
	Kind() Kind
	Start(ctx context.Context) error
	Stop()
}

// Registry holds the process's handlers keyed by kind. Lookups return the
// concrete Handler interface; there is no dynamic casting involved.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
	order    []Kind
	started  bool
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		logger:   logger,
		handlers: make(map[Kind]Handler),
	}
}

// Register adds a handler. Registering two handlers of the same kind is a
// wiring bug and is refused.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Kind()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, h.Kind())
	}
	r.handlers[h.Kind()] = h
	r.order = append(r.order, h.Kind())
	return nil
}

// Get returns the handler registered for a kind.
func (r *Registry) Get(kind Kind) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Kind(nil), r.order...)
}

// StartAll starts every handler in registration order. On failure the
// handlers already started are stopped again and the error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("handlers already started")
	}

	var started []Handler
	for _, kind := range r.order {
		h := r.handlers[kind]
		if err := h.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop()
			}
			return fmt.Errorf("start handler %s: %w", kind, err)
		}
		r.logger.Debug("handler started", logging.String(logging.FieldComponent, string(kind)))
		started = append(started, h)
	}
	r.started = true
	return nil
}

// StopAll stops every handler in reverse registration order.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		r.handlers[r.order[i]].Stop()
	}
	r.started = false
}
