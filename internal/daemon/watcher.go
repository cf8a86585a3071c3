package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"murmur/internal/events"
	"murmur/internal/logging"
	"murmur/internal/memos"
)

var audioExtensions = map[string]struct{}{
	".m4a":  {},
	".mp3":  {},
	".wav":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".aac":  {},
}

const (
	defaultSettleDelay  = 2 * time.Second
	defaultFallbackPoll = 30 * time.Second
)

// WatcherOption configures optional Watcher behavior.
type WatcherOption func(*Watcher)

// WithSettleDelay overrides how long a file must sit unmodified before it is
// treated as fully written.
func WithSettleDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settleDelay = d
		}
	}
}

// WithFallbackPoll overrides the safety-net rescan interval used alongside
// filesystem notifications.
func WithFallbackPoll(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.fallbackPoll = d
		}
	}
}

// Watcher ingests new recordings from the inbox directory. Filesystem
// notifications trigger scans, with a periodic fallback rescan in case events
// are dropped; when notifications are unavailable it degrades to pure polling.
type Watcher struct {
	inboxDir     string
	store        *memos.Store
	bus          *events.Bus
	logger       *slog.Logger
	settleDelay  time.Duration
	fallbackPoll time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher constructs an inbox watcher.
func NewWatcher(inboxDir string, store *memos.Store, bus *events.Bus, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Watcher{
		inboxDir:     inboxDir,
		store:        store,
		bus:          bus,
		logger:       logging.NewComponentLogger(logger, "watcher"),
		settleDelay:  defaultSettleDelay,
		fallbackPoll: defaultFallbackPoll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the watch loop after a catch-up scan of files already in the
// inbox.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.Scan(ctx); err != nil {
		return fmt.Errorf("initial inbox scan: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	return nil
}

// Stop halts the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem notifications unavailable, falling back to polling", logging.Error(err))
		w.pollLoop(ctx, w.fallbackPoll)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.inboxDir); err != nil {
		w.logger.Warn("watch inbox directory, falling back to polling", logging.Error(err))
		w.pollLoop(ctx, w.fallbackPoll)
		return
	}

	ticker := time.NewTicker(w.fallbackPoll)
	defer ticker.Stop()

	// A just-created file is rarely settled; re-scan shortly after each burst
	// of events so partially written recordings get picked up.
	var settle *time.Timer
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()
	settleC := func() <-chan time.Time {
		if settle == nil {
			return nil
		}
		return settle.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			w.scanAndLog(ctx)
			if settle == nil {
				settle = time.NewTimer(w.settleDelay + time.Second)
			} else {
				settle.Reset(w.settleDelay + time.Second)
			}
		case <-settleC():
			w.scanAndLog(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", logging.Error(err))
		case <-ticker.C:
			w.scanAndLog(ctx)
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanAndLog(ctx)
		}
	}
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	if err := w.Scan(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("inbox scan failed", logging.Error(err))
	}
}

// Scan walks the inbox once, registering every settled audio file that is not
// yet tracked and announcing each new memo on the bus.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.inboxDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if w.settleDelay > 0 && time.Since(info.ModTime()) < w.settleDelay {
			continue
		}

		existing, err := w.store.ByAudioPath(ctx, path)
		if err != nil {
			return fmt.Errorf("check memo for %s: %w", path, err)
		}
		if existing != nil {
			continue
		}

		memo, err := w.store.Create(ctx, path, 0)
		if err != nil {
			return fmt.Errorf("register memo for %s: %w", path, err)
		}
		w.logger.Info("memo detected",
			logging.String(logging.FieldMemoID, memo.ID),
			logging.String("audio_path", memo.AudioPath),
		)
		w.bus.Publish(events.MemoCreated{
			MemoID:    memo.ID,
			AudioPath: memo.AudioPath,
			Title:     memo.Title,
		})
	}
	return nil
}

func isAudioFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
