package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/internal/clock"
	"murmur/internal/logging"
)

const (
	defaultCleanupInterval  = 30 * time.Second
	defaultCleanupThreshold = 64
)

// SubscriptionID is the opaque handle returned by Subscribe.
type SubscriptionID string

// Owner scopes a subscription's lifetime. Closing the owner invalidates every
// subscription registered with it; the bus prunes invalid entries lazily on
// publish. A nil owner means the subscription lives until Unsubscribe.
type Owner struct {
	closed atomic.Bool
}

// NewOwner creates an open subscription owner.
func NewOwner() *Owner {
	return &Owner{}
}

// Close invalidates all subscriptions registered with this owner. Idempotent.
func (o *Owner) Close() {
	if o != nil {
		o.closed.Store(true)
	}
}

// Closed reports whether the owner has been closed.
func (o *Owner) Closed() bool {
	return o != nil && o.closed.Load()
}

type subscription struct {
	id    SubscriptionID
	kinds map[Kind]struct{} // empty means all kinds
	owner *Owner
	fn    func(Event)
}

func (s *subscription) dead() bool {
	return s.owner.Closed()
}

func (s *subscription) matches(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Bus is the in-process publish/subscribe hub. One shared instance is wired
// at process start and injected into every component that needs it.
//
// Delivery is synchronous in the caller of Publish, in subscription
// registration order. Subscribers that need asynchrony dispatch inside their
// own callback; the bus itself never reorders or defers.
type Bus struct {
	clk    clock.Clock
	logger *slog.Logger

	cleanupInterval  time.Duration
	cleanupThreshold int

	mu          sync.Mutex
	order       []*subscription
	byID        map[SubscriptionID]*subscription
	lastCleanup time.Time
}

// BusOption configures optional Bus behavior.
type BusOption func(*Bus)

// WithCleanupInterval overrides how often closed-owner subscriptions are swept.
func WithCleanupInterval(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.cleanupInterval = d
		}
	}
}

// WithCleanupThreshold overrides the subscription count that forces a sweep.
func WithCleanupThreshold(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.cleanupThreshold = n
		}
	}
}

// NewBus constructs an event bus. A nil clock falls back to the system clock;
// a nil logger falls back to a no-op logger.
func NewBus(clk clock.Clock, logger *slog.Logger, opts ...BusOption) *Bus {
	if clk == nil {
		clk = clock.System()
	}
	bus := &Bus{
		clk:              clk,
		logger:           logging.NewComponentLogger(logger, "events"),
		cleanupInterval:  defaultCleanupInterval,
		cleanupThreshold: defaultCleanupThreshold,
		byID:             make(map[SubscriptionID]*subscription),
		lastCleanup:      clk.Now(),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Subscribe registers a callback for the given kinds (no kinds means every
// event). When owner is non-nil the subscription dies with the owner; the bus
// sweeps dead entries lazily. The callback must not be nil.
func (b *Bus) Subscribe(owner *Owner, fn func(Event), kinds ...Kind) SubscriptionID {
	if fn == nil {
		return ""
	}
	sub := &subscription{
		id:    SubscriptionID(uuid.NewString()),
		owner: owner,
		fn:    fn,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	b.mu.Lock()
	b.order = append(b.order, sub)
	b.byID[sub.id] = sub
	b.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a specific subscription. Removing an unknown or already
// removed ID is a no-op.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[id]; !ok {
		return
	}
	delete(b.byID, id)
	b.removeFromOrder(id)
}

// RemoveAllSubscriptions drops every subscription. Used by tests and shutdown.
func (b *Bus) RemoveAllSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.byID = make(map[SubscriptionID]*subscription)
}

// SubscriberCount returns the number of tracked subscriptions, including dead
// entries not yet swept.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Publish delivers event synchronously to every live matching subscriber in
// registration order. Publish never fails: dead subscriptions are skipped
// silently and a panicking callback is contained and logged without
// disturbing later deliveries or bus state.
func (b *Bus) Publish(event Event) {
	if event == nil {
		return
	}
	kind := event.EventKind()

	b.mu.Lock()
	b.maybeCleanupLocked()
	targets := make([]*subscription, 0, len(b.order))
	for _, sub := range b.order {
		if sub.dead() || !sub.matches(kind) {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if sub.dead() {
			continue
		}
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked",
				logging.String("subscription_id", string(sub.id)),
				logging.String(logging.FieldEventType, "subscriber_panic"),
				logging.Any("panic", r),
			)
		}
	}()
	sub.fn(event)
}

// maybeCleanupLocked sweeps closed-owner subscriptions when the cleanup
// interval has elapsed or the table has outgrown the threshold, whichever
// comes first. Called with b.mu held on every publish so the common path
// stays cheap.
func (b *Bus) maybeCleanupLocked() {
	now := b.clk.Now()
	if now.Sub(b.lastCleanup) < b.cleanupInterval && len(b.order) <= b.cleanupThreshold {
		return
	}
	b.lastCleanup = now

	kept := b.order[:0]
	for _, sub := range b.order {
		if sub.dead() {
			delete(b.byID, sub.id)
			continue
		}
		kept = append(kept, sub)
	}
	for i := len(kept); i < len(b.order); i++ {
		b.order[i] = nil
	}
	b.order = kept
}

func (b *Bus) removeFromOrder(id SubscriptionID) {
	for i, sub := range b.order {
		if sub.id == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
