package operations

import (
	"murmur/internal/events"
	"murmur/internal/logging"
)

// Complete moves an operation to the completed terminal state. Re-invoking a
// terminal transition is a no-op so racing collaborators can signal
// completion more than once without harm.
func (c *Coordinator) Complete(id string) {
	c.terminate(id, StatusCompleted, "")
}

// Fail moves an operation to the failed terminal state with a reason.
func (c *Coordinator) Fail(id, reason string) {
	c.terminate(id, StatusFailed, reason)
}

// Cancel moves an operation to the cancelled terminal state. Cancellation is
// advisory: the coordinator stops counting the operation against ceilings and
// exclusivity immediately, but the external task must observe cancellation
// itself.
func (c *Coordinator) Cancel(id string) {
	c.terminate(id, StatusCancelled, "")
}

func (c *Coordinator) terminate(id string, target Status, reason string) {
	c.mu.Lock()
	op, ok := c.ops[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("transition requested for unknown operation",
			logging.String(logging.FieldOperationID, id),
			logging.String("target_status", string(target)),
		)
		return
	}
	if op.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	ev := c.terminateLocked(op, target, reason)
	c.mu.Unlock()

	c.publish(ev)
}

// terminateLocked applies a terminal transition and returns the lifecycle
// event to publish. Callers hold c.mu.
func (c *Coordinator) terminateLocked(op *Operation, target Status, reason string) events.Event {
	now := c.clk.Now()
	op.Status = target
	op.CompletedAt = &now
	op.FailureReason = reason
	delete(c.samplers, op.ID)

	switch target {
	case StatusCompleted:
		op.Progress = 1
		return events.OperationCompleted{OperationID: op.ID, MemoID: op.MemoID, Type: string(op.Type)}
	case StatusFailed:
		return events.OperationFailed{OperationID: op.ID, MemoID: op.MemoID, Type: string(op.Type), Reason: reason}
	default:
		return events.OperationCancelled{OperationID: op.ID, MemoID: op.MemoID, Type: string(op.Type)}
	}
}

// CancelAllForMemo cancels every non-terminal operation associated with a
// memo and returns the count affected. Bulk cancellation is best effort, not
// a transactional barrier: registrations racing in after the sweep snapshot
// are unaffected.
func (c *Coordinator) CancelAllForMemo(memoID string) int {
	return c.cancelWhere(func(op *Operation) bool {
		return op.MemoID == memoID
	})
}

// CancelAllOfType cancels every non-terminal operation of the given type.
func (c *Coordinator) CancelAllOfType(typ Type) int {
	return c.cancelWhere(func(op *Operation) bool {
		return op.Type == typ
	})
}

// CancelAll cancels every non-terminal operation.
func (c *Coordinator) CancelAll() int {
	return c.cancelWhere(func(*Operation) bool { return true })
}

func (c *Coordinator) cancelWhere(match func(*Operation) bool) int {
	c.mu.Lock()
	var published []events.Event
	for _, id := range c.order {
		op := c.ops[id]
		if op == nil || op.Status.Terminal() || !match(op) {
			continue
		}
		published = append(published, c.terminateLocked(op, StatusCancelled, ""))
	}
	c.mu.Unlock()

	for _, ev := range published {
		c.publish(ev)
	}
	return len(published)
}

// Reap removes terminal operations whose completion is older than the
// retention window and returns the count removed.
func (c *Coordinator) Reap() int {
	cutoff := c.clk.Now().Add(-c.retention)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	kept := c.order[:0]
	for _, id := range c.order {
		op := c.ops[id]
		if op == nil {
			continue
		}
		if op.Status.Terminal() && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			delete(c.ops, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return removed
}
