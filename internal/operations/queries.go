package operations

import "time"

// IsRecordingActive reports whether a memo currently has a non-terminal
// recording operation. Callers use it to fail fast before attempting
// registration.
func (c *Coordinator) IsRecordingActive(memoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasActiveLocked(TypeRecording, memoID)
}

// CanStartTranscription reports whether a transcription for the memo would be
// admitted right now.
func (c *Coordinator) CanStartTranscription(memoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.hasActiveLocked(TypeRecording, memoID)
}

// Get returns a snapshot of a single operation, or false when the ID is
// unknown.
func (c *Coordinator) Get(id string) (Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// QueuePosition returns the 0-indexed position of a queued operation among
// currently queued operations of the same category, in registration order.
// The second return is false when the operation is unknown or not queued.
func (c *Coordinator) QueuePosition(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target, ok := c.ops[id]
	if !ok || target.Status != StatusQueued {
		return 0, false
	}
	position := 0
	for _, candidateID := range c.order {
		if candidateID == id {
			return position, true
		}
		op := c.ops[candidateID]
		if op != nil && op.Status == StatusQueued && op.Category == target.Category {
			position++
		}
	}
	return 0, false
}

// Summaries returns snapshots of all tracked operations in registration
// order, optionally filtered to the given statuses.
func (c *Coordinator) Summaries(statuses ...Status) []Operation {
	var filter map[Status]struct{}
	if len(statuses) > 0 {
		filter = make(map[Status]struct{}, len(statuses))
		for _, s := range statuses {
			filter[s] = struct{}{}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Operation, 0, len(c.order))
	for _, id := range c.order {
		op := c.ops[id]
		if op == nil {
			continue
		}
		if filter != nil {
			if _, ok := filter[op.Status]; !ok {
				continue
			}
		}
		out = append(out, *op)
	}
	return out
}

// SummariesForMemo returns snapshots of all operations for one memo.
func (c *Coordinator) SummariesForMemo(memoID string) []Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Operation
	for _, id := range c.order {
		op := c.ops[id]
		if op != nil && op.MemoID == memoID {
			out = append(out, *op)
		}
	}
	return out
}

// SystemMetrics aggregates counts, the ceiling, and the average duration of
// retained completed operations.
func (c *Coordinator) SystemMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{Ceiling: c.maxRunning}
	var totalDuration time.Duration
	for _, op := range c.ops {
		m.Total++
		switch op.Status {
		case StatusQueued:
			m.Queued++
		case StatusRunning:
			m.Running++
		case StatusCompleted:
			m.Completed++
			totalDuration += op.Duration()
		case StatusFailed:
			m.Failed++
		case StatusCancelled:
			m.Cancelled++
		}
	}
	if m.Completed > 0 {
		m.AverageDuration = totalDuration / time.Duration(m.Completed)
	}
	return m
}
