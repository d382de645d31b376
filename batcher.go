package modguard

import (
	"errors"
	"sync"
	"time"
)

// ErrBatcherClosed is returned by Get once Stop has drained all pending
// items.
var ErrBatcherClosed = errors.New("modguard: batcher closed")

// Batcher accumulates submitted envelopes and flushes a MessageBatch when
// either max_batch_size items are pending or max_delay has elapsed since the
// first item of the current accumulation cycle was submitted. The queue of
// flushed-but-not-yet-consumed batches is an unbounded slice guarded by a
// sync.Cond, not a fixed-capacity channel: Submit must never block on
// downstream consumption, only on the mutex. Grounded in the teacher's
// mutex/timer critical-section discipline (ratelimit.go's waitForBudget arms
// and tears down a timer from within the locked region) and the
// cond.Wait/Broadcast producer-consumer handoff used for an unbounded queue
// in the vitess message_manager reference.
type Batcher struct {
	maxBatchSize int
	maxDelay     time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending []MessageEnvelope
	timer   *time.Timer
	closed  bool

	ready []MessageBatch
}

// NewBatcher constructs a Batcher. Returns a ConfigError if maxBatchSize < 1
// or maxDelay <= 0.
func NewBatcher(maxBatchSize int, maxDelay time.Duration) (*Batcher, error) {
	if maxBatchSize < 1 {
		return nil, &ConfigError{Component: "batcher", Message: "max_batch_size must be >= 1"}
	}
	if maxDelay <= 0 {
		return nil, &ConfigError{Component: "batcher", Message: "max_delay must be > 0"}
	}
	b := &Batcher{
		maxBatchSize: maxBatchSize,
		maxDelay:     maxDelay,
	}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

// Submit appends envelope to the pending buffer. If the buffer transitions
// from empty to 1, the delay timer is (re)armed. If the buffer reaches
// max_batch_size, it flushes immediately with reason=size.
func (b *Batcher) Submit(envelope MessageEnvelope) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, envelope)
	switch {
	case len(b.pending) >= b.maxBatchSize:
		b.flushLocked(FlushSize)
		b.mu.Unlock()
		return
	case len(b.pending) == 1:
		b.armTimerLocked()
	}
	b.mu.Unlock()
}

// armTimerLocked (re)arms the single-shot timer for this accumulation
// cycle. Caller holds mu.
func (b *Batcher) armTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.maxDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if len(b.pending) > 0 {
			b.flushLocked(FlushTimer)
		}
	})
}

// flushLocked appends the pending buffer to the ready queue as a batch and
// resets it. Caller holds mu; exactly one batch is emitted per call, and it
// is never empty. Appending to the unbounded ready slice never blocks, so
// Submit never waits on a slow consumer.
func (b *Batcher) flushLocked(reason FlushReason) {
	if len(b.pending) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	batch := MessageBatch{
		Items:       b.pending,
		CreatedAt:   time.Now(),
		FlushReason: reason,
	}
	b.pending = nil
	b.ready = append(b.ready, batch)
	b.cond.Signal()
}

// Get suspends until a batch is available and returns it. After Stop
// drains every ready batch, Get returns ErrBatcherClosed.
func (b *Batcher) Get() (MessageBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.ready) == 0 {
		if b.closed {
			return MessageBatch{}, ErrBatcherClosed
		}
		b.cond.Wait()
	}
	batch := b.ready[0]
	b.ready = b.ready[1:]
	return batch, nil
}

// Stop prevents new timers, synchronously flushes any remaining items with
// reason=stop, and wakes every blocked Get so it observes ErrBatcherClosed
// once the ready queue has drained.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	if len(b.pending) > 0 {
		b.flushLocked(FlushStop)
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}
