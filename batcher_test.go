package modguard

import (
	"testing"
	"time"
)

func TestNewBatcher_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewBatcher(0, time.Second); err == nil {
		t.Error("expected config error for max_batch_size=0")
	}
	if _, err := NewBatcher(1, 0); err == nil {
		t.Error("expected config error for max_delay=0")
	}
}

func TestBatcher_SizeFlush(t *testing.T) {
	b, err := NewBatcher(3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	for i := 0; i < 9; i++ {
		b.Submit(MessageEnvelope{Text: string(rune('a' + i))})
	}

	for flushed := 0; flushed < 3; flushed++ {
		batch, err := b.Get()
		if err != nil {
			t.Fatal(err)
		}
		if len(batch.Items) != 3 {
			t.Errorf("batch %d: got %d items, want 3", flushed, len(batch.Items))
		}
		if batch.FlushReason != FlushSize {
			t.Errorf("batch %d: got reason %s, want size", flushed, batch.FlushReason)
		}
	}
}

func TestBatcher_TimerFlush(t *testing.T) {
	b, err := NewBatcher(50, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	start := time.Now()
	b.Submit(MessageEnvelope{Text: "only one"})

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < 20*time.Millisecond {
		t.Errorf("flushed too early: %v", elapsed)
	}
	if len(batch.Items) != 1 {
		t.Errorf("got %d items, want 1", len(batch.Items))
	}
	if batch.FlushReason != FlushTimer {
		t.Errorf("got reason %s, want timer", batch.FlushReason)
	}
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	b, err := NewBatcher(50, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b.Submit(MessageEnvelope{Text: "leftover"})
	b.Stop()

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	if batch.FlushReason != FlushStop {
		t.Errorf("got reason %s, want stop", batch.FlushReason)
	}

	if _, err := b.Get(); err != ErrBatcherClosed {
		t.Errorf("expected ErrBatcherClosed after drain, got %v", err)
	}
}

func TestBatcher_PreservesSubmissionOrder(t *testing.T) {
	b, err := NewBatcher(4, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	words := []string{"a", "b", "c", "d"}
	for _, w := range words {
		b.Submit(MessageEnvelope{Text: w})
	}
	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	for i, w := range words {
		if batch.Items[i].Text != w {
			t.Errorf("item %d = %q, want %q", i, batch.Items[i].Text, w)
		}
	}
}
