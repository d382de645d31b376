package modguard

import (
	"context"
	"testing"
	"time"
)

// stubAdapter is a test ClassifierAdapter that returns pre-configured
// results in order, shared across all four methods via one call counter.
type stubAdapter struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	scores CategoryScores
	err    error
}

func (s *stubAdapter) next() stubResult {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i]
	}
	return stubResult{}
}

func (s *stubAdapter) ClassifyText(_ context.Context, _ string) (CategoryScores, error) {
	r := s.next()
	return r.scores, r.err
}

func (s *stubAdapter) ClassifyImage(_ context.Context, _ string) (CategoryScores, error) {
	r := s.next()
	return r.scores, r.err
}

func (s *stubAdapter) CompleteChat(_ context.Context, _ ContextualRequest) (ContextualVerdict, error) {
	r := s.next()
	return ContextualVerdict{}, r.err
}

func (s *stubAdapter) SynthesizeRule(_ context.Context, _ string, _ RuleSource, _ Action) (SynthesizedRule, error) {
	r := s.next()
	return SynthesizedRule{}, r.err
}

var _ ClassifierAdapter = (*stubAdapter)(nil)

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{scores: CategoryScores{Flagged: true}},
	}}
	a := WithRetry(stub)

	scores, err := a.ClassifyText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scores.Flagged {
		t.Errorf("expected flagged=true")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_RetriesOn503(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{err: &AdapterError{Operation: "classify_text", Status: 503}},
		{scores: CategoryScores{Flagged: true}},
	}}
	a := WithRetry(stub)

	scores, err := a.ClassifyText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scores.Flagged {
		t.Errorf("expected flagged=true after retry")
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_RetriesOn429(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{err: &AdapterError{Operation: "classify_text", Status: 429}},
		{scores: CategoryScores{Flagged: true}},
	}}
	a := WithRetry(stub)

	_, err := a.ClassifyText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_DoesNotRetryNonTransient(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{err: &AdapterError{Operation: "classify_text", Status: 400}},
	}}
	a := WithRetry(stub)

	_, err := a.ClassifyText(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1 (no retry for 400)", stub.calls)
	}
}

func TestWithRetry_ExhaustsMaxAttempts(t *testing.T) {
	transient := stubResult{err: &AdapterError{Operation: "classify_text", Status: 503}}
	stub := &stubAdapter{results: []stubResult{transient, transient, transient, transient, transient, transient}}
	a := WithRetry(stub)

	_, err := a.ClassifyText(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after max attempts, got nil")
	}
	if stub.calls != 5 {
		t.Errorf("got %d calls, want 5", stub.calls)
	}
}

func TestWithRetry_RespectsRetryAfter(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{err: &AdapterError{Operation: "classify_text", Status: 429, RetryAfter: 100 * time.Millisecond}},
		{scores: CategoryScores{Flagged: true}},
	}}
	a := WithRetry(stub)

	start := time.Now()
	_, err := a.ClassifyText(context.Background(), "hello")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("retry was too fast: %v, expected at least ~100ms from Retry-After", elapsed)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	stub := &stubAdapter{results: []stubResult{
		{err: &AdapterError{Operation: "classify_text", Status: 503, RetryAfter: time.Second}},
	}}
	a := WithRetry(stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.ClassifyText(ctx, "hello")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
