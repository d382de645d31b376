package modguard

import "context"

// boundedAdapter wraps a ClassifierAdapter with a counting semaphore so no
// more than n calls are in flight at once, the same buffered-channel
// semaphore idiom used by the scheduler for max_concurrent_batches.
type boundedAdapter struct {
	inner ClassifierAdapter
	sem   chan struct{}
}

// WithConcurrencyLimit bounds a to at most n concurrent calls. Used to
// implement omni_concurrency (category layer) and contextual_concurrency
// (contextual layer).
func WithConcurrencyLimit(a ClassifierAdapter, n int) ClassifierAdapter {
	if n <= 0 {
		n = 1
	}
	return &boundedAdapter{inner: a, sem: make(chan struct{}, n)}
}

func (b *boundedAdapter) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *boundedAdapter) release() { <-b.sem }

func (b *boundedAdapter) ClassifyText(ctx context.Context, text string) (CategoryScores, error) {
	if err := b.acquire(ctx); err != nil {
		return CategoryScores{}, err
	}
	defer b.release()
	return b.inner.ClassifyText(ctx, text)
}

func (b *boundedAdapter) ClassifyImage(ctx context.Context, imageRef string) (CategoryScores, error) {
	if err := b.acquire(ctx); err != nil {
		return CategoryScores{}, err
	}
	defer b.release()
	return b.inner.ClassifyImage(ctx, imageRef)
}

func (b *boundedAdapter) CompleteChat(ctx context.Context, req ContextualRequest) (ContextualVerdict, error) {
	if err := b.acquire(ctx); err != nil {
		return ContextualVerdict{}, err
	}
	defer b.release()
	return b.inner.CompleteChat(ctx, req)
}

func (b *boundedAdapter) SynthesizeRule(ctx context.Context, description string, source RuleSource, desiredAction Action) (SynthesizedRule, error) {
	if err := b.acquire(ctx); err != nil {
		return SynthesizedRule{}, err
	}
	defer b.release()
	return b.inner.SynthesizeRule(ctx, description, source, desiredAction)
}

// compile-time check
var _ ClassifierAdapter = (*boundedAdapter)(nil)
