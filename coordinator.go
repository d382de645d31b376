package modguard

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Coordinator is the top-level orchestrator that wires a Batcher, Pipeline,
// Scheduler, RuleService, and Store into a single running engine. Grounded
// in the teacher's App: a functional-options constructor holding every
// collaborator, plus Run/Start and per-request entry points that delegate to
// them instead of containing business logic themselves.
type Coordinator struct {
	batcher  *Batcher
	pipeline *Pipeline
	sched    *Scheduler
	rules    *RuleService
	store    Store
	sink     DecisionSink
	adapter  ClassifierAdapter

	maxBatchSize      int
	maxDelay          time.Duration
	concurrentBatches int

	regexWorkers          int
	categoryConcurrency   int
	contextualConcurrency int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithStore(s Store) CoordinatorOption                 { return func(c *Coordinator) { c.store = s } }
func WithDecisionSink(s DecisionSink) CoordinatorOption   { return func(c *Coordinator) { c.sink = s } }
func WithClassifierAdapter(a ClassifierAdapter) CoordinatorOption {
	return func(c *Coordinator) { c.adapter = a }
}
func WithMaxBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) { c.maxBatchSize = n }
}
func WithMaxDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.maxDelay = d }
}
func WithMaxConcurrentBatches(n int) CoordinatorOption {
	return func(c *Coordinator) { c.concurrentBatches = n }
}
func WithRegexWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) { c.regexWorkers = n }
}
func WithCategoryConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) { c.categoryConcurrency = n }
}
func WithContextualConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) { c.contextualConcurrency = n }
}

// NewCoordinator constructs a Coordinator. Batching and concurrency defaults
// match spec.md's documented defaults; override with options.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		maxBatchSize:          50,
		maxDelay:              500 * time.Millisecond,
		concurrentBatches:     4,
		regexWorkers:          6,
		categoryConcurrency:   8,
		contextualConcurrency: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start wires the Batcher, Pipeline (with retry+concurrency-wrapped
// adapter), Scheduler, and RuleService together, initializes the Store, and
// begins consuming batches.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.store == nil || c.sink == nil || c.adapter == nil {
		return fmt.Errorf("modguard: coordinator requires Store, DecisionSink, and ClassifierAdapter")
	}

	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	registry := NewRuleRegistry()
	retrying := WithRetry(c.adapter)

	c.rules = NewRuleService(registry, c.store, retrying)
	if err := c.rules.Seed(ctx); err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}

	batcher, err := NewBatcher(c.maxBatchSize, c.maxDelay)
	if err != nil {
		return err
	}
	c.batcher = batcher

	// Each layer gets its own concurrency-bounded adapter: omni_concurrency
	// (category) and contextual_concurrency (contextual) are independent
	// knobs, not a shared pool sized by max_concurrent_batches.
	categoryAdapter := WithConcurrencyLimit(retrying, c.categoryConcurrency)
	contextualAdapter := WithConcurrencyLimit(retrying, c.contextualConcurrency)

	c.pipeline = NewPipeline(
		NewRegexLayer(registry, c.regexWorkers),
		NewCategoryLayer(categoryAdapter, registry, nil),
		NewContextualLayer(contextualAdapter, registry, nil),
	)

	sched, err := NewScheduler(c.batcher, c.pipeline, c.store, c.sink, c.concurrentBatches)
	if err != nil {
		return err
	}
	c.sched = sched

	if err := c.sched.Start(ctx); err != nil {
		return err
	}
	log.Println("modguard: coordinator started")
	return nil
}

// Shutdown drains in-flight batches and closes the Store.
func (c *Coordinator) Shutdown() error {
	if c.sched != nil {
		c.sched.Stop()
	}
	log.Println("modguard: coordinator stopped")
	return c.store.Close()
}

// Ingest submits a message for moderation. Non-blocking: the message is
// appended to the current batch and evaluated asynchronously.
func (c *Coordinator) Ingest(envelope MessageEnvelope) {
	c.batcher.Submit(envelope)
}

// AddRule delegates to the RuleService.
func (c *Coordinator) AddRule(ctx context.Context, input AddRuleInput) (ModerationRule, error) {
	return c.rules.AddRule(ctx, input)
}

// RemoveRule delegates to the RuleService.
func (c *Coordinator) RemoveRule(ctx context.Context, ruleID string) error {
	return c.rules.RemoveRule(ctx, ruleID)
}

// ListRules delegates to the RuleService.
func (c *Coordinator) ListRules(chatID *int64) []ModerationRule {
	return c.rules.ListRules(chatID)
}

// PauseLayer delegates to the Scheduler.
func (c *Coordinator) PauseLayer(layer Layer, duration time.Duration) {
	c.sched.PauseLayer(layer, duration)
}

// ResumeLayer delegates to the Scheduler.
func (c *Coordinator) ResumeLayer(layer Layer) {
	c.sched.ResumeLayer(layer)
}
