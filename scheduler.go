package modguard

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler consumes batches from a Batcher, runs the Pipeline per batch
// under a concurrency bound, then per message: aggregates verdicts, invokes
// the Decision Sink, and records incidents. Grounded in the teacher's
// buffered-channel semaphore idiom (workflow_steps.go's parallel step
// executor, cmd/sandbox/main.go's request limiter) for max_concurrent_batches,
// and its ctx.Done()-driven consumer-loop lifecycle (scheduler.go's run/stop
// shape).
type Scheduler struct {
	batcher  *Batcher
	pipeline *Pipeline
	store    Store
	sink     DecisionSink

	sem chan struct{} // capacity == max_concurrent_batches

	mu       sync.Mutex
	disabled map[Layer]time.Time // layer -> deadline after which it auto-resumes

	wg   sync.WaitGroup
	done chan struct{}
}

// NewScheduler constructs a Scheduler. concurrentBatches must be >= 1.
func NewScheduler(batcher *Batcher, pipeline *Pipeline, store Store, sink DecisionSink, concurrentBatches int) (*Scheduler, error) {
	if concurrentBatches < 1 {
		return nil, &ConfigError{Component: "scheduler", Message: "concurrent_batches must be >= 1"}
	}
	return &Scheduler{
		batcher:  batcher,
		pipeline: pipeline,
		store:    store,
		sink:     sink,
		sem:      make(chan struct{}, concurrentBatches),
		disabled: make(map[Layer]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start warms up every layer advertising WarmupCapable, then spawns the
// single consumer goroutine. Start returns once warmup completes; the
// consumer loop runs in the background until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.pipeline.Warmup(ctx); err != nil {
		return err
	}
	log.Println("modguard: scheduler started")
	go s.consume(ctx)
	return nil
}

// consume is the single consumer loop: block on batcher.Get, acquire a
// permit, launch a batch task.
func (s *Scheduler) consume(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			log.Println("modguard: scheduler stopped")
			return
		default:
		}

		batch, err := s.batcher.Get()
		if err != nil {
			return
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(batch MessageBatch) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.runBatch(ctx, batch)
		}(batch)
	}
}

// Stop cancels the consumer (the caller's ctx should already be cancelled)
// and waits for outstanding batch tasks to finish; their failures are
// already absorbed inside runBatch.
func (s *Scheduler) Stop() {
	s.batcher.Stop()
	<-s.done
	s.wg.Wait()
}

// runBatch computes the disabled-layer snapshot, runs the pipeline, records
// incidents, and dispatches decisions. A panic or error here is logged and
// the batch is dropped — it never propagates to the consumer loop.
func (s *Scheduler) runBatch(ctx context.Context, batch MessageBatch) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("modguard: scheduler: batch panic: %v", r)
		}
	}()

	disabled := s.snapshotDisabled()
	results := s.pipeline.ProcessBatch(ctx, batch, disabled)

	var incidents []Incident
	type pending struct {
		decision PunishmentDecision
		result   ModerationResult
	}
	var decisions []pending

	for _, result := range results {
		if result.Verdict == nil {
			continue
		}
		incidents = append(incidents, verdictToIncident(*result.Verdict, result.Message))
		if decision := Aggregate([]ModerationVerdict{*result.Verdict}); decision != nil {
			decisions = append(decisions, pending{decision: *decision, result: result})
		}
	}

	if len(incidents) > 0 {
		if err := s.store.RecordIncidents(ctx, incidents); err != nil {
			log.Printf("modguard: scheduler: record incidents: %v", err)
		}
	}

	for _, p := range decisions {
		if err := s.sink.OnDecision(ctx, p.decision, p.result); err != nil {
			log.Printf("modguard: scheduler: decision sink: %v", err)
		}
	}
}

func verdictToIncident(v ModerationVerdict, msg MessageEnvelope) Incident {
	return Incident{
		RuleID:     v.RuleCode,
		Layer:      v.Layer,
		Action:     v.Action,
		Priority:   v.Priority,
		ChatID:     msg.Context.ChatID,
		UserID:     msg.Context.UserID,
		MessageID:  msg.Context.MessageID,
		OccurredAt: msg.Context.Timestamp,
		Reason:     v.Reason,
		Payload:    v.Details,
	}
}

// snapshotDisabled returns the set of layers currently paused, garbage
// collecting any expired deadline it encounters.
func (s *Scheduler) snapshotDisabled() map[Layer]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	disabled := make(map[Layer]bool, len(s.disabled))
	for layer, deadline := range s.disabled {
		if deadline.Before(now) {
			delete(s.disabled, layer)
			continue
		}
		disabled[layer] = true
	}
	return disabled
}

// PauseLayer installs or extends a deadline after which layer auto-resumes.
// Unknown layer names are logged and ignored rather than causing an error,
// matching the original coordinator's pause_layer(layer: str, ...) contract.
func (s *Scheduler) PauseLayer(layer Layer, duration time.Duration) {
	switch layer {
	case LayerRegex, LayerCategory, LayerContextual:
	default:
		log.Printf("modguard: scheduler: pause_layer: unknown layer %q, ignoring", layer)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[layer] = time.Now().Add(duration)
}

// ResumeLayer clears a layer's pause deadline.
func (s *Scheduler) ResumeLayer(layer Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, layer)
}
