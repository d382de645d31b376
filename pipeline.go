package modguard

import (
	"context"
	"sort"
	"sync"
)

// ModerationLayer is one stage of the pipeline. Evaluate returns a nil
// verdict to mean "no opinion" — implementations must never let an internal
// failure propagate; they log and return (nil, nil) instead.
type ModerationLayer interface {
	Name() Layer
	Evaluate(ctx context.Context, envelope MessageEnvelope) (*ModerationVerdict, error)
}

// WarmupCapable is an optional capability a ModerationLayer can advertise:
// the pipeline calls Warmup once before serving traffic. Only RegexLayer
// implements this today (precompiling patterns).
type WarmupCapable interface {
	Warmup(ctx context.Context) error
}

// Pipeline holds an immutable, priority-ordered sequence of layers and
// evaluates each envelope against them with short-circuit semantics: the
// first layer producing a short-circuit-eligible verdict stops evaluation.
//
// Modeled on the teacher's ProcessorChain, which pre-buckets processors by
// capability at Add() time and runs hooks in registration order; here the
// three layers are fixed at construction and ordered by ascending priority
// instead of registration order.
type Pipeline struct {
	layers []ModerationLayer
}

// layerPriority is each layer's pipeline position; lower runs first.
var layerPriority = map[Layer]int{
	LayerRegex:      10,
	LayerCategory:   20,
	LayerContextual: 30,
}

// NewPipeline returns a Pipeline evaluating layers in ascending priority
// (regex=10, category=20, contextual=30); layers of equal priority keep the
// order they were passed in.
func NewPipeline(layers ...ModerationLayer) *Pipeline {
	sorted := append([]ModerationLayer(nil), layers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return layerPriority[sorted[i].Name()] < layerPriority[sorted[j].Name()]
	})
	return &Pipeline{layers: sorted}
}

// Warmup calls Warmup on every layer that implements WarmupCapable.
func (p *Pipeline) Warmup(ctx context.Context) error {
	for _, l := range p.layers {
		if w, ok := l.(WarmupCapable); ok {
			if err := w.Warmup(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Process evaluates one envelope through the layers in order, skipping any
// layer named in disabled. Returns as soon as a layer yields a
// short-circuit-eligible verdict.
func (p *Pipeline) Process(ctx context.Context, envelope MessageEnvelope, disabled map[Layer]bool) ModerationResult {
	result := ModerationResult{Message: envelope}
	for _, layer := range p.layers {
		name := layer.Name()
		if disabled[name] {
			continue
		}
		verdict, err := layer.Evaluate(ctx, envelope)
		result.EvaluatedLayers = append(result.EvaluatedLayers, name)
		if err != nil || verdict == nil {
			continue
		}
		if verdict.ShortCircuit() {
			result.Verdict = verdict
			return result
		}
	}
	return result
}

// ProcessBatch evaluates every envelope in the batch concurrently —
// parallelism is bounded only by each layer's own internal concurrency, not
// by the pipeline itself. The returned slice preserves batch.Items order
// even though completion order is unspecified.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch MessageBatch, disabled map[Layer]bool) []ModerationResult {
	results := make([]ModerationResult, len(batch.Items))
	var wg sync.WaitGroup
	wg.Add(len(batch.Items))
	for i, envelope := range batch.Items {
		go func(i int, envelope MessageEnvelope) {
			defer wg.Done()
			results[i] = p.Process(ctx, envelope, disabled)
		}(i, envelope)
	}
	wg.Wait()
	return results
}
