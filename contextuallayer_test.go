package modguard

import (
	"context"
	"testing"
)

type fakeContextualAdapter struct {
	stubAdapter
	verdict ContextualVerdict
	err     error
}

func (f *fakeContextualAdapter) CompleteChat(_ context.Context, _ ContextualRequest) (ContextualVerdict, error) {
	return f.verdict, f.err
}

func TestContextualLayer_AliasResolution(t *testing.T) {
	registry := NewRuleRegistry()
	registry.AddRule(ModerationRule{
		RuleID: "r3", Layer: LayerContextual, Action: ActionBan,
		Category: strPtr("hate"), Priority: PriorityHate,
		Metadata: map[string]any{"aliases": []string{"harassment"}},
	})
	adapter := &fakeContextualAdapter{verdict: ContextualVerdict{
		Violation: true, Category: "harassment", Severity: "hate", Action: "warn", Reason: "...",
	}}
	layer := NewContextualLayer(adapter, registry, nil)

	verdict, err := layer.Evaluate(context.Background(), MessageEnvelope{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict == nil || verdict.RuleCode != "r3" {
		t.Fatalf("got %+v", verdict)
	}
	if verdict.Action != ActionBan {
		t.Errorf("expected rule's action to override model suggestion, got %s", verdict.Action)
	}
}

func TestContextualLayer_MalformedResponseIsNoVerdict(t *testing.T) {
	registry := NewRuleRegistry()
	registry.AddRule(ModerationRule{RuleID: "r3", Layer: LayerContextual, Category: strPtr("hate")})
	adapter := &fakeContextualAdapter{err: &AdapterError{Operation: "complete_chat", Body: "non-json response"}}
	layer := NewContextualLayer(adapter, registry, nil)

	verdict, err := layer.Evaluate(context.Background(), MessageEnvelope{Text: "hello"})
	if err != nil {
		t.Fatalf("expected no exception out of the layer, got %v", err)
	}
	if verdict != nil {
		t.Errorf("expected nil verdict, got %+v", verdict)
	}
}

func TestContextualLayer_TruncatedResponseIsNoVerdict(t *testing.T) {
	registry := NewRuleRegistry()
	registry.AddRule(ModerationRule{RuleID: "r3", Layer: LayerContextual, Category: strPtr("hate")})
	adapter := &fakeContextualAdapter{verdict: ContextualVerdict{Violation: true, Category: "hate", FinishReason: "length"}}
	layer := NewContextualLayer(adapter, registry, nil)

	verdict, _ := layer.Evaluate(context.Background(), MessageEnvelope{Text: "hello"})
	if verdict != nil {
		t.Errorf("expected nil verdict for truncated response, got %+v", verdict)
	}
}

func TestContextualLayer_OrphanViolationReturnsNil(t *testing.T) {
	registry := NewRuleRegistry()
	registry.AddRule(ModerationRule{RuleID: "r3", Layer: LayerContextual, Category: strPtr("hate")})
	adapter := &fakeContextualAdapter{verdict: ContextualVerdict{Violation: true, Category: "unrelated-category"}}
	layer := NewContextualLayer(adapter, registry, nil)

	verdict, err := layer.Evaluate(context.Background(), MessageEnvelope{Text: "hello"})
	if err != nil || verdict != nil {
		t.Errorf("expected nil/nil for orphan violation, got %+v, %v", verdict, err)
	}
}

func TestContextualLayer_SkipsWhenNoContent(t *testing.T) {
	registry := NewRuleRegistry()
	registry.AddRule(ModerationRule{RuleID: "r3", Layer: LayerContextual, Category: strPtr("hate")})
	layer := NewContextualLayer(&fakeContextualAdapter{}, registry, nil)

	verdict, err := layer.Evaluate(context.Background(), MessageEnvelope{})
	if err != nil || verdict != nil {
		t.Errorf("expected nil/nil, got %+v, %v", verdict, err)
	}
}
