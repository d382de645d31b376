package modguard

import "testing"

func int64Ptr(v int64) *int64 { return &v }

func TestRuleRegistry_ScopingGlobalsBeforeChatScoped(t *testing.T) {
	r := NewRuleRegistry()
	global := ModerationRule{RuleID: "g1", Layer: LayerRegex}
	chatScoped := ModerationRule{RuleID: "c1", Layer: LayerRegex, ChatID: int64Ptr(42)}
	otherChat := ModerationRule{RuleID: "c2", Layer: LayerRegex, ChatID: int64Ptr(99)}

	r.AddRule(global)
	r.AddRule(chatScoped)
	r.AddRule(otherChat)

	got := r.GetRulesForLayer(LayerRegex, int64Ptr(42))
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	if got[0].RuleID != "g1" || got[1].RuleID != "c1" {
		t.Errorf("expected globals before chat-scoped, got %v", ruleIDs(got))
	}

	globalsOnly := r.GetRulesForLayer(LayerRegex, nil)
	if len(globalsOnly) != 1 || globalsOnly[0].RuleID != "g1" {
		t.Errorf("expected globals only, got %v", ruleIDs(globalsOnly))
	}
}

func TestRuleRegistry_GetIsIdempotentWithoutMutation(t *testing.T) {
	r := NewRuleRegistry()
	r.AddRule(ModerationRule{RuleID: "g1", Layer: LayerCategory})

	first := r.GetRulesForLayer(LayerCategory, nil)
	second := r.GetRulesForLayer(LayerCategory, nil)
	if len(first) != len(second) || first[0].RuleID != second[0].RuleID {
		t.Errorf("expected idempotent reads, got %v then %v", ruleIDs(first), ruleIDs(second))
	}
}

func TestRuleRegistry_RemoveRuleCollapsesEmptyBuckets(t *testing.T) {
	r := NewRuleRegistry()
	r.AddRule(ModerationRule{RuleID: "c1", Layer: LayerRegex, ChatID: int64Ptr(1)})
	r.RemoveRule("c1")

	got := r.GetRulesForLayer(LayerRegex, int64Ptr(1))
	if len(got) != 0 {
		t.Errorf("expected no rules after removal, got %v", ruleIDs(got))
	}
}

func TestRuleRegistry_Seed(t *testing.T) {
	r := NewRuleRegistry()
	r.AddRule(ModerationRule{RuleID: "stale", Layer: LayerRegex})

	r.Seed([]ModerationRule{
		{RuleID: "fresh", Layer: LayerRegex},
	})

	got := r.GetRulesForLayer(LayerRegex, nil)
	if len(got) != 1 || got[0].RuleID != "fresh" {
		t.Errorf("expected seed to replace whole index, got %v", ruleIDs(got))
	}
}

func ruleIDs(rules []ModerationRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.RuleID
	}
	return ids
}
