package modguard

import (
	"context"
	"sync"
	"testing"
)

type fakeStore struct {
	mu        sync.Mutex
	rules     map[string]ModerationRule
	incidents []Incident
}

func newFakeStore() *fakeStore { return &fakeStore{rules: make(map[string]ModerationRule)} }

func (s *fakeStore) incidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

func (s *fakeStore) Init(context.Context) error  { return nil }
func (s *fakeStore) Close() error                { return nil }
func (s *fakeStore) UpsertRule(_ context.Context, r ModerationRule) error {
	s.rules[r.RuleID] = r
	return nil
}
func (s *fakeStore) DeleteRule(_ context.Context, id string) error {
	delete(s.rules, id)
	return nil
}
func (s *fakeStore) ListRules(context.Context) ([]ModerationRule, error) {
	out := make([]ModerationRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}
func (s *fakeStore) RecordIncidents(_ context.Context, incidents []Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, incidents...)
	return nil
}

var _ Store = (*fakeStore)(nil)

func TestRuleService_AddRule_LegalFormIsIdempotent(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	pattern := "forbidden"
	first, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "no forbidden words", Action: ActionDelete, Source: RuleSourceAdmin,
		Layer: LayerRegex, RuleType: RuleTypeRegex, Pattern: &pattern,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Layer != LayerRegex || *first.Pattern != pattern {
		t.Fatalf("got %+v", first)
	}

	second, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: first.Description, Action: first.Action, Source: first.Source,
		Layer: first.Layer, RuleType: first.RuleType, Pattern: first.Pattern,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Layer != first.Layer || second.RuleType != first.RuleType ||
		*second.Pattern != *first.Pattern || second.Action != first.Action || second.Priority != first.Priority {
		t.Errorf("expected idempotent legal-form rule, got %+v vs %+v", second, first)
	}
}

func TestRuleService_AddRule_CategoryOutsideCatalogDemotesToContextual(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	bogus := "not-a-real-category"
	rule, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "x", Action: ActionWarn, Source: RuleSourceAdmin,
		Layer: LayerCategory, RuleType: RuleTypeSemantic, Category: &bogus,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Layer != LayerContextual {
		t.Errorf("expected demotion to contextual, got %s", rule.Layer)
	}
}

func TestRuleService_AddRule_RegexWithoutPatternDemotesToContextual(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	rule, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "x", Action: ActionWarn, Source: RuleSourceAdmin,
		Layer: LayerRegex, RuleType: RuleTypeRegex,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Layer != LayerContextual {
		t.Errorf("expected demotion to contextual, got %s", rule.Layer)
	}
}

func TestRuleService_AddRule_CategoryRulePersistedWithoutPattern(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	category := "hate"
	rule, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "x", Action: ActionWarn, Source: RuleSourceAdmin,
		Layer: LayerCategory, RuleType: RuleTypeSemantic, Category: &category,
		Pattern: strPtr("should be dropped"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Layer != LayerCategory || !OfficialCategories[*rule.Category] || rule.Pattern != nil {
		t.Errorf("expected category rule with no pattern, got %+v", rule)
	}
}

func TestRuleService_AddRule_RoundTripsThroughStore(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	pattern := "spam"
	rule, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "spam words", Action: ActionWarn, Source: RuleSourceAdmin,
		Layer: LayerRegex, RuleType: RuleTypeRegex, Pattern: &pattern,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, ok := store.rules[rule.RuleID]
	if !ok {
		t.Fatal("expected rule persisted to store")
	}
	if stored.Description != rule.Description || stored.Action != rule.Action {
		t.Errorf("store copy diverges: %+v vs %+v", stored, rule)
	}

	listed := svc.ListRules(nil)
	if len(listed) != 1 || listed[0].RuleID != rule.RuleID {
		t.Errorf("expected registry to contain the new rule, got %v", listed)
	}
}

func TestRuleService_RemoveRule(t *testing.T) {
	registry := NewRuleRegistry()
	store := newFakeStore()
	svc := NewRuleService(registry, store, &stubAdapter{})

	pattern := "x"
	rule, err := svc.AddRule(context.Background(), AddRuleInput{
		Description: "x", Action: ActionWarn, Source: RuleSourceAdmin,
		Layer: LayerRegex, RuleType: RuleTypeRegex, Pattern: &pattern,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.RemoveRule(context.Background(), rule.RuleID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.rules[rule.RuleID]; ok {
		t.Error("expected rule removed from store")
	}
	if len(svc.ListRules(nil)) != 0 {
		t.Error("expected rule removed from registry")
	}
}
