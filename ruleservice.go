package modguard

import (
	"context"
	"log"
	"sync"
)

// AddRuleInput is the caller-supplied side of a rule addition. Unset Layer,
// RuleType, Pattern and Category fields may be filled in by the Rule
// Synthesizer; the other fields are used as given.
type AddRuleInput struct {
	Description string
	Action      Action
	Source      RuleSource
	ChatID      *int64

	Layer    Layer    // "" if unset
	RuleType RuleType // "" if unset
	Pattern  *string
	Category *string

	ActionDurationSeconds *int
	Metadata              map[string]any
}

// RuleService adds/removes rules against both the registry and the store,
// invoking the Rule Synthesizer to fill gaps in admin input and repairing
// illegal layer/field combinations before anything is persisted. Grounded
// in the original rules/service.py, translated into the teacher's
// constructor-injection + functional-options style (app.go's App/Option).
type RuleService struct {
	mu       sync.Mutex
	registry *RuleRegistry
	store    Store
	adapter  ClassifierAdapter
}

// RuleServiceOption configures a RuleService.
type RuleServiceOption func(*RuleService)

// NewRuleService constructs a RuleService. adapter is used only for
// synthesize_rule calls.
func NewRuleService(registry *RuleRegistry, store Store, adapter ClassifierAdapter, opts ...RuleServiceOption) *RuleService {
	s := &RuleService{registry: registry, store: store, adapter: adapter}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRule runs the classify→validate→persist→register sequence atomically
// under the service-wide mutex, so the registry and store cannot diverge.
func (s *RuleService) AddRule(ctx context.Context, input AddRuleInput) (ModerationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule := ModerationRule{
		RuleID:                NewRuleID(),
		Description:           input.Description,
		Action:                input.Action,
		Source:                input.Source,
		ChatID:                input.ChatID,
		Layer:                 input.Layer,
		RuleType:              input.RuleType,
		Pattern:               input.Pattern,
		Category:              input.Category,
		ActionDurationSeconds: input.ActionDurationSeconds,
		Metadata:              input.Metadata,
	}

	rawPriority := 0
	if s.needsSynthesis(input) {
		candidate, err := s.adapter.SynthesizeRule(ctx, input.Description, input.Source, input.Action)
		if err != nil {
			return ModerationRule{}, &AdapterError{Operation: "synthesize_rule", Body: err.Error()}
		}
		s.mergeSynthesized(&rule, input, candidate)
		rawPriority = candidate.Priority
	}

	s.validateAndRepair(&rule)
	rule.Priority = BucketPriority(rawPriority)

	if err := s.store.UpsertRule(ctx, rule); err != nil {
		return ModerationRule{}, err
	}
	s.registry.AddRule(rule)
	return rule, nil
}

// needsSynthesis reports whether the caller's input lacks layer or
// rule_type, or supplies neither a pattern nor a category.
func (s *RuleService) needsSynthesis(input AddRuleInput) bool {
	return input.Layer == "" || input.RuleType == "" ||
		(input.Pattern == nil && input.Category == nil)
}

// mergeSynthesized merges the synthesizer's candidate into rule; explicit
// caller overrides in input always win.
func (s *RuleService) mergeSynthesized(rule *ModerationRule, input AddRuleInput, candidate SynthesizedRule) {
	if input.Layer == "" {
		rule.Layer = candidate.Layer
	}
	if input.RuleType == "" {
		rule.RuleType = candidate.RuleType
	}
	if input.Pattern == nil && candidate.Pattern != "" {
		rule.Pattern = &candidate.Pattern
	}
	if input.Category == nil && candidate.Category != "" {
		rule.Category = &candidate.Category
	}
}

// validateAndRepair enforces the layer/field invariants, demoting illegal
// combinations to the contextual layer rather than rejecting them outright.
func (s *RuleService) validateAndRepair(rule *ModerationRule) {
	switch rule.Layer {
	case LayerCategory, LayerContextual:
		if rule.Pattern != nil {
			log.Printf("modguard: rule service: dropping pattern on %s-layer rule %s", rule.Layer, rule.RuleID)
			rule.Pattern = nil
		}
	}

	if rule.Layer == LayerCategory {
		if rule.Category == nil || !OfficialCategories[*rule.Category] {
			log.Printf("modguard: rule service: demoting rule %s to contextual (category %v not in official catalog)", rule.RuleID, rule.Category)
			rule.Layer = LayerContextual
			rule.RuleType = RuleTypeContextual
		}
	}

	if rule.Layer == LayerRegex {
		if rule.Pattern == nil || *rule.Pattern == "" {
			log.Printf("modguard: rule service: demoting rule %s to contextual (empty pattern)", rule.RuleID)
			rule.Layer = LayerContextual
			rule.RuleType = RuleTypeContextual
		}
	}
}

// RemoveRule deletes from the store, then from the registry.
func (s *RuleService) RemoveRule(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	s.registry.RemoveRule(ruleID)
	return nil
}

// ListRules returns all global rules when chatID is nil, or global plus
// chat-scoped rules when set.
func (s *RuleService) ListRules(chatID *int64) []ModerationRule {
	return s.registry.RulesForChat(chatID)
}

// Seed loads every persisted rule from the store into the registry, called
// once at startup.
func (s *RuleService) Seed(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return err
	}
	s.registry.Seed(rules)
	return nil
}
