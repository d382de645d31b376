package modguard

import "sync"

// RuleRegistry is an in-memory index of moderation rules keyed by
// (layer, chat scope). Chat scope nil means global: a global rule applies
// to every chat in addition to that chat's own rules. All mutations and
// reads serialize through one mutex, grounded in cmd/sandbox's
// sessionManager: a single mutex guarding a map keyed by an external ID,
// generalized from sandbox sessions to per-chat rule sets.
type RuleRegistry struct {
	mu    sync.Mutex
	index map[Layer]map[int64][]ModerationRule // chat-scoped rules only; global rules live in global
	global map[Layer][]ModerationRule
}

// NewRuleRegistry returns an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{
		index:  make(map[Layer]map[int64][]ModerationRule),
		global: make(map[Layer][]ModerationRule),
	}
}

// Seed atomically replaces the whole index with rules, typically called once
// at startup after loading from the Store.
func (r *RuleRegistry) Seed(rules []ModerationRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[Layer]map[int64][]ModerationRule)
	r.global = make(map[Layer][]ModerationRule)
	for _, rule := range rules {
		r.addLocked(rule)
	}
}

// AddRule appends rule under (rule.Layer, rule.ChatID).
func (r *RuleRegistry) AddRule(rule ModerationRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(rule)
}

func (r *RuleRegistry) addLocked(rule ModerationRule) {
	if rule.ChatID == nil {
		r.global[rule.Layer] = append(r.global[rule.Layer], rule)
		return
	}
	bucket, ok := r.index[rule.Layer]
	if !ok {
		bucket = make(map[int64][]ModerationRule)
		r.index[rule.Layer] = bucket
	}
	bucket[*rule.ChatID] = append(bucket[*rule.ChatID], rule)
}

// RemoveRule scans every bucket for rule_id and removes matches, collapsing
// empty chat buckets.
func (r *RuleRegistry) RemoveRule(ruleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for layer, rules := range r.global {
		r.global[layer] = removeByID(rules, ruleID)
	}
	for layer, byChat := range r.index {
		for chatID, rules := range byChat {
			filtered := removeByID(rules, ruleID)
			if len(filtered) == 0 {
				delete(byChat, chatID)
			} else {
				byChat[chatID] = filtered
			}
		}
		r.index[layer] = byChat
	}
}

func removeByID(rules []ModerationRule, ruleID string) []ModerationRule {
	out := rules[:0:0]
	for _, rule := range rules {
		if rule.RuleID != ruleID {
			out = append(out, rule)
		}
	}
	return out
}

// GetRulesForLayer returns globals ++ chat_bucket[chatID] (chat-scoped rules
// appended after globals), in insertion order within each part. Pass nil for
// chatID to get globals only.
func (r *RuleRegistry) GetRulesForLayer(layer Layer, chatID *int64) []ModerationRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	globals := r.global[layer]
	out := make([]ModerationRule, 0, len(globals))
	out = append(out, globals...)
	if chatID == nil {
		return out
	}
	if byChat, ok := r.index[layer]; ok {
		out = append(out, byChat[*chatID]...)
	}
	return out
}

// AllRules returns every rule currently indexed, global and chat-scoped,
// across all layers — used by RegexLayer.Warmup.
func (r *RuleRegistry) AllRules() []ModerationRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ModerationRule
	for _, rules := range r.global {
		out = append(out, rules...)
	}
	for _, byChat := range r.index {
		for _, rules := range byChat {
			out = append(out, rules...)
		}
	}
	return out
}

// RulesForChat returns global rules plus rules scoped to chatID, across all
// layers — used by RuleService.ListRules(chatID).
func (r *RuleRegistry) RulesForChat(chatID *int64) []ModerationRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ModerationRule
	for _, rules := range r.global {
		out = append(out, rules...)
	}
	if chatID == nil {
		return out
	}
	for _, byChat := range r.index {
		out = append(out, byChat[*chatID]...)
	}
	return out
}
