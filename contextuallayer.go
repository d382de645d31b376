package modguard

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// ContextualLayer asks an external chat-completion model for a structured
// verdict constrained to the chat's currently configured contextual rules.
// Concurrency is bounded by wrapping adapter with WithConcurrencyLimit
// before construction, same convention as CategoryLayer.
type ContextualLayer struct {
	adapter  ClassifierAdapter
	registry *RuleRegistry
	logger   *slog.Logger
}

func NewContextualLayer(adapter ClassifierAdapter, registry *RuleRegistry, logger *slog.Logger) *ContextualLayer {
	if logger == nil {
		logger = nopLogger
	}
	return &ContextualLayer{adapter: adapter, registry: registry, logger: logger}
}

func (c *ContextualLayer) Name() Layer { return LayerContextual }

func (c *ContextualLayer) Evaluate(ctx context.Context, envelope MessageEnvelope) (*ModerationVerdict, error) {
	if envelope.ContentText() == "" && len(envelope.Images) == 0 {
		return nil, nil
	}

	chatID := envelope.Context.ChatID
	rules := c.registry.GetRulesForLayer(LayerContextual, &chatID)
	if len(rules) == 0 {
		return nil, nil
	}

	req := c.buildRequest(envelope, rules)
	verdict, err := c.adapter.CompleteChat(ctx, req)
	if err != nil {
		c.logger.Warn("contextual adapter error", "err", err)
		return nil, nil
	}
	if verdict.FinishReason == "length" {
		// Truncated response is not trustworthy.
		return nil, nil
	}
	if !verdict.Violation {
		return nil, nil
	}

	rule := resolveCategory(rules, verdict.Category)
	if rule == nil {
		c.logger.Error("orphan contextual violation", "category", verdict.Category, "chat_id", envelope.Context.ChatID)
		return nil, nil
	}

	reason := verdict.Reason
	if reason == "" {
		reason = rule.Description
	}
	details := map[string]any{
		"gpt_severity":  verdict.Severity,
		"input_tokens":  verdict.InputTokens,
		"output_tokens": verdict.OutputTokens,
	}
	if rule.ActionDurationSeconds != nil {
		details["action_duration_seconds"] = *rule.ActionDurationSeconds
	}
	return &ModerationVerdict{
		Layer:    LayerContextual,
		RuleCode: rule.RuleID,
		Priority: rule.Priority,
		Action:   rule.Action, // the rule's configured action overrides the model's suggestion
		Reason:   reason,
		Violated: true,
		Details:  details,
	}, nil
}

// resolveCategory matches verdict category against rule.Category (exact,
// case-insensitive) first, then rule.Aliases(). Ties broken by highest
// priority.
func resolveCategory(rules []ModerationRule, category string) *ModerationRule {
	lower := strings.ToLower(category)
	var best *ModerationRule
	for i := range rules {
		rule := rules[i]
		if rule.Category == nil {
			continue
		}
		match := strings.ToLower(*rule.Category) == lower
		if !match {
			if aliases := rule.Aliases(); aliases != nil {
				match = aliases[lower]
			}
		}
		if !match {
			continue
		}
		if best == nil || rule.Priority > best.Priority {
			best = &rule
		}
	}
	return best
}

// buildRequest formats the contextual-model user context block: chat/user/
// message identifiers, a sorted "category — action — description" listing
// of active rules, the allowed categories, and up to 4 images.
func (c *ContextualLayer) buildRequest(envelope MessageEnvelope, rules []ModerationRule) ContextualRequest {
	lines := make([]string, 0, len(rules))
	categories := make([]string, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.Category == nil {
			continue
		}
		lines = append(lines, *rule.Category+" — "+string(rule.Action)+" — "+rule.Description)
		if !seen[*rule.Category] {
			seen[*rule.Category] = true
			categories = append(categories, *rule.Category)
		}
	}
	sort.Strings(lines)
	sort.Strings(categories)

	text := envelope.ContentText()
	if text == "" {
		text = "<empty>"
	}

	images := envelope.Images
	if len(images) > 4 {
		images = images[:4]
	}

	return ContextualRequest{
		ChatID:            envelope.Context.ChatID,
		UserID:            envelope.Context.UserID,
		MessageID:         envelope.Context.MessageID,
		Timestamp:         envelope.Context.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		Username:          envelope.Context.Username,
		ActiveRuleLines:   lines,
		AllowedCategories: categories,
		Text:              text,
		Images:            images,
	}
}

// compile-time check
var _ ModerationLayer = (*ContextualLayer)(nil)
