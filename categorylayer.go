package modguard

import (
	"context"
	"log/slog"
)

// CategoryLayer calls an external moderation API that returns a fixed
// catalog of boolean category flags with scores, then resolves the flagged
// categories against the registry's category-layer rules. Concurrency is
// bounded by wrapping adapter in WithConcurrencyLimit(adapter, omni_concurrency)
// before construction — the layer itself does not impose a separate bound.
type CategoryLayer struct {
	adapter  ClassifierAdapter
	registry *RuleRegistry
	logger   *slog.Logger
}

// NewCategoryLayer returns a CategoryLayer. adapter should already be
// wrapped with WithConcurrencyLimit and WithRetry by the caller.
func NewCategoryLayer(adapter ClassifierAdapter, registry *RuleRegistry, logger *slog.Logger) *CategoryLayer {
	if logger == nil {
		logger = nopLogger
	}
	return &CategoryLayer{adapter: adapter, registry: registry, logger: logger}
}

func (c *CategoryLayer) Name() Layer { return LayerCategory }

// Evaluate classifies text first (if present); only when text yields no
// verdict does it fall through to images in order, so text wins when both
// would be flagged.
func (c *CategoryLayer) Evaluate(ctx context.Context, envelope MessageEnvelope) (*ModerationVerdict, error) {
	chatID := envelope.Context.ChatID
	rules := c.registry.GetRulesForLayer(LayerCategory, &chatID)
	if len(rules) == 0 {
		return nil, nil
	}

	if text := envelope.ContentText(); text != "" {
		scores, err := c.adapter.ClassifyText(ctx, text)
		if err != nil {
			c.logAdapterError("classify_text", err)
		} else if v := c.resolve(scores, rules); v != nil {
			return v, nil
		}
	}

	for _, img := range envelope.Images {
		scores, err := c.adapter.ClassifyImage(ctx, img)
		if err != nil {
			c.logAdapterError("classify_image", err)
			continue
		}
		if v := c.resolve(scores, rules); v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// resolve picks the highest-priority rule whose category is flagged. Returns
// nil if no configured rule matches a flagged category — an API flag alone
// never enforces anything without a rule.
func (c *CategoryLayer) resolve(scores CategoryScores, rules []ModerationRule) *ModerationVerdict {
	if !scores.Flagged {
		return nil
	}
	var best *ModerationRule
	for i := range rules {
		rule := rules[i]
		if rule.Category == nil || !scores.Categories[*rule.Category] {
			continue
		}
		if best == nil || rule.Priority > best.Priority {
			best = &rule
		}
	}
	if best == nil {
		return nil
	}
	details := map[string]any{"matched_category": *best.Category}
	if best.ActionDurationSeconds != nil {
		details["action_duration_seconds"] = *best.ActionDurationSeconds
	}
	return &ModerationVerdict{
		Layer:    LayerCategory,
		RuleCode: best.RuleID,
		Priority: best.Priority,
		Action:   best.Action,
		Reason:   best.Description,
		Violated: true,
		Details:  details,
	}
}

// logAdapterError swallows adapter failures to a null verdict per spec:
// API errors are never surfaced out of the layer.
func (c *CategoryLayer) logAdapterError(op string, err error) {
	c.logger.Warn("category adapter error", "op", op, "err", err)
}

// compile-time check
var _ ModerationLayer = (*CategoryLayer)(nil)
