package modguard

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
)

// RegexLayer matches content_text() against dynamic per-chat regex rules,
// case-insensitive and multiline. Grounded in guardrail.go's KeywordGuard —
// same case-folded substring/regex matching idiom, generalized from a fixed
// phrase list to the registry's dynamic rule set, with compiled patterns
// cached and matching dispatched to a bounded worker pool so a pathological
// pattern cannot block the whole layer.
type RegexLayer struct {
	registry *RuleRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	compiled map[string]*regexp.Regexp // rule_id -> compiled pattern

	workers chan struct{}
}

// RegexLayerOption configures a RegexLayer.
type RegexLayerOption func(*RegexLayer)

// RegexLayerLogger sets the structured logger. Defaults to a no-op logger.
func RegexLayerLogger(l *slog.Logger) RegexLayerOption {
	return func(r *RegexLayer) { r.logger = l }
}

// NewRegexLayer returns a RegexLayer backed by registry, running pattern
// matches through a worker pool of the given width (default 6 per spec).
func NewRegexLayer(registry *RuleRegistry, workers int, opts ...RegexLayerOption) *RegexLayer {
	if workers <= 0 {
		workers = 6
	}
	r := &RegexLayer{
		registry: registry,
		compiled: make(map[string]*regexp.Regexp),
		workers:  make(chan struct{}, workers),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *RegexLayer) Name() Layer { return LayerRegex }

// Warmup compiles every currently-known regex rule (global plus any chat
// already seen) into the rule_id -> compiled_pattern map. Further compiles
// remain lazy and idempotent on each Evaluate.
func (r *RegexLayer) Warmup(_ context.Context) error {
	rules := r.registry.AllRules()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		if rule.Layer != LayerRegex || rule.Pattern == nil {
			continue
		}
		r.compileLocked(rule)
	}
	return nil
}

// compileLocked compiles rule.Pattern if not already cached. Caller holds mu.
func (r *RegexLayer) compileLocked(rule ModerationRule) *regexp.Regexp {
	if re, ok := r.compiled[rule.RuleID]; ok {
		return re
	}
	re, err := regexp.Compile("(?im)" + *rule.Pattern)
	if err != nil {
		r.logger.Warn("invalid regex pattern", "rule_id", rule.RuleID, "err", err)
		return nil
	}
	r.compiled[rule.RuleID] = re
	return re
}

func (r *RegexLayer) compiledPattern(rule ModerationRule) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.compiled[rule.RuleID]; ok {
		return re
	}
	return r.compileLocked(rule)
}

// Evaluate runs the chat's regex rules against envelope.ContentText(). The
// first rule (in registry iteration order) whose pattern matches wins.
func (r *RegexLayer) Evaluate(ctx context.Context, envelope MessageEnvelope) (*ModerationVerdict, error) {
	text := envelope.ContentText()
	if text == "" {
		return nil, nil
	}

	var chatID *int64
	chatID = &envelope.Context.ChatID
	rules := r.registry.GetRulesForLayer(LayerRegex, chatID)
	for _, rule := range rules {
		if rule.Pattern == nil {
			continue
		}
		matched, err := r.runInPool(ctx, rule, text)
		if err != nil {
			return nil, nil
		}
		if matched != "" {
			return r.buildVerdict(rule, matched), nil
		}
	}
	return nil, nil
}

// runInPool dispatches the match to the bounded worker pool and waits for
// it, returning the matched substring (empty if the pattern did not match).
func (r *RegexLayer) runInPool(ctx context.Context, rule ModerationRule, text string) (string, error) {
	select {
	case r.workers <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-r.workers }()

	re := r.compiledPattern(rule)
	if re == nil {
		return "", nil
	}
	return re.FindString(text), nil
}

// buildVerdict records the matched substring (not a bare boolean) in
// details.matched, per the matched-text contract.
func (r *RegexLayer) buildVerdict(rule ModerationRule, matched string) *ModerationVerdict {
	details := map[string]any{
		"matched": matched,
		"pattern": *rule.Pattern,
	}
	if rule.ActionDurationSeconds != nil {
		details["action_duration_seconds"] = *rule.ActionDurationSeconds
	}
	return &ModerationVerdict{
		Layer:    LayerRegex,
		RuleCode: rule.RuleID,
		Priority: rule.Priority,
		Action:   rule.Action,
		Reason:   rule.Description,
		Violated: true,
		Details:  details,
	}
}

// compile-time check
var (
	_ ModerationLayer = (*RegexLayer)(nil)
	_ WarmupCapable   = (*RegexLayer)(nil)
)
