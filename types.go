// Package modguard implements a multi-layer content moderation engine for
// chat messages: a batching ingress, a bounded-concurrency scheduler, a
// tiered short-circuit classification pipeline, a dynamic rule registry, and
// a punishment aggregator that reconciles conflicting verdicts into a single
// enforcement decision.
package modguard

import "time"

// Layer identifies one of the three moderation stages, in pipeline order.
type Layer string

const (
	LayerRegex      Layer = "regex"
	LayerCategory   Layer = "category"
	LayerContextual Layer = "contextual"
)

// Action is the enforcement action a verdict or rule carries.
type Action string

const (
	ActionDelete Action = "delete"
	ActionWarn   Action = "warn"
	ActionMute   Action = "mute"
	ActionBan    Action = "ban"
	ActionNone   Action = "none"
)

// actionSynonyms normalizes action strings returned by external classifiers
// and the rule synthesizer into the wire vocabulary of spec.md §6.
var actionSynonyms = map[string]Action{
	"delete_message": ActionDelete,
	"remove_message": ActionDelete,
	"remove":         ActionDelete,
	"kick":           ActionBan,
	"ban_user":       ActionBan,
	"no_action":      ActionNone,
	"none":           ActionNone,
}

// NormalizeAction maps a raw action string (possibly a synonym, possibly
// mixed case) to the canonical Action vocabulary. Unknown values default to
// ActionWarn.
func NormalizeAction(raw string) Action {
	if raw == "" {
		return ActionWarn
	}
	lower := lowerASCII(raw)
	if syn, ok := actionSynonyms[lower]; ok {
		return syn
	}
	switch Action(lower) {
	case ActionDelete, ActionWarn, ActionMute, ActionBan, ActionNone:
		return Action(lower)
	default:
		return ActionWarn
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// RuleType further classifies how a rule is matched.
type RuleType string

const (
	RuleTypeRegex      RuleType = "regex"
	RuleTypeSemantic   RuleType = "semantic"
	RuleTypeContextual RuleType = "contextual"
)

// RuleSource records whether a rule was created by an administrator or by
// the auto-synthesis flow.
type RuleSource string

const (
	RuleSourceAdmin RuleSource = "admin"
	RuleSourceAuto  RuleSource = "auto"
)

// Priority is a named severity bucket with a fixed integer rank, used by the
// aggregator to break ties within a layer.
type Priority int

const (
	PriorityOther   Priority = 10
	PrioritySpam    Priority = 50
	PriorityHate    Priority = 70
	PriorityNSFW    Priority = 80
	PriorityThreats Priority = 100
)

// BucketPriority buckets a raw 0-100 score into the nearest lower-or-equal
// named bucket.
func BucketPriority(score int) Priority {
	switch {
	case score >= 90:
		return PriorityThreats
	case score >= 70:
		return PriorityNSFW
	case score >= 60:
		return PriorityHate
	case score >= 40:
		return PrioritySpam
	default:
		return PriorityOther
	}
}

// OfficialCategories is the fixed catalog the external category classifier
// is known to emit. Rules outside this set cannot be served by the category
// layer and must be demoted to the contextual layer.
var OfficialCategories = map[string]bool{
	"hate":                   true,
	"hate/threatening":       true,
	"harassment":             true,
	"harassment/threatening": true,
	"self-harm":              true,
	"self-harm/intent":       true,
	"self-harm/instructions": true,
	"sexual":                 true,
	"sexual/minors":          true,
	"violence":               true,
	"violence/graphic":       true,
	"illicit":                true,
	"illicit/violent":        true,
}

// ChatContext is the immutable addressing/timing information for a single
// ingested message.
type ChatContext struct {
	ChatID       int64
	UserID       int64
	MessageID    int64
	Timestamp    time.Time
	Username     string // optional, "" if absent
	LanguageCode string // optional, "" if absent
}

// MessageEnvelope is a single inbound message with its context and payload.
// Owned by the Batcher until flushed, then transferred to the Scheduler and
// Pipeline.
type MessageEnvelope struct {
	Context ChatContext
	Text    string // optional
	Caption string // optional
	// Images holds URLs or inlined base64 data: URLs. Up to 4 are attached to
	// contextual-layer requests.
	Images   []string
	Metadata map[string]any
}

// ContentText returns the first non-empty of {Text, Caption, ""}.
func (m MessageEnvelope) ContentText() string {
	if m.Text != "" {
		return m.Text
	}
	if m.Caption != "" {
		return m.Caption
	}
	return ""
}

// ModerationRule is one entry in the rule registry/store.
type ModerationRule struct {
	RuleID                string
	Description           string
	Action                Action
	Source                RuleSource
	Layer                 Layer
	RuleType              RuleType
	ChatID                *int64 // nil => global
	Pattern               *string
	Category              *string
	Priority              Priority
	ActionDurationSeconds *int
	Metadata              map[string]any
}

// Aliases returns the case-folded alias set from Metadata["aliases"], used by
// the contextual layer's category resolution. Returns nil if absent.
func (r ModerationRule) Aliases() map[string]bool {
	raw, ok := r.Metadata["aliases"]
	if !ok {
		return nil
	}
	var list []string
	switch v := raw.(type) {
	case []string:
		list = v
	case []any: // metadata decoded from JSON, e.g. loaded from the store
		for _, item := range v {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
	default:
		return nil
	}
	out := make(map[string]bool, len(list))
	for _, a := range list {
		out[lowerASCII(a)] = true
	}
	return out
}

// ModerationVerdict is the immutable output of a single layer for a single
// message.
type ModerationVerdict struct {
	Layer    Layer
	RuleCode string
	Priority Priority
	Action   Action
	Reason   string
	Violated bool
	Details  map[string]any
}

// ShortCircuit reports whether this verdict should stop further pipeline
// evaluation: it violated and its action is not ActionNone.
func (v ModerationVerdict) ShortCircuit() bool {
	return v.Violated && v.Action != ActionNone
}

// ModerationResult is the per-message output of the pipeline.
type ModerationResult struct {
	Message         MessageEnvelope
	Verdict         *ModerationVerdict
	EvaluatedLayers []Layer
}

// FlushReason records why a MessageBatch was emitted.
type FlushReason string

const (
	FlushSize  FlushReason = "size"
	FlushTimer FlushReason = "timer"
	FlushStop  FlushReason = "stop"
)

// MessageBatch is a non-empty, order-preserving group of envelopes flushed
// together by the Batcher.
type MessageBatch struct {
	Items       []MessageEnvelope
	CreatedAt   time.Time
	FlushReason FlushReason
}

// PunishmentDecision is the aggregator's chosen verdict for a message, plus
// every verdict that lost the tie-break.
type PunishmentDecision struct {
	Verdict     ModerationVerdict
	Conflicting []ModerationVerdict
}
