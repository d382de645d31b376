package modguard

import "context"

// CategoryScores is the fixed catalog of boolean category flags with scores
// returned by the external category classifier.
type CategoryScores struct {
	Flagged    bool
	Categories map[string]bool
	Scores     map[string]float64
}

// ContextualVerdict is the structured JSON verdict asked of the external
// chat-completion model.
type ContextualVerdict struct {
	Violation    bool
	Category     string
	Severity     string
	Action       string
	Reason       string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// SynthesizedRule is the Rule Synthesizer's candidate classification of a
// free-form rule description.
type SynthesizedRule struct {
	Layer    Layer
	RuleType RuleType
	Pattern  string // "" if not applicable
	Category string // "" if not applicable
	Priority int    // 0-100, raw score before bucketing
}

// ClassifierAdapter abstracts the external classification/LLM vendor. The
// core never talks HTTP directly; adapter/httpclassifier ships the one
// concrete implementation wired to a real vendor API.
type ClassifierAdapter interface {
	// ClassifyText returns category scores for a block of text.
	ClassifyText(ctx context.Context, text string) (CategoryScores, error)
	// ClassifyImage returns category scores for an image URL or inlined
	// base64 data: URL.
	ClassifyImage(ctx context.Context, imageRef string) (CategoryScores, error)
	// CompleteChat asks the contextual model to judge a message against the
	// given rule descriptions (already formatted as "category — action —
	// description" lines) and allowed categories.
	CompleteChat(ctx context.Context, req ContextualRequest) (ContextualVerdict, error)
	// SynthesizeRule classifies a free-form rule description into a
	// structured candidate rule.
	SynthesizeRule(ctx context.Context, description string, source RuleSource, desiredAction Action) (SynthesizedRule, error)
}

// ContextualRequest carries everything the contextual layer's user-message
// context block needs.
type ContextualRequest struct {
	ChatID           int64
	UserID           int64
	MessageID        int64
	Timestamp        string // ISO-8601
	Username         string
	ActiveRuleLines  []string // "category — action — description", sorted
	AllowedCategories []string
	Text             string // "<empty>" if none
	Images           []string
}
