package httpclassifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modguard/modguard"
)

// synthesisSystemPrompt embeds the official category catalog and per-layer
// field rules directly in the prompt, mirroring the original
// RuleSynthesisClient.classify_rule contract: the model must pick a layer,
// and regex/category layers carry the fields only they are allowed to use.
const synthesisSystemPrompt = `You classify a free-form moderation rule description into a structured rule. Choose exactly one layer: "regex" (needs a non-empty regex pattern, no category), "category" (needs a category from the fixed catalog: hate, hate/threatening, harassment, harassment/threatening, self-harm, self-harm/intent, self-harm/instructions, sexual, sexual/minors, violence, violence/graphic, illicit, illicit/violent; no pattern), or "contextual" (neither pattern nor category required). Respond with a single JSON object: {"layer": string, "rule_type": string, "pattern": string, "category": string, "priority": integer 0-100}. Leave "pattern" or "category" empty string when not applicable.`

type synthesizedRuleJSON struct {
	Layer    string `json:"layer"`
	RuleType string `json:"rule_type"`
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// SynthesizeRule classifies a free-form rule description into a structured
// candidate rule.
func (c *Client) SynthesizeRule(ctx context.Context, description string, source modguard.RuleSource, desiredAction modguard.Action) (modguard.SynthesizedRule, error) {
	userMsg := fmt.Sprintf("description: %s\nsource: %s\ndesired_action: %s", description, source, desiredAction)

	resp, err := c.post(ctx, "/chat/completions", chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: userMsg},
		},
	})
	if err != nil {
		return modguard.SynthesizedRule{}, &modguard.AdapterError{Operation: "synthesize_rule", Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modguard.SynthesizedRule{}, httpErr("synthesize_rule", resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return modguard.SynthesizedRule{}, &modguard.AdapterError{Operation: "synthesize_rule", Body: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return modguard.SynthesizedRule{}, &modguard.AdapterError{Operation: "synthesize_rule", Body: "no choices in response"}
	}

	var candidate synthesizedRuleJSON
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &candidate); err != nil {
		return modguard.SynthesizedRule{}, &modguard.AdapterError{Operation: "synthesize_rule", Body: fmt.Sprintf("parse candidate json: %v", err)}
	}

	return modguard.SynthesizedRule{
		Layer:    modguard.Layer(strings.ToLower(candidate.Layer)),
		RuleType: modguard.RuleType(strings.ToLower(candidate.RuleType)),
		Pattern:  candidate.Pattern,
		Category: candidate.Category,
		Priority: candidate.Priority,
	}, nil
}
