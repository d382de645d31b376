package httpclassifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modguard/modguard"
)

// contextualSystemPrompt instructs the model to return a single JSON object
// matching contextualVerdictJSON, judging the message strictly against the
// active rule set rather than a generic policy.
const contextualSystemPrompt = `You are a chat moderation judge. You are given a message, its chat context, and a list of currently active moderation rules in the form "category — action — description". Decide whether the message violates one of the listed categories. Respond with a single JSON object: {"violation": bool, "category": string, "severity": string, "action": string, "reason": string}. "category" must be one of the listed categories verbatim, or empty if no violation. Never invent a category that was not listed.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type contextualVerdictJSON struct {
	Violation bool   `json:"violation"`
	Category  string `json:"category"`
	Severity  string `json:"severity"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
}

// CompleteChat asks the contextual model to judge a message against the
// given rule descriptions and allowed categories.
func (c *Client) CompleteChat(ctx context.Context, req modguard.ContextualRequest) (modguard.ContextualVerdict, error) {
	resp, err := c.post(ctx, "/chat/completions", chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: contextualSystemPrompt},
			{Role: "user", Content: buildContextualUserMessage(req)},
		},
	})
	if err != nil {
		return modguard.ContextualVerdict{}, &modguard.AdapterError{Operation: "complete_chat", Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modguard.ContextualVerdict{}, httpErr("complete_chat", resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return modguard.ContextualVerdict{}, &modguard.AdapterError{Operation: "complete_chat", Body: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return modguard.ContextualVerdict{}, &modguard.AdapterError{Operation: "complete_chat", Body: "no choices in response"}
	}
	choice := parsed.Choices[0]

	verdict, err := parseContextualVerdict(choice.Message.Content)
	if err != nil {
		return modguard.ContextualVerdict{}, &modguard.AdapterError{Operation: "complete_chat", Body: fmt.Sprintf("parse verdict json: %v", err)}
	}

	return modguard.ContextualVerdict{
		Violation:    verdict.Violation,
		Category:     verdict.Category,
		Severity:     verdict.Severity,
		Action:       verdict.Action,
		Reason:       verdict.Reason,
		FinishReason: choice.FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// errNoJSONObject is returned by extractJSON when no candidate JSON object
// substring can be located.
var errNoJSONObject = errors.New("no JSON object found in response")

// parseContextualVerdict accepts raw JSON; if that fails, it strips
// backticks/whitespace and falls back to extracting the first {...} span
// before giving up, matching the judge's real failure modes (fenced code
// blocks, leading/trailing commentary).
func parseContextualVerdict(content string) (contextualVerdictJSON, error) {
	var verdict contextualVerdictJSON
	raw, err := extractJSON(content)
	if err != nil {
		return contextualVerdictJSON{}, err
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return contextualVerdictJSON{}, err
	}
	return verdict, nil
}

// extractJSON returns a JSON object substring from content: the raw content
// itself if it already parses, otherwise the content with surrounding
// backticks/whitespace stripped, otherwise the first "{...}" span found.
func extractJSON(content string) (string, error) {
	stripped := strings.TrimSpace(content)
	if stripped == "" {
		return "", errNoJSONObject
	}
	if json.Valid([]byte(stripped)) {
		return stripped, nil
	}
	fenced := strings.Trim(stripped, "` \n")
	if json.Valid([]byte(fenced)) {
		return fenced, nil
	}
	start := strings.Index(fenced, "{")
	end := strings.LastIndex(fenced, "}")
	if start != -1 && end != -1 && end > start {
		return fenced[start : end+1], nil
	}
	return "", errNoJSONObject
}

func buildContextualUserMessage(req modguard.ContextualRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "chat_id: %d\nuser_id: %d\nmessage_id: %d\ntimestamp: %s\n", req.ChatID, req.UserID, req.MessageID, req.Timestamp)
	if req.Username != "" {
		fmt.Fprintf(&b, "username: %s\n", req.Username)
	}
	b.WriteString("active_rules:\n")
	for _, line := range req.ActiveRuleLines {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "allowed_categories: %s\n", strings.Join(req.AllowedCategories, ", "))
	fmt.Fprintf(&b, "message_text: %s\n", req.Text)
	if len(req.Images) > 0 {
		fmt.Fprintf(&b, "images: %s\n", strings.Join(req.Images, ", "))
	}
	return b.String()
}
