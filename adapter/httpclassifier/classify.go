package httpclassifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modguard/modguard"
)

type moderationRequest struct {
	Model string            `json:"model,omitempty"`
	Input []moderationInput `json:"input"`
}

type moderationInput struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *moderationImage `json:"image_url,omitempty"`
}

type moderationImage struct {
	URL string `json:"url"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// ClassifyText returns category scores for a block of text via the
// /moderations endpoint.
func (c *Client) ClassifyText(ctx context.Context, text string) (modguard.CategoryScores, error) {
	return c.classify(ctx, moderationInput{Type: "text", Text: text})
}

// ClassifyImage returns category scores for an image URL or inlined
// base64 data: URL via the /moderations endpoint.
func (c *Client) ClassifyImage(ctx context.Context, imageRef string) (modguard.CategoryScores, error) {
	return c.classify(ctx, moderationInput{Type: "image_url", ImageURL: &moderationImage{URL: imageRef}})
}

func (c *Client) classify(ctx context.Context, input moderationInput) (modguard.CategoryScores, error) {
	resp, err := c.post(ctx, "/moderations", moderationRequest{
		Model: c.moderationModel,
		Input: []moderationInput{input},
	})
	if err != nil {
		return modguard.CategoryScores{}, &modguard.AdapterError{Operation: "classify", Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modguard.CategoryScores{}, httpErr("classify", resp)
	}

	var parsed moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return modguard.CategoryScores{}, &modguard.AdapterError{Operation: "classify", Body: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Results) == 0 {
		return modguard.CategoryScores{}, nil
	}
	result := parsed.Results[0]
	return modguard.CategoryScores{
		Flagged:    result.Flagged,
		Categories: result.Categories,
		Scores:     result.CategoryScores,
	}, nil
}
