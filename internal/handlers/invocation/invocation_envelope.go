package invocation

import (
	"encoding/json"
	"errors"
	"fmt"

	"claude-invocation/internal/config"
	"claude-invocation/internal/shared"
)

const (
	roleUser  = "user"
	blockText = "text"
)

// MessagesRequest is the Anthropic Messages body accepted by Bedrock
// InvokeModel. The model id travels outside the body.
type MessagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	System           string    `json:"system"`
	Messages         []Message `json:"messages"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessagesResponse is the subset of the Bedrock Anthropic response we read.
type MessagesResponse struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Role       string        `json:"role"`
	Model      string        `json:"model"`
	Content    []ResultBlock `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      ResultUsage   `json:"usage"`
}

// ResultBlock keeps Text as a pointer so a block without text is told apart
// from an empty one.
type ResultBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type ResultUsage struct {
	InputTokens  uint64 `json:"input_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
}

// BuildRequest builds the request envelope for a payload according to the
// configured system placement.
func (ih *InvocationHandler) BuildRequest(payload *shared.ExtractedPayload) *MessagesRequest {
	req := &MessagesRequest{
		AnthropicVersion: shared.AnthropicVersion,
		MaxTokens:        shared.MaxTokens,
		Temperature:      shared.Temperature,
	}

	content := []ContentBlock{{Type: blockText, Text: payload.Prompt}}
	switch ih.placement {
	case config.PlacementSource:
		req.System = payload.SourceCode
	default:
		req.System = ih.persona
		content = append(content, ContentBlock{Type: blockText, Text: payload.SourceCode})
	}

	req.Messages = []Message{{Role: roleUser, Content: content}}
	return req
}

func ParseResult(body []byte) (*MessagesResponse, error) {
	var res MessagesResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("invalid model response: %w", err)
	}
	return &res, nil
}

// FirstText returns the text of the first content block.
func (r *MessagesResponse) FirstText() (string, error) {
	if len(r.Content) == 0 {
		return "", errors.New("model response has no content blocks")
	}
	if r.Content[0].Text == nil {
		return "", fmt.Errorf("first content block of type %q has no text", r.Content[0].Type)
	}
	return *r.Content[0].Text, nil
}
