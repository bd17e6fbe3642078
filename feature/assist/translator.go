package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client the translator uses.
// It exists so tests can substitute a canned model.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Result is the parsed model output.
type Result struct {
	// Spec is the JSON filter spec in the parser schema.
	Spec map[string]any
	// Notes is an optional free-text remark from the model.
	Notes string
	// Collections holds the raw collection values the model suggested.
	// Callers resolve them against the collection catalog.
	Collections []string
}

// Translator converts natural-language queries into filter specs.
type Translator struct {
	client ChatClient
	model  string
}

// NewTranslator builds a translator from the configuration.
func NewTranslator(cfg Config) (*Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assist: openai api_key is not configured")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Translator{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}, nil
}

// NewTranslatorWithClient wires a custom chat client, used in tests.
func NewTranslatorWithClient(client ChatClient, model string) *Translator {
	return &Translator{client: client, model: model}
}

// Translate asks the model for a filter spec. collectionLines is the
// catalog rendered one collection per line for the prompt.
func (t *Translator) Translate(ctx context.Context, nlQuery string, fields, collectionLines []string) (Result, error) {
	prompt := BuildPrompt(nlQuery, fields, collectionLines)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a precise translator from English to JSON filters.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("assist: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("assist: model returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	obj, err := decodeObject(content)
	if err != nil {
		return Result{}, err
	}

	rawSpec, ok := obj["spec"]
	if !ok {
		return Result{}, errors.New("assist: model response must be a JSON object with a 'spec' key")
	}
	spec, ok := rawSpec.(map[string]any)
	if !ok {
		return Result{}, errors.New("assist: 'spec' must be a JSON object")
	}

	res := Result{Spec: spec}
	if notes, ok := obj["notes"].(string); ok {
		res.Notes = notes
	}
	switch raw := obj["collections"].(type) {
	case string:
		res.Collections = []string{raw}
	case []any:
		for _, item := range raw {
			if s, ok := item.(string); ok {
				res.Collections = append(res.Collections, s)
			}
		}
	}
	return res, nil
}

// decodeObject parses content as a JSON object, falling back to the first
// balanced-looking object when the model wrapped it in prose.
func decodeObject(content string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, errors.New("assist: model did not return JSON")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("assist: model did not return valid JSON: %w", err)
	}
	return obj, nil
}
