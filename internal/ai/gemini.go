package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiModel completes prompts with Google's Gemini API.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiModel creates a Gemini-backed Model. An empty key is reported as
// ErrConfigurationAbsent so callers can fall back without surfacing an error.
func NewGeminiModel(ctx context.Context, apiKey, model string, temperature float32) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrConfigurationAbsent
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{client: client, model: model, temperature: temperature}, nil
}

// Complete sends one GenerateContent request asking for a JSON reply.
func (m *GeminiModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(m.temperature),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from %s", m.model)
	}
	return text, nil
}

// Name returns the model identifier.
func (m *GeminiModel) Name() string {
	return fmt.Sprintf("genai:%s", m.model)
}
