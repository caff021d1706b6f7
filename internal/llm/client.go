package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
)

// Client talks to the hosted LLM provider over its chat-completions API.
// Every call is a single attempt with a transport-level timeout; there is no
// retry or backoff here. Callers substitute deterministic fallback content
// when a call fails.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateBlueprint asks the provider for a structured stage-3 blueprint.
// Returns an error on any transport failure or unparsable JSON; it never
// invents content itself.
func (c *Client) GenerateBlueprint(ctx context.Context, idea domain.AppIdea, answers domain.ValidationAnswers) (*domain.Blueprint, error) {
	prompt := fmt.Sprintf(
		`Design an app blueprint as JSON with keys schema_version, app_name, overview, screens, roles, data_models.
Each screen has name, purpose, elements. Each data model has name, fields.
App name: %s
Platforms: %s
Design style: %s
Description: %s
Target audience: %s
Respond with JSON only.`,
		idea.AppName, strings.Join(idea.Platforms, ", "), idea.DesignStyle, idea.Description, idea.TargetAudience)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var bp domain.Blueprint
	if err := json.Unmarshal([]byte(extractJSON(content)), &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	if bp.AppName == "" {
		bp.AppName = idea.AppName
	}
	if bp.SchemaVersion == 0 {
		bp.SchemaVersion = 1
	}
	return &bp, nil
}

// GenerateScreenPrompts asks the provider for stage-4 per-screen specs.
func (c *Client) GenerateScreenPrompts(ctx context.Context, bp domain.Blueprint) ([]domain.ScreenPrompt, error) {
	names := make([]string, 0, len(bp.Screens))
	for _, s := range bp.Screens {
		names = append(names, s.Name)
	}

	prompt := fmt.Sprintf(
		`Write one implementation prompt per screen of the app %q as a JSON array.
Each element has keys schema_version, screen_name, prompt.
Screens: %s
App overview: %s
Respond with JSON only.`,
		bp.AppName, strings.Join(names, ", "), bp.Overview)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var out []domain.ScreenPrompt
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("parse screen prompts: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty screen prompt list")
	}
	for i := range out {
		if out[i].SchemaVersion == 0 {
			out[i].SchemaVersion = 1
		}
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an app architecture assistant. Always answer with valid JSON."},
			{Role: "user", Content: userPrompt},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
