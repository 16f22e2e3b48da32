package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.together.xyz/v1"
	defaultModel       = "deepseek-ai/DeepSeek-R1-Distill-Llama-70B-free"
	defaultTimeout     = 30 * time.Second
	defaultMaxTokens   = 150
	defaultTemperature = 0.75
)

// Config configures the OpenAI-compatible completions provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Any OpenAI-compatible completions
	// endpoint works (Together, OpenAI, a local Ollama, ...).
	BaseURL string

	// Model is the completion model to use.
	Model string

	// Timeout bounds every request. Defaults to 30s; without it a stalled
	// upstream would suspend the handling task indefinitely.
	Timeout time.Duration

	// BotName is substituted into the stop sequences so the model does not
	// ramble into a fake dialogue with itself.
	BotName string
}

type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by an OpenAI-compatible completions API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BotName == "" {
		cfg.BotName = "Assistant"
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal completions wire types ---

type completionRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	MaxTokens         int      `json:"max_tokens"`
	Temperature       float64  `json:"temperature"`
	TopP              float64  `json:"top_p,omitempty"`
	Stop              []string `json:"stop,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt to the completions endpoint and returns the
// cleaned text plus the reported token cost.
func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	body := completionRequest{
		Model:             p.cfg.Model,
		Prompt:            req.Prompt,
		MaxTokens:         maxTokens,
		Temperature:       temperature,
		TopP:              0.9,
		Stop:              []string{"</think>", "User:", "\n\n\n", p.cfg.BotName + ":", "Human:"},
		RepetitionPenalty: 1.1,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("llm: HTTP %d: %w", resp.StatusCode, ErrAuth)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("llm: HTTP %d: %w", resp.StatusCode, ErrRateLimit)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response body: %w", err)
	}

	var apiResp completionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("llm: decode API response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("llm: API error (%s): %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices returned (HTTP %d)", resp.StatusCode)
	}

	text := cleanResponse(apiResp.Choices[0].Text, p.cfg.BotName)
	tokens := 0
	if apiResp.Usage != nil {
		tokens = apiResp.Usage.TotalTokens
	}
	return &Completion{Text: text, TokensUsed: tokens}, nil
}

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	botPrefixRe  = regexp.MustCompile(`(?i)^(bot|assistant): `)
)

// fallbackReplies is used when the model returns nothing usable.
var fallbackReplies = []string{
	"Hmm, not sure about that one!",
	"Interesting point!",
	"Gotcha.",
}

// cleanResponse strips reasoning blocks, role prefixes, and trailing
// dialogue continuations from raw completion text. Returns a canned fallback
// when nothing usable remains.
func cleanResponse(raw, botName string) string {
	text := strings.TrimSpace(raw)
	text = thinkBlockRe.ReplaceAllString(text, "")
	text = botPrefixRe.ReplaceAllString(text, "")
	text = strings.TrimPrefix(text, botName+": ")

	// Keep only the first paragraph; completion models tend to invent the
	// rest of the conversation after a blank line.
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)

	if text == "" || strings.Contains(strings.ToLower(text), "as an ai language model") {
		return fallbackReplies[len(raw)%len(fallbackReplies)]
	}
	return text
}
