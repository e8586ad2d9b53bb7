package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorSnippet    = 256
)

// Provider produces one assistant reply for a context window.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []models.ContextMessage) (string, error)
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type chatAPIRequest struct {
	Model       string                  `json:"model"`
	Messages    []models.ContextMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
	Stream      bool                    `json:"stream"`
}

type chatAPIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

// UpstreamError describes a non-2xx reply. It is logged, never shown to clients.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

var (
	errEmptyChoices = errors.New("gateway: response contained no choices")
	errEmptyContent = errors.New("gateway: response contained empty content")
)

// OpenAICompatible talks to any endpoint speaking the OpenAI chat completions
// protocol, which covers both OpenAI and Perplexity.
type OpenAICompatible struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
}

// NewOpenAICompatible returns nil when cfg carries no credential.
func NewOpenAICompatible(cfg utils.ProviderConfig) *OpenAICompatible {
	if !cfg.Configured() {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &OpenAICompatible{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *OpenAICompatible) Name() string {
	return p.name
}

func (p *OpenAICompatible) Complete(ctx context.Context, messages []models.ContextMessage) (string, error) {
	payload, err := json.Marshal(chatAPIRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", buildUpstreamError(p.name, resp.StatusCode, body)
	}

	var decoded chatAPIResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errEmptyChoices
	}

	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errEmptyContent
	}
	return content, nil
}

func buildUpstreamError(provider string, statusCode int, body []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			return &UpstreamError{Provider: provider, StatusCode: statusCode, Message: msg}
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	snippet = truncateUTF8(snippet, maxErrorSnippet)

	return &UpstreamError{Provider: provider, StatusCode: statusCode, Message: snippet}
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
