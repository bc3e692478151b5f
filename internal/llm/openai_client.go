package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"mnemo/internal/logging"
)

// openaiClient speaks the OpenAI-compatible chat completions API. The
// API has no native structured-content support, so the ordered fragments
// are collapsed into a single user message.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewOpenAIClient constructs an adapter for an OpenAI-compatible endpoint.
func NewOpenAIClient(config Config) (Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &openaiClient{
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("llm-openai"),
	}, nil
}

func (c *openaiClient) Name() string {
	return "openai"
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *openaiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := ensureDeadline(ctx, c.httpClient.Timeout)
	defer cancel()

	requestID := uuid.NewString()[:8]
	startTime := time.Now()
	c.logger.Debug("[req:%s] OpenAI request: model=%s fragments=%d max_tokens=%d temp=%.2f",
		requestID, c.model, len(req.Fragments), req.MaxTokens, req.Temperature)

	body, err := json.Marshal(oaiRequest{
		Model: c.model,
		Messages: []oaiMessage{
			{Role: "system", Content: instructionFor(req.Summarization)},
			{Role: "user", Content: RenderFragments(req.Fragments)},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("[req:%s] OpenAI request failed after %v: %v", requestID, time.Since(startTime), err)
		return "", classifyProviderError(fmt.Errorf("openai: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyProviderError(fmt.Errorf("openai: read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("[req:%s] OpenAI returned status %d: %s", requestID, resp.StatusCode, previewBody(respBody))
		return "", classifyProviderError(fmt.Errorf(
			"openai: API request failed with status %d: %s", resp.StatusCode, previewBody(respBody)))
	}

	var parsed oaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", classifyProviderError(fmt.Errorf("openai: parse response: %w", err))
	}
	if parsed.Error != nil {
		return "", classifyProviderError(fmt.Errorf("openai: API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", classifyProviderError(fmt.Errorf("openai: empty completion"))
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		c.logger.Warn("[req:%s] OpenAI filtered the response", requestID)
		return "", newBlockError(choice.FinishReason)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", classifyProviderError(fmt.Errorf("openai: empty completion"))
	}

	c.logger.Debug("[req:%s] OpenAI request succeeded in %v, response_len=%d",
		requestID, time.Since(startTime), len(text))
	return text, nil
}

// Close releases nothing: the HTTP client keeps no provider-side handles.
func (c *openaiClient) Close() error {
	return nil
}

func previewBody(body []byte) string {
	const maxPreview = 256
	preview := strings.TrimSpace(string(body))
	preview = strings.ReplaceAll(preview, "\n", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
