package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"mnemo/internal/logging"
)

// geminiClient adapts the Gemini API. Gemini supports structured content
// natively, so fragments map onto parts one-to-one in order.
type geminiClient struct {
	config Config
	logger *logging.Logger
}

// NewGeminiClient constructs the Gemini provider adapter.
func NewGeminiClient(config Config) (Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	return &geminiClient{
		config: config,
		logger: logging.NewComponentLogger("llm-gemini"),
	}, nil
}

func (c *geminiClient) Name() string {
	return "gemini"
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := ensureDeadline(ctx, c.config.Timeout)
	defer cancel()

	requestID := uuid.NewString()[:8]
	startTime := time.Now()
	c.logger.Debug("[req:%s] Gemini request: model=%s fragments=%d max_tokens=%d temp=%.2f",
		requestID, c.config.Model, len(req.Fragments), req.MaxTokens, req.Temperature)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", classifyProviderError(fmt.Errorf("gemini: create client: %w", err))
	}

	parts := make([]*genai.Part, 0, len(req.Fragments))
	for _, fragment := range req.Fragments {
		parts = append(parts, genai.NewPartFromText(fragment.Render()))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genConfig := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxTokens),
		SystemInstruction: genai.NewContentFromText(instructionFor(req.Summarization), genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, c.config.Model, contents, genConfig)
	if err != nil {
		c.logger.Warn("[req:%s] Gemini request failed after %v: %v", requestID, time.Since(startTime), err)
		return "", classifyProviderError(fmt.Errorf("gemini: %w", err))
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		c.logger.Warn("[req:%s] Gemini blocked the prompt: %s", requestID, resp.PromptFeedback.BlockReason)
		return "", newBlockError(string(resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		c.logger.Warn("[req:%s] Gemini blocked the response", requestID)
		return "", newBlockError(string(genai.FinishReasonSafety))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", classifyProviderError(fmt.Errorf("gemini: empty completion"))
	}

	c.logger.Debug("[req:%s] Gemini request succeeded in %v, response_len=%d",
		requestID, time.Since(startTime), len(text))
	return text, nil
}

// Close releases nothing: the SDK client is created per call and holds no
// long-lived handles.
func (c *geminiClient) Close() error {
	return nil
}
