package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/domain"
	"github.com/kitbuilder587/completion-gateway/internal/llm"
)

const creditsPage = "https://openrouter.ai/settings/credits"

type Config struct {
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client ходит в OpenRouter /chat/completions. Ключ не хранится в клиенте,
// он приходит с каждым вызовом из текущего снапшота конфига.
type Client struct {
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "openai/gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string, snap config.Snapshot, maxTokens int) (string, error) {
	if snap.APIKey == "" {
		return "", domain.NewFailure(domain.FailureAuthentication, "provider API key is not configured", 0)
	}

	req := llm.NewChatRequest(c.model, prompt, maxTokens)

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.NewFailure(domain.FailureUnknown, "marshal request: "+err.Error(), 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewFailure(domain.FailureUnknown, "create request: "+err.Error(), 0)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+snap.APIKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/kitbuilder587/completion-gateway")
	httpReq.Header.Set("X-Title", "Completion Gateway")

	c.logger.Debug("sending request to openrouter",
		zap.String("model", c.model),
		zap.Int("max_tokens", req.MaxTokens),
	)

	respBody, statusCode, err := llm.DoRequest(c.client, httpReq)
	if err != nil {
		f := llm.NetworkFailure(err)
		c.logger.Error("openrouter request failed", zap.Error(err))
		return "", f
	}

	if statusCode < 200 || statusCode >= 300 {
		f := c.withHint(llm.FailureFromResponse(statusCode, respBody))
		c.logger.Error("openrouter returned error status",
			zap.Int("status", statusCode),
			zap.String("kind", f.Kind.String()),
			zap.String("body", string(respBody)),
		)
		return "", f
	}

	chatResp, err := llm.ParseChatResponse(respBody)
	if err != nil {
		c.logger.Error("openrouter returned malformed payload",
			zap.Error(err),
			zap.String("body", string(respBody)),
		)
		return "", domain.NewFailure(domain.FailureInvalidUpstreamResponse, "upstream returned a malformed payload", statusCode)
	}

	// OpenRouter иногда отдает 200 с объектом error внутри
	if chatResp.Error != nil {
		f := c.withHint(llm.FailureFromAPIError(statusCode, chatResp.Error, respBody))
		c.logger.Error("openrouter returned in-band error",
			zap.String("kind", f.Kind.String()),
			zap.String("message", chatResp.Error.Message),
		)
		return "", f
	}

	content, err := llm.ExtractContent(chatResp)
	if err != nil {
		c.logger.Error("openrouter response has no completion", zap.String("body", string(respBody)))
		return "", domain.NewFailure(domain.FailureInvalidUpstreamResponse, "upstream response has no completion text", statusCode)
	}

	return content, nil
}

func (c *Client) withHint(f *domain.Failure) *domain.Failure {
	if f.Kind == domain.FailureInsufficientCredit {
		f.Detail += ". Top up at " + creditsPage
	}
	return f
}

var _ llm.Client = (*Client)(nil)
