package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/kitbuilder587/completion-gateway/internal/domain"
)

// maxResponseBytes ограничивает чтение тела ответа провайдера
const maxResponseBytes = 1 << 20

type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message Message `json:"message"`
}

// APIError is the OpenAI-compatible error object. Code is a string or a
// number depending on the provider.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// StatusCode returns Code as an HTTP status, or 0 if it is not one.
func (e *APIError) StatusCode() int {
	if e == nil {
		return 0
	}
	var code int
	switch v := e.Code.(type) {
	case float64:
		code = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		code = n
	default:
		return 0
	}
	if code < 100 || code > 599 {
		return 0
	}
	return code
}

func NewChatRequest(model, prompt string, maxTokens int) ChatRequest {
	return ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens: ClampMaxTokens(maxTokens),
	}
}

func ParseChatResponse(body []byte) (*ChatResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func ExtractContent(resp *ChatResponse) (string, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// DoRequest sends req once and reads the whole body. Transport errors are
// wrapped with ErrRequestFailed and keep the original error in the chain.
func DoRequest(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	return body, resp.StatusCode, nil
}

// NetworkFailure converts a transport error into a Network failure.
func NetworkFailure(err error) *domain.Failure {
	if IsTimeout(err) {
		return domain.NewFailure(domain.FailureNetwork, "upstream request timed out", 0)
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewFailure(domain.FailureNetwork, "upstream request cancelled", 0)
	}
	return domain.NewFailure(domain.FailureNetwork, "network error while connecting to upstream: "+err.Error(), 0)
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
