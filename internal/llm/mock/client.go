package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/llm"
)

type Client struct {
	Response string
	Error    error
	Delay    time.Duration

	mu       sync.Mutex
	allCalls []LLMCall
}

type LLMCall struct {
	Prompt    string
	APIKey    string
	MaxTokens int
}

func New() *Client {
	return &Client{
		Response: "This is a mock completion.",
	}
}

func (c *Client) WithResponse(response string) *Client {
	c.Response = response
	return c
}

func (c *Client) WithError(err error) *Client {
	c.Error = err
	return c
}

func (c *Client) WithDelay(delay time.Duration) *Client {
	c.Delay = delay
	return c
}

func (c *Client) Complete(ctx context.Context, prompt string, snap config.Snapshot, maxTokens int) (string, error) {
	c.mu.Lock()
	c.allCalls = append(c.allCalls, LLMCall{Prompt: prompt, APIKey: snap.APIKey, MaxTokens: maxTokens})
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.Delay):
		}
	}

	if c.Error != nil {
		return "", c.Error
	}

	return c.Response, nil
}

func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.allCalls)
}

func (c *Client) LastCall() (LLMCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.allCalls) == 0 {
		return LLMCall{}, false
	}
	return c.allCalls[len(c.allCalls)-1], true
}

func (c *Client) Reset() {
	c.mu.Lock()
	c.allCalls = nil
	c.mu.Unlock()
}

var _ llm.Client = (*Client)(nil)
