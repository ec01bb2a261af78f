package llm

import (
	"context"
	"errors"

	"github.com/kitbuilder587/completion-gateway/internal/config"
)

// MaxTokens - жесткий потолок на длину ответа. Провайдер тарифицирует по токенам,
// поэтому лимит отправляется всегда и больше него не попросить.
const MaxTokens = 1000

var (
	ErrRequestFailed = errors.New("request failed")
	ErrEmptyResponse = errors.New("empty response")
)

// Client performs exactly one completion call per Complete. Every non-nil
// error it returns is a *domain.Failure.
type Client interface {
	Complete(ctx context.Context, prompt string, snap config.Snapshot, maxTokens int) (string, error)
}

// ClampMaxTokens keeps the requested budget within (0, MaxTokens].
func ClampMaxTokens(n int) int {
	if n <= 0 || n > MaxTokens {
		return MaxTokens
	}
	return n
}
