package domain

import (
	"strings"
)

type CompletionRequest struct {
	Text string
}

func (r *CompletionRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}

	return nil
}

// Preview - обрезанный текст для логов, целиком промпт не пишем
func Preview(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
