package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kitbuilder587/completion-gateway/internal/domain"
)

// maxDetailBody - сколько сырого тела ответа сохраняем в detail
const maxDetailBody = 512

// creditMarkers are matched case-insensitively against the response body.
var creditMarkers = []string{
	"insufficient credit",
	"insufficient_quota",
	"insufficient quota",
	"insufficient funds",
	"insufficient balance",
	"credit balance",
	"more credits",
	"quota exceeded",
	"exceeded your current quota",
}

// Classify maps an upstream status and body to a failure kind. It never
// fails: anything it does not recognise is Unknown.
func Classify(status int, body []byte) domain.FailureKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.FailureAuthentication
	case http.StatusTooManyRequests:
		return domain.FailureRateLimited
	case http.StatusPaymentRequired:
		return domain.FailureInsufficientCredit
	}

	if (status == http.StatusOK || (status >= 400 && status < 500)) && hasCreditMarker(body) {
		return domain.FailureInsufficientCredit
	}

	return domain.FailureUnknown
}

// FailureFromResponse classifies a response and builds a human readable detail.
func FailureFromResponse(status int, body []byte) *domain.Failure {
	kind := Classify(status, body)
	return domain.NewFailure(kind, Describe(kind, status, body), status)
}

// FailureFromAPIError handles an error object delivered inside a 2xx payload.
// An embedded status code takes precedence over the transport status.
func FailureFromAPIError(status int, apiErr *APIError, body []byte) *domain.Failure {
	if code := apiErr.StatusCode(); code != 0 {
		return FailureFromResponse(code, body)
	}
	return FailureFromResponse(status, body)
}

func Describe(kind domain.FailureKind, status int, body []byte) string {
	msg := providerMessage(body)

	var detail string
	switch kind {
	case domain.FailureAuthentication:
		if status == http.StatusForbidden {
			detail = "authorization error: no permission to use this model or API"
		} else {
			detail = "authentication error: API key is invalid or expired"
		}
	case domain.FailureRateLimited:
		detail = "rate limit exceeded: too many requests to the provider, try again later"
	case domain.FailureInsufficientCredit:
		detail = "insufficient credits on the provider account"
	default:
		return fmt.Sprintf("upstream status %d: %s", status, truncate(string(body), maxDetailBody))
	}

	if msg != "" {
		detail += ": " + msg
	}
	return detail
}

func hasCreditMarker(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range creditMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// providerMessage достает error.message из тела, если оно похоже на JSON ошибки.
// Бывает и {"error": "строка"}.
func providerMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var obj APIError
	if err := json.Unmarshal(envelope.Error, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}

	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// truncate режет по границе руны, чтобы detail оставался валидным UTF-8
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
