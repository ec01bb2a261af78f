package domain

import (
	"fmt"
	"net/http"
)

// FailureKind - закрытый набор причин, по которым не удалось получить ответ от провайдера.
type FailureKind string

const (
	FailureAuthentication          FailureKind = "Authentication"
	FailureRateLimited             FailureKind = "RateLimited"
	FailureInsufficientCredit      FailureKind = "InsufficientCredit"
	FailureNetwork                 FailureKind = "Network"
	FailureInvalidUpstreamResponse FailureKind = "InvalidUpstreamResponse"
	FailureUnknown                 FailureKind = "Unknown"
)

var failureKinds = []FailureKind{
	FailureAuthentication,
	FailureRateLimited,
	FailureInsufficientCredit,
	FailureNetwork,
	FailureInvalidUpstreamResponse,
	FailureUnknown,
}

// FailureKinds returns every kind in a stable order.
func FailureKinds() []FailureKind {
	out := make([]FailureKind, len(failureKinds))
	copy(out, failureKinds)
	return out
}

func (k FailureKind) IsValid() bool {
	for _, kind := range failureKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (k FailureKind) String() string {
	return string(k)
}

// HTTPStatus maps a kind to the status returned to the caller.
// Every kind must have an explicit case here; unknown values fall back to 500.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case FailureAuthentication:
		return http.StatusUnauthorized
	case FailureRateLimited:
		return http.StatusTooManyRequests
	case FailureInsufficientCredit:
		return http.StatusPaymentRequired
	case FailureNetwork:
		return http.StatusBadGateway
	case FailureUnknown:
		return http.StatusBadGateway
	case FailureInvalidUpstreamResponse:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Failure - классифицированная ошибка вызова провайдера.
// UpstreamStatus == 0 значит, что HTTP ответа не было (сеть, таймаут).
type Failure struct {
	Kind           FailureKind
	Detail         string
	UpstreamStatus int
}

func NewFailure(kind FailureKind, detail string, upstreamStatus int) *Failure {
	return &Failure{Kind: kind, Detail: detail, UpstreamStatus: upstreamStatus}
}

func (f *Failure) Error() string {
	if f.UpstreamStatus != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.UpstreamStatus, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}
