package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/domain"
	"github.com/kitbuilder587/completion-gateway/internal/llm"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

// ConfigReader отдает текущий снапшот, реализуется config.Store
type ConfigReader interface {
	Current() config.Snapshot
}

// Alerter starts a detached alert delivery, implemented by alert.Dispatcher.
type Alerter interface {
	Dispatch(event domain.AlertEvent, webhookURL string)
}

type GenerateService interface {
	Generate(ctx context.Context, req *domain.CompletionRequest) (string, error)
}

type GenerateServiceDeps struct {
	Config    ConfigReader
	LLM       llm.Client
	Alerts    Alerter
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Provider  string
	MaxTokens int

	// now подменяется в тестах
	Now func() time.Time
}

type generateService struct {
	config    ConfigReader
	llm       llm.Client
	alerts    Alerter
	logger    *zap.Logger
	metrics   *metrics.Metrics
	provider  string
	maxTokens int
	now       func() time.Time
}

func NewGenerateService(deps GenerateServiceDeps) GenerateService {
	if deps.Provider == "" {
		deps.Provider = "openrouter"
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &generateService{
		config:    deps.Config,
		llm:       deps.LLM,
		alerts:    deps.Alerts,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		provider:  deps.Provider,
		maxTokens: llm.ClampMaxTokens(deps.MaxTokens),
		now:       deps.Now,
	}
}

// Generate validates the request, makes one upstream call and, on failure,
// hands an alert to the dispatcher without waiting for it. The returned
// error is either a validation error or a *domain.Failure.
func (s *generateService) Generate(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	// один снапшот на весь запрос: ключ и вебхук из одной версии конфига
	snap := s.config.Current()

	s.logger.Info("request received",
		zap.String("text", domain.Preview(req.Text, 50)),
		zap.String("provider", s.provider),
		zap.Int("max_tokens", s.maxTokens),
	)

	// обрыв соединения клиентом не отменяет уже оплачиваемый вызов,
	// его ограничивает только таймаут клиента провайдера
	upstreamCtx := context.WithoutCancel(ctx)

	startTime := time.Now()
	text, err := s.llm.Complete(upstreamCtx, req.Text, snap, s.maxTokens)
	elapsed := time.Since(startTime)

	if err == nil {
		if s.metrics != nil {
			s.metrics.RecordUpstream(s.provider, "success", elapsed)
		}
		s.logger.Info("completion received",
			zap.String("text", domain.Preview(text, 100)),
			zap.Duration("duration", elapsed),
		)
		return text, nil
	}

	f := asFailure(err)

	if s.metrics != nil {
		s.metrics.RecordUpstream(s.provider, f.Kind.String(), elapsed)
	}
	s.logger.Error("completion failed",
		zap.String("kind", f.Kind.String()),
		zap.String("detail", f.Detail),
		zap.Int("upstream_status", f.UpstreamStatus),
		zap.Duration("duration", elapsed),
	)

	if s.alerts != nil {
		s.alerts.Dispatch(domain.NewAlertEvent(req.Text, f, s.now()), snap.WebhookURL)
	}

	return "", f
}

// asFailure приводит любую ошибку клиента к *domain.Failure
func asFailure(err error) *domain.Failure {
	var f *domain.Failure
	if errors.As(err, &f) {
		return f
	}
	if llm.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return llm.NetworkFailure(err)
	}
	return domain.NewFailure(domain.FailureUnknown, err.Error(), 0)
}
