package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

// Reloader is implemented by config.Store.
type Reloader interface {
	Reload(src config.Source) (config.Snapshot, error)
}

type ReloadService interface {
	Reload() error
}

type reloadService struct {
	store   Reloader
	source  config.Source
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewReloadService(store Reloader, source config.Source, logger *zap.Logger, m *metrics.Metrics) ReloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reloadService{
		store:   store,
		source:  source,
		logger:  logger,
		metrics: m,
	}
}

// Reload re-reads the configured source. A *config.ConfigError means the
// source was readable but incomplete; the previous snapshot is still active.
func (s *reloadService) Reload() error {
	_, err := s.store.Reload(s.source)

	result := "ok"
	var cfgErr *config.ConfigError
	switch {
	case err == nil:
	case errors.As(err, &cfgErr):
		result = "invalid"
	default:
		result = "error"
	}

	if s.metrics != nil {
		s.metrics.RecordReload(result)
	}

	if err != nil {
		s.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
	}
	return err
}
