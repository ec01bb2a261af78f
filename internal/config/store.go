package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Snapshot is the hot-reloadable part of the configuration.
// A snapshot is never modified after it has been published by a Store.
type Snapshot struct {
	APIKey     string
	WebhookURL string
}

// HasWebhook reports whether failure alerts should be sent.
func (s Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// ConfigError lists required settings that are absent after a reload.
type ConfigError struct {
	MissingFields []string
}

func (e *ConfigError) Error() string {
	return "missing required config: " + strings.Join(e.MissingFields, ", ")
}

// Store держит текущий Snapshot. Читатели получают указатель атомарно,
// reload собирает новый снапшот целиком и подменяет его одной операцией.
type Store struct {
	current atomic.Pointer[Snapshot]
	// reloadMu не дает двум reload перемешаться, на чтение не влияет
	reloadMu sync.Mutex
	logger   *zap.Logger
}

// NewStore performs the initial load. The store is unusable without a valid
// first snapshot, so any error is returned to the caller.
func NewStore(src Source, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	if _, err := s.Reload(src); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Current() Snapshot {
	if snap := s.current.Load(); snap != nil {
		return *snap
	}
	return Snapshot{}
}

// Reload reads src and swaps the snapshot only if it is valid.
// On error the previous snapshot stays in place.
func (s *Store) Reload(src Source) (Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	values, err := src.Read()
	if err != nil {
		s.logger.Error("config reload failed", zap.Error(err))
		return Snapshot{}, fmt.Errorf("read config source: %w", err)
	}

	snap, err := s.buildSnapshot(values)
	if err != nil {
		s.logger.Warn("config reload rejected", zap.Error(err))
		return Snapshot{}, err
	}

	s.current.Store(&snap)

	s.logger.Info("config reloaded",
		zap.String("api_key_suffix", keySuffix(snap.APIKey)),
		zap.String("webhook_url", webhookForLog(snap.WebhookURL)),
	)

	return snap, nil
}

func (s *Store) buildSnapshot(values Values) (Snapshot, error) {
	snap := Snapshot{
		APIKey: values.get(EnvAPIKey),
	}

	var missing []string
	if snap.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if len(missing) > 0 {
		return Snapshot{}, &ConfigError{MissingFields: missing}
	}

	raw := values.get(EnvWebhookURL)
	if raw == "" {
		raw = values.get(EnvLegacyWebhookURL)
	}
	webhook, ok := normalizeWebhookURL(raw)
	if !ok {
		// кривой URL считаем отсутствующим, алерты просто выключаются
		s.logger.Warn("webhook url is malformed, alerts disabled", zap.String("webhook_url", webhookForLog(raw)))
	}
	snap.WebhookURL = webhook

	return snap, nil
}

// normalizeWebhookURL returns "" for blank input. ok is false only when a
// non-blank value could not be used.
func normalizeWebhookURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func keySuffix(key string) string {
	if len(key) <= 5 {
		return "***"
	}
	return "..." + key[len(key)-5:]
}

// webhookForLog оставляет только схему и хост: в пути и query вебхука часто лежит токен
func webhookForLog(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "none"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<unparseable>"
	}
	return u.Scheme + "://" + u.Host
}
