package service

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

type brokenSource struct{}

func (brokenSource) Read() (config.Values, error) { return nil, errors.New("cannot parse .env") }

// mutableSource отдает то, что в нее положили последним
type mutableSource struct {
	values config.Values
}

func (s *mutableSource) Read() (config.Values, error) {
	out := make(config.Values, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func TestReloadService_Reload(t *testing.T) {
	logger := zap.NewNop()

	setup := func(t *testing.T) (*config.Store, *mutableSource, *metrics.Metrics) {
		src := &mutableSource{values: config.Values{config.EnvAPIKey: "first-key-11111"}}
		store, err := config.NewStore(src, logger)
		require.NoError(t, err)
		reg := prometheus.NewRegistry()
		return store, src, metrics.NewWithRegistry(reg, reg)
	}

	t.Run("ok", func(t *testing.T) {
		store, src, m := setup(t)
		svc := NewReloadService(store, src, logger, m)

		src.values = config.Values{config.EnvAPIKey: "second-key-2222", config.EnvWebhookURL: "https://hooks.example.com/b"}
		require.NoError(t, svc.Reload())

		assert.Equal(t, "second-key-2222", store.Current().APIKey)
		assert.Equal(t, "https://hooks.example.com/b", store.Current().WebhookURL)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ConfigReloadsTotal.WithLabelValues("ok")))
	})

	t.Run("missing key keeps previous", func(t *testing.T) {
		store, src, m := setup(t)
		svc := NewReloadService(store, src, logger, m)

		src.values = config.Values{}
		err := svc.Reload()

		var cfgErr *config.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, []string{config.EnvAPIKey}, cfgErr.MissingFields)
		assert.Equal(t, "first-key-11111", store.Current().APIKey)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ConfigReloadsTotal.WithLabelValues("invalid")))
	})

	t.Run("unreadable source", func(t *testing.T) {
		store, _, m := setup(t)
		svc := NewReloadService(store, brokenSource{}, logger, m)

		err := svc.Reload()
		require.Error(t, err)

		var cfgErr *config.ConfigError
		assert.False(t, errors.As(err, &cfgErr))
		assert.Equal(t, "first-key-11111", store.Current().APIKey)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ConfigReloadsTotal.WithLabelValues("error")))
	})
}
