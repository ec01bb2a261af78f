// Package alert delivers failure notifications to an external webhook.
//
// Delivery is best effort. Nothing that happens here is ever reported back
// to the caller of the gateway.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kitbuilder587/completion-gateway/internal/domain"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

const errorSource = "completion-gateway"

type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
}

type Dispatcher struct {
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	// mu защищает closed и wg.Add: после начала Wait новые алерты не принимаются
	mu     sync.Mutex
	closed bool
}

func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

type payload struct {
	ErrorSource     string          `json:"error_source"`
	Timestamp       time.Time       `json:"timestamp"`
	Kind            string          `json:"kind"`
	ErrorMessage    string          `json:"error_message"`
	UpstreamStatus  int             `json:"upstream_status,omitempty"`
	OriginalRequest originalRequest `json:"original_request"`
}

type originalRequest struct {
	Text string `json:"text"`
}

// Dispatch starts a detached delivery attempt and returns immediately.
// The result is intentionally discarded; use Wait to drain on shutdown.
func (d *Dispatcher) Dispatch(event domain.AlertEvent, webhookURL string) {
	if webhookURL == "" {
		d.record("skipped")
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("alert dropped, dispatcher is draining",
			zap.String("kind", event.Kind.String()),
		)
		d.record("dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		// запрос клиента к этому моменту уже мог завершиться, поэтому свой контекст
		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		d.Notify(ctx, event, webhookURL)
	}()
}

// Notify makes one synchronous delivery attempt. It never panics and never
// returns an error: failures are logged and counted.
func (d *Dispatcher) Notify(ctx context.Context, event domain.AlertEvent, webhookURL string) {
	if webhookURL == "" {
		d.record("skipped")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while sending alert", zap.Any("panic", r))
			d.record("failed")
		}
	}()

	if err := d.send(ctx, event, webhookURL); err != nil {
		d.logger.Error("failed to send alert",
			zap.Error(err),
			zap.String("kind", event.Kind.String()),
		)
		d.record("failed")
		return
	}

	d.logger.Info("alert sent", zap.String("kind", event.Kind.String()))
	d.record("sent")
}

// Wait blocks until every dispatched alert has finished or ctx is done.
// Once Wait has been called the dispatcher is draining and Dispatch drops
// new alerts.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, event domain.AlertEvent, webhookURL string) error {
	body, err := json.Marshal(payload{
		ErrorSource:     errorSource,
		Timestamp:       event.Timestamp,
		Kind:            event.Kind.String(),
		ErrorMessage:    event.Detail,
		UpstreamStatus:  event.UpstreamStatus,
		OriginalRequest: originalRequest{Text: event.RequestText},
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) record(result string) {
	if d.metrics != nil {
		d.metrics.RecordAlert(result)
	}
}
