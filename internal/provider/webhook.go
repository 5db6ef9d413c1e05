package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"secops-service/internal/model"
)

// webhookProvider POSTs the whole batch as JSON to an external endpoint. It
// covers the datadog/sentry/cloudwatch shapes, whose actual wire formats are
// owned by the remote side; only the batch contract matters here.
type webhookProvider struct {
	name     string
	ptype    model.ProviderType
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

func newWebhookProvider(cfg model.LogProvider, logger *zap.Logger) *webhookProvider {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &webhookProvider{
		name:     cfg.Name,
		ptype:    cfg.Type,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (p *webhookProvider) Name() string             { return p.name }
func (p *webhookProvider) Type() model.ProviderType { return p.ptype }

func (p *webhookProvider) Deliver(ctx context.Context, batch []model.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}
	if p.endpoint == "" {
		return fmt.Errorf("provider %s: no endpoint configured", p.name)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"entries": batch,
		"count":   len(batch),
	})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("delivery rejected: %s", res.Status)
	}

	p.logger.Debug("Batch delivered to webhook",
		zap.String("provider", p.name),
		zap.Int("count", len(batch)))
	return nil
}
