package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"secops-service/internal/client"
	"secops-service/internal/model"
)

// elasticsearchProvider bulk-indexes batches into the configured index.
type elasticsearchProvider struct {
	name    string
	es      *client.ESClient
	timeout time.Duration
	logger  *zap.Logger
}

func newElasticsearchProvider(cfg model.LogProvider, es *client.ESClient, logger *zap.Logger) *elasticsearchProvider {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &elasticsearchProvider{
		name:    cfg.Name,
		es:      es,
		timeout: timeout,
		logger:  logger,
	}
}

func (p *elasticsearchProvider) Name() string             { return p.name }
func (p *elasticsearchProvider) Type() model.ProviderType { return model.ProviderELK }

func (p *elasticsearchProvider) Deliver(ctx context.Context, batch []model.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var body bytes.Buffer
	for _, entry := range batch {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, p.es.Index(), entry.ID)
		body.WriteString(meta)
		body.WriteByte('\n')
		doc, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entry.ID, err)
		}
		body.Write(doc)
		body.WriteByte('\n')
	}

	res, err := p.es.Bulk(ctx, body.Bytes())
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}

	p.logger.Debug("Batch delivered to Elasticsearch",
		zap.String("provider", p.name),
		zap.Int("count", len(batch)))
	return nil
}
