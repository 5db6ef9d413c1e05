package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"secops-service/internal/client"
	"secops-service/internal/model"
)

// clickHouseProvider batch-inserts entries into a log analytics table.
type clickHouseProvider struct {
	name    string
	ch      *client.ClickHouseClient
	timeout time.Duration
	logger  *zap.Logger
}

func newClickHouseProvider(cfg model.LogProvider, ch *client.ClickHouseClient, logger *zap.Logger) *clickHouseProvider {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &clickHouseProvider{
		name:    cfg.Name,
		ch:      ch,
		timeout: timeout,
		logger:  logger,
	}
}

func (p *clickHouseProvider) Name() string             { return p.name }
func (p *clickHouseProvider) Type() model.ProviderType { return model.ProviderCustom }

func (p *clickHouseProvider) Deliver(ctx context.Context, batch []model.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows := make([][]interface{}, 0, len(batch))
	for _, entry := range batch {
		meta, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", entry.ID, err)
		}
		rows = append(rows, []interface{}{
			entry.ID,
			entry.Timestamp,
			string(entry.Level),
			string(entry.Category),
			entry.Source,
			entry.Message,
			string(meta),
			entry.CorrelationID,
		})
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, timestamp, level, category, source, message, metadata, correlation_id)",
		p.ch.Table())
	if err := p.ch.BatchInsert(ctx, query, rows); err != nil {
		return fmt.Errorf("clickhouse insert failed: %w", err)
	}

	p.logger.Debug("Batch delivered to ClickHouse",
		zap.String("provider", p.name),
		zap.Int("count", len(batch)))
	return nil
}
