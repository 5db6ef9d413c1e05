package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"secops-service/internal/client"
	"secops-service/internal/model"
)

// Provider is a batch delivery sink. Deliver receives an ordered batch of
// entry snapshots and succeeds or fails for the whole batch.
type Provider interface {
	Name() string
	Type() model.ProviderType
	Deliver(ctx context.Context, batch []model.LogEntry) error
}

// Deps carries the shared clients providers are built from. Any client may be
// nil; New fails for provider types whose client is missing.
type Deps struct {
	ES         *client.ESClient
	ClickHouse *client.ClickHouseClient
	Kafka      *client.KafkaProducer
	Logger     *zap.Logger
}

// New builds the transport for one configured provider.
func New(cfg model.LogProvider, deps Deps) (Provider, error) {
	switch cfg.Type {
	case model.ProviderELK:
		if deps.ES == nil {
			return nil, fmt.Errorf("provider %s: elasticsearch client not available", cfg.Name)
		}
		return newElasticsearchProvider(cfg, deps.ES, deps.Logger), nil
	case model.ProviderSplunk:
		if deps.Kafka == nil {
			return nil, fmt.Errorf("provider %s: kafka producer not available", cfg.Name)
		}
		return newKafkaProvider(cfg, deps.Kafka, deps.Logger), nil
	case model.ProviderDatadog, model.ProviderSentry, model.ProviderCloudWatch:
		return newWebhookProvider(cfg, deps.Logger), nil
	case model.ProviderCustom:
		if cfg.Endpoint != "" {
			return newWebhookProvider(cfg, deps.Logger), nil
		}
		if deps.ClickHouse == nil {
			return nil, fmt.Errorf("provider %s: clickhouse client not available", cfg.Name)
		}
		return newClickHouseProvider(cfg, deps.ClickHouse, deps.Logger), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
	}
}
