package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"secops-service/internal/client"
	"secops-service/internal/model"
)

// kafkaProvider streams batches onto the log topic, one message per entry,
// keyed by source so entries from the same source stay ordered per partition.
type kafkaProvider struct {
	name     string
	producer *client.KafkaProducer
	timeout  time.Duration
	logger   *zap.Logger
}

func newKafkaProvider(cfg model.LogProvider, producer *client.KafkaProducer, logger *zap.Logger) *kafkaProvider {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &kafkaProvider{
		name:     cfg.Name,
		producer: producer,
		timeout:  timeout,
		logger:   logger,
	}
}

func (p *kafkaProvider) Name() string             { return p.name }
func (p *kafkaProvider) Type() model.ProviderType { return model.ProviderSplunk }

func (p *kafkaProvider) Deliver(ctx context.Context, batch []model.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msgs := make([]kafka.Message, 0, len(batch))
	for _, entry := range batch {
		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entry.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(entry.Source),
			Value: value,
		})
	}

	if err := p.producer.ProduceBatch(ctx, msgs); err != nil {
		return err
	}

	p.logger.Debug("Batch delivered to Kafka",
		zap.String("provider", p.name),
		zap.Int("count", len(batch)))
	return nil
}
