// Package stream publishes appended ledger blocks to Kafka so downstream
// consumers (analytics, regulator feeds) can follow the chain without polling.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"meditrace/internal/ledger"
)

// BlockPublisher produces one record per appended block, keyed by unit id so
// a unit's events stay in partition order.
type BlockPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewBlockPublisher connects to the given brokers. The caller owns Close.
func NewBlockPublisher(brokers []string, topic string, logger *slog.Logger) (*BlockPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &BlockPublisher{client: client, topic: topic, logger: logger}, nil
}

// PublishBlock sends the block as a JSON record and waits for the ack.
func (p *BlockPublisher) PublishBlock(ctx context.Context, block *ledger.Block) error {
	value, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(block.UnitID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce block %d: %w", block.Index, err)
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "block published",
			"topic", p.topic,
			"block_index", block.Index,
			"unit_id", block.UnitID,
		)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (p *BlockPublisher) Close() {
	p.client.Close()
}
