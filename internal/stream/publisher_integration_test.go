//go:build integration

package stream_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"meditrace/internal/ledger"
	"meditrace/internal/stream"
	"meditrace/pkg/testutil/containers"
)

func TestBlockPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redpanda := containers.NewRedpandaContainer(t)
	defer func() { _ = redpanda.Container.Terminate(context.Background()) }()

	const topic = "meditrace.ledger.blocks.test"

	publisher, err := stream.NewBlockPublisher([]string{redpanda.Broker}, topic, nil)
	require.NoError(t, err)
	defer publisher.Close()

	block := &ledger.Block{
		Index:     0,
		UnitID:    "a1b2c3d4-1",
		Payload:   `{"kind":"registration","unit_id":"a1b2c3d4-1"}`,
		PrevHash:  ledger.GenesisPrevHash,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
	block.Hash = ledger.ComputeHash(block.Index, block.Payload, block.PrevHash, block.Timestamp)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, publisher.PublishBlock(ctx, block))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, []byte(block.UnitID), records[0].Key)

	var decoded ledger.Block
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	require.Equal(t, block.Hash, decoded.Hash)
	require.Equal(t, block.Index, decoded.Index)
}
