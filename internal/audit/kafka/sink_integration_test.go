//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"trialstore/internal/audit"
	"trialstore/internal/audit/kafka"
	"trialstore/pkg/testutil/containers"
)

func TestSink_PublishesEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t).Broker
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "schema-audit-" + time.Now().Format("150405.000")
	sink, err := kafka.New([]string{broker}, topic)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	event := audit.Event{
		ID:         "evt-1",
		Timestamp:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Action:     audit.ActionContextChanged,
		Collection: "trials",
		Context:    "enhanced",
	}
	require.NoError(t, sink.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, "trials", string(records[0].Key))
	got, err := kafka.Decode(records[0])
	require.NoError(t, err)
	assert.Equal(t, event, got)
}

func TestNew_RequiresBrokersAndTopic(t *testing.T) {
	_, err := kafka.New(nil, "topic")
	assert.Error(t, err)
	_, err = kafka.New([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
