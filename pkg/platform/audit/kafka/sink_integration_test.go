//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"agentledger/pkg/domain"
	audit "agentledger/pkg/platform/audit"
	"agentledger/pkg/platform/audit/kafka"
	"agentledger/pkg/testutil/containers"
)

func TestSinkDeliversEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, err := containers.NewRedpandaContainer(ctx, t)
	require.NoError(t, err)

	const topic = "agentledger.audit.test"

	sink, err := kafka.NewSink(ctx, []string{broker.Broker}, topic)
	require.NoError(t, err)

	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Actor:     domain.Principal("operator-1"),
		AgentID:   domain.AgentID(7),
		JobID:     domain.JobID(42),
		Action:    string(audit.EventJobVerified),
		RequestID: "req-123",
	}
	require.NoError(t, sink.Publish(ctx, event))
	sink.Close()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
	defer fetchCancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)

	// Events are keyed by agent ID so one agent's history stays ordered
	// within a partition.
	require.Equal(t, "7", string(records[0].Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &payload))
	require.Equal(t, "compliance", payload["category"])
	require.Equal(t, "operator-1", payload["actor"])
	require.Equal(t, string(audit.EventJobVerified), payload["action"])
	require.Equal(t, float64(7), payload["agent_id"])
	require.Equal(t, float64(42), payload["job_id"])
	require.Equal(t, "req-123", payload["request_id"])
}
