// Package kafka delivers audit events to a Kafka topic for downstream
// consumers (compliance archival, SIEM). The sink is best-effort by the
// audit.Sink contract; registry operations never fail on broker errors.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "agentledger/pkg/platform/audit"
)

// Sink publishes audit events to a single topic, keyed by agent ID so all
// events for one agent land in one partition in order.
type Sink struct {
	client *kgo.Client
	topic  string
}

// NewSink connects to the brokers and ensures the topic exists.
func NewSink(ctx context.Context, brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Topic may already exist; only surface connectivity failures.
		if ctx.Err() != nil {
			client.Close()
			return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
		}
	}

	return &Sink{client: client, topic: topic}, nil
}

type wireEvent struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	AgentID   uint64 `json:"agent_id,omitempty"`
	JobID     uint64 `json:"job_id,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	ProofHash string `json:"proof_hash,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Publish produces the event asynchronously. Delivery errors are dropped by
// contract; the durable audit trail lives in the audit store.
func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(wireEvent{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Actor:     event.Actor.String(),
		AgentID:   uint64(event.AgentID),
		JobID:     uint64(event.JobID),
		Action:    event.Action,
		Reason:    event.Reason,
		ProofHash: event.ProofHash,
		RequestID: event.RequestID,
	})
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.AgentID.String()),
		Value: payload,
	}
	s.client.Produce(ctx, record, nil)
	return nil
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
