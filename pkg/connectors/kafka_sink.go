package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// KafkaRowSink produces rows as JSON messages to a Kafka topic. It realizes
// the generic row-sink contract an Unbatcher writes into. keyBy names the
// columns, if any, that form the partition key.
type KafkaRowSink struct {
	topic            string
	bootstrapServers string
	keyBy            []string
	client           *kgo.Client
}

// NewKafkaRowSink creates a Kafka row sink.
func NewKafkaRowSink(topic, bootstrapServers string, keyBy []string) *KafkaRowSink {
	return &KafkaRowSink{
		topic:            topic,
		bootstrapServers: bootstrapServers,
		keyBy:            keyBy,
	}
}

func (k *KafkaRowSink) Open(_ *stage.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.DefaultProduceTopic(k.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka row sink: create client: %w", err)
	}
	k.client = client
	return nil
}

func (k *KafkaRowSink) WriteRow(row otbatch.Row) error {
	value, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("kafka row sink: marshal row: %w", err)
	}

	rec := &kgo.Record{Value: value}

	if len(k.keyBy) > 0 {
		keyParts := make(map[string]interface{}, len(k.keyBy))
		for _, col := range k.keyBy {
			if v, ok := row[col]; ok {
				keyParts[col] = v
			}
		}
		keyBytes, _ := json.Marshal(keyParts)
		rec.Key = keyBytes
	}

	k.client.Produce(context.Background(), rec, nil)
	return nil
}

// Flush blocks until all produced rows are acknowledged by the brokers.
func (k *KafkaRowSink) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KafkaRowSink) Close() error {
	if k.client != nil {
		k.client.Close()
	}
	return nil
}
