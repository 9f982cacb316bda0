package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// KafkaRowSource consumes JSON-encoded rows from a Kafka topic. It realizes
// the generic row-source contract used by pkg/rowconv's Batcher; values
// arrive exactly as encoding/json decodes them (float64 for numbers, bool,
// string, or nested types the schema's ColumnBuilder must then coerce).
type KafkaRowSource struct {
	topic            string
	bootstrapServers string
	startupMode      string
	consumerGroup    string

	client *kgo.Client
	ctx    context.Context
	buffer []otbatch.Row
}

// NewKafkaRowSource creates a Kafka row source. startupMode is one of
// "earliest"/"earliest-offset" or "latest"/"latest-offset"; any other value
// behaves as "earliest".
func NewKafkaRowSource(topic, bootstrapServers, startupMode, consumerGroup string) *KafkaRowSource {
	return &KafkaRowSource{
		topic:            topic,
		bootstrapServers: bootstrapServers,
		startupMode:      startupMode,
		consumerGroup:    consumerGroup,
	}
}

func (k *KafkaRowSource) Open(ctx *stage.Context) error {
	k.ctx = ctx.Ctx

	opts := []kgo.Opt{
		kgo.SeedBrokers(k.bootstrapServers),
		kgo.ConsumeTopics(k.topic),
	}
	if k.consumerGroup != "" {
		opts = append(opts, kgo.ConsumerGroup(k.consumerGroup))
	}
	switch k.startupMode {
	case "latest-offset", "latest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	default:
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("kafka row source: create client: %w", err)
	}
	k.client = client
	return nil
}

// Next implements rowconv.RowSource. It polls Kafka in small bursts,
// buffering decoded rows, and returns ok=false once the context carried
// from Open is done.
func (k *KafkaRowSource) Next() (otbatch.Row, bool, error) {
	for {
		if len(k.buffer) > 0 {
			row := k.buffer[0]
			k.buffer = k.buffer[1:]
			return row, true, nil
		}

		select {
		case <-k.ctx.Done():
			return nil, false, nil
		default:
		}

		fetches := k.client.PollFetches(k.ctx)
		if k.ctx.Err() != nil {
			return nil, false, nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, false, fmt.Errorf("kafka row source: fetch %s/%d: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			var row otbatch.Row
			if err := json.Unmarshal(rec.Value, &row); err != nil {
				return
			}
			k.buffer = append(k.buffer, row)
		})
	}
}

func (k *KafkaRowSource) Close() error {
	if k.client != nil {
		k.client.Close()
	}
	return nil
}
