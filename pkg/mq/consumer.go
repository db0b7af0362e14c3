package mq

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/picpipe/pkg/log"
)

// Handler processes one Kafka message. A returned error is logged and the
// message is skipped; it never stops the consumer.
type Handler interface {
	HandleMessage(ctx context.Context, key, value []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, key, value []byte) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, key, value []byte) error {
	return f(ctx, key, value)
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers         string `mapstructure:"brokers"`
	Topic           string `mapstructure:"topic"`
	GroupID         string `mapstructure:"group_id"`
	AutoOffsetReset string `mapstructure:"auto_offset_reset"`
}

// Consumer polls a single topic and hands messages to a Handler.
type Consumer struct {
	consumer *kafka.Consumer
	topic    string
	groupID  string
}

// NewConsumer creates a consumer in group cfg.GroupID.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	reset := cfg.AutoOffsetReset
	if reset == "" {
		reset = "latest"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       cfg.Brokers,
		"group.id":                cfg.GroupID,
		"auto.offset.reset":       reset,
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{consumer: c, topic: cfg.Topic, groupID: cfg.GroupID}, nil
}

// Run consumes until ctx is cancelled (returns nil) or the client reports a
// fatal error (returns it). Handlers run with a context that outlives ctx so
// an in-flight message completes during shutdown.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if err := c.consumer.Subscribe(c.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.topic, err)
	}

	l := log.L().With().Str(log.FieldTopic, c.topic).Str("group", c.groupID).Logger()
	l.Info().Msg("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("kafka consumer stopping")
			return nil
		default:
		}

		switch e := c.consumer.Poll(500).(type) {
		case nil:
		case *kafka.Message:
			if err := h.HandleMessage(context.WithoutCancel(ctx), e.Key, e.Value); err != nil {
				l.Warn().Err(err).
					Int32("partition", e.TopicPartition.Partition).
					Str("offset", e.TopicPartition.Offset.String()).
					Msg("skipping message")
			}
		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return fmt.Errorf("fatal kafka error on %s: %w", c.topic, e)
			}
		}
	}
}

// Close releases the client. Call after Run has returned.
func (c *Consumer) Close() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
