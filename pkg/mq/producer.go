package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/picpipe/pkg/log"
)

// Publisher sends keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Producer implements Publisher with confluent-kafka-go. Delivery failures
// are reported asynchronously and logged.
type Producer struct {
	producer *kafka.Producer
	doneCh   chan struct{}
}

// NewProducer creates a producer and makes sure the given topics exist.
func NewProducer(brokers string, partitions int, topics ...string) (*Producer, error) {
	for _, topic := range topics {
		if err := EnsureTopic(brokers, topic, partitions); err != nil {
			log.L().Warn().Err(err).Str(log.FieldTopic, topic).Msg("failed to ensure topic, may already exist")
		}
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kp := &Producer{producer: p, doneCh: make(chan struct{})}
	go kp.deliveryReportHandler()

	return kp, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(brokers, topic string, partitions int) error {
	if partitions <= 0 {
		partitions = 1
	}

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %w", result.Topic, result.Error)
		}
	}
	return nil
}

func (kp *Producer) deliveryReportHandler() {
	for e := range kp.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			log.L().Error().Err(m.TopicPartition.Error).
				Str(log.FieldTopic, *m.TopicPartition.Topic).
				Msg("kafka delivery failed")
		}
	}
	close(kp.doneCh)
}

// Publish enqueues value on topic. Messages with the same key keep their order.
func (kp *Producer) Publish(_ context.Context, topic string, key, value []byte) error {
	err := kp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases producer resources.
func (kp *Producer) Close() error {
	kp.producer.Flush(5000)
	kp.producer.Close()
	<-kp.doneCh
	return nil
}
