package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/google/uuid"
)

// KafkaMessaging implements MessagingPort as a producer only. The service
// emits lifecycle events; nothing here consumes topics.
type KafkaMessaging struct {
	producer *kafka.Producer
}

func NewKafkaMessaging(brokers []string) (interfaces.MessagingPort, error) {
	bootstrap := ""
	for i, b := range brokers {
		if i > 0 {
			bootstrap += ","
		}
		bootstrap += b
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            bootstrap,
		"client.id":                    "feed-control-producer",
		"acks":                         "all",
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,
		"queue.buffering.max.messages": 100000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaMessaging{producer: producer}, nil
}

func buildMessage(topic string, message []byte, key string) *kafka.Message {
	headers := []kafka.Header{
		{Key: "message_id", Value: []byte(uuid.New().String())},
		{Key: "timestamp", Value: []byte(fmt.Sprintf("%d", time.Now().UnixNano()))},
	}

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        headers,
	}
}

func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.producer.Produce(buildMessage(topic, message, ""), nil)
}

// PublishWithKey keeps events for one store on one partition.
func (k *KafkaMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	return k.producer.Produce(buildMessage(topic, message, key), nil)
}

func (k *KafkaMessaging) Close() error {
	k.producer.Flush(15 * 1000)
	k.producer.Close()
	return nil
}
