package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/segmentio/kafka-go"
)

// KafkaSink 将事件写入 Kafka 主题,按资源 ID 分区以保证同一资源的事件有序
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaSink 创建 Kafka 投递目标
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic(),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}

	return &KafkaSink{
		writer: writer,
		topic:  cfg.Topic(),
	}
}

// Name 投递目标名称
func (s *KafkaSink) Name() string {
	return "kafka:" + s.topic
}

// Deliver 写入一条事件消息
func (s *KafkaSink) Deliver(ctx context.Context, evt *Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(evt.ResourceID),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "resource_type", Value: []byte(evt.ResourceType)},
		},
	}

	return s.writer.WriteMessages(ctx, message)
}

// Close 关闭 Kafka 连接
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
