package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message 消息
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// Handler 消息处理器
type Handler func(ctx context.Context, msg *Message) error

// Middleware 消费者中间件
type Middleware func(Handler) Handler

func toKafka(msg *Message) kafka.Message {
	km := kafka.Message{Key: msg.Key, Value: msg.Value, Time: msg.Timestamp}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func fromKafka(km kafka.Message) *Message {
	msg := &Message{
		Topic:     km.Topic,
		Key:       km.Key,
		Value:     km.Value,
		Partition: km.Partition,
		Offset:    km.Offset,
		Timestamp: km.Time,
		Headers:   make(map[string]string, len(km.Headers)),
	}
	for _, h := range km.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
