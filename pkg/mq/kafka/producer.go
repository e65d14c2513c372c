package kafka

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 单主题生产者
type Producer struct {
	topic  string
	writer messageWriter
	closed atomic.Bool

	produced atomic.Int64
	failed   atomic.Int64
}

// NewProducer 创建生产者
func NewProducer(cfg *Config) (*Producer, error) {
	if err := cfg.ValidateProducer(); err != nil {
		return nil, err
	}
	pc := cfg.Producer

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  pc.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              pc.BatchSize,
		BatchTimeout:           pc.BatchTimeout,
		MaxAttempts:            pc.MaxRetries + 1,
		WriteTimeout:           pc.WriteTimeout,
		ReadTimeout:            pc.ReadTimeout,
		RequiredAcks:           kafka.RequiredAcks(pc.RequiredAcks),
		Async:                  pc.Async,
		Compression:            parseCompression(pc.Compression),
		AllowAutoTopicCreation: true,
	}
	if cfg.TLS != nil || cfg.SASL != nil {
		transport, err := newTransport(cfg)
		if err != nil {
			return nil, err
		}
		w.Transport = transport
	}
	return &Producer{topic: pc.Topic, writer: w}, nil
}

// Topic 目标主题
func (p *Producer) Topic() string {
	return p.topic
}

// Publish 发布消息；同一 Key 路由到同一分区
func (p *Producer) Publish(ctx context.Context, msgs ...*Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	kms := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		kms[i] = toKafka(m)
	}
	if err := p.writer.WriteMessages(ctx, kms...); err != nil {
		p.failed.Add(int64(len(msgs)))
		return err
	}
	p.produced.Add(int64(len(msgs)))
	return nil
}

// Stats 成功与失败条数
func (p *Producer) Stats() (produced, failed int64) {
	return p.produced.Load(), p.failed.Load()
}

// Close 关闭生产者，等待异步缓冲写出
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

func parseCompression(name string) kafka.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
