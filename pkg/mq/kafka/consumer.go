package kafka

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费组消费者，处理成功后提交位点
type Consumer struct {
	reader  messageReader
	handler Handler
	logger  logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConsumer 创建消费者，handler 外层依次包裹 Recovery、Logging、Retry
func NewConsumer(cfg *Config, handler Handler, l logger.Logger) (*Consumer, error) {
	if err := cfg.ValidateConsumer(); err != nil {
		return nil, err
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	cc := cfg.Consumer
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cc.GroupID,
		Topic:             cc.Topic,
		Dialer:            dialer,
		MinBytes:          cc.MinBytes,
		MaxBytes:          cc.MaxBytes,
		MaxWait:           cc.MaxWait,
		StartOffset:       cc.StartOffset,
		HeartbeatInterval: cc.HeartbeatInterval,
		SessionTimeout:    cc.SessionTimeout,
	})
	return newConsumer(r, cfg, handler, l), nil
}

func newConsumer(r messageReader, cfg *Config, handler Handler, l logger.Logger) *Consumer {
	l = logger.OrNoop(l)
	h := Chain(handler,
		RecoveryMiddleware(l),
		LoggingMiddleware(l),
		RetryMiddleware(cfg.Consumer.MaxRetries, cfg.Consumer.RetryBackoff),
	)
	return &Consumer{reader: r, handler: h, logger: l}
}

// Start 启动消费循环，立即返回
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrConsumerAlreadyRunning
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true
	go c.loop(ctx)
	return nil
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn("kafka fetch failed", "error", err)
			continue
		}

		// 处理失败的消息同样提交，由处理器自行记录
		if err := c.handler(ctx, fromKafka(km)); err != nil && ctx.Err() != nil {
			return
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", "offset", km.Offset, "error", err)
		}
	}
}

// Stop 停止消费并关闭 Reader
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.reader.Close()
}
