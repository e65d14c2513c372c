package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/mq/kafka"
)

// HeaderAccountID 消息头中的账号，缺省时使用消息 key
const HeaderAccountID = "account_id"

const stopTimeout = 15 * time.Second

// ErrNoAccount 消息没有账号信息
var ErrNoAccount = errors.New("consumer: message without account id")

// Ingester 由 service.IngestService 实现
type Ingester interface {
	Ingest(ctx context.Context, accountID string, payload capture.Payload) (*service.Outcome, error)
}

// CaptureConsumer 消费上游解析服务发布的抓包载荷
type CaptureConsumer struct {
	cfg      *kafka.Config
	ingest   Ingester
	logger   logger.Logger
	consumer *kafka.Consumer
}

// NewCaptureConsumer 创建抓包消费者，Kafka 未配置时 Start/Stop 为空操作
func NewCaptureConsumer(cfg *kafka.Config, ingest Ingester, l logger.Logger) *CaptureConsumer {
	return &CaptureConsumer{
		cfg:    cfg,
		ingest: ingest,
		logger: logger.OrNoop(l).Named("consumer.capture"),
	}
}

// Handle 处理单条消息；只有存储故障返回错误以触发重试，其余错误记录后丢弃
func (c *CaptureConsumer) Handle(ctx context.Context, msg *kafka.Message) error {
	accountID := msg.Headers[HeaderAccountID]
	if accountID == "" {
		accountID = string(msg.Key)
	}
	if accountID == "" {
		c.logger.Warn("capture message dropped", "offset", msg.Offset, "partition", msg.Partition, "error", ErrNoAccount)
		return nil
	}

	var payload capture.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Warn("invalid capture message", "account_id", accountID, "offset", msg.Offset, "error", err)
		return nil
	}

	out, err := c.ingest.Ingest(ctx, accountID, payload)
	if err != nil {
		if errors.Is(err, reconcile.ErrStorage) {
			return err
		}
		c.logger.Warn("capture message rejected", "account_id", accountID, "offset", msg.Offset, "error", err)
		return nil
	}
	c.logger.Debug("capture message ingested",
		"account_id", accountID,
		"generation", out.Report.Generation,
		"saved", out.Saved,
	)
	return nil
}

// Start 实现 app.Server
func (c *CaptureConsumer) Start() error {
	if c.cfg == nil || !c.cfg.Enabled() || c.cfg.Consumer.Topic == "" {
		c.logger.Info("capture consumer disabled")
		return nil
	}
	kc, err := kafka.NewConsumer(c.cfg, c.Handle, c.logger)
	if err != nil {
		return errors.Wrap(err, "failed to create capture consumer")
	}
	if err := kc.Start(context.Background()); err != nil {
		return err
	}
	c.consumer = kc
	c.logger.Info("capture consumer started",
		"topic", c.cfg.Consumer.Topic,
		"group_id", c.cfg.Consumer.GroupID,
	)
	return nil
}

// Stop 实现 app.Server
func (c *CaptureConsumer) Stop() error {
	if c.consumer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return c.consumer.Stop(ctx)
}
