package publisher

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/pkg/mq/kafka"
	"github.com/lk2023060901/xdooria-roster/pkg/serializer"
)

// MessageProducer 由 kafka.Producer 实现
type MessageProducer interface {
	Publish(ctx context.Context, msgs ...*kafka.Message) error
}

// KafkaPublisher 以账号 ID 为 key 写入变更主题，同账号保持分区有序
type KafkaPublisher struct {
	producer MessageProducer
	ser      serializer.Serializer
}

// NewKafkaPublisher 创建 Kafka 下游
func NewKafkaPublisher(p MessageProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: p, ser: serializer.NewJSON()}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, report *reconcile.ChangeReport) error {
	evt := NewEvent(report)
	data, err := p.ser.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal change event")
	}
	return p.producer.Publish(ctx, &kafka.Message{
		Key:   []byte(report.AccountID),
		Value: data,
		Headers: map[string]string{
			"event":        evt.Type,
			"generation":   strconv.FormatInt(report.Generation, 10),
			"run_id":       report.RunID,
			"content-type": p.ser.ContentType(),
		},
	})
}
