package publisher

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// EventRosterChanged 名册变更事件类型
const EventRosterChanged = "roster.changed"

// Event 推送给下游的变更事件
type Event struct {
	Type        string                  `json:"type"`
	PublishedAt time.Time               `json:"published_at"`
	Report      *reconcile.ChangeReport `json:"report"`
}

// NewEvent 包装变更报告
func NewEvent(report *reconcile.ChangeReport) *Event {
	return &Event{
		Type:        EventRosterChanged,
		PublishedAt: time.Now().UTC(),
		Report:      report,
	}
}

// Publisher 变更报告下游
type Publisher interface {
	Name() string
	Publish(ctx context.Context, report *reconcile.ChangeReport) error
}

// Noop 丢弃所有报告
type Noop struct{}

func (Noop) Name() string                                           { return "noop" }
func (Noop) Publish(context.Context, *reconcile.ChangeReport) error { return nil }

// Multi 依次投递到所有下游，单个失败不影响其余下游
type Multi struct {
	sinks   []Publisher
	logger  logger.Logger
	metrics *metrics.RosterMetrics
}

// NewMulti 组合多个下游，nil 会被忽略
func NewMulti(l logger.Logger, m *metrics.RosterMetrics, sinks ...Publisher) *Multi {
	out := make([]Publisher, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{
		sinks:   out,
		logger:  logger.OrNoop(l).Named("publisher"),
		metrics: m,
	}
}

func (p *Multi) Name() string { return "multi" }

// Len 返回下游数量
func (p *Multi) Len() int { return len(p.sinks) }

// Publish 返回所有失败下游的合并错误
func (p *Multi) Publish(ctx context.Context, report *reconcile.ChangeReport) error {
	var errs error
	for _, s := range p.sinks {
		err := s.Publish(ctx, report)
		p.metrics.RecordPublish(s.Name(), err)
		if err != nil {
			p.logger.Warn("failed to publish change report",
				"sink", s.Name(),
				"account_id", report.AccountID,
				"generation", report.Generation,
				"error", err,
			)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "sink %s", s.Name()))
		}
	}
	return errs
}
