package kafka

import (
	"context"
	"time"

	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// Chain 组合中间件，第一个在最外层
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// LoggingMiddleware 消费日志
func LoggingMiddleware(log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				log.Error("message consume failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"key", string(msg.Key),
					"duration", time.Since(start),
					"error", err,
				)
				return err
			}
			log.Debug("message consumed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// RecoveryMiddleware 捕获 panic
func RecoveryMiddleware(log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("consumer panic recovered",
						"topic", msg.Topic,
						"offset", msg.Offset,
						"panic", r,
					)
					err = ErrConsumerPanic
				}
			}()
			return next(ctx, msg)
		}
	}
}

// RetryMiddleware 线性退避重试
func RetryMiddleware(maxRetries int, backoff time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			var lastErr error
			for i := 0; i <= maxRetries; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(backoff * time.Duration(i)):
					}
				}
				if lastErr = next(ctx, msg); lastErr == nil {
					return nil
				}
			}
			return lastErr
		}
	}
}
