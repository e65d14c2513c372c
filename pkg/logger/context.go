package logger

import (
	"context"

	"go.uber.org/zap"
)

type runFieldsKey struct{}

// WithRunFields 把一组 key/value 挂到 context 上，*Context 日志方法会自动带出
// 常用于一次导入：account_id、run_id、source
func WithRunFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	if len(keysAndValues) == 0 || len(keysAndValues)%2 != 0 {
		return ctx
	}
	prev, _ := ctx.Value(runFieldsKey{}).([]interface{})
	merged := make([]interface{}, 0, len(prev)+len(keysAndValues))
	merged = append(merged, prev...)
	merged = append(merged, keysAndValues...)
	return context.WithValue(ctx, runFieldsKey{}, merged)
}

// RunFields 返回 context 上挂载的字段
func RunFields(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(runFieldsKey{}).([]interface{})
	return fields
}

func contextFields(ctx context.Context) []zap.Field {
	return toZapFields(RunFields(ctx)...)
}
