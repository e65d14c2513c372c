package redis

import "github.com/cockroachdb/errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("redis config is nil")

	// ErrInvalidConfig 配置无效（需要 host:port 或 addrs）
	ErrInvalidConfig = errors.New("invalid redis config: host/port or addrs required")

	// ErrNil 键不存在
	ErrNil = errors.New("redis: nil")

	// ErrLockFailed 获取锁失败
	ErrLockFailed = errors.New("redis: failed to acquire lock")

	// ErrLockNotHeld 锁未持有（不存在或已被其他持有者占用）
	ErrLockNotHeld = errors.New("redis: lock not held")
)
