package manager

import (
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

const lockKeyPrefix = "lock:roster:"

// LockConfig 账号锁配置
type LockConfig struct {
	// Distributed 为 true 时在进程锁之外再持有 Redis 锁
	Distributed   bool          `mapstructure:"distributed"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"gte=0"`
}

// DefaultLockConfig 返回默认锁配置
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		TTL:           15 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		MaxRetries:    50,
	}
}

// DistributedLocker 跨进程锁，由 redis.Client 实现
type DistributedLocker interface {
	WithLockRetry(ctx context.Context, key string, ttl, retryInterval time.Duration, maxRetries int, fn func() error, onUnlockErr func(error)) error
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

// AccountLocker 按账号串行化名册写入
type AccountLocker struct {
	cfg    *LockConfig
	remote DistributedLocker
	logger logger.Logger

	mu    sync.Mutex
	locks map[string]*accountLock
}

// NewAccountLocker 创建账号锁管理器，remote 为 nil 时只使用进程内锁
func NewAccountLocker(cfg *LockConfig, remote DistributedLocker, l logger.Logger) *AccountLocker {
	if cfg == nil {
		cfg = DefaultLockConfig()
	}
	if !cfg.Distributed {
		remote = nil
	}
	return &AccountLocker{
		cfg:    cfg,
		remote: remote,
		logger: logger.OrNoop(l).Named("manager.lock"),
		locks:  make(map[string]*accountLock),
	}
}

// WithAccount 持有账号锁执行 fn，等待期间 ctx 取消则返回 ctx.Err()
func (m *AccountLocker) WithAccount(ctx context.Context, accountID string, fn func() error) error {
	lk := m.acquireRef(accountID)
	defer m.releaseRef(accountID, lk)

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lk.ch }()

	if m.remote == nil {
		return fn()
	}
	return m.remote.WithLockRetry(ctx, lockKeyPrefix+accountID, m.cfg.TTL, m.cfg.RetryInterval, m.cfg.MaxRetries, fn,
		func(err error) {
			m.logger.Warn("failed to release account lock", "account_id", accountID, "error", err)
		})
}

// Held 返回当前被引用的账号数
func (m *AccountLocker) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *AccountLocker) acquireRef(accountID string) *accountLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[accountID]
	if !ok {
		lk = &accountLock{ch: make(chan struct{}, 1)}
		m.locks[accountID] = lk
	}
	lk.refs++
	return lk
}

func (m *AccountLocker) releaseRef(accountID string, lk *accountLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(m.locks, accountID)
	}
}
