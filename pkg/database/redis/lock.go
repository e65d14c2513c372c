package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Second

// 只有持有者才能释放或续期
const (
	unlockScript  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	refreshScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

// Lock 分布式锁（单节点实现）
type Lock struct {
	client *Client
	key    string        // 锁的键
	value  string        // 锁的值（用于验证锁持有者）
	ttl    time.Duration // 锁的过期时间
}

// NewLock 创建分布式锁（单节点）
func NewLock(client *Client, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &Lock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Lock 获取锁，已被占用返回 ErrLockFailed
func (l *Lock) Lock(ctx context.Context) error {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !ok {
		return ErrLockFailed
	}

	return nil
}

// TryLock 尝试获取锁（非阻塞方式，立即返回）
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}

	return ok, nil
}

// LockWithRetry 获取锁（带重试机制）
func (l *Lock) LockWithRetry(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		// 检查上下文是否已取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return ErrLockFailed
}

// Unlock 释放锁（使用 Lua 脚本保证原子性：只有锁持有者才能释放锁）
func (l *Lock) Unlock(ctx context.Context) error {
	result, err := l.client.rdb.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}

	if n, _ := result.(int64); n == 0 {
		return ErrLockNotHeld
	}

	return nil
}

// Refresh 刷新锁的过期时间（延长锁的持有时间）
func (l *Lock) Refresh(ctx context.Context) error {
	result, err := l.client.rdb.Eval(ctx, refreshScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}

	if n, _ := result.(int64); n == 0 {
		return ErrLockNotHeld
	}

	return nil
}

// WithLockRetry 在锁的保护下执行 fn，释放失败交给 onUnlockErr
func (c *Client) WithLockRetry(ctx context.Context, key string, ttl, retryInterval time.Duration, maxRetries int, fn func() error, onUnlockErr func(error)) error {
	lock := NewLock(c, key, ttl)
	if err := lock.LockWithRetry(ctx, retryInterval, maxRetries); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil && onUnlockErr != nil {
			onUnlockErr(err)
		}
	}()
	return fn()
}
