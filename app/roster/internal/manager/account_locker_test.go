package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAccountSerializesSameAccount(t *testing.T) {
	locker := NewAccountLocker(nil, nil, nil)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithAccount(context.Background(), "a", func() error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, locker.Held())
}

func TestWithAccountAllowsDifferentAccounts(t *testing.T) {
	locker := NewAccountLocker(nil, nil, nil)
	release := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = locker.WithAccount(context.Background(), "a", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		done <- locker.WithAccount(context.Background(), "b", func() error { return nil })
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("account b blocked by account a")
	}
	close(release)
}

func TestWithAccountHonoursContext(t *testing.T) {
	locker := NewAccountLocker(nil, nil, nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = locker.WithAccount(context.Background(), "a", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := locker.WithAccount(ctx, "a", func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	close(release)
}

func TestWithAccountPropagatesError(t *testing.T) {
	locker := NewAccountLocker(nil, nil, nil)
	boom := errors.New("boom")
	assert.ErrorIs(t, locker.WithAccount(context.Background(), "a", func() error { return boom }), boom)
}

type fakeRemote struct {
	keys []string
	err  error
}

func (f *fakeRemote) WithLockRetry(_ context.Context, key string, _, _ time.Duration, _ int, fn func() error, _ func(error)) error {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	return fn()
}

func TestWithAccountUsesDistributedLock(t *testing.T) {
	remote := &fakeRemote{}
	cfg := DefaultLockConfig()
	cfg.Distributed = true
	locker := NewAccountLocker(cfg, remote, nil)

	called := false
	require.NoError(t, locker.WithAccount(context.Background(), "100", func() error { called = true; return nil }))
	assert.True(t, called)
	assert.Equal(t, []string{"lock:roster:100"}, remote.keys)

	remote.err = errors.New("lock busy")
	assert.Error(t, locker.WithAccount(context.Background(), "100", func() error { return nil }))

	plain := NewAccountLocker(DefaultLockConfig(), remote, nil)
	require.NoError(t, plain.WithAccount(context.Background(), "200", func() error { return nil }))
	assert.Len(t, remote.keys, 2)
}
