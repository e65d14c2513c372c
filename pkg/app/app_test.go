package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
}

func (s *fakeServer) Start() error {
	s.started.Store(true)
	return s.startErr
}

func (s *fakeServer) Stop() error {
	s.stopped.Store(true)
	return nil
}

func TestShutdownClosesInReverseOrder(t *testing.T) {
	a := NewBaseApp(WithName("test"), WithStopTimeout(time.Second))

	var order []int
	srv := &fakeServer{}
	InitApp(a, AppComponents{
		Servers: []Server{srv},
		Closers: []Closer{
			CloserFunc(func() error { order = append(order, 1); return nil }),
			CloserFunc(func() error { order = append(order, 2); return nil }),
		},
	})

	require.NoError(t, a.Shutdown())
	assert.True(t, srv.stopped.Load())
	assert.Equal(t, []int{2, 1}, order)

	// 二次调用无副作用
	require.NoError(t, a.Shutdown())
	assert.Equal(t, []int{2, 1}, order)
}

func TestShutdownCombinesCloseErrors(t *testing.T) {
	a := NewBaseApp()
	boom := errors.New("boom")
	a.AppendCloser(CloserFunc(func() error { return boom }))

	err := a.Shutdown()
	assert.ErrorIs(t, err, boom)
}

func TestRunStartFailure(t *testing.T) {
	a := NewBaseApp()
	boom := errors.New("listen failed")
	a.AppendServer(&fakeServer{startErr: boom})

	err := a.Run()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, a.Run(), ErrAppAlreadyRunning)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := NewBaseApp(WithStopTimeout(time.Second))
	srv := &fakeServer{}
	a.AppendServer(srv)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	require.Eventually(t, srv.started.Load, time.Second, 5*time.Millisecond)
	a.cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.True(t, srv.stopped.Load())
	assert.ErrorIs(t, a.Context().Err(), context.Canceled)
}

func TestVersionInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, AppName, info.AppName)
	assert.Contains(t, info.String(), info.GoVersion)
}
