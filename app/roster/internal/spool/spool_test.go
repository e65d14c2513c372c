package spool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	mu       sync.Mutex
	accounts []string
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, accountID string, _ capture.Payload) (*service.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
	if f.err != nil {
		return nil, f.err
	}
	return &service.Outcome{Report: &reconcile.ChangeReport{AccountID: accountID, Generation: 1}, Saved: true}, nil
}

func (f *fakeIngester) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accounts...)
}

func newSpool(t *testing.T, ing Ingester, watch bool) (*Spool, string) {
	t.Helper()
	dir := t.TempDir()
	s := New(&Config{Enabled: true, Dir: dir, Watch: watch, SweepCron: "@every 1h"}, ing, nil, nil)
	return s, dir
}

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestAccountFromName(t *testing.T) {
	cases := map[string]string{
		"100200300.20261001.json": "100200300",
		"abc.x.y.json":            "abc",
	}
	for name, want := range cases {
		got, ok := AccountFromName(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got)
	}
	for _, name := range []string{"100200300.json", ".hidden.x.json", "100.x.json.tmp", ".x.json", "100..json"} {
		_, ok := AccountFromName(name)
		assert.False(t, ok, name)
	}
}

func TestSweepMovesFiles(t *testing.T) {
	ing := &fakeIngester{}
	s, dir := newSpool(t, ing, false)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, doneDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, failedDir), 0o755))

	write(t, dir, "200.b.json", `{}`)
	write(t, dir, "100.a.json", `{}`)
	write(t, dir, "300.c.json", `{not json`)
	write(t, dir, "notes.txt", `ignored`)

	n := s.Sweep(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"100", "200"}, ing.seen())
	assert.True(t, exists(filepath.Join(dir, doneDir, "100.a.json")))
	assert.True(t, exists(filepath.Join(dir, doneDir, "200.b.json")))
	assert.True(t, exists(filepath.Join(dir, failedDir, "300.c.json")))
	assert.True(t, exists(filepath.Join(dir, "notes.txt")))
}

func TestStorageFailureLeavesFileForRetry(t *testing.T) {
	ing := &fakeIngester{err: errors.Mark(errors.New("pg down"), reconcile.ErrStorage)}
	s, dir := newSpool(t, ing, false)
	write(t, dir, "100.a.json", `{}`)

	s.Sweep(context.Background())
	assert.True(t, exists(filepath.Join(dir, "100.a.json")))

	ing.err = service.ErrAccountMismatch
	require.NoError(t, os.MkdirAll(filepath.Join(dir, failedDir), 0o755))
	s.Sweep(context.Background())
	assert.True(t, exists(filepath.Join(dir, failedDir, "100.a.json")))
}

func TestStartProcessesBacklogAndWatches(t *testing.T) {
	ing := &fakeIngester{}
	s, dir := newSpool(t, ing, true)
	write(t, dir, "100.backlog.json", `{}`)

	require.NoError(t, s.Start())
	defer func() { assert.NoError(t, s.Stop()) }()

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, doneDir, "100.backlog.json"))
	}, 2*time.Second, 10*time.Millisecond)

	tmp := filepath.Join(dir, "200.live.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{}`), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "200.live.json")))

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, doneDir, "200.live.json"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"100", "200"}, ing.seen())
}

func TestStartRejectsBadCron(t *testing.T) {
	s := New(&Config{Enabled: true, Dir: t.TempDir(), SweepCron: "every now and then"}, &fakeIngester{}, nil, nil)
	assert.Error(t, s.Start())

	disabled := New(&Config{}, &fakeIngester{}, nil, nil)
	assert.NoError(t, disabled.Start())
	assert.NoError(t, disabled.Stop())
}
