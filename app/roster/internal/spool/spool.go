package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/robfig/cron/v3"
)

const (
	doneDir   = "done"
	failedDir = "failed"
	fileExt   = ".json"
)

// 处理结果，用于指标标签
const (
	resultDone   = "done"
	resultFailed = "failed"
	resultRetry  = "retry"
)

// Config 抓包投递目录配置
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required_if=Enabled true"`
	// Watch 监听目录事件即时导入，关闭时只靠定时扫描
	Watch bool `mapstructure:"watch"`
	// SweepCron 定时扫描表达式，支持 @every 1m
	SweepCron string `mapstructure:"sweep_cron"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{Watch: true, SweepCron: "@every 1m"}
}

// Ingester 由 service.IngestService 实现
type Ingester interface {
	Ingest(ctx context.Context, accountID string, payload capture.Payload) (*service.Outcome, error)
}

// Spool 导入外部解析服务投递的抓包文件 <account_id>.<任意>.json
//
// 成功移入 done/，载荷错误移入 failed/，存储故障原地保留等待下次扫描。
type Spool struct {
	cfg     *Config
	ingest  Ingester
	logger  logger.Logger
	metrics *metrics.RosterMetrics

	cron    *cron.Cron
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New 创建投递目录处理器
func New(cfg *Config, ingest Ingester, l logger.Logger, m *metrics.RosterMetrics) *Spool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Spool{
		cfg:      cfg,
		ingest:   ingest,
		logger:   logger.OrNoop(l).Named("spool"),
		metrics:  m,
		inflight: make(map[string]struct{}),
	}
}

// Start 创建目录，启动定时扫描与目录监听
func (s *Spool) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	for _, d := range []string{s.cfg.Dir, s.path(doneDir), s.path(failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "create spool dir %s", d)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{l: s.logger}
	s.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	spec := s.cfg.SweepCron
	if spec == "" {
		spec = DefaultConfig().SweepCron
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(s.ctx) }); err != nil {
		return errors.Wrapf(err, "invalid sweep cron %q", spec)
	}

	if s.cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, "failed to create spool watcher")
		}
		if err := w.Add(s.cfg.Dir); err != nil {
			_ = w.Close()
			return errors.Wrapf(err, "watch spool dir %s", s.cfg.Dir)
		}
		s.watcher = w
		s.wg.Add(1)
		go s.watchLoop()
	}

	s.cron.Start()
	s.logger.Info("spool started", "dir", s.cfg.Dir, "watch", s.cfg.Watch, "sweep_cron", spec)

	// 启动时先处理积压文件
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Sweep(s.ctx)
	}()
	return nil
}

// Stop 停止监听并等待进行中的导入完成
func (s *Spool) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("spool stopped")
	return nil
}

func (s *Spool) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			// 改名进入目录也会产生 Create
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				s.process(s.ctx, ev.Name, false)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("spool watcher error", "error", err)
		case <-s.ctx.Done():
			return
		}
	}
}

// Sweep 按文件名顺序处理目录中所有待导入文件
func (s *Spool) Sweep(ctx context.Context) int {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		s.logger.Warn("failed to read spool dir", "dir", s.cfg.Dir, "error", err)
		return 0
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if s.Process(ctx, filepath.Join(s.cfg.Dir, name)) {
			n++
		}
	}
	return n
}

// Process 导入单个文件，返回是否真正处理了该文件
func (s *Spool) Process(ctx context.Context, path string) bool {
	return s.process(ctx, path, true)
}

// process strict 为 false 时无法解析的文件留给下次扫描，可能仍在写入
func (s *Spool) process(ctx context.Context, path string, strict bool) bool {
	name := filepath.Base(path)
	accountID, ok := AccountFromName(name)
	if !ok || filepath.Dir(path) != filepath.Clean(s.cfg.Dir) {
		return false
	}
	if !s.claim(path) {
		return false
	}
	defer s.release(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read capture file", "file", name, "error", err)
		}
		return false
	}

	var payload capture.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		if !strict {
			return false
		}
		s.logger.Warn("invalid capture file", "file", name, "error", err)
		s.finish(path, failedDir, resultFailed)
		return true
	}

	out, err := s.ingest.Ingest(ctx, accountID, payload)
	switch {
	case err == nil:
		s.logger.Info("capture file ingested",
			"file", name,
			"account_id", accountID,
			"generation", out.Report.Generation,
			"saved", out.Saved,
		)
		s.finish(path, doneDir, resultDone)
	case errors.Is(err, reconcile.ErrStorage), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("capture file deferred", "file", name, "account_id", accountID, "error", err)
		s.metrics.RecordSpool(resultRetry)
	default:
		s.logger.Warn("capture file rejected", "file", name, "account_id", accountID, "error", err)
		s.finish(path, failedDir, resultFailed)
	}
	return true
}

// AccountFromName 从 <account_id>.<任意>.json 解析账号
func AccountFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	stem := strings.TrimSuffix(name, fileExt)
	account, rest, found := strings.Cut(stem, ".")
	if !found || account == "" || rest == "" {
		return "", false
	}
	return account, true
}

func (s *Spool) finish(path, dir, res string) {
	s.metrics.RecordSpool(res)
	dst := filepath.Join(s.path(dir), filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		s.logger.Error("failed to move capture file", "file", path, "dst", dst, "error", err)
	}
}

func (s *Spool) path(sub string) string {
	return filepath.Join(s.cfg.Dir, sub)
}

func (s *Spool) claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[path]; busy {
		return false
	}
	s.inflight[path] = struct{}{}
	return true
}

func (s *Spool) release(path string) {
	s.mu.Lock()
	delete(s.inflight, path)
	s.mu.Unlock()
}

// cronLogger 适配 cron.Logger
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
