package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/decoder"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/publisher"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/pkg/idgen"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrInvalidAccount 账号 ID 为空
	ErrInvalidAccount = errors.New("service: invalid account id")
	// ErrAccountMismatch 载荷中的账号与请求账号不一致
	ErrAccountMismatch = errors.New("service: capture belongs to another account")
)

// Config 导入流水线配置
type Config struct {
	// Workers 批量导入的并发数
	Workers int `mapstructure:"workers" validate:"gte=1,lte=256"`
	// RunTimeout 单次导入在获取账号锁前的等待上限，0 表示不限
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// DefaultConfig 返回默认流水线配置
func DefaultConfig() *Config {
	return &Config{Workers: 8, RunTimeout: 30 * time.Second}
}

// RosterStore 名册仓库
type RosterStore interface {
	Load(ctx context.Context, accountID string) (*model.Roster, error)
	Save(ctx context.Context, r *model.Roster) error
}

// Locker 账号级串行化
type Locker interface {
	WithAccount(ctx context.Context, accountID string, fn func() error) error
}

// Outcome 单次导入结果
type Outcome struct {
	Report   *reconcile.ChangeReport `json:"report"`
	Counters decoder.Counters        `json:"counters"`
	Roster   *model.Roster           `json:"-"`
	Saved    bool                    `json:"saved"`
}

// IngestService 导入流水线：解码、合并、持久化、发布
type IngestService struct {
	cfg        *Config
	decoder    *decoder.Decoder
	reconciler *reconcile.Reconciler
	store      RosterStore
	locker     Locker
	publisher  publisher.Publisher
	ids        idgen.Generator
	pool       *ants.Pool
	logger     logger.Logger
	metrics    *metrics.RosterMetrics
	now        func() time.Time
}

// NewIngestService 创建导入服务，publisher 可为 nil
func NewIngestService(
	cfg *Config,
	dec *decoder.Decoder,
	rec *reconcile.Reconciler,
	store RosterStore,
	locker Locker,
	pub publisher.Publisher,
	ids idgen.Generator,
	l logger.Logger,
	m *metrics.RosterMetrics,
) (*IngestService, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if pub == nil {
		pub = publisher.Noop{}
	}
	s := &IngestService{
		cfg:        cfg,
		decoder:    dec,
		reconciler: rec,
		store:      store,
		locker:     locker,
		publisher:  pub,
		ids:        ids,
		logger:     logger.OrNoop(l).Named("service.ingest"),
		metrics:    m,
		now:        time.Now,
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		s.logger.Error("batch worker panic", "panic", p)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ingest worker pool")
	}
	s.pool = pool
	return s, nil
}

// Ingest 导入一份抓包载荷。只有存储失败会让整次导入失败
func (s *IngestService) Ingest(ctx context.Context, accountID string, payload capture.Payload) (out *Outcome, err error) {
	start := time.Now()
	defer func() {
		res := "ok"
		switch {
		case errors.Is(err, reconcile.ErrStorage):
			res = "storage_error"
		case err != nil:
			res = "rejected"
		case !out.Saved:
			res = "noop"
		}
		s.metrics.RecordRun(res, time.Since(start).Seconds())
	}()

	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	result, err := s.decoder.Decode(payload)
	if err != nil {
		return nil, err
	}
	if id := result.Counters.AccountID; id != "" && id != accountID {
		s.logger.Warn("capture account mismatch", "account_id", accountID, "capture_account_id", id)
		return nil, errors.Wrapf(ErrAccountMismatch, "capture account %s", id)
	}
	s.metrics.RecordShapeErrors(result.Counters.ShapeErrors)

	lockCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	out = &Outcome{Counters: result.Counters}
	err = s.locker.WithAccount(lockCtx, accountID, func() error {
		// 持锁后不再响应取消，避免写到一半
		runCtx := context.WithoutCancel(ctx)
		return s.run(runCtx, accountID, result, out)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("capture ingested",
		"account_id", accountID,
		"generation", out.Report.Generation,
		"new", out.Report.Summary.New,
		"updated", out.Report.Summary.Updated,
		"unchanged", out.Report.Summary.Unchanged,
		"flagged", out.Report.Summary.Flagged,
		"superseded", len(out.Report.Superseded),
		"shape_errors", result.Counters.ShapeErrors,
		"unresolved_ids", result.Counters.UnresolvedIDs,
	)
	return out, nil
}

func (s *IngestService) run(ctx context.Context, accountID string, result *decoder.Result, out *Outcome) error {
	merged, report, err := s.reconciler.ReconcileFrom(ctx, s.store, accountID, result.Roster(accountID))
	if err != nil {
		s.logger.Error("failed to load persisted roster", "account_id", accountID, "error", err)
		return err
	}
	s.metrics.RecordChanges(report.Summary.New, report.Summary.Updated, report.Summary.Unchanged,
		report.Summary.Flagged, len(report.Superseded))

	out.Report = report
	out.Roster = merged
	if !report.HasChanges() {
		return nil
	}

	runID, err := s.ids.NextID()
	if err != nil {
		// 运行 ID 只用于追踪
		s.logger.Warn("failed to generate run id", "account_id", accountID, "error", err)
	} else {
		report.RunID = strconv.FormatInt(runID, 10)
	}

	merged.Generation++
	merged.UpdatedAt = s.now().UTC()
	report.Generation = merged.Generation
	if err := s.store.Save(ctx, merged); err != nil {
		s.logger.Error("failed to save roster",
			"account_id", accountID,
			"generation", merged.Generation,
			"error", err,
		)
		return errors.Mark(errors.Wrapf(err, "save roster of %s", accountID), reconcile.ErrStorage)
	}
	out.Saved = true

	if err := s.publisher.Publish(ctx, report); err != nil {
		s.logger.Warn("change report not fully published", "account_id", accountID, "error", err)
	}
	return nil
}

// Roster 查询已持久化名册
func (s *IngestService) Roster(ctx context.Context, accountID string) (*model.Roster, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	r, err := s.store.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, model.ErrRosterNotFound) {
			return nil, err
		}
		return nil, errors.Mark(errors.Wrapf(err, "load roster of %s", accountID), reconcile.ErrStorage)
	}
	return r, nil
}

// BatchItem 批量导入的一项
type BatchItem struct {
	AccountID string          `json:"account_id"`
	Payload   capture.Payload `json:"payload"`
}

// BatchResult 批量导入单项结果，顺序与输入一致
type BatchResult struct {
	AccountID string   `json:"account_id"`
	Outcome   *Outcome `json:"outcome,omitempty"`
	Err       error    `json:"-"`
	Error     string   `json:"error,omitempty"`
}

// IngestBatch 在工作池上并发导入，同账号的多项仍由账号锁串行
func (s *IngestService) IngestBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		results[i].AccountID = item.AccountID
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out, err := s.Ingest(ctx, item.AccountID, item.Payload)
			results[i].Outcome = out
			results[i].setErr(err)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			results[i].setErr(errors.Wrap(err, "failed to schedule ingest"))
		}
	}
	wg.Wait()
	return results
}

func (r *BatchResult) setErr(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Close 释放工作池
func (s *IngestService) Close() error {
	s.pool.Release()
	return nil
}
