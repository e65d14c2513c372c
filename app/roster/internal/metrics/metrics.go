package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Config 指标配置
type Config struct {
	// Namespace 指标命名空间
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Namespace: "roster"}
}

// RosterMetrics 导入流水线指标
type RosterMetrics struct {
	config *Config

	// 流水线
	RunsTotal       *prometheus.CounterVec // 导入次数（按结果）
	RunDuration     prometheus.Histogram   // 单次导入耗时
	ChangesTotal    *prometheus.CounterVec // 角色变更（按类型）
	FlaggedTotal    prometheus.Counter     // 被标记的候选角色
	SupersededTotal prometheus.Counter     // 别名折叠删除的角色

	// 解码与解析
	ResolverMisses *prometheus.CounterVec // 未命中（按类别）
	ShapeErrors    prometheus.Counter     // 结构错误

	// 存储
	StorageTotal    *prometheus.CounterVec   // 存储调用（按操作、结果）
	StorageDuration *prometheus.HistogramVec // 存储延迟
	CacheHitTotal   *prometheus.CounterVec
	CacheMissTotal  *prometheus.CounterVec

	// 下游
	PublishTotal *prometheus.CounterVec // 变更报告投递（按通道、结果）
	SpoolTotal   *prometheus.CounterVec // 目录导入文件（按结果）
}

// New 创建指标
func New(cfg *Config) (*RosterMetrics, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge metrics config")
	}
	ns := newCfg.Namespace

	return &RosterMetrics{
		config: newCfg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "ingest_runs_total", Help: "导入次数",
		}, []string{"result"}), // result: applied/unchanged/failed
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "ingest_run_duration_seconds", Help: "单次导入耗时",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "character_changes_total", Help: "角色变更数",
		}, []string{"kind"}),
		FlaggedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "flagged_characters_total", Help: "结构异常被保留原值的候选角色",
		}),
		SupersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "superseded_characters_total", Help: "别名折叠删除的角色",
		}),
		ResolverMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "resolver_misses_total", Help: "资源包未命中",
		}, []string{"category"}),
		ShapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "decoder_shape_errors_total", Help: "解码结构错误",
		}),
		StorageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "storage_ops_total", Help: "存储调用次数",
		}, []string{"op", "result"}),
		StorageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "storage_op_duration_seconds", Help: "存储调用延迟",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		CacheHitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_hits_total", Help: "缓存命中",
		}, []string{"cache"}),
		CacheMissTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_misses_total", Help: "缓存未命中",
		}, []string{"cache"}),
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "reports_published_total", Help: "变更报告投递",
		}, []string{"sink", "result"}),
		SpoolTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "spool_files_total", Help: "目录导入文件",
		}, []string{"result"}),
	}, nil
}

// Register 注册到 Prometheus
func (m *RosterMetrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RunsTotal, m.RunDuration, m.ChangesTotal, m.FlaggedTotal, m.SupersededTotal,
		m.ResolverMisses, m.ShapeErrors,
		m.StorageTotal, m.StorageDuration, m.CacheHitTotal, m.CacheMissTotal,
		m.PublishTotal, m.SpoolTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// GetConfig 获取配置
func (m *RosterMetrics) GetConfig() *Config {
	return m.config
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// RecordRun 记录一次导入；m 为 nil 时各 Record 方法不做任何事
func (m *RosterMetrics) RecordRun(res string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(res).Inc()
	m.RunDuration.Observe(seconds)
}

// RecordChanges 记录合并结果
func (m *RosterMetrics) RecordChanges(created, updated, unchanged, flagged, superseded int) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues("new").Add(float64(created))
	m.ChangesTotal.WithLabelValues("updated").Add(float64(updated))
	m.ChangesTotal.WithLabelValues("unchanged").Add(float64(unchanged))
	m.FlaggedTotal.Add(float64(flagged))
	m.SupersededTotal.Add(float64(superseded))
}

// ObserveMiss 资源包未命中，供解析器回调
func (m *RosterMetrics) ObserveMiss(category string) {
	if m == nil {
		return
	}
	m.ResolverMisses.WithLabelValues(category).Inc()
}

// RecordShapeErrors 记录结构错误数
func (m *RosterMetrics) RecordShapeErrors(n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.ShapeErrors.Add(float64(n))
	}
}

// RecordStorage 记录存储调用
func (m *RosterMetrics) RecordStorage(op string, success bool, seconds float64) {
	if m == nil {
		return
	}
	m.StorageTotal.WithLabelValues(op, result(success)).Inc()
	m.StorageDuration.WithLabelValues(op).Observe(seconds)
}

// RecordCacheHit 记录缓存命中
func (m *RosterMetrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *RosterMetrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissTotal.WithLabelValues(cache).Inc()
}

// RecordPublish 记录报告投递
func (m *RosterMetrics) RecordPublish(sink string, err error) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(sink, result(err == nil)).Inc()
}

// RecordSpool 记录目录导入
func (m *RosterMetrics) RecordSpool(res string) {
	if m == nil {
		return
	}
	m.SpoolTotal.WithLabelValues(res).Inc()
}
