package main

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/consumer"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/dao"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/handler"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/manager"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/publisher"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/repository"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/spool"
	"github.com/lk2023060901/xdooria-roster/pkg/app"
	"github.com/lk2023060901/xdooria-roster/pkg/database/postgres"
	"github.com/lk2023060901/xdooria-roster/pkg/database/redis"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/lk2023060901/xdooria-roster/pkg/idgen"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/mq/kafka"
	"github.com/lk2023060901/xdooria-roster/pkg/prometheus"
	"github.com/lk2023060901/xdooria-roster/pkg/web"
	"github.com/lk2023060901/xdooria-roster/pkg/web/middleware"
)

// storage 选定驱动的名册存储及其连接
type storage struct {
	repository.Store
	close func() error
}

func (s *storage) Close() error { return s.close() }

// provideStorage 按驱动打开数据库并建表
func provideStorage(cfg *Config, l logger.Logger, m *metrics.RosterMetrics) (*storage, error) {
	ctx := context.Background()
	switch cfg.Storage.Driver {
	case DriverPostgres:
		client, err := postgres.New(&cfg.Storage.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect postgres")
		}
		d := dao.NewPostgresRosterDAO(client, l, m)
		if err := d.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return &storage{Store: d, close: client.Close}, nil
	case DriverSQLite, DriverMySQL:
		sqlCfg := cfg.Storage.SQL
		sqlCfg.Driver = cfg.Storage.Driver
		db, err := sqldb.Open(&sqlCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", sqlCfg.Driver)
		}
		d := dao.NewSQLRosterDAO(db, l, m)
		if err := d.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &storage{Store: d, close: db.Close}, nil
	}
	return nil, errors.Newf("unsupported storage driver %q", cfg.Storage.Driver)
}

// provideRosterStore 暴露存储接口
func provideRosterStore(s *storage) repository.Store {
	return s.Store
}

// provideRedis Redis 未启用时返回 nil
func provideRedis(cfg *Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return redis.NewClient(&cfg.Redis.Config)
}

// provideCache 未启用缓存时返回 nil 接口
func provideCache(cfg *Config, rc *redis.Client, l logger.Logger, m *metrics.RosterMetrics) (repository.Cache, error) {
	if rc == nil || !cfg.Cache.Enabled {
		return nil, nil
	}
	c, err := dao.NewCacheDAO(rc, &cfg.Cache, l, m)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// provideDistributedLocker 没有 Redis 时只使用进程内锁
func provideDistributedLocker(rc *redis.Client) manager.DistributedLocker {
	if rc == nil {
		return nil
	}
	return rc
}

func provideLockConfig(cfg *Config) *manager.LockConfig {
	return &cfg.Lock
}

// provideResolver 加载资源包，未命中计入指标
func provideResolver(cfg *Config, l logger.Logger, m *metrics.RosterMetrics) *resolver.Resolver {
	return resolver.New(&cfg.Resolver, l, resolver.WithMissObserver(func(c resolver.Category) {
		m.ObserveMiss(string(c))
	}))
}

func provideReconciler(l logger.Logger) *reconcile.Reconciler {
	return reconcile.New(l)
}

func provideIDGenerator(cfg *Config) (idgen.Generator, error) {
	return idgen.NewSonyflake(cfg.IDGen.MachineID)
}

func providePipelineConfig(cfg *Config) *service.Config {
	return &cfg.Pipeline
}

// provideProducer 未配置发布主题时返回 nil
func provideProducer(cfg *Config) (*kafka.Producer, error) {
	if !cfg.Kafka.Enabled() || cfg.Kafka.Producer.Topic == "" {
		return nil, nil
	}
	return kafka.NewProducer(&cfg.Kafka)
}

func provideHub(cfg *Config, l logger.Logger) *publisher.Hub {
	return publisher.NewHub(&cfg.Hub, l)
}

// providePublisher 组合 Kafka 与 WebSocket 下游
func providePublisher(p *kafka.Producer, hub *publisher.Hub, l logger.Logger, m *metrics.RosterMetrics) publisher.Publisher {
	sinks := []publisher.Publisher{hub}
	if p != nil {
		sinks = append(sinks, publisher.NewKafkaPublisher(p))
	}
	return publisher.NewMulti(l, m, sinks...)
}

func provideSpoolConfig(cfg *Config) *spool.Config {
	return &cfg.Spool
}

func provideKafkaConfig(cfg *Config) *kafka.Config {
	return &cfg.Kafka
}

func provideWebConfig(cfg *Config) *web.Config {
	return &cfg.Web
}

func provideMetricsConfig(cfg *Config) *metrics.Config {
	return &cfg.Metrics
}

func providePrometheusConfig(cfg *Config) *prometheus.Config {
	return &cfg.Prometheus
}

// provideMetricsHandler 独立指标端口开启时不在 web 上挂载 /metrics
func provideMetricsHandler(cfg *Config, pc *prometheus.Client) http.Handler {
	if cfg.Prometheus.HTTPServer.Enabled {
		return nil
	}
	return pc.Handler()
}

// provideAppOptions 提供应用选项
func provideAppOptions(l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		app.WithLogger(l),
	}
}

// provideAppComponents 注册路由与指标，按启动顺序组装服务
func provideAppComponents(
	cfg *Config,
	webServer *web.Server,
	rosterHandler *handler.RosterHandler,
	healthHandler *handler.HealthHandler,
	promClient *prometheus.Client,
	rosterMetrics *metrics.RosterMetrics,
	ingest *service.IngestService,
	hub *publisher.Hub,
	producer *kafka.Producer,
	spooler *spool.Spool,
	captureConsumer *consumer.CaptureConsumer,
	store *storage,
	redisClient *redis.Client,
) (app.AppComponents, error) {
	if err := rosterMetrics.Register(promClient.Registry()); err != nil {
		return app.AppComponents{}, errors.Wrap(err, "failed to register roster metrics")
	}

	router := webServer.Router()
	router.Use(middleware.Metrics(middleware.NewHTTPMetrics(cfg.Prometheus.Namespace, promClient.Registry())))
	if auth := cfg.Web.Auth; auth.SecretKey != "" {
		router.Use(middleware.Auth(&middleware.AuthOptions{
			SecretKey:   auth.SecretKey,
			Issuer:      auth.Issuer,
			SkipPaths:   auth.SkipPaths,
			TokenPrefix: auth.TokenPrefix,
			HeaderName:  auth.HeaderName,
		}))
	}
	healthHandler.Register(router)
	rosterHandler.Register(router)

	closers := []app.Closer{store, ingest, hub}
	if producer != nil {
		closers = append(closers, producer)
	}
	if redisClient != nil {
		closers = append(closers, redisClient)
	}

	return app.AppComponents{
		// Closers 在所有 Server 停止后逆序执行
		Servers: []app.Server{promClient, webServer, spooler, captureConsumer},
		Closers: closers,
	}, nil
}
