//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/consumer"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/decoder"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/handler"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/manager"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/publisher"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/repository"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/spool"
	"github.com/lk2023060901/xdooria-roster/pkg/app"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/prometheus"
	"github.com/lk2023060901/xdooria-roster/pkg/web"
)

func InitApp(cfg *Config, l logger.Logger) (app.Application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架 (BaseApp)
		app.ProviderSet,

		// 2. 指标收集
		provideMetricsConfig,
		metrics.New,
		providePrometheusConfig,
		prometheus.New,
		provideMetricsHandler,

		// 3. 存储与缓存
		provideStorage,
		provideRosterStore,
		provideRedis,
		provideCache,
		repository.NewRosterRepository,

		// 4. 资源包与解码、合并
		provideResolver,
		wire.Bind(new(decoder.Resolver), new(*resolver.Resolver)),
		wire.Bind(new(handler.BundleStats), new(*resolver.Resolver)),
		decoder.New,
		provideReconciler,

		// 5. 账号锁
		provideLockConfig,
		provideDistributedLocker,
		manager.NewAccountLocker,

		// 6. 变更发布
		provideProducer,
		provideHub,
		providePublisher,

		// 7. 导入服务
		providePipelineConfig,
		provideIDGenerator,
		wire.Bind(new(service.RosterStore), new(*repository.RosterRepository)),
		wire.Bind(new(service.Locker), new(*manager.AccountLocker)),
		service.NewIngestService,

		// 8. 接口层
		wire.Bind(new(handler.RosterService), new(*service.IngestService)),
		wire.Bind(new(handler.Subscriber), new(*publisher.Hub)),
		handler.NewRosterHandler,
		handler.NewHealthHandler,
		provideWebConfig,
		web.NewServer,

		// 9. 后台导入
		provideSpoolConfig,
		wire.Bind(new(spool.Ingester), new(*service.IngestService)),
		spool.New,
		provideKafkaConfig,
		wire.Bind(new(consumer.Ingester), new(*service.IngestService)),
		consumer.NewCaptureConsumer,

		// 10. 组装
		provideAppOptions,
		provideAppComponents,
		app.InitApp,
	))
}
