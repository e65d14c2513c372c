package main

import (
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/dao"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/manager"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/publisher"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/spool"
	"github.com/lk2023060901/xdooria-roster/pkg/app"
	"github.com/lk2023060901/xdooria-roster/pkg/database/postgres"
	"github.com/lk2023060901/xdooria-roster/pkg/database/redis"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/mq/kafka"
	"github.com/lk2023060901/xdooria-roster/pkg/prometheus"
	"github.com/lk2023060901/xdooria-roster/pkg/web"
)

// 存储驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = sqldb.DriverSQLite
	DriverMySQL    = sqldb.DriverMySQL
)

// StorageConfig 名册存储配置
type StorageConfig struct {
	Driver   string          `mapstructure:"driver" validate:"required,oneof=postgres sqlite mysql"`
	Postgres postgres.Config `mapstructure:"postgres"`
	SQL      sqldb.Config    `mapstructure:"sql"`
}

// RedisConfig Redis 配置，关闭时不启用缓存与分布式锁
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// IDGenConfig 运行 ID 生成配置
type IDGenConfig struct {
	MachineID uint16 `mapstructure:"machine_id"`
}

// Config 定义 Roster 服务的完整配置结构
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// 资源包
	Resolver resolver.Config `mapstructure:"resolver"`

	// 名册存储
	Storage StorageConfig `mapstructure:"storage"`

	// Redis 缓存与分布式锁
	Redis RedisConfig        `mapstructure:"redis"`
	Cache dao.CacheConfig    `mapstructure:"cache"`
	Lock  manager.LockConfig `mapstructure:"lock"`

	// Kafka：抓包消费与变更发布
	Kafka kafka.Config `mapstructure:"kafka"`

	// WebSocket 变更推送
	Hub publisher.HubConfig `mapstructure:"hub"`

	// HTTP 服务
	Web web.Config `mapstructure:"web"`

	// 抓包投递目录
	Spool spool.Config `mapstructure:"spool"`

	// 导入流水线
	Pipeline service.Config `mapstructure:"pipeline"`

	IDGen IDGenConfig `mapstructure:"idgen"`

	// 指标
	Metrics    metrics.Config    `mapstructure:"metrics"`
	Prometheus prometheus.Config `mapstructure:"prometheus"`
}

// defaultConfig 配置文件未出现的字段保持默认值
func defaultConfig() *Config {
	return &Config{
		Log:        logger.Config{Level: logger.InfoLevel, Format: logger.ConsoleFormat, EnableConsole: true},
		Storage:    StorageConfig{Driver: DriverSQLite, Postgres: *postgres.DefaultConfig(), SQL: *sqldb.DefaultConfig()},
		Redis:      RedisConfig{Config: *redis.DefaultConfig()},
		Cache:      dao.CacheConfig{Compression: "snappy"},
		Lock:       *manager.DefaultLockConfig(),
		Kafka:      *kafka.DefaultConfig(),
		Hub:        *publisher.DefaultHubConfig(),
		Web:        *web.DefaultConfig(),
		Spool:      *spool.DefaultConfig(),
		Pipeline:   *service.DefaultConfig(),
		Metrics:    *metrics.DefaultConfig(),
		Prometheus: *prometheus.DefaultConfig(),
	}
}

func main() {
	cfg := defaultConfig()

	// 1. 加载配置
	if err := app.LoadConfig(cfg); err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	// 3. 通过 Wire 初始化应用，资源包在此阶段同步加载
	application, cleanup, err := InitApp(cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return
	}
	defer cleanup()

	// 4. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
