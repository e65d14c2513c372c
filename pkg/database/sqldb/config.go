package sqldb

import (
	"time"

	"github.com/lk2023060901/xdooria-roster/pkg/config"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config database/sql 连接配置
type Config struct {
	Driver          string        `mapstructure:"driver" validate:"omitempty,oneof=sqlite mysql"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DefaultConfig 默认使用本地 sqlite 文件
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverSQLite,
		DSN:             "roster.db",
		MaxOpenConns:    32,
		MaxIdleConns:    8,
		ConnMaxLifetime: 4 * time.Minute,
	}
}

// MergeConfig 合并配置
func MergeConfig(dst, src *Config) (*Config, error) {
	return config.MergeConfig(dst, src)
}
