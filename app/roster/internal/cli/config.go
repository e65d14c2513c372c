package cli

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/pkg/config"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/spf13/pflag"
)

// Config rosterctl 配置，环境变量之上可用命令行参数覆盖
type Config struct {
	Driver     string        `env:"ROSTER_DB_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite mysql"`
	DSN        string        `env:"ROSTER_DB_DSN" envDefault:"roster.db" validate:"required"`
	PrimaryDir string        `env:"ROSTER_PRIMARY_DIR" envDefault:"data/bundles/primary"`
	LegacyDir  string        `env:"ROSTER_LEGACY_DIR" envDefault:"data/bundles/legacy"`
	CodeTable  string        `env:"ROSTER_CODE_TABLE"`
	MachineID  uint16        `env:"ROSTER_MACHINE_ID" envDefault:"1"`
	Timeout    time.Duration `env:"ROSTER_TIMEOUT" envDefault:"1m" validate:"gt=0"`
	LogLevel   string        `env:"ROSTER_LOG_LEVEL" envDefault:"warn" validate:"oneof=debug info warn error"`

	// 以下只来自命令行
	Account string
	Deltas  bool
	Files   []string
}

// ParseConfig 先读环境变量，再解析子命令参数
func ParseConfig(fs *pflag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "storage driver (sqlite, mysql)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "storage dsn")
	fs.StringVar(&cfg.PrimaryDir, "primary", cfg.PrimaryDir, "primary bundle directory")
	fs.StringVar(&cfg.LegacyDir, "legacy", cfg.LegacyDir, "legacy bundle directory")
	fs.StringVar(&cfg.CodeTable, "codes", cfg.CodeTable, "relic code table file")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall command timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level written to stderr")
	fs.StringVarP(&cfg.Account, "account", "a", "", "account id, derived from <account>.<name>.json when empty")
	fs.BoolVar(&cfg.Deltas, "deltas", false, "include per-field deltas in the report")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Files = fs.Args()

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sqlConfig() *sqldb.Config {
	cfg := sqldb.DefaultConfig()
	cfg.Driver = c.Driver
	cfg.DSN = c.DSN
	return cfg
}
