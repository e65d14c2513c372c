package sqldb

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrEmptyDSN          = errors.New("sqldb: dsn is empty")
	ErrUnsupportedDriver = errors.New("sqldb: unsupported driver")
)

// DB sqlx 连接封装
type DB struct {
	*sqlx.DB
	driver string
}

// Open 打开连接并 Ping
func Open(cfg *Config) (*DB, error) {
	cfg, err := MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrEmptyDSN
	}

	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverMySQL:
	default:
		return nil, errors.Wrapf(ErrUnsupportedDriver, "%q", cfg.Driver)
	}

	xdb, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	xdb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	xdb.SetMaxOpenConns(cfg.MaxOpenConns)
	xdb.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.Driver == DriverSQLite {
		// sqlite 单写者；:memory: 每个连接是独立的库
		xdb.SetMaxOpenConns(1)
	}
	if err := xdb.Ping(); err != nil {
		_ = xdb.Close()
		return nil, errors.Wrapf(err, "ping %s", cfg.Driver)
	}
	return &DB{DB: xdb, driver: cfg.Driver}, nil
}

// Driver 返回驱动名
func (d *DB) Driver() string {
	return d.driver
}

// Tx 在事务中执行 fn
func (d *DB) Tx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if dsn == ":memory:" {
		return dsn + "?_pragma=foreign_keys(1)"
	}
	return dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
