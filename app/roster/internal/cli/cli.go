// Package cli rosterctl 子命令：离线导入抓包、查看名册
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/dao"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/decoder"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/manager"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/repository"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/spool"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/lk2023060901/xdooria-roster/pkg/idgen"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/serializer"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrUsage        = errors.New("rosterctl: invalid usage")
	ErrNoAccount    = errors.New("rosterctl: account id required")
	ErrNoFiles      = errors.New("rosterctl: no capture files given")
	ErrIngestFailed = errors.New("rosterctl: some captures failed")
)

const usage = `usage: rosterctl <command> [flags] [files...]

commands:
  decode    decode capture files without touching storage
  ingest    decode, reconcile and persist capture files
  show      print the stored roster of --account
  accounts  list stored accounts
`

type command func(ctx context.Context, cfg *Config, e *runEnv) error

var commands = map[string]command{
	"decode":   runDecode,
	"ingest":   runIngest,
	"show":     runShow,
	"accounts": runAccounts,
}

type runEnv struct {
	out    io.Writer
	logger logger.Logger
}

// Run 执行 args[0] 指定的子命令，结果以 JSON 写到 stdout，日志写到 stderr
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(stderr, usage)
		return errors.Wrapf(ErrUsage, "unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := ParseConfig(fs, args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return cmd(ctx, cfg, &runEnv{out: stdout, logger: newLogger(cfg.LogLevel, stderr)})
}

func newLogger(level string, w io.Writer) logger.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.WarnLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return logger.NewWithCore(core, nil).Named("rosterctl")
}

func newResolver(cfg *Config, l logger.Logger) *resolver.Resolver {
	return resolver.New(&resolver.Config{
		PrimaryDir: cfg.PrimaryDir,
		LegacyDir:  cfg.LegacyDir,
		CodeTable:  cfg.CodeTable,
	}, l)
}

// stack 离线导入所需的存储与流水线
type stack struct {
	db  *sqldb.DB
	dao *dao.SQLRosterDAO
	svc *service.IngestService
}

func openStack(ctx context.Context, cfg *Config, l logger.Logger) (*stack, error) {
	db, err := sqldb.Open(cfg.sqlConfig())
	if err != nil {
		return nil, err
	}
	d := dao.NewSQLRosterDAO(db, l, nil)
	if err := d.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	ids, err := idgen.NewSonyflake(cfg.MachineID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	res := newResolver(cfg, l)
	svc, err := service.NewIngestService(
		&service.Config{Workers: 1, RunTimeout: cfg.Timeout},
		decoder.New(res, l),
		reconcile.New(l),
		repository.NewRosterRepository(d, nil, l),
		manager.NewAccountLocker(nil, nil, l),
		nil, ids, l, nil,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stack{db: db, dao: d, svc: svc}, nil
}

func (s *stack) Close() error {
	return errors.CombineErrors(s.svc.Close(), s.db.Close())
}

func readPayload(path string) (capture.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p capture.Payload
	if err := serializer.NewJSON().Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return p, nil
}

func accountFor(cfg *Config, path string) (string, error) {
	if cfg.Account != "" {
		return cfg.Account, nil
	}
	if id, ok := spool.AccountFromName(filepath.Base(path)); ok {
		return id, nil
	}
	return "", errors.Wrapf(ErrNoAccount, "cannot derive from %s", filepath.Base(path))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DecodeOutput decode 子命令的单文件输出
type DecodeOutput struct {
	File     string              `json:"file"`
	Counters decoder.Counters    `json:"counters"`
	Entries  []model.RosterEntry `json:"entries"`
}

func runDecode(_ context.Context, cfg *Config, e *runEnv) error {
	if len(cfg.Files) == 0 {
		return ErrNoFiles
	}
	dec := decoder.New(newResolver(cfg, e.logger), e.logger)

	outs := make([]DecodeOutput, 0, len(cfg.Files))
	for _, path := range cfg.Files {
		p, err := readPayload(path)
		if err != nil {
			return err
		}
		result, err := dec.Decode(p)
		if err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
		outs = append(outs, DecodeOutput{File: path, Counters: result.Counters, Entries: result.Entries})
	}
	return writeJSON(e.out, outs)
}

// IngestOutput ingest 子命令的单文件输出
type IngestOutput struct {
	File      string                  `json:"file"`
	AccountID string                  `json:"account_id,omitempty"`
	Saved     bool                    `json:"saved"`
	Report    *reconcile.ChangeReport `json:"report,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func runIngest(ctx context.Context, cfg *Config, e *runEnv) (err error) {
	if len(cfg.Files) == 0 {
		return ErrNoFiles
	}
	s, err := openStack(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, s.Close()) }()

	outs := make([]IngestOutput, 0, len(cfg.Files))
	failed := 0
	for _, path := range cfg.Files {
		out := ingestFile(ctx, cfg, s.svc, path)
		if out.Error != "" {
			failed++
			e.logger.Warn("capture not ingested", "file", path, "error", out.Error)
		}
		outs = append(outs, out)
	}
	if err := writeJSON(e.out, outs); err != nil {
		return err
	}
	if failed > 0 {
		return errors.Wrapf(ErrIngestFailed, "%d of %d", failed, len(cfg.Files))
	}
	return nil
}

func ingestFile(ctx context.Context, cfg *Config, svc *service.IngestService, path string) IngestOutput {
	out := IngestOutput{File: path}
	account, err := accountFor(cfg, path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.AccountID = account

	p, err := readPayload(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	res, err := svc.Ingest(ctx, account, p)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Saved = res.Saved
	out.Report = res.Report
	if !cfg.Deltas {
		out.Report = res.Report.WithoutDeltas()
	}
	return out
}

func runShow(ctx context.Context, cfg *Config, e *runEnv) (err error) {
	if cfg.Account == "" {
		return ErrNoAccount
	}
	s, err := openStack(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, s.Close()) }()

	r, err := s.svc.Roster(ctx, cfg.Account)
	if err != nil {
		return err
	}
	return writeJSON(e.out, r)
}

func runAccounts(ctx context.Context, cfg *Config, e *runEnv) (err error) {
	s, err := openStack(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, s.Close()) }()

	ids, err := s.dao.Accounts(ctx)
	if err != nil {
		return err
	}
	sort.Strings(ids)
	return writeJSON(e.out, ids)
}
