package dao

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/database/postgres"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// PostgresRosterDAO PostgreSQL 名册存储，每个角色一行 JSONB
type PostgresRosterDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.RosterMetrics
}

// NewPostgresRosterDAO 创建 PostgreSQL 名册 DAO
func NewPostgresRosterDAO(db *postgres.Client, l logger.Logger, m *metrics.RosterMetrics) *PostgresRosterDAO {
	return &PostgresRosterDAO{
		db:      db,
		logger:  logger.OrNoop(l).Named("dao.roster.postgres"),
		metrics: m,
	}
}

// EnsureSchema 建表（幂等）
func (d *PostgresRosterDAO) EnsureSchema(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/postgres/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if _, err := d.db.Exec(ctx, stmt); err != nil {
				return errors.Wrapf(err, "apply %s", name)
			}
		}
	}
	return nil
}

// Load 读取账号最新一代名册
func (d *PostgresRosterDAO) Load(ctx context.Context, accountID string) (_ *model.Roster, err error) {
	start := time.Now()
	defer func() { d.metrics.RecordStorage("load", err == nil || errors.Is(err, model.ErrRosterNotFound), since(start)) }()

	query, args, err := postgres.QueryBuilder.
		Select("generation", "updated_at").
		From(tableGenerations).
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var (
		generation int64
		updatedAt  time.Time
	)
	if err := d.db.QueryRow(ctx, query, args...).Scan(&generation, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRosterNotFound
		}
		d.logger.Error("failed to load roster generation", "account_id", accountID, "error", err)
		return nil, errors.Wrap(err, "failed to load roster generation")
	}

	query, args, err = postgres.QueryBuilder.
		Select("character_id", "data").
		From(tableEntries).
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("character_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	rows, err := postgres.QueryAll[entryRow](ctx, d.db.Pool(), query, args...)
	if err != nil {
		d.logger.Error("failed to load roster entries", "account_id", accountID, "error", err)
		return nil, errors.Wrap(err, "failed to load roster entries")
	}
	flat := make([]entryRow, len(rows))
	for i, r := range rows {
		flat[i] = *r
	}
	entries, err := decodeEntries(flat)
	if err != nil {
		return nil, err
	}

	return &model.Roster{
		AccountID:  accountID,
		Generation: generation,
		UpdatedAt:  updatedAt.UTC(),
		Entries:    entries,
	}, nil
}

// Save 在一个事务内替换账号名册，代数必须递增
func (d *PostgresRosterDAO) Save(ctx context.Context, r *model.Roster) (err error) {
	start := time.Now()
	defer func() { d.metrics.RecordStorage("save", err == nil, since(start)) }()

	return d.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query, args, err := postgres.QueryBuilder.
			Select("generation").
			From(tableGenerations).
			Where(squirrel.Eq{"account_id": r.AccountID}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return err
		}
		var current int64
		switch err := tx.QueryRow(ctx, query, args...).Scan(&current); {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return errors.Wrap(err, "failed to read current generation")
		case current >= r.Generation:
			return errors.Wrapf(ErrStaleGeneration, "account %s stored %d, writing %d", r.AccountID, current, r.Generation)
		}

		upsert := postgres.QueryBuilder.
			Insert(tableGenerations).
			Columns("account_id", "generation", "digest", "updated_at").
			Values(r.AccountID, r.Generation, r.Digest(), r.UpdatedAt).
			Suffix("ON CONFLICT (account_id) DO UPDATE SET " +
				"generation = EXCLUDED.generation, digest = EXCLUDED.digest, updated_at = EXCLUDED.updated_at")
		if err := execTx(ctx, tx, upsert); err != nil {
			return errors.Wrap(err, "failed to write roster generation")
		}

		del := postgres.QueryBuilder.Delete(tableEntries).Where(squirrel.Eq{"account_id": r.AccountID})
		if err := execTx(ctx, tx, del); err != nil {
			return errors.Wrap(err, "failed to clear roster entries")
		}
		if len(r.Entries) == 0 {
			return nil
		}

		ins := postgres.QueryBuilder.Insert(tableEntries).Columns("account_id", "character_id", "generation", "data")
		for _, e := range r.Entries {
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			ins = ins.Values(r.AccountID, e.CharacterID, r.Generation, data)
		}
		if err := execTx(ctx, tx, ins); err != nil {
			return errors.Wrap(err, "failed to insert roster entries")
		}
		return nil
	})
}

func execTx(ctx context.Context, tx pgx.Tx, s squirrel.Sqlizer) error {
	query, args, err := s.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}
