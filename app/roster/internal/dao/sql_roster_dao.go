package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/database/sqldb"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// SQLRosterDAO SQLite / MySQL 名册存储
type SQLRosterDAO struct {
	db      *sqldb.DB
	sb      squirrel.StatementBuilderType
	logger  logger.Logger
	metrics *metrics.RosterMetrics
}

// NewSQLRosterDAO 创建 SQL 名册 DAO
func NewSQLRosterDAO(db *sqldb.DB, l logger.Logger, m *metrics.RosterMetrics) *SQLRosterDAO {
	return &SQLRosterDAO{
		db:      db,
		sb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger:  logger.OrNoop(l).Named("dao.roster." + db.Driver()),
		metrics: m,
	}
}

// Migrate 执行当前驱动的建表脚本
func (d *SQLRosterDAO) Migrate(ctx context.Context) error {
	applied, err := d.db.Migrate(ctx, migrations, "migrations/"+d.db.Driver())
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		d.logger.Info("roster schema migrated", "applied", applied)
	}
	return nil
}

// Load 读取账号最新一代名册
func (d *SQLRosterDAO) Load(ctx context.Context, accountID string) (_ *model.Roster, err error) {
	start := time.Now()
	defer func() { d.metrics.RecordStorage("load", err == nil || errors.Is(err, model.ErrRosterNotFound), since(start)) }()

	query, args, err := d.sb.
		Select("generation", "digest", "updated_at").
		From(tableGenerations).
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var head generationRow
	if err := d.db.GetContext(ctx, &head, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRosterNotFound
		}
		d.logger.Error("failed to load roster generation", "account_id", accountID, "error", err)
		return nil, errors.Wrap(err, "failed to load roster generation")
	}

	query, args, err = d.sb.
		Select("character_id", "data").
		From(tableEntries).
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("character_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var rows []entryRow
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		d.logger.Error("failed to load roster entries", "account_id", accountID, "error", err)
		return nil, errors.Wrap(err, "failed to load roster entries")
	}
	entries, err := decodeEntries(rows)
	if err != nil {
		return nil, err
	}

	return &model.Roster{
		AccountID:  accountID,
		Generation: head.Generation,
		UpdatedAt:  time.UnixMilli(head.UpdatedAt).UTC(),
		Entries:    entries,
	}, nil
}

// Save 在一个事务内替换账号名册，代数必须递增
func (d *SQLRosterDAO) Save(ctx context.Context, r *model.Roster) (err error) {
	start := time.Now()
	defer func() { d.metrics.RecordStorage("save", err == nil, since(start)) }()

	return d.db.Tx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := d.sb.
			Select("generation").
			From(tableGenerations).
			Where(squirrel.Eq{"account_id": r.AccountID}).
			ToSql()
		if err != nil {
			return err
		}

		var current int64
		exists := true
		if err := tx.GetContext(ctx, &current, query, args...); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return errors.Wrap(err, "failed to read current generation")
			}
			exists = false
		}
		if exists && current >= r.Generation {
			return errors.Wrapf(ErrStaleGeneration, "account %s stored %d, writing %d", r.AccountID, current, r.Generation)
		}

		var head squirrel.Sqlizer
		if exists {
			head = d.sb.Update(tableGenerations).
				Set("generation", r.Generation).
				Set("digest", r.Digest()).
				Set("updated_at", r.UpdatedAt.UnixMilli()).
				Where(squirrel.Eq{"account_id": r.AccountID})
		} else {
			head = d.sb.Insert(tableGenerations).
				Columns("account_id", "generation", "digest", "updated_at").
				Values(r.AccountID, r.Generation, r.Digest(), r.UpdatedAt.UnixMilli())
		}
		if err := execSqlizer(ctx, tx, head); err != nil {
			return errors.Wrap(err, "failed to write roster generation")
		}

		del := d.sb.Delete(tableEntries).Where(squirrel.Eq{"account_id": r.AccountID})
		if err := execSqlizer(ctx, tx, del); err != nil {
			return errors.Wrap(err, "failed to clear roster entries")
		}
		if len(r.Entries) == 0 {
			return nil
		}

		ins := d.sb.Insert(tableEntries).Columns("account_id", "character_id", "generation", "data")
		for _, e := range r.Entries {
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			ins = ins.Values(r.AccountID, e.CharacterID, r.Generation, string(data))
		}
		if err := execSqlizer(ctx, tx, ins); err != nil {
			return errors.Wrap(err, "failed to insert roster entries")
		}
		return nil
	})
}

// Accounts 列出已存储的账号
func (d *SQLRosterDAO) Accounts(ctx context.Context) ([]string, error) {
	query, args, err := d.sb.Select("account_id").From(tableGenerations).OrderBy("account_id").ToSql()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := d.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}
	return ids, nil
}

func execSqlizer(ctx context.Context, tx *sqlx.Tx, s squirrel.Sqlizer) error {
	query, args, err := s.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
