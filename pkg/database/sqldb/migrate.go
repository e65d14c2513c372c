package sqldb

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

const migrationTable = "schema_migrations"

// Migrate 按文件名顺序执行 dir 下的 .sql，每个文件最多执行一次
func (d *DB) Migrate(ctx context.Context, fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations dir")
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	create := "CREATE TABLE IF NOT EXISTS " + migrationTable +
		" (name VARCHAR(255) PRIMARY KEY, applied_at BIGINT NOT NULL)"
	if _, err := d.ExecContext(ctx, create); err != nil {
		return nil, errors.Wrap(err, "ensure migration table")
	}

	var applied []string
	for _, name := range files {
		var n int
		q := d.Rebind("SELECT COUNT(1) FROM " + migrationTable + " WHERE name = ?")
		if err := d.GetContext(ctx, &n, q, name); err != nil {
			return applied, errors.Wrapf(err, "check migration %s", name)
		}
		if n > 0 {
			continue
		}

		body, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return applied, errors.Wrapf(err, "read migration %s", name)
		}

		err = d.Tx(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range splitStatements(string(body)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			ins := tx.Rebind("INSERT INTO " + migrationTable + " (name, applied_at) VALUES (?, ?)")
			_, err := tx.ExecContext(ctx, ins, name, time.Now().UnixMilli())
			return err
		})
		if err != nil {
			return applied, errors.Wrapf(err, "apply migration %s", name)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// mysql 驱动默认不允许单次执行多条语句
func splitStatements(body string) []string {
	var out []string
	for _, s := range strings.Split(body, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
