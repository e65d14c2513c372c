package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxFunc 事务内执行的函数
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTx 在事务中执行 fn，fn 返回错误或 panic 时回滚
func (c *Client) WithTx(ctx context.Context, fn TxFunc) (err error) {
	return c.WithTxOptions(ctx, pgx.TxOptions{}, fn)
}

// WithTxOptions 使用指定隔离级别执行事务
func (c *Client) WithTxOptions(ctx context.Context, opts pgx.TxOptions, fn TxFunc) (err error) {
	tx, err := c.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
