package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Store 名册持久化存储
type Store interface {
	Load(ctx context.Context, accountID string) (*model.Roster, error)
	Save(ctx context.Context, r *model.Roster) error
}

// Cache 名册缓存，未命中返回 nil, nil
type Cache interface {
	GetRoster(ctx context.Context, accountID string) (*model.Roster, error)
	SetRoster(ctx context.Context, r *model.Roster) error
	DeleteRoster(ctx context.Context, accountID string) error
}

// RosterRepository 组合存储与缓存
type RosterRepository struct {
	store  Store
	cache  Cache
	group  singleflight.Group
	logger logger.Logger
}

// NewRosterRepository 创建名册仓库，cache 可为 nil
func NewRosterRepository(store Store, cache Cache, l logger.Logger) *RosterRepository {
	return &RosterRepository{
		store:  store,
		cache:  cache,
		logger: logger.OrNoop(l).Named("repository.roster"),
	}
}

// Load 先查缓存，未命中时回源并回填。相同账号的并发回源合并为一次
func (r *RosterRepository) Load(ctx context.Context, accountID string) (*model.Roster, error) {
	if r.cache != nil {
		cached, err := r.cache.GetRoster(ctx, accountID)
		if err != nil {
			r.logger.Warn("failed to read roster cache", "account_id", accountID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := r.group.Do(accountID, func() (any, error) {
		roster, err := r.store.Load(ctx, accountID)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, roster)
		return roster, nil
	})
	if err != nil {
		return nil, err
	}
	// 共享结果需要拷贝，调用方可能修改
	return v.(*model.Roster).Clone(), nil
}

// Save 写存储后刷新缓存，缓存失败只记录日志
func (r *RosterRepository) Save(ctx context.Context, roster *model.Roster) error {
	if roster == nil {
		return errors.New("repository: nil roster")
	}
	if err := r.store.Save(ctx, roster); err != nil {
		// 存储失败时缓存可能已过期
		r.invalidate(ctx, roster.AccountID)
		return err
	}
	r.fill(ctx, roster)
	return nil
}

func (r *RosterRepository) fill(ctx context.Context, roster *model.Roster) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetRoster(ctx, roster); err != nil {
		r.logger.Warn("failed to write roster cache", "account_id", roster.AccountID, "error", err)
	}
}

func (r *RosterRepository) invalidate(ctx context.Context, accountID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DeleteRoster(ctx, accountID); err != nil {
		r.logger.Warn("failed to invalidate roster cache", "account_id", accountID, "error", err)
	}
}
