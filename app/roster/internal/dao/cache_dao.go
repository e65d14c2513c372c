package dao

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/metrics"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/compress"
	"github.com/lk2023060901/xdooria-roster/pkg/database/redis"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/serializer"
)

const (
	// Redis key 前缀
	rosterKeyPrefix = "cache:roster:"

	defaultRosterCacheTTL = 30 * time.Minute
)

// CacheConfig 名册缓存配置
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	TTL         time.Duration `mapstructure:"ttl"`
	Compression string        `mapstructure:"compression" validate:"omitempty,oneof=none snappy zstd lz4"`
}

// KVClient 缓存所需的 Redis 能力
type KVClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type cachedRoster struct {
	AccountID   string              `json:"account_id"`
	Generation  int64               `json:"generation"`
	UpdatedAtMs int64               `json:"updated_at_ms"`
	Entries     []model.RosterEntry `json:"entries"`
}

// CacheDAO 名册缓存，msgpack 编码后压缩
type CacheDAO struct {
	redis   KVClient
	codec   *compress.Codec
	ser     serializer.Serializer
	ttl     time.Duration
	logger  logger.Logger
	metrics *metrics.RosterMetrics
}

// NewCacheDAO 创建缓存 DAO
func NewCacheDAO(rdb KVClient, cfg *CacheConfig, l logger.Logger, m *metrics.RosterMetrics) (*CacheDAO, error) {
	if cfg == nil {
		cfg = &CacheConfig{}
	}
	algo := compress.Type(cfg.Compression)
	if algo == "" {
		algo = compress.TypeSnappy
	}
	codec, err := compress.NewCodec(algo)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRosterCacheTTL
	}
	return &CacheDAO{
		redis:   rdb,
		codec:   codec,
		ser:     serializer.NewMsgpack(),
		ttl:     ttl,
		logger:  logger.OrNoop(l).Named("dao.cache"),
		metrics: m,
	}, nil
}

func rosterKey(accountID string) string {
	return rosterKeyPrefix + accountID
}

// GetRoster 从缓存获取名册，未命中返回 nil, nil
func (d *CacheDAO) GetRoster(ctx context.Context, accountID string) (*model.Roster, error) {
	data, err := d.redis.Get(ctx, rosterKey(accountID))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			d.metrics.RecordCacheMiss("redis")
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get roster from cache")
	}

	raw, err := d.codec.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress cached roster")
	}
	var c cachedRoster
	if err := d.ser.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal cached roster")
	}

	d.metrics.RecordCacheHit("redis")
	return &model.Roster{
		AccountID:  c.AccountID,
		Generation: c.Generation,
		UpdatedAt:  time.UnixMilli(c.UpdatedAtMs).UTC(),
		Entries:    c.Entries,
	}, nil
}

// SetRoster 写入名册缓存
func (d *CacheDAO) SetRoster(ctx context.Context, r *model.Roster) error {
	raw, err := d.ser.Marshal(cachedRoster{
		AccountID:   r.AccountID,
		Generation:  r.Generation,
		UpdatedAtMs: r.UpdatedAt.UnixMilli(),
		Entries:     r.Entries,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal roster")
	}
	data, err := d.codec.Encode(raw)
	if err != nil {
		return errors.Wrap(err, "failed to compress roster")
	}
	if err := d.redis.Set(ctx, rosterKey(r.AccountID), data, d.ttl); err != nil {
		return errors.Wrap(err, "failed to set roster cache")
	}
	return nil
}

// DeleteRoster 删除名册缓存
func (d *CacheDAO) DeleteRoster(ctx context.Context, accountID string) error {
	return d.redis.Del(ctx, rosterKey(accountID))
}
