package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/web/errcode"
	"golang.org/x/time/rate"
)

// RateLimitOptions 限流参数
type RateLimitOptions struct {
	RequestsPerSecond float64
	Burst             int
	// PerIP 按客户端 IP 限流，否则全局共用一个限流器
	PerIP bool
	// KeyFunc 自定义限流键，优先于 PerIP
	KeyFunc     func(*gin.Context) string
	MaxLimiters int
	// LimiterTTL 空闲超过该时间的限流器重建
	LimiterTTL time.Duration
	SkipPaths  []string
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按键限流
type RateLimiter struct {
	opts     *RateLimitOptions
	global   *rate.Limiter
	limiters *lru.Cache
	mu       sync.Mutex
	logger   logger.Logger
}

// NewRateLimiter 创建限流器
func NewRateLimiter(l logger.Logger, opts *RateLimitOptions) *RateLimiter {
	if opts.MaxLimiters <= 0 {
		opts.MaxLimiters = 10000
	}
	l = logger.OrNoop(l)
	cache, err := lru.NewWithEvict(opts.MaxLimiters, func(key, _ interface{}) {
		l.Debug("rate limiter evicted", "key", key)
	})
	if err != nil {
		// 仅在 size <= 0 时返回错误，上面已保证
		panic(err)
	}
	return &RateLimiter{
		opts:     opts,
		global:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		limiters: cache,
		logger:   l,
	}
}

// Allow 检查是否允许请求，key 为空时使用全局限流器
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		return rl.global.Allow()
	}
	return rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.limiters.Get(key); ok {
		kl := v.(*keyedLimiter)
		if rl.opts.LimiterTTL <= 0 || now.Sub(kl.lastSeen) < rl.opts.LimiterTTL {
			kl.lastSeen = now
			return kl.limiter
		}
	}
	kl := &keyedLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rl.opts.RequestsPerSecond), rl.opts.Burst),
		lastSeen: now,
	}
	rl.limiters.Add(key, kl)
	return kl.limiter
}

// Len 当前缓存的限流器数量
func (rl *RateLimiter) Len() int {
	return rl.limiters.Len()
}

// Close 清空限流器
func (rl *RateLimiter) Close() {
	rl.limiters.Purge()
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if rl.opts.KeyFunc != nil {
		return rl.opts.KeyFunc(c)
	}
	if rl.opts.PerIP {
		return "ip:" + c.ClientIP()
	}
	return ""
}

// RateLimit 限流中间件，超限返回 429
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(rl.opts.SkipPaths))
	for _, p := range rl.opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		key := rl.key(c)
		if !rl.Allow(key) {
			rl.logger.Warn("rate limit exceeded", "key", key, "path", c.Request.URL.Path)
			c.Header("Retry-After", strconv.Itoa(1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    errcode.RateLimited,
				"message": "too many requests",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
