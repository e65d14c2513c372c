package web

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Config Web 服务配置
type Config struct {
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Mode         string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
	// MaxBodyBytes 请求体上限，0 不限制
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	PerIP             bool          `mapstructure:"per_ip"`
	MaxLimiters       int           `mapstructure:"max_limiters"`
	LimiterTTL        time.Duration `mapstructure:"limiter_ttl"`
	SkipPaths         []string      `mapstructure:"skip_paths"`
}

// AuthConfig JWT 认证配置，SecretKey 为空时不启用
type AuthConfig struct {
	SecretKey   string   `mapstructure:"secret_key"`
	Issuer      string   `mapstructure:"issuer"`
	SkipPaths   []string `mapstructure:"skip_paths"`
	TokenPrefix string   `mapstructure:"token_prefix"`
	HeaderName  string   `mapstructure:"header_name"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		MaxBodyBytes: 8 << 20,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			PerIP:             true,
			MaxLimiters:       10000,
			LimiterTTL:        10 * time.Minute,
			SkipPaths:         []string{"/health", "/metrics"},
		},
		Auth: AuthConfig{
			SkipPaths:   []string{"/health", "/metrics"},
			TokenPrefix: "Bearer ",
			HeaderName:  "Authorization",
		},
	}
}
