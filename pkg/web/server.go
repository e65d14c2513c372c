package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/web/middleware"
)

// Server Web 服务
type Server struct {
	engine  *gin.Engine
	config  *Config
	logger  logger.Logger
	server  *http.Server
	limiter *middleware.RateLimiter
}

// NewServer 创建 Web 服务并挂载基础中间件
func NewServer(cfg *Config, l logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l = logger.OrNoop(l)

	gin.SetMode(cfg.Mode)
	registerTagNameFunc()

	engine := gin.New()
	engine.Use(middleware.Recovery(l.Named("web.recovery")))
	engine.Use(middleware.Logger(l.Named("web.access")))
	if cfg.MaxBodyBytes > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}
	if cfg.CORS.Enabled {
		engine.Use(middleware.CORS(cfg.CORS.AllowOrigins))
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: l.Named("web.server"),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(l.Named("web.ratelimit"), &middleware.RateLimitOptions{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			PerIP:             cfg.RateLimit.PerIP,
			MaxLimiters:       cfg.RateLimit.MaxLimiters,
			LimiterTTL:        cfg.RateLimit.LimiterTTL,
			SkipPaths:         cfg.RateLimit.SkipPaths,
		})
		engine.Use(middleware.RateLimit(s.limiter))
	}
	return s
}

// Router 返回 Gin 引擎，用于注册路由和中间件
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Config 当前配置
func (s *Server) Config() *Config {
	return s.config
}

// Start 监听端口并在后台提供服务
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}

	s.server = &http.Server{
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		var err error
		if s.config.EnableTLS {
			s.logger.Info("starting https server", "addr", addr)
			err = s.server.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
		} else {
			s.logger.Info("starting http server", "addr", addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Stop 立即关闭
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// GracefulStop 等待进行中的请求完成，最多 10 秒
func (s *Server) GracefulStop() error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	s.logger.Info("http server exited")
	return nil
}
