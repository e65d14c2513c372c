package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/pkg/app"
	"github.com/lk2023060901/xdooria-roster/pkg/web"
)

// BundleStats 资源包统计，由 resolver.Resolver 实现
type BundleStats interface {
	Stats() (primary, legacy map[resolver.Category]int)
}

// HealthHandler 健康检查与指标
type HealthHandler struct {
	bundles BundleStats
	metrics http.Handler
}

// NewHealthHandler metrics 为 nil 时不挂载 /metrics
func NewHealthHandler(bundles BundleStats, metrics http.Handler) *HealthHandler {
	return &HealthHandler{bundles: bundles, metrics: metrics}
}

func (h *HealthHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Health 进程存活及资源包加载情况
func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{"status": "ok", "build": app.GetInfo()}
	if h.bundles != nil {
		primary, legacy := h.bundles.Stats()
		data["bundles"] = gin.H{"primary": primary, "legacy": legacy}
	}
	web.Success(c, data)
}
