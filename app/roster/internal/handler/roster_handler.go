package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/decoder"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/publisher"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/reconcile"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/service"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/web"
	"github.com/lk2023060901/xdooria-roster/pkg/web/errcode"
	"github.com/lk2023060901/xdooria-roster/pkg/web/middleware"
)

// maxBatchItems 单次批量导入上限
const maxBatchItems = 64

// RosterService 处理器依赖的导入服务
type RosterService interface {
	Ingest(ctx context.Context, accountID string, payload capture.Payload) (*service.Outcome, error)
	IngestBatch(ctx context.Context, items []service.BatchItem) []service.BatchResult
	Roster(ctx context.Context, accountID string) (*model.Roster, error)
}

// Subscriber WebSocket 变更订阅
type Subscriber interface {
	Subscribe(w http.ResponseWriter, r *http.Request, accountID string) error
}

// RosterHandler 名册 HTTP 接口
type RosterHandler struct {
	svc    RosterService
	hub    Subscriber
	logger logger.Logger
}

// NewRosterHandler 创建名册处理器，hub 为 nil 时不注册订阅接口
func NewRosterHandler(svc RosterService, hub Subscriber, l logger.Logger) *RosterHandler {
	return &RosterHandler{
		svc:    svc,
		hub:    hub,
		logger: logger.OrNoop(l).Named("handler.roster"),
	}
}

// IngestResponse 导入响应，默认不带字段级差异
type IngestResponse struct {
	Report *reconcile.ChangeReport `json:"report"`
	Saved  bool                    `json:"saved"`
}

// BatchRequest 批量导入请求
type BatchRequest struct {
	Items []service.BatchItem `json:"items" binding:"required,min=1"`
}

// Register 注册路由
func (h *RosterHandler) Register(r gin.IRouter) {
	api := r.Group("/api/v1")
	{
		account := api.Group("/accounts/:account_id", middleware.RequireAccount("account_id"))
		account.POST("/captures", h.Ingest)
		account.GET("/roster", h.Roster)

		api.POST("/captures/batch", requireAdmin, h.IngestBatch)
		if h.hub != nil {
			api.GET("/stream", h.Stream)
		}
	}
}

// Ingest 导入一份抓包载荷
// @Summary 导入抓包
// @Tags roster
// @Accept json
// @Produce json
// @Param account_id path string true "账号 ID"
// @Param deltas query bool false "返回字段级差异"
// @Success 200 {object} web.Response{data=IngestResponse}
// @Failure 400 {object} web.Response
// @Failure 503 {object} web.Response
// @Router /api/v1/accounts/{account_id}/captures [post]
func (h *RosterHandler) Ingest(c *gin.Context) {
	accountID := c.Param("account_id")

	var payload capture.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("invalid capture payload", "account_id", accountID, "error", err)
		web.Error(c, errcode.InvalidParams, "invalid capture payload: "+err.Error())
		return
	}

	out, err := h.svc.Ingest(c.Request.Context(), accountID, payload)
	if err != nil {
		h.fail(c, accountID, err)
		return
	}

	report := out.Report
	if !wantDeltas(c) {
		report = report.WithoutDeltas()
	}
	web.Success(c, IngestResponse{Report: report, Saved: out.Saved})
}

// Roster 查询已持久化名册
// @Summary 查询名册
// @Tags roster
// @Produce json
// @Param account_id path string true "账号 ID"
// @Success 200 {object} web.Response{data=model.Roster}
// @Failure 404 {object} web.Response
// @Router /api/v1/accounts/{account_id}/roster [get]
func (h *RosterHandler) Roster(c *gin.Context) {
	accountID := c.Param("account_id")
	r, err := h.svc.Roster(c.Request.Context(), accountID)
	if err != nil {
		h.fail(c, accountID, err)
		return
	}
	web.Success(c, r)
}

// IngestBatch 批量导入，单项失败不影响其余项
// @Router /api/v1/captures/batch [post]
func (h *RosterHandler) IngestBatch(c *gin.Context) {
	var req BatchRequest
	if !web.BindAndValidate(c, &req) {
		return
	}
	if len(req.Items) > maxBatchItems {
		web.Error(c, errcode.InvalidParams, "too many items, max "+strconv.Itoa(maxBatchItems))
		return
	}

	results := h.svc.IngestBatch(c.Request.Context(), req.Items)
	deltas := wantDeltas(c)
	for i := range results {
		if out := results[i].Outcome; out != nil && !deltas {
			copied := *out
			copied.Report = out.Report.WithoutDeltas()
			results[i].Outcome = &copied
		}
	}
	web.Success(c, gin.H{"results": results})
}

// Stream 订阅名册变更，非管理员只能订阅自己的账号
// @Router /api/v1/stream [get]
func (h *RosterHandler) Stream(c *gin.Context) {
	accountID := c.Query("account_id")
	if claims, ok := middleware.GetClaims(c); ok && !claims.HasScope(middleware.ScopeAdmin) {
		if accountID != "" && accountID != claims.Subject {
			web.Error(c, errcode.Forbidden, "forbidden: account mismatch")
			return
		}
		accountID = claims.Subject
	}

	if err := h.hub.Subscribe(c.Writer, c.Request, accountID); err != nil {
		h.logger.Warn("failed to subscribe", "account_id", accountID, "error", err)
		if errors.Is(err, publisher.ErrTooManySubscribers) || errors.Is(err, publisher.ErrHubClosed) {
			web.Error(c, errcode.Unavailable, err.Error())
		}
		// 升级失败时 gorilla 已写回响应
	}
}

// fail 错误映射：存储故障 503，其余输入问题 4xx
func (h *RosterHandler) fail(c *gin.Context, accountID string, err error) {
	switch {
	case errors.Is(err, reconcile.ErrStorage):
		h.logger.Error("roster storage unavailable", "account_id", accountID, "error", err)
		web.Error(c, errcode.Unavailable, "roster storage unavailable")
	case errors.Is(err, model.ErrRosterNotFound):
		web.Error(c, errcode.NotFound, "roster not found")
	case errors.Is(err, service.ErrAccountMismatch):
		web.Error(c, errcode.Forbidden, err.Error())
	case errors.Is(err, service.ErrInvalidAccount), errors.Is(err, decoder.ErrNilPayload):
		web.Error(c, errcode.InvalidParams, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		web.Error(c, errcode.Unavailable, "account busy, retry later")
	default:
		h.logger.Error("ingest failed", "account_id", accountID, "error", err)
		web.Error(c, errcode.InternalError, "internal error")
	}
}

func wantDeltas(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("deltas"))
	return v
}

func requireAdmin(c *gin.Context) {
	if claims, ok := middleware.GetClaims(c); ok && !claims.HasScope(middleware.ScopeAdmin) {
		web.AbortWithError(c, errcode.Forbidden, "forbidden: admin scope required")
		return
	}
	c.Next()
}
