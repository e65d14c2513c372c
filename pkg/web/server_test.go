package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/xdooria-roster/pkg/web/errcode"
)

type createReq struct {
	Name string `json:"name" binding:"required"`
}

func TestServerRoutes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	cfg.MaxBodyBytes = 64
	s := NewServer(cfg, nil)

	s.Router().POST("/items", func(c *gin.Context) {
		var req createReq
		if !BindAndValidate(c, &req) {
			return
		}
		Success(c, gin.H{"name": req.Name})
	})
	s.Router().GET("/missing", func(c *gin.Context) {
		Error(c, errcode.NotFound, "not found")
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":0,"message":"ok","data":{"name":"x"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items",
		strings.NewReader(`{"name":"`+strings.Repeat("a", 200)+`"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCodeToStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, errcode.ToStatus(errcode.OK))
	assert.Equal(t, http.StatusBadRequest, errcode.ToStatus(errcode.InvalidParams))
	assert.Equal(t, http.StatusTooManyRequests, errcode.ToStatus(errcode.RateLimited))
	assert.Equal(t, http.StatusServiceUnavailable, errcode.ToStatus(errcode.Unavailable))
	assert.Equal(t, http.StatusInternalServerError, errcode.ToStatus(errcode.InternalError))
}
