package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logger.NewNoop()))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":50000`)
}

func TestRateLimitPerIP(t *testing.T) {
	rl := NewRateLimiter(nil, &RateLimitOptions{
		RequestsPerSecond: 0.001,
		Burst:             2,
		PerIP:             true,
		SkipPaths:         []string{"/health"},
	})
	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(path, ip string) int {
		rq := httptest.NewRequest(http.MethodGet, path, nil)
		rq.RemoteAddr = ip + ":1234"
		return serve(r, rq).Code
	}

	assert.Equal(t, http.StatusOK, req("/x", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("/x", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("/x", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("/x", "10.0.0.2"))
	assert.Equal(t, http.StatusOK, req("/health", "10.0.0.1"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterEvicts(t *testing.T) {
	rl := NewRateLimiter(nil, &RateLimitOptions{RequestsPerSecond: 1, Burst: 1, MaxLimiters: 2})
	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c")
	assert.Equal(t, 2, rl.Len())
	rl.Close()
	assert.Equal(t, 0, rl.Len())
}

func TestAuth(t *testing.T) {
	opts := &AuthOptions{SecretKey: "s3cret", Issuer: "roster", TokenPrefix: "Bearer ", SkipPaths: []string{"/health"}}

	r := gin.New()
	r.Use(Auth(opts))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/accounts/:account_id", RequireAccount("account_id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(path, token string) int {
		rq := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			rq.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(r, rq).Code
	}

	own, err := IssueToken(opts, "1001", time.Minute)
	require.NoError(t, err)
	admin, err := IssueToken(opts, "ops", time.Minute, ScopeAdmin)
	require.NoError(t, err)
	expired, err := IssueToken(opts, "1001", -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken(&AuthOptions{SecretKey: "other", Issuer: "roster"}, "1001", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get("/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/accounts/1001", ""))
	assert.Equal(t, http.StatusOK, get("/accounts/1001", own))
	assert.Equal(t, http.StatusForbidden, get("/accounts/1002", own))
	assert.Equal(t, http.StatusOK, get("/accounts/1002", admin))
	assert.Equal(t, http.StatusUnauthorized, get("/accounts/1001", expired))
	assert.Equal(t, http.StatusUnauthorized, get("/accounts/1001", foreign))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics("roster", reg)

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/accounts/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	serve(r, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/accounts/2", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != "roster_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)
}
