package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/lk2023060901/xdooria-roster/pkg/web/errcode"
)

// Recovery panic 恢复中间件
func Recovery(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			dump, _ := httputil.DumpRequest(c.Request, false)

			if err, ok := rec.(error); ok && isBrokenPipe(err) {
				l.Warn("http broken pipe", "error", err, "path", c.Request.URL.Path)
				_ = c.Error(err)
				c.Abort()
				return
			}

			l.Error("http recovery from panic", "panic", rec, "request", string(dump))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    errcode.InternalError,
				"message": "internal error",
				"data":    nil,
			})
		}()
		c.Next()
	}
}

func isBrokenPipe(err error) bool {
	var ne *net.OpError
	if !errors.As(err, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// BodyLimit 限制请求体大小
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
