// Package errcode 定义 web 层业务错误码
package errcode

import "net/http"

const (
	OK            = 0
	InvalidParams = 40001
	UnAuthorized  = 40002
	Forbidden     = 40003
	NotFound      = 40004
	RateLimited   = 40029
	InternalError = 50000
	Unavailable   = 50003
)

// ToStatus 业务错误码映射为 HTTP 状态码
func ToStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case UnAuthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	}
	if code >= 40000 && code < 50000 {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
