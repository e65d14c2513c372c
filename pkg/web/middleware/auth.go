package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lk2023060901/xdooria-roster/pkg/web/errcode"
)

// ClaimsKey Context 中存储 Claims 的 key
const ClaimsKey = "jwt_claims"

// ScopeAdmin 可访问任意账号
const ScopeAdmin = "roster:admin"

var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims 访问令牌载荷；Subject 为账号 ID
type Claims struct {
	jwt.RegisteredClaims
	Scope []string `json:"scope,omitempty"`
}

// HasScope 是否包含 scope
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scope, scope)
}

// AuthOptions 认证参数
type AuthOptions struct {
	SecretKey   string
	Issuer      string
	SkipPaths   []string
	TokenPrefix string
	HeaderName  string
}

// IssueToken 签发 HS256 令牌（供运维工具与测试使用）
func IssueToken(opts *AuthOptions, subject string, ttl time.Duration, scope ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.SecretKey))
}

// ParseToken 校验签名、算法与签发者
func ParseToken(opts *AuthOptions, raw string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(opts.SecretKey), nil
	}, parserOpts...)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse token"), ErrTokenInvalid)
	}
	return claims, nil
}

// Auth JWT 认证中间件
func Auth(opts *AuthOptions) gin.HandlerFunc {
	header := opts.HeaderName
	if header == "" {
		header = "Authorization"
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader(header), opts.TokenPrefix))
		if raw == "" {
			abortUnauthorized(c, ErrTokenMissing)
			return
		}
		claims, err := ParseToken(opts, raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireAccount 要求令牌主体与路由参数 param 一致，或具有 ScopeAdmin
// 未经过 Auth（未启用认证）时放行
func RequireAccount(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.Next()
			return
		}
		if claims.Subject != c.Param(param) && !claims.HasScope(ScopeAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    errcode.Forbidden,
				"message": "forbidden: account mismatch",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}

// GetClaims 从 Context 获取 Claims
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    errcode.UnAuthorized,
		"message": err.Error(),
		"data":    nil,
	})
}
