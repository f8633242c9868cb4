package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RejectFunc は拒否時のレスポンスを書き込みます。
type RejectFunc func(c *gin.Context, d Decision)

// Middleware はクライアントIPをキーに Attempt を行うミドルウェアを返します。
// onReject が nil の場合は既定の 429 レスポンスを返します。
func Middleware(l *Limiter, onReject RejectFunc) gin.HandlerFunc {
	if onReject == nil {
		onReject = DefaultReject
	}
	return func(c *gin.Context) {
		d := l.Attempt(c.ClientIP())
		if !d.Allowed {
			SetRetryAfter(c, d.RetryAfter)
			onReject(c, d)
			c.Abort()
			return
		}
		c.Next()
	}
}

// DefaultReject は一般APIで使う 429 レスポンスです。
func DefaultReject(c *gin.Context, d Decision) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"code":    "TOO_MANY_REQUESTS",
		"message": "リクエストが多すぎます。時間をおいて再度お試しください",
	})
}

// SetRetryAfter は Retry-After ヘッダーを秒数で設定します（切り上げ、最小1秒）。
func SetRetryAfter(c *gin.Context, d time.Duration) {
	// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.FormatInt(secs, 10))
}
