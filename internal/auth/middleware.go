package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextIdentityKey は、ハンドラー間で認証済みの Identity を共有するためのキーです。
const ContextIdentityKey = "auth.identity"

// トークン未指定と不正トークンでメッセージを分けない
const unauthenticatedMessage = "認証に失敗しました。再度ログインしてください"

type identityContextKey struct{}

// WithIdentity は Identity を保持した context を返します。
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext は RequireToken が付与した Identity を取り出します。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// RequireToken は Authorization: Bearer トークンを検証するミドルウェアを返します。
// レート制限や保存済みの状態には触れません。
func (m *Manager) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "MISSING_CREDENTIAL",
				"message": unauthenticatedMessage,
			})
			return
		}

		identity, err := m.codec.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "INVALID_TOKEN",
				"message": unauthenticatedMessage,
			})
			return
		}

		c.Set(ContextIdentityKey, identity)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// bearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出します。
func bearerToken(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", ErrMissingCredential
	}
	return fields[1], nil
}
