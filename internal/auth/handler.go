package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/catalog-auth/internal/logging"
	"github.com/yourusername/catalog-auth/internal/ratelimit"
	"github.com/yourusername/catalog-auth/internal/users"
)

// メールアドレス不明とパスワード不一致で同じメッセージを返す
const invalidCredentialsMessage = "メールアドレスまたはパスワードが正しくありません"

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	if retryAfter, err := m.allowAttempt(c.ClientIP()); err != nil {
		ratelimit.SetRetryAfter(c, retryAfter)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "ログイン試行回数が上限に達しました。一定時間後に再度お試しください",
		})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	result, err := m.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_CREDENTIALS",
				"message": invalidCredentialsMessage,
			})
			return
		}
		logging.FromContext(c, m.logger).Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  result.User,
	})
}

// Register は /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email・password（6文字以上）・name（2文字以上）を JSON で送ってください",
		})
		return
	}

	user, err := m.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "EMAIL_ALREADY_REGISTERED",
				"message": "このメールアドレスは既に登録されています",
			})
			return
		}
		logging.FromContext(c, m.logger).Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "ユーザーを登録しました",
		"user":    user,
	})
}

// Me は認証済みユーザーの識別情報を返します。RequireToken の後ろに置きます。
func (m *Manager) Me(c *gin.Context) {
	identity, ok := IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "MISSING_CREDENTIAL",
			"message": unauthenticatedMessage,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": identity,
	})
}
