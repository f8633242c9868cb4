package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/catalog-auth/internal/auth"
	"github.com/yourusername/catalog-auth/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "e2e-secret",
		JWTIssuer:           "catalog-auth",
		TokenTTL:            time.Hour,
		GinMode:             gin.TestMode,
		CORSAllowedOrigins:  "http://localhost:5173",
		LoginRateLimit:      5,
		LoginRateWindow:     15 * time.Minute,
		APIRateLimit:        100,
		APIRateWindow:       time.Hour,
		RateLimitSweepEvery: time.Minute,
		BcryptCost:          bcrypt.MinCost,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*application, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app, err := newApplication(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	router, err := newRouter(app)
	require.NoError(t, err)
	return app, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.20:51000"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestNewApplicationRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	_, err := newApplication(cfg, zap.NewNop())
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t, testConfig())
	rec := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// 登録 → ログイン成功 → 誤ったパスワードで 401
func TestScenarioRegisterAndLogin(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
		"email": "a@x.com", "password": "longenough", "name": "A",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "a@x.com", "password": "longenough",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	assert.Equal(t, 2, strings.Count(body.Token, "."))
	assert.Equal(t, "a@x.com", body.User.Email)
	assert.Equal(t, "A", body.User.Name)

	rec = doJSON(t, router, http.MethodGet, "/api/me", nil, bearer(body.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@x.com")

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "a@x.com", "password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")
}

// 同一クライアントから誤ったパスワードで6回 → 5回目までは 401、6回目は 429
func TestScenarioLoginBruteForce(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	for i := 1; i <= 5; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"email": "a@x.com", "password": "wrong-password",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "a@x.com", "password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "message")
}

// X-Forwarded-For を付け替えても同じ接続元なら同じバケットに数えられる
func TestLoginLimitIgnoresForwardedHeaders(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	var codes []int
	for i := 1; i <= 6; i++ {
		header := http.Header{
			"X-Forwarded-For": []string{fmt.Sprintf("203.0.113.%d", i)},
			"X-Real-Ip":       []string{fmt.Sprintf("203.0.113.%d", 100+i)},
		}
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"email": "a@x.com", "password": "wrong-password",
		}, header)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{401, 401, 401, 401, 401, 429}, codes)
}

// 信用するプロキシ経由なら X-Forwarded-For の値ごとに数える
func TestLoginLimitUsesForwardedHeaderFromTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxiesList = "198.51.100.0/24"
	_, router := newTestServer(t, cfg)

	for i := 1; i <= 6; i++ {
		header := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("203.0.113.%d", i)}}
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"email": "a@x.com", "password": "wrong-password",
		}, header)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}
}

func TestNewRouterRejectsInvalidTrustedProxies(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxiesList = "not-an-ip"
	app, err := newApplication(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	_, err = newRouter(app)
	assert.Error(t, err)
}

// トークン無し → 401、ttl=0 のトークンを1秒後に使う → 403
func TestScenarioProtectedEndpoint(t *testing.T) {
	app, router := newTestServer(t, testConfig())

	rec := doJSON(t, router, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_CREDENTIAL")

	token, err := app.codec.Issue(auth.Identity{SubjectID: 1, Email: "a@x.com"}, 0)
	require.NoError(t, err)
	time.Sleep(time.Second)

	rec = doJSON(t, router, http.MethodGet, "/api/me", nil, bearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestGeneralLimiterAppliesToAPI(t *testing.T) {
	cfg := testConfig()
	cfg.APIRateLimit = 2
	_, router := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, http.MethodGet, "/api/me", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := doJSON(t, router, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// ヘルスチェックは対象外
	rec = doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisUserStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.UserStoreRedisURL = "redis://" + mr.Addr() + "/0"
	_, router := newTestServer(t, cfg)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
		"email": "r@x.com", "password": "longenough", "name": "Redis",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, mr.Exists("user:email:r@x.com"))

	rec = doJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
		"email": "r@x.com", "password": "longenough", "name": "Redis",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "r@x.com", "password": "longenough",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisUserStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.UserStoreRedisURL = "redis://" + addr + "/0"
	_, err := newApplication(cfg, zap.NewNop())
	assert.Error(t, err)
}
