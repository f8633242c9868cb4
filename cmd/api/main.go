// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/catalog-auth/internal/config"
	"github.com/yourusername/catalog-auth/internal/logging"
	"github.com/yourusername/catalog-auth/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み（JWT_SECRET が無ければここで終了）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router, err := newRouter(app)
	if err != nil {
		logger.Fatal("Failed to configure router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.startSweepers(ctx)

	go func() {
		logger.Info("Starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	if err := app.Close(); err != nil {
		logger.Error("Failed to close resources", zap.Error(err))
	}
}

// newRouter はミドルウェアとルーティングを設定した Gin エンジンを返します。
func newRouter(app *application) (*gin.Engine, error) {
	router := gin.New()
	// 既定では全プロキシを信用してしまい X-Forwarded-For で ClientIP を偽装できるため、
	// 設定で明示したプロキシ以外は接続元アドレスを使う
	if err := router.SetTrustedProxies(app.cfg.TrustedProxies()); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(logging.Middleware(app.logger), gin.Recovery())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = app.cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		logging.RequestIDHeader,
	}
	// 429 の再試行時刻をフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{"Retry-After", logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, app)
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "catalog-auth-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, app *application) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := app.authManager

	api := router.Group("/api")
	api.Use(ratelimit.Middleware(app.apiLimiter, nil))
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", authManager.Register)
			// ログイン試行の制限はハンドラー内で行う
			authRoutes.POST("/login", authManager.Login)
		}

		// 認証必須の API（商品カタログ /products などを追加する場合もここにぶら下げる）
		protected := api.Group("")
		protected.Use(authManager.RequireToken())
		{
			protected.GET("/me", authManager.Me)
		}
	}
}
