package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/catalog-auth/internal/auth"
	"github.com/yourusername/catalog-auth/internal/config"
	"github.com/yourusername/catalog-auth/internal/ratelimit"
)

// application はサーバーが起動中に保持する依存をまとめたものです。
type application struct {
	cfg          *config.Config
	logger       *zap.Logger
	codec        *auth.TokenCodec
	authManager  *auth.Manager
	loginLimiter *ratelimit.Limiter
	apiLimiter   *ratelimit.Limiter
	closeStore   func() error
}

// newApplication は設定から依存を組み立てます。
// 署名用シークレットが無い場合はここで失敗し、リクエストを受け付ける前に起動を止めます。
func newApplication(cfg *config.Config, logger *zap.Logger) (*application, error) {
	codec, err := auth.NewTokenCodec(
		[]byte(cfg.JWTSecret),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithLogger(logger.Named("token")),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := setupUserStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up user store: %w", err)
	}

	loginLimiter := ratelimit.New(ratelimit.Config{
		Limit:         cfg.LoginRateLimit,
		Window:        cfg.LoginRateWindow,
		SweepInterval: cfg.RateLimitSweepEvery,
	})
	apiLimiter := ratelimit.New(ratelimit.Config{
		Limit:         cfg.APIRateLimit,
		Window:        cfg.APIRateWindow,
		SweepInterval: cfg.RateLimitSweepEvery,
	})

	manager, err := auth.NewManager(auth.Options{
		Codec:    codec,
		Verifier: verifier,
		Users:    store,
		Limiter:  loginLimiter,
		TokenTTL: cfg.TokenTTL,
		Logger:   logger.Named("auth"),
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &application{
		cfg:          cfg,
		logger:       logger,
		codec:        codec,
		authManager:  manager,
		loginLimiter: loginLimiter,
		apiLimiter:   apiLimiter,
		closeStore:   closeStore,
	}, nil
}

// startSweepers はレート制限テーブルの掃除をバックグラウンドで開始します。
func (a *application) startSweepers(ctx context.Context) {
	for name, limiter := range map[string]*ratelimit.Limiter{
		"login": a.loginLimiter,
		"api":   a.apiLimiter,
	} {
		go limiter.Run(ctx, func(removed int) {
			if removed > 0 {
				a.logger.Debug("rate limit buckets swept",
					zap.String("limiter", name),
					zap.Int("removed", removed),
					zap.Int("remaining", limiter.Len()),
				)
			}
		})
	}
}

// Close はバックグラウンド処理と外部接続を閉じます。
func (a *application) Close() error {
	a.loginLimiter.Close()
	a.apiLimiter.Close()
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}
