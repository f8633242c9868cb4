// Package auth は認証・認可機能を提供します。
//
// ログイン時のパスワード照合とトークン発行、保護エンドポイントでのトークン検証、
// ログイン試行のレート制限を扱います。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/catalog-auth/internal/ratelimit"
	"github.com/yourusername/catalog-auth/internal/users"
)

// DefaultTokenTTL はログイン時に発行するトークンの既定の有効期間です。
const DefaultTokenTTL = time.Hour

// Options は Manager の依存をまとめたものです。
type Options struct {
	Codec    *TokenCodec
	Verifier CredentialVerifier
	Users    users.Store
	Limiter  *ratelimit.Limiter // ログイン試行用
	TokenTTL time.Duration
	Logger   *zap.Logger
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	codec    *TokenCodec
	verifier CredentialVerifier
	users    users.Store
	limiter  *ratelimit.Limiter
	tokenTTL time.Duration
	logger   *zap.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(opts Options) (*Manager, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("%w: token codec is nil", ErrConfiguration)
	}
	if opts.Verifier == nil {
		return nil, errors.New("verifier is nil")
	}
	if opts.Users == nil {
		return nil, errors.New("user store is nil")
	}
	if opts.Limiter == nil {
		return nil, errors.New("login limiter is nil")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		codec:    opts.Codec,
		verifier: opts.Verifier,
		users:    opts.Users,
		limiter:  opts.Limiter,
		tokenTTL: opts.TokenTTL,
		logger:   opts.Logger,
	}, nil
}

// LoginResult はログイン成功時の結果です。
type LoginResult struct {
	Token string
	User  users.Public
}

// allowAttempt はクライアントのログイン試行を1回記録します。
// 上限を超えた場合は ErrRateLimited とリセットまでの時間を返します。
func (m *Manager) allowAttempt(clientKey string) (time.Duration, error) {
	d := m.limiter.Attempt(clientKey)
	if !d.Allowed {
		return d.RetryAfter, ErrRateLimited
	}
	return 0, nil
}

// Authenticate はメールアドレスとパスワードを照合し、トークンを発行します。
// ユーザー不明とパスワード不一致はどちらも ErrInvalidCredentials になります。
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	record, err := m.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			m.verifier.VerifyDecoy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !m.verifier.Verify(password, record.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	m.rehashIfNeeded(ctx, record, password)

	token, err := m.codec.Issue(Identity{SubjectID: record.ID, Email: record.Email}, m.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{Token: token, User: record.Public()}, nil
}

// RegisterUser はユーザーを登録します。メールアドレスが登録済みなら users.ErrEmailTaken を返します。
func (m *Manager) RegisterUser(ctx context.Context, email, password, name string) (*users.Public, error) {
	hash, err := m.verifier.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := m.users.Create(ctx, &users.Record{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
	if err != nil {
		return nil, err
	}

	public := created.Public()
	return &public, nil
}

// rehashIfNeeded は BCRYPT_COST 変更前のハッシュを現在のコストで保存し直します。
// 失敗してもログインは成功させ、次回のログインで再試行します。
func (m *Manager) rehashIfNeeded(ctx context.Context, record *users.Record, password string) {
	if !m.verifier.NeedsRehash(record.PasswordHash) {
		return
	}
	hash, err := m.verifier.Hash(password)
	if err == nil {
		err = m.users.UpdatePasswordHash(ctx, record.ID, hash)
	}
	if err != nil {
		m.logger.Warn("failed to rehash password", zap.Int64("user_id", record.ID), zap.Error(err))
		return
	}
	m.logger.Info("password rehashed with current cost", zap.Int64("user_id", record.ID))
}
