package auth

import "errors"

var (
	// ErrConfiguration は起動時の設定不備（署名用シークレット未設定など）を表します。
	ErrConfiguration = errors.New("auth: configuration error")
	// ErrMissingCredential はリクエストにトークンが含まれていないことを表します。
	ErrMissingCredential = errors.New("auth: missing credential")
	// ErrInvalidToken は署名不一致・形式不正・期限切れをまとめて表します。
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidCredentials はメールアドレス不明とパスワード不一致をまとめて表します。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrRateLimited は試行回数の上限に達したことを表します。
	ErrRateLimited = errors.New("auth: rate limited")
)
