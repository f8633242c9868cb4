// Package users はユーザーレコードの保存先を提供します。
package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound は該当するユーザーが存在しないことを表します。
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken はメールアドレスが登録済みであることを表します。
	ErrEmailTaken = errors.New("email already registered")
)

// Record はユーザーの保存形式です。
type Record struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public はクライアントに返してよい項目だけを持つ表現です。
type Public struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Public はパスワードハッシュを除いた表現を返します。
func (r *Record) Public() Public {
	return Public{ID: r.ID, Email: r.Email, Name: r.Name}
}

// Store はユーザーの保存先です。
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Record, error)
	Create(ctx context.Context, record *Record) (*Record, error)
	// UpdatePasswordHash は既存ユーザーのパスワードハッシュを置き換えます。
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// NormalizeEmail は検索・保存に使うメールアドレスの正規形を返します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
