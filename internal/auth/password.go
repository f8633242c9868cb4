package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は BCRYPT_COST 未指定時のコストです。
const DefaultBcryptCost = 10

// CredentialVerifier はログイン処理が使うパスワード照合の操作です。
type CredentialVerifier interface {
	Hash(plain string) (string, error)
	Verify(plain, storedHash string) bool
	VerifyDecoy(plain string)
	NeedsRehash(storedHash string) bool
}

// Verifier は bcrypt ハッシュとの照合を行います。
// 平文のパスワードやハッシュは一切ログに出しません。
type Verifier struct {
	cost  int
	decoy []byte
}

// NewVerifier は Verifier を作成します。
// 存在しないユーザーに対する照合用に、同じコストのダミーハッシュを起動時に1つ作っておきます。
func NewVerifier(cost int) (*Verifier, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate decoy secret: %w", err)
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), cost)
	if err != nil {
		return nil, fmt.Errorf("generate decoy hash: %w", err)
	}

	return &Verifier{cost: cost, decoy: decoy}, nil
}

// Hash はパスワードをハッシュ化します。
func (v *Verifier) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify は plain が storedHash と一致するかを返します。
// bcrypt 以外の形式や壊れたハッシュは不一致として扱います。
func (v *Verifier) Verify(plain, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plain)) == nil
}

// VerifyDecoy はダミーハッシュとの照合を行い、結果を捨てます。
// ユーザーが存在しない場合も Verify と同じだけ時間をかけるために使います。
func (v *Verifier) VerifyDecoy(plain string) {
	_ = bcrypt.CompareHashAndPassword(v.decoy, []byte(plain))
}

// NeedsRehash は storedHash のコストが現在の設定と異なるかを返します。
// ダミーハッシュは現在のコストで作られるため、古いコストのハッシュを残すと
// 存在しないユーザーとの照合時間に差が出ます。
func (v *Verifier) NeedsRehash(storedHash string) bool {
	cost, err := bcrypt.Cost([]byte(storedHash))
	if err != nil {
		return false
	}
	return cost != v.cost
}
