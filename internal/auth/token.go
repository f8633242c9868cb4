package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Identity はトークンに埋め込まれる利用者の識別情報です。
type Identity struct {
	SubjectID int64  `json:"id"`
	Email     string `json:"email"`
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec は HS256 署名付きトークンの発行と検証を行います。
// 秘密鍵は生成時に一度だけ受け取り、リクエストごとに読み直すことはありません。
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
	logger *zap.Logger
}

// TokenOption は TokenCodec の生成オプションです。
type TokenOption func(*TokenCodec)

// WithIssuer は iss クレームを設定し、検証時にも一致を要求します。
func WithIssuer(issuer string) TokenOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// WithLogger は検証失敗の理由を出力するロガーを設定します。
func WithLogger(logger *zap.Logger) TokenOption {
	return func(c *TokenCodec) {
		c.logger = logger
	}
}

// NewTokenCodec は TokenCodec を作成します。secret が空なら ErrConfiguration を返します。
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is empty", ErrConfiguration)
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue は identity を埋め込んだトークンを ttl の有効期間で発行します。
func (c *TokenCodec) Issue(identity Identity, ttl time.Duration) (string, error) {
	now := c.now()
	claims := tokenClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.SubjectID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify は署名と有効期限を検証し、埋め込まれた Identity を返します。
// 失敗理由にかかわらず呼び出し側には ErrInvalidToken だけを返します。
func (c *TokenCodec) Verify(token string) (Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		c.logger.Debug("token rejected", zap.String("reason", rejectReason(err)))
		return Identity{}, ErrInvalidToken
	}
	if !parsed.Valid {
		c.logger.Debug("token rejected", zap.String("reason", "invalid"))
		return Identity{}, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		c.logger.Debug("token rejected", zap.String("reason", "subject"))
		return Identity{}, ErrInvalidToken
	}
	return Identity{SubjectID: id, Email: claims.Email}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "claims"
	}
}
