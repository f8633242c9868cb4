package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "user:email:"
	sequenceKey    = "user:seq"
)

// RedisStore はユーザーを Redis に保存します。
// レコード本体は user:<id> に JSON で置き、メールアドレスの索引は SETNX で一意性を保証します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	id, err := s.rdb.Get(ctx, emailKey(NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup email index: %w", err)
	}

	data, err := s.rdb.Get(ctx, userKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &record, nil
}

// Create はユーザーを追加し、採番済みのレコードを返します。
func (s *RedisStore) Create(ctx context.Context, record *Record) (*Record, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	email := NormalizeEmail(record.Email)

	id, err := s.rdb.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate user id: %w", err)
	}

	// 先にメール索引を確保し、同時登録でも1件だけが成功するようにする
	claimed, err := s.rdb.SetNX(ctx, emailKey(email), id, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("claim email index: %w", err)
	}
	if !claimed {
		return nil, ErrEmailTaken
	}

	stored := *record
	stored.ID = id
	stored.Email = email
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		_ = s.rdb.Del(ctx, emailKey(email)).Err()
		return nil, err
	}
	if err := s.rdb.Set(ctx, userKey(id), payload, 0).Err(); err != nil {
		_ = s.rdb.Del(ctx, emailKey(email)).Err()
		return nil, fmt.Errorf("save user %d: %w", id, err)
	}
	return &stored, nil
}

// UpdatePasswordHash は既存ユーザーのパスワードハッシュを置き換えます。
func (s *RedisStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("load user %d: %w", id, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decode user %d: %w", id, err)
	}
	record.PasswordHash = hash

	payload, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, userKey(id), payload, 0).Err(); err != nil {
		return fmt.Errorf("save user %d: %w", id, err)
	}
	return nil
}

func userKey(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}
