package users

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore はプロセス内にユーザーを保持します。開発・テスト用です。
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byEmail map[string]*Record
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]*Record)}
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// Create はユーザーを追加し、採番済みのレコードを返します。
func (s *MemoryStore) Create(ctx context.Context, record *Record) (*Record, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	email := NormalizeEmail(record.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}
	s.nextID++
	stored := *record
	stored.ID = s.nextID
	stored.Email = email
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.byEmail[email] = &stored

	created := stored
	return &created, nil
}

// UpdatePasswordHash は既存ユーザーのパスワードハッシュを置き換えます。
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.byEmail {
		if record.ID == id {
			record.PasswordHash = hash
			return nil
		}
	}
	return ErrNotFound
}
