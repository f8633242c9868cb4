// Package ratelimit はクライアント単位の固定ウィンドウ型レート制限を提供します。
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const (
	defaultShards        = 32
	defaultSweepInterval = time.Minute
)

// Config はレート制限の設定です。
type Config struct {
	Limit         int           // ウィンドウあたりの許容回数
	Window        time.Duration // ウィンドウ長
	Shards        int           // ロックを分割する数（0 なら既定値）
	SweepInterval time.Duration // 期限切れバケットの掃除間隔（0 なら既定値）
}

// Decision は Attempt の判定結果です。
type Decision struct {
	Allowed bool
	// RetryAfter はウィンドウがリセットされるまでの残り時間です。拒否時のみ設定されます。
	RetryAfter time.Duration
}

type bucket struct {
	windowStart time.Time
	count       int
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter はキーごとの試行回数をウィンドウ内で数えます。
// バケット表はシャードごとのロックで保護され、同一キーの判定は直列化されます。
type Limiter struct {
	cfg    Config
	shards []*shard
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option は Limiter の生成オプションです。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New は Limiter を作成します。
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	l := &Limiter{
		cfg:    cfg,
		shards: make([]*shard, cfg.Shards),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit はウィンドウあたりの許容回数を返します。
func (l *Limiter) Limit() int {
	return l.cfg.Limit
}

// Window はウィンドウ長を返します。
func (l *Limiter) Window() time.Duration {
	return l.cfg.Window
}

// Attempt はキーの試行を1回記録し、許可するかどうかを返します。
func (l *Limiter) Attempt(key string) Decision {
	s := l.shardFor(key)
	now := l.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || l.expired(b, now) {
		s.buckets[key] = &bucket{windowStart: now, count: 1}
		return Decision{Allowed: true}
	}

	// 上限超過後はウィンドウが切れるまでカウントを進めない
	if b.count <= l.cfg.Limit {
		b.count++
	}
	if b.count > l.cfg.Limit {
		return l.reject(b, now)
	}
	return Decision{Allowed: true}
}

// Sweep はウィンドウが終了したバケットを削除し、削除した件数を返します。
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if l.expired(b, now) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len は保持しているバケット数を返します。
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

// Run は ctx がキャンセルされるか Close が呼ばれるまで定期的に Sweep を実行します。
// onSweep が nil でなければ掃除のたびに削除件数を渡します。
func (l *Limiter) Run(ctx context.Context, onSweep func(removed int)) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			removed := l.Sweep()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// Close は Run の掃除ループを停止します。複数回呼んでも安全です。
func (l *Limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

func (l *Limiter) reject(b *bucket, now time.Time) Decision {
	retry := b.windowStart.Add(l.cfg.Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}
}

func (l *Limiter) expired(b *bucket, now time.Time) bool {
	return !now.Before(b.windowStart.Add(l.cfg.Window))
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}
