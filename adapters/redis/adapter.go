// Package redis는 Redis 백엔드 어댑터를 구현합니다.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bridgify/rescache/core"
)

// =============================================================================
// Redis Adapter
// =============================================================================
// 엔트리를 JSON 봉투로 저장하고 Redis 네이티브 TTL을 함께 겁니다.
// 코어의 lazy 만료와 별개로 Redis가 만료 키를 스스로 치우므로
// 죽은 엔트리가 메모리에 쌓이지 않습니다.
// =============================================================================

// Config는 Redis 어댑터 설정입니다.
type Config struct {
	// Name은 어댑터 인스턴스 이름입니다.
	Name string

	// Addr은 Redis 주소입니다. (host:port)
	Addr string

	// Password는 인증 비밀번호입니다.
	Password string

	// DB는 데이터베이스 번호입니다.
	DB int

	// KeyPrefix는 모든 키 앞에 붙는 네임스페이스입니다.
	KeyPrefix string

	// PoolSize는 커넥션 풀 크기입니다.
	PoolSize int

	// DialTimeout / ReadTimeout / WriteTimeout은 각 단계의 타임아웃입니다.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "rescache:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Adapter는 Redis 어댑터입니다.
type Adapter struct {
	config    *Config
	client    *redis.Client
	connected atomic.Bool
	startedAt time.Time
}

// New는 새로운 Redis 어댑터를 생성합니다.
func New(config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Adapter{config: config}
}

func (a *Adapter) Name() string           { return a.config.Name }
func (a *Adapter) Type() core.AdapterType { return core.AdapterTypeRedis }

// prefixed는 네임스페이스가 붙은 Redis 키를 반환합니다.
func (a *Adapter) prefixed(key string) string {
	return a.config.KeyPrefix + key
}

// Connect는 Redis에 연결하고 Ping으로 확인합니다.
func (a *Adapter) Connect(ctx context.Context) error {
	a.client = redis.NewClient(&redis.Options{
		Addr:         a.config.Addr,
		Password:     a.config.Password,
		DB:           a.config.DB,
		PoolSize:     a.config.PoolSize,
		DialTimeout:  a.config.DialTimeout,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
	})

	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}

	a.connected.Store(true)
	a.startedAt = time.Now()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected.Store(false)
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("redis: not connected")
	}
	return a.client.Ping(ctx).Err()
}

// Get은 키로 엔트리를 조회합니다. 없으면 (nil, nil)입니다.
func (a *Adapter) Get(ctx context.Context, key string) (*core.Entry, error) {
	data, err := a.client.Get(ctx, a.prefixed(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry core.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis get: decode entry: %w", err)
	}
	return &entry, nil
}

// Set은 엔트리를 저장합니다. 남은 TTL을 Redis 만료로 함께 겁니다.
func (a *Adapter) Set(ctx context.Context, entry *core.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis set: encode entry: %w", err)
	}

	ttl := entry.RemainingTTL(time.Now())
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := a.client.Set(ctx, a.prefixed(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := a.client.Del(ctx, a.prefixed(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete: %w", err)
	}
	return deleted > 0, nil
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	count, err := a.client.Exists(ctx, a.prefixed(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis has: %w", err)
	}
	return count > 0, nil
}

// Keys는 패턴과 일치하는 키를 반환합니다. 접두사는 제거됩니다.
// SCAN을 사용해 블로킹 KEYS 명령을 피합니다.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string

	iter := a.client.Scan(ctx, 0, a.prefixed(pattern), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(a.config.KeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	return keys, nil
}

// Clear는 네임스페이스의 모든 키를 삭제합니다.
func (a *Adapter) Clear(ctx context.Context) error {
	keys, err := a.Keys(ctx, "*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = a.prefixed(key)
	}
	if err := a.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (a *Adapter) Size(ctx context.Context) (int64, error) {
	keys, err := a.Keys(ctx, "*")
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// Stats는 어댑터 통계를 반환합니다.
func (a *Adapter) Stats(ctx context.Context) (*core.AdapterStats, error) {
	count, err := a.Size(ctx)
	if err != nil {
		return nil, err
	}

	return &core.AdapterStats{
		Name:       a.config.Name,
		Type:       core.AdapterTypeRedis,
		Connected:  a.connected.Load(),
		EntryCount: count,
		Uptime:     time.Since(a.startedAt),
	}, nil
}
