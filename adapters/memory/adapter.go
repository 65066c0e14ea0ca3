// Package memory는 인메모리 백엔드 어댑터를 구현합니다.
// 샤드 맵 위에 전략(LRU/LFU) 기반 희생자 선택을 제공합니다.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgify/rescache/core"
)

// =============================================================================
// Memory Adapter: 샤드 인메모리 저장소
// =============================================================================
// 키를 FNV-1a 해시로 샤딩해 락 경합을 줄입니다.
// 희생자 선택(EvictVictim)은 전 샤드를 훑어 전략에 맞는 엔트리를
// 고릅니다. 퇴거는 용량 초과 시에만 일어나므로 핫 패스가 아닙니다.
// =============================================================================

const defaultShardCount = 64

// Config는 메모리 어댑터 설정입니다.
type Config struct {
	// Name은 어댑터 인스턴스 이름입니다.
	Name string

	// Shards는 샤드 수입니다. 2의 거듭제곱이어야 합니다. 기본 64.
	Shards int

	// Strategy는 희생자 선택 전략입니다.
	Strategy core.Strategy
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Name:     "memory",
		Shards:   defaultShardCount,
		Strategy: core.StrategyLRU,
	}
}

// shard는 락과 맵의 쌍입니다.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*core.Entry
}

// Adapter는 인메모리 어댑터입니다.
type Adapter struct {
	config    *Config
	shards    []*shard
	shardMask uint32
	connected atomic.Bool
	startedAt time.Time
}

// New는 새로운 메모리 어댑터를 생성합니다.
func New(config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Shards <= 0 || config.Shards&(config.Shards-1) != 0 {
		config.Shards = defaultShardCount
	}

	shards := make([]*shard, config.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*core.Entry)}
	}

	return &Adapter{
		config:    config,
		shards:    shards,
		shardMask: uint32(config.Shards - 1),
	}
}

// shardFor는 키의 FNV-1a 해시로 샤드를 고릅니다.
func (a *Adapter) shardFor(key string) *shard {
	hash := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= 16777619
	}
	return a.shards[hash&a.shardMask]
}

// =============================================================================
// Adapter 인터페이스 구현
// =============================================================================

func (a *Adapter) Name() string           { return a.config.Name }
func (a *Adapter) Type() core.AdapterType { return core.AdapterTypeMemory }

func (a *Adapter) Connect(ctx context.Context) error {
	a.connected.Store(true)
	a.startedAt = time.Now()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected.Store(false)
	return nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	return nil
}

func (a *Adapter) Get(ctx context.Context, key string) (*core.Entry, error) {
	s := a.shardFor(key)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return entry, nil
}

func (a *Adapter) Set(ctx context.Context, entry *core.Entry) error {
	s := a.shardFor(entry.Key)

	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	s := a.shardFor(key)

	s.mu.Lock()
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return ok, nil
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	s := a.shardFor(key)

	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	return ok, nil
}

func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	for _, s := range a.shards {
		s.mu.RLock()
		for key := range s.entries {
			if core.MatchSimplePattern(key, pattern) {
				keys = append(keys, key)
			}
		}
		s.mu.RUnlock()
	}
	return keys, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	for _, s := range a.shards {
		s.mu.Lock()
		s.entries = make(map[string]*core.Entry)
		s.mu.Unlock()
	}
	return nil
}

func (a *Adapter) Size(ctx context.Context) (int64, error) {
	var total int64
	for _, s := range a.shards {
		s.mu.RLock()
		total += int64(len(s.entries))
		s.mu.RUnlock()
	}
	return total, nil
}

// =============================================================================
// VictimSelector: 전략 기반 퇴거
// =============================================================================

// EvictVictim은 전략에 따라 엔트리 하나를 퇴거합니다.
// LRU는 가장 오래 접근되지 않은 엔트리, LFU는 접근 빈도가 가장 낮은
// 엔트리를 고릅니다. ARC는 LRU와 동일하게 동작합니다.
func (a *Adapter) EvictVictim(ctx context.Context) (string, bool, error) {
	var victim *core.Entry
	var victimAt time.Time
	var victimCount uint64

	for _, s := range a.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			// 진행 중인 Touch와 경쟁하므로 접근 기록은 잠금 하에 읽습니다.
			at, count := entry.AccessInfo()
			if victim == nil || a.worseThan(at, count, victimAt, victimCount) {
				victim, victimAt, victimCount = entry, at, count
			}
		}
		s.mu.RUnlock()
	}

	if victim == nil {
		return "", false, nil
	}

	deleted, _ := a.Delete(ctx, victim.Key)
	return victim.Key, deleted, nil
}

// worseThan은 candidate가 current보다 먼저 퇴거되어야 하는지 판단합니다.
func (a *Adapter) worseThan(candAt time.Time, candCount uint64, curAt time.Time, curCount uint64) bool {
	switch a.config.Strategy {
	case core.StrategyLFU:
		if candCount != curCount {
			return candCount < curCount
		}
		return candAt.Before(curAt)
	default:
		// LRU, ARC
		return candAt.Before(curAt)
	}
}

// =============================================================================
// Toucher
// =============================================================================

// Touch는 아무 것도 하지 않습니다. Get이 저장된 엔트리 포인터를 그대로
// 반환하므로 호출측의 Entry.Touch가 이미 저장소에 반영되어 있습니다.
func (a *Adapter) Touch(ctx context.Context, key string, accessedAt time.Time) error {
	return nil
}

// =============================================================================
// StaleMarker
// =============================================================================

// MarkStale은 엔트리를 제자리에서 stale로 표시합니다.
func (a *Adapter) MarkStale(ctx context.Context, key string) (bool, error) {
	s := a.shardFor(key)

	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	entry.MarkStale()
	return true, nil
}

// Stats는 어댑터 통계를 반환합니다.
func (a *Adapter) Stats(ctx context.Context) (*core.AdapterStats, error) {
	count, _ := a.Size(ctx)

	var bytes int64
	for _, s := range a.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			bytes += int64(entry.SizeBytes)
		}
		s.mu.RUnlock()
	}

	return &core.AdapterStats{
		Name:        a.config.Name,
		Type:        core.AdapterTypeMemory,
		Connected:   a.connected.Load(),
		EntryCount:  count,
		BytesStored: bytes,
		Uptime:      time.Since(a.startedAt),
	}, nil
}
