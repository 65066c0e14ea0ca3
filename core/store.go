// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 만료형 키-값 저장 계층을 구현합니다.
package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// Store: lazy 만료 키-값 저장소
// =============================================================================
// 어댑터 위에서 만료/퇴거/통계를 책임지는 계층입니다.
//
// - 만료는 lazy: 죽은 엔트리는 Get 시점에 제거되고 만료로 집계됩니다.
//   백그라운드 청소는 없습니다.
// - 쓰기는 키 단위로 배제됩니다. 같은 키의 동시 쓰기는 직렬화되고
//   서로 다른 키는 병렬로 진행됩니다.
// - 용량 초과 시 어댑터의 전략(VictimSelector)으로 퇴거합니다.
//   퇴거와 만료는 별도 카운터입니다.
// - 서킷 브레이커가 열리면 모든 연산이 ErrStoreUnavailable을 반환합니다.
//   상위 엔진이 이를 degraded 모드로 변환합니다.
// =============================================================================

// Store는 만료를 관리하는 키-값 저장 계층입니다.
type Store struct {
	adapter Adapter
	cfg     *Config
	stats   *StatsTracker
	locks   *KeyLockTable
	breaker *CircuitBreaker

	// nowFunc는 테스트에서 시간을 주입하기 위한 훅입니다.
	nowFunc func() time.Time
}

// NewStore는 새로운 저장 계층을 생성합니다.
func NewStore(adapter Adapter, cfg *Config, stats *StatsTracker) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if stats == nil {
		stats = NewStatsTracker()
	}

	return &Store{
		adapter: adapter,
		cfg:     cfg,
		stats:   stats,
		locks:   NewKeyLockTable(),
		breaker: NewCircuitBreaker(nil),
		nowFunc: time.Now,
	}
}

// SetNowFunc는 시간 소스를 교체합니다. 테스트 전용입니다.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
}

// Breaker는 내부 서킷 브레이커를 반환합니다.
func (s *Store) Breaker() *CircuitBreaker {
	return s.breaker
}

// Adapter는 하위 어댑터를 반환합니다.
func (s *Store) Adapter() Adapter {
	return s.adapter
}

// Stats는 통계 수집기를 반환합니다.
func (s *Store) Stats() *StatsTracker {
	return s.stats
}

// =============================================================================
// 조회
// =============================================================================

// Get은 키로 살아있는 엔트리를 조회합니다.
//
// Returns:
//   - *Entry: 살아있는 엔트리. 없거나 만료되었으면 nil
//   - error: 백엔드 장애 시 ErrStoreUnavailable
//
// 없는 키는 에러가 아니라 (nil, nil)입니다. 만료된 엔트리는 제거된 뒤
// 미스+만료로 집계됩니다.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	if !s.breaker.Allow() {
		return nil, ErrStoreUnavailable
	}

	start := s.nowFunc()

	entry, err := s.adapter.Get(ctx, key)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("store get %q: %w", key, err)
	}
	s.breaker.RecordSuccess()

	endpoint := endpointOf(entry, key)

	if entry == nil {
		s.stats.RecordMiss(endpoint)
		return nil, nil
	}

	now := s.nowFunc()
	if !entry.IsLiveAt(now) {
		s.removeDead(ctx, key, now)
		s.stats.RecordMiss(endpoint)
		s.stats.RecordExpiration()
		return nil, nil
	}

	entry.Touch(now)
	s.persistTouch(ctx, key, entry, now)
	s.stats.RecordHit(endpoint, s.nowFunc().Sub(start))
	return entry, nil
}

// persistTouch는 갱신된 접근 메타데이터를 백엔드에 반영합니다.
// 반영 실패는 조회를 실패시키지 않습니다.
func (s *Store) persistTouch(ctx context.Context, key string, entry *Entry, now time.Time) {
	if t, ok := s.adapter.(Toucher); ok {
		t.Touch(ctx, key, now)
		return
	}

	// Toucher 미구현 어댑터는 엔트리를 다시 씁니다. 락 획득 후 같은
	// 세대의 엔트리인지 재확인해 경쟁하는 쓰기/삭제를 되살리지 않습니다.
	unlock := s.locks.Lock(key)
	defer unlock()

	current, err := s.adapter.Get(ctx, key)
	if err != nil || current == nil || !current.CreatedAt.Equal(entry.CreatedAt) {
		return
	}
	s.adapter.Set(ctx, entry)
}

// removeDead는 죽은 엔트리를 키 락 하에 제거합니다.
// 락 획득 후 재확인해 경쟁하는 새 쓰기를 지우지 않습니다.
func (s *Store) removeDead(ctx context.Context, key string, now time.Time) {
	unlock := s.locks.Lock(key)
	defer unlock()

	current, err := s.adapter.Get(ctx, key)
	if err != nil || current == nil {
		return
	}
	if current.IsLiveAt(now) {
		// 락 대기 중에 새 엔트리가 쓰였습니다.
		return
	}
	s.adapter.Delete(ctx, key)
}

// =============================================================================
// 쓰기
// =============================================================================

// Set은 엔트리를 저장합니다. TTL이 0이면 DefaultTTL을 적용합니다.
func (s *Store) Set(ctx context.Context, entry *Entry) error {
	if !s.breaker.Allow() {
		return ErrStoreUnavailable
	}

	if entry.TTLSeconds <= 0 {
		entry.TTLSeconds = int(s.cfg.DefaultTTL / time.Second)
	}

	unlock := s.locks.Lock(entry.Key)
	err := s.adapter.Set(ctx, entry)
	unlock()

	if err != nil {
		s.breaker.RecordFailure()
		return fmt.Errorf("store set %q: %w", entry.Key, err)
	}
	s.breaker.RecordSuccess()

	s.stats.RecordSet(entry.Endpoint, entry.SizeBytes, time.Duration(entry.TTLSeconds)*time.Second)

	s.evictForCapacity(ctx)
	return nil
}

// evictForCapacity는 MaxSize 초과분을 전략에 따라 퇴거합니다.
func (s *Store) evictForCapacity(ctx context.Context) {
	if s.cfg.MaxSize <= 0 {
		return
	}

	vs, ok := s.adapter.(VictimSelector)
	if !ok {
		return
	}

	for {
		size, err := s.adapter.Size(ctx)
		if err != nil || size <= s.cfg.MaxSize {
			return
		}

		_, evicted, err := vs.EvictVictim(ctx)
		if err != nil || !evicted {
			return
		}
		s.stats.RecordEviction()
	}
}

// =============================================================================
// 삭제 / 무효화
// =============================================================================

// Delete는 키를 제거합니다. 없는 키 삭제는 성공(멱등)입니다.
//
// Returns:
//   - bool: 실제로 삭제되었는지 여부
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if !s.breaker.Allow() {
		return false, ErrStoreUnavailable
	}

	unlock := s.locks.Lock(key)
	deleted, err := s.adapter.Delete(ctx, key)
	unlock()

	if err != nil {
		s.breaker.RecordFailure()
		return false, fmt.Errorf("store delete %q: %w", key, err)
	}
	s.breaker.RecordSuccess()
	return deleted, nil
}

// MarkStale은 엔트리를 stale로 표시합니다. 다음 조회에서 만료로
// 처리됩니다. 없는 키는 무시합니다(멱등).
func (s *Store) MarkStale(ctx context.Context, key string) (bool, error) {
	if !s.breaker.Allow() {
		return false, ErrStoreUnavailable
	}

	if sm, ok := s.adapter.(StaleMarker); ok {
		marked, err := sm.MarkStale(ctx, key)
		if err != nil {
			s.breaker.RecordFailure()
			return false, fmt.Errorf("store mark stale %q: %w", key, err)
		}
		s.breaker.RecordSuccess()
		return marked, nil
	}

	// 어댑터가 지원하지 않으면 읽고 표시해서 다시 씁니다.
	unlock := s.locks.Lock(key)
	defer unlock()

	entry, err := s.adapter.Get(ctx, key)
	if err != nil {
		s.breaker.RecordFailure()
		return false, fmt.Errorf("store mark stale %q: %w", key, err)
	}
	if entry == nil {
		return false, nil
	}

	entry.MarkStale()
	if err := s.adapter.Set(ctx, entry); err != nil {
		s.breaker.RecordFailure()
		return false, fmt.Errorf("store mark stale %q: %w", key, err)
	}
	s.breaker.RecordSuccess()
	return true, nil
}

// Keys는 패턴과 일치하는 키 목록을 반환합니다.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if !s.breaker.Allow() {
		return nil, ErrStoreUnavailable
	}

	keys, err := s.adapter.Keys(ctx, pattern)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("store keys %q: %w", pattern, err)
	}
	s.breaker.RecordSuccess()
	return keys, nil
}

// Size는 저장된 엔트리 수를 반환합니다.
func (s *Store) Size(ctx context.Context) (int64, error) {
	if !s.breaker.Allow() {
		return 0, ErrStoreUnavailable
	}

	size, err := s.adapter.Size(ctx)
	if err != nil {
		s.breaker.RecordFailure()
		return 0, err
	}
	s.breaker.RecordSuccess()
	return size, nil
}

// endpointOf는 엔트리 또는 키에서 엔드포인트를 찾습니다.
func endpointOf(entry *Entry, key string) string {
	if entry != nil && entry.Endpoint != "" {
		return entry.Endpoint
	}
	if ep, ok := EndpointFromKey(key); ok {
		return ep
	}
	return "unknown"
}
