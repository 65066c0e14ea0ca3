package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// mockAdapter: 테스트용 인메모리 어댑터
// =============================================================================

type mockAdapter struct {
	mu      sync.Mutex
	entries map[string]*Entry

	// fail이 true이면 모든 연산이 실패합니다.
	fail bool
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{entries: make(map[string]*Entry)}
}

func (m *mockAdapter) Name() string      { return "mock" }
func (m *mockAdapter) Type() AdapterType { return AdapterTypeMemory }

func (m *mockAdapter) Connect(ctx context.Context) error    { return nil }
func (m *mockAdapter) Disconnect(ctx context.Context) error { return nil }

func (m *mockAdapter) Ping(ctx context.Context) error {
	if m.fail {
		return errors.New("mock failure")
	}
	return nil
}

func (m *mockAdapter) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mock failure")
	}
	return m.entries[key], nil
}

func (m *mockAdapter) Set(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mock failure")
	}
	m.entries[entry.Key] = entry
	return nil
}

func (m *mockAdapter) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("mock failure")
	}
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *mockAdapter) Has(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("mock failure")
	}
	_, ok := m.entries[key]
	return ok, nil
}

func (m *mockAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mock failure")
	}
	var keys []string
	for key := range m.entries {
		if MatchSimplePattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *mockAdapter) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

func (m *mockAdapter) Size(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("mock failure")
	}
	return int64(len(m.entries)), nil
}

// EvictVictim은 AccessedAt이 가장 오래된 엔트리를 제거합니다. (LRU)
func (m *mockAdapter) EvictVictim(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victim *Entry
	var victimAt time.Time
	for _, entry := range m.entries {
		at, _ := entry.AccessInfo()
		if victim == nil || at.Before(victimAt) {
			victim, victimAt = entry, at
		}
	}
	if victim == nil {
		return "", false, nil
	}
	delete(m.entries, victim.Key)
	return victim.Key, true, nil
}

// cloneMockAdapter는 Get마다 복사본을 반환합니다.
// 직렬화를 거치는 백엔드(redis/sqlite/postgres)와 같은 동작입니다.
type cloneMockAdapter struct {
	*mockAdapter
}

func (m *cloneMockAdapter) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := m.mockAdapter.Get(ctx, key)
	if entry == nil || err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// testClock은 수동으로 진행시키는 시간 소스입니다.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// Store 테스트
// =============================================================================

func newTestStore(adapter Adapter, cfg *Config) (*Store, *testClock) {
	store := NewStore(adapter, cfg, nil)
	clock := newTestClock()
	store.SetNowFunc(clock.Now)
	return store, clock
}

func testEntry(key, endpoint string, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Key:        key,
		Endpoint:   endpoint,
		Payload:    []byte("payload"),
		CreatedAt:  now,
		AccessedAt: now,
		TTLSeconds: int(ttl / time.Second),
		SizeBytes:  7,
	}
}

func TestStore_없는키는미스(t *testing.T) {
	store, _ := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	entry, err := store.Get(ctx, "cache:/a:none")
	if err != nil {
		t.Fatalf("없는 키 조회가 에러를 반환함: %v", err)
	}
	if entry != nil {
		t.Error("없는 키가 엔트리를 반환함")
	}

	if got := store.Stats().Snapshot().Misses; got != 1 {
		t.Errorf("미스 카운터가 다름: got %d, want 1", got)
	}
}

func TestStore_저장후조회(t *testing.T) {
	store, clock := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	entry := testEntry("cache:/a:k1", "/a", 120*time.Second, clock.Now())
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("저장 실패: %v", err)
	}

	got, err := store.Get(ctx, "cache:/a:k1")
	if err != nil {
		t.Fatalf("조회 실패: %v", err)
	}
	if got == nil {
		t.Fatal("저장한 엔트리를 찾지 못함")
	}
	if got.AccessCount != 1 {
		t.Errorf("Touch가 적용되지 않음: AccessCount=%d", got.AccessCount)
	}

	snap := store.Stats().Snapshot()
	if snap.Hits != 1 || snap.Sets != 1 {
		t.Errorf("카운터가 다름: hits=%d sets=%d", snap.Hits, snap.Sets)
	}
}

func TestStore_lazy만료(t *testing.T) {
	store, clock := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	entry := testEntry("cache:/a:k1", "/a", 120*time.Second, clock.Now())
	store.Set(ctx, entry)

	// TTL 경과 후 조회는 미스이고 엔트리는 제거됩니다.
	clock.Advance(121 * time.Second)

	got, err := store.Get(ctx, "cache:/a:k1")
	if err != nil {
		t.Fatalf("만료 조회가 에러를 반환함: %v", err)
	}
	if got != nil {
		t.Error("만료된 엔트리가 반환됨")
	}

	snap := store.Stats().Snapshot()
	if snap.Expirations != 1 {
		t.Errorf("만료 카운터가 다름: got %d, want 1", snap.Expirations)
	}
	if snap.Evictions != 0 {
		t.Error("만료가 퇴거로 집계됨")
	}

	// 제거 확인: 두 번째 조회도 미스이지만 만료는 다시 세지 않습니다.
	store.Get(ctx, "cache:/a:k1")
	if got := store.Stats().Snapshot().Expirations; got != 1 {
		t.Errorf("만료가 중복 집계됨: %d", got)
	}
}

func TestStore_기본TTL적용(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = 300 * time.Second
	store, clock := newTestStore(newMockAdapter(), cfg)
	ctx := context.Background()

	entry := testEntry("cache:/a:k1", "/a", 0, clock.Now())
	store.Set(ctx, entry)

	if entry.TTLSeconds != 300 {
		t.Errorf("기본 TTL이 적용되지 않음: %d", entry.TTLSeconds)
	}
}

func TestStore_용량초과퇴거(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 2
	adapter := newMockAdapter()
	store, clock := newTestStore(adapter, cfg)
	ctx := context.Background()

	base := clock.Now()
	for i := 0; i < 3; i++ {
		entry := testEntry(fmt.Sprintf("cache:/a:k%d", i), "/a", time.Hour, base.Add(time.Duration(i)*time.Second))
		if err := store.Set(ctx, entry); err != nil {
			t.Fatalf("저장 실패: %v", err)
		}
	}

	size, _ := adapter.Size(ctx)
	if size != 2 {
		t.Errorf("퇴거 후 크기가 다름: got %d, want 2", size)
	}

	// 가장 오래 접근되지 않은 k0가 희생자여야 합니다.
	if has, _ := adapter.Has(ctx, "cache:/a:k0"); has {
		t.Error("LRU 희생자가 퇴거되지 않음")
	}

	snap := store.Stats().Snapshot()
	if snap.Evictions != 1 {
		t.Errorf("퇴거 카운터가 다름: got %d, want 1", snap.Evictions)
	}
	if snap.Expirations != 0 {
		t.Error("퇴거가 만료로 집계됨")
	}
}

func TestStore_복사반환어댑터접근기록(t *testing.T) {
	adapter := &cloneMockAdapter{newMockAdapter()}
	store, clock := newTestStore(adapter, nil)
	ctx := context.Background()

	created := clock.Now()
	store.Set(ctx, testEntry("cache:/a:k1", "/a", time.Hour, created))

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		got, err := store.Get(ctx, "cache:/a:k1")
		if err != nil || got == nil {
			t.Fatalf("조회 실패: got=%v err=%v", got, err)
		}
	}

	// 백엔드에 저장된 엔트리에도 접근 기록이 반영되어야 합니다.
	// 반영되지 않으면 accessed_at 기준 희생자 선택이 항상 조회 중인
	// 엔트리를 고르게 됩니다.
	stored, _ := adapter.mockAdapter.Get(ctx, "cache:/a:k1")
	if stored == nil {
		t.Fatal("백엔드에 엔트리가 없음")
	}
	storedAt, storedCount := stored.AccessInfo()
	if storedCount != 3 {
		t.Errorf("저장된 AccessCount가 다름: got %d, want 3", storedCount)
	}
	if !storedAt.After(created) {
		t.Error("저장된 AccessedAt이 갱신되지 않음")
	}
}

func TestStore_동일키동시쓰기(t *testing.T) {
	store, clock := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	const writers = 32
	now := clock.Now()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(id)}, 256)
			entry := &Entry{
				Key:        "cache:/a:contended",
				Endpoint:   "/a",
				Payload:    payload,
				CreatedAt:  now,
				AccessedAt: now,
				TTLSeconds: 3600,
				SizeBytes:  len(payload),
				Metadata:   map[string]string{"writer": strconv.Itoa(id)},
			}
			if err := store.Set(ctx, entry); err != nil {
				t.Errorf("동시 쓰기 실패: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// 살아남는 값은 정확히 한 작성자의 온전한 엔트리여야 합니다.
	got, err := store.Get(ctx, "cache:/a:contended")
	if err != nil || got == nil {
		t.Fatalf("조회 실패: got=%v err=%v", got, err)
	}
	id, err := strconv.Atoi(got.Metadata["writer"])
	if err != nil || id < 0 || id >= writers {
		t.Fatalf("작성자 메타데이터가 손상됨: %q", got.Metadata["writer"])
	}
	if want := bytes.Repeat([]byte{byte(id)}, 256); !bytes.Equal(got.Payload, want) {
		t.Error("페이로드가 작성자 메타데이터와 일치하지 않음")
	}

	if sets := store.Stats().Snapshot().Sets; sets != writers {
		t.Errorf("쓰기 카운터가 다름: got %d, want %d", sets, writers)
	}
	if size, _ := store.Size(ctx); size != 1 {
		t.Errorf("엔트리 수가 다름: got %d, want 1", size)
	}
}

func TestStore_삭제멱등(t *testing.T) {
	store, clock := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	store.Set(ctx, testEntry("cache:/a:k1", "/a", time.Hour, clock.Now()))

	deleted, err := store.Delete(ctx, "cache:/a:k1")
	if err != nil || !deleted {
		t.Fatalf("삭제 실패: deleted=%v err=%v", deleted, err)
	}

	deleted, err = store.Delete(ctx, "cache:/a:k1")
	if err != nil {
		t.Fatalf("반복 삭제가 에러를 반환함: %v", err)
	}
	if deleted {
		t.Error("없는 키 삭제가 true를 반환함")
	}
}

func TestStore_MarkStale(t *testing.T) {
	store, clock := newTestStore(newMockAdapter(), nil)
	ctx := context.Background()

	store.Set(ctx, testEntry("cache:/a:k1", "/a", time.Hour, clock.Now()))

	marked, err := store.MarkStale(ctx, "cache:/a:k1")
	if err != nil || !marked {
		t.Fatalf("stale 표시 실패: marked=%v err=%v", marked, err)
	}

	// stale 엔트리는 TTL이 남아있어도 미스로 처리됩니다.
	got, _ := store.Get(ctx, "cache:/a:k1")
	if got != nil {
		t.Error("stale 엔트리가 반환됨")
	}

	// 없는 키는 멱등하게 무시됩니다.
	marked, err = store.MarkStale(ctx, "cache:/a:none")
	if err != nil || marked {
		t.Errorf("없는 키 stale 표시: marked=%v err=%v", marked, err)
	}
}

func TestStore_서킷브레이커(t *testing.T) {
	adapter := newMockAdapter()
	adapter.fail = true
	store, _ := newTestStore(adapter, nil)
	ctx := context.Background()

	// 연속 실패로 브레이커가 열립니다. (기본 임계값 5)
	for i := 0; i < 5; i++ {
		store.Get(ctx, "cache:/a:k1")
	}

	if state := store.Breaker().State(); state != StateOpen {
		t.Fatalf("브레이커가 열리지 않음: %v", state)
	}

	_, err := store.Get(ctx, "cache:/a:k1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("차단 상태의 에러가 다름: %v", err)
	}
}
