// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 캐시 통계 수집기를 구현합니다.
package core

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// StatsTracker: 원자적 통계 수집
// =============================================================================
// 모든 카운터는 atomic으로 갱신되어 핫 패스에서 락을 잡지 않습니다.
// 퇴거(용량)와 만료(TTL)는 별도 카운터입니다. 혼동하면 용량 문제와
// TTL 문제를 구분할 수 없습니다.
//
// 엔드포인트별 집계는 TTL 예측과 전략 최적화의 입력입니다.
// =============================================================================

// StatsTracker는 캐시 전역 및 엔드포인트별 통계를 수집합니다.
type StatsTracker struct {
	hits        uint64 // atomic
	misses      uint64 // atomic
	sets        uint64 // atomic
	evictions   uint64 // atomic
	expirations uint64 // atomic
	lastReset   int64  // atomic, unix nano

	mu        sync.RWMutex
	endpoints map[string]*EndpointStats
}

// EndpointStats는 엔드포인트별 누적 통계입니다.
type EndpointStats struct {
	Endpoint string `json:"endpoint"`

	// Hits/Misses는 이 엔드포인트의 적중/미스 횟수입니다.
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`

	// Sets는 쓰기 횟수입니다.
	Sets uint64 `json:"sets"`

	// TotalBytes는 저장된 페이로드의 누적 크기입니다.
	TotalBytes int64 `json:"total_bytes"`

	// AvgTTLSeconds는 쓰기 TTL의 이동 평균입니다.
	AvgTTLSeconds float64 `json:"avg_ttl_seconds"`

	// AvgSizeBytes는 페이로드 크기의 이동 평균입니다.
	AvgSizeBytes float64 `json:"avg_size_bytes"`

	// AvgLatencyMillis는 조회 지연의 이동 평균입니다.
	AvgLatencyMillis float64 `json:"avg_latency_ms"`

	// LastAccess는 마지막 조회 시간입니다.
	LastAccess time.Time `json:"last_access"`
}

// TotalRequests는 적중+미스 합계를 반환합니다.
func (s *EndpointStats) TotalRequests() uint64 {
	return s.Hits + s.Misses
}

// HitRate는 이 엔드포인트의 적중률을 반환합니다. 요청이 없으면 0입니다.
func (s *EndpointStats) HitRate() float64 {
	total := s.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewStatsTracker는 새로운 통계 수집기를 생성합니다.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		lastReset: time.Now().UnixNano(),
		endpoints: make(map[string]*EndpointStats),
	}
}

// =============================================================================
// 카운터 갱신
// =============================================================================

// RecordHit은 적중을 기록합니다.
func (t *StatsTracker) RecordHit(endpoint string, latency time.Duration) {
	atomic.AddUint64(&t.hits, 1)
	t.withEndpoint(endpoint, func(es *EndpointStats) {
		es.Hits++
		es.LastAccess = time.Now()
		es.AvgLatencyMillis = movingAvg(es.AvgLatencyMillis, float64(latency.Milliseconds()))
	})
}

// RecordMiss는 미스를 기록합니다.
func (t *StatsTracker) RecordMiss(endpoint string) {
	atomic.AddUint64(&t.misses, 1)
	t.withEndpoint(endpoint, func(es *EndpointStats) {
		es.Misses++
		es.LastAccess = time.Now()
	})
}

// ReclassifyHitAsMiss는 히트로 집계된 직전 조회를 미스로 재분류합니다.
// 조회 후 엔트리가 손상으로 판명된 경우 적중률이 부풀지 않게 합니다.
func (t *StatsTracker) ReclassifyHitAsMiss(endpoint string) {
	atomic.AddUint64(&t.hits, ^uint64(0))
	atomic.AddUint64(&t.misses, 1)
	t.withEndpoint(endpoint, func(es *EndpointStats) {
		if es.Hits > 0 {
			es.Hits--
		}
		es.Misses++
	})
}

// RecordSet은 쓰기를 기록합니다.
func (t *StatsTracker) RecordSet(endpoint string, sizeBytes int, ttl time.Duration) {
	atomic.AddUint64(&t.sets, 1)
	t.withEndpoint(endpoint, func(es *EndpointStats) {
		es.Sets++
		es.TotalBytes += int64(sizeBytes)
		es.AvgSizeBytes = movingAvg(es.AvgSizeBytes, float64(sizeBytes))
		es.AvgTTLSeconds = movingAvg(es.AvgTTLSeconds, ttl.Seconds())
	})
}

// RecordEviction은 용량 초과 퇴거를 기록합니다.
func (t *StatsTracker) RecordEviction() {
	atomic.AddUint64(&t.evictions, 1)
}

// RecordExpiration은 TTL 만료 제거를 기록합니다.
func (t *StatsTracker) RecordExpiration() {
	atomic.AddUint64(&t.expirations, 1)
}

// movingAvg는 기존 평균에 새 값을 1/10 가중치로 반영합니다.
func movingAvg(avg, value float64) float64 {
	if avg == 0 {
		return value
	}
	return (avg*9 + value) / 10
}

// withEndpoint는 엔드포인트 집계를 잠금 하에 갱신합니다.
func (t *StatsTracker) withEndpoint(endpoint string, fn func(*EndpointStats)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	es, ok := t.endpoints[endpoint]
	if !ok {
		es = &EndpointStats{Endpoint: endpoint}
		t.endpoints[endpoint] = es
	}
	fn(es)
}

// =============================================================================
// 조회
// =============================================================================

// Snapshot은 전역 카운터의 일관된 복사본입니다.
type Snapshot struct {
	Hits        uint64    `json:"hits"`
	Misses      uint64    `json:"misses"`
	Sets        uint64    `json:"sets"`
	Evictions   uint64    `json:"evictions"`
	Expirations uint64    `json:"expirations"`
	HitRate     float64   `json:"hit_rate"`
	LastReset   time.Time `json:"last_reset"`
}

// Snapshot은 현재 전역 통계를 반환합니다.
func (t *StatsTracker) Snapshot() Snapshot {
	hits := atomic.LoadUint64(&t.hits)
	misses := atomic.LoadUint64(&t.misses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Snapshot{
		Hits:        hits,
		Misses:      misses,
		Sets:        atomic.LoadUint64(&t.sets),
		Evictions:   atomic.LoadUint64(&t.evictions),
		Expirations: atomic.LoadUint64(&t.expirations),
		HitRate:     hitRate,
		LastReset:   time.Unix(0, atomic.LoadInt64(&t.lastReset)),
	}
}

// GetEndpointStats는 엔드포인트 집계의 복사본을 반환합니다.
// 기록이 없으면 (nil, false)입니다.
func (t *StatsTracker) GetEndpointStats(endpoint string) (*EndpointStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	es, ok := t.endpoints[endpoint]
	if !ok {
		return nil, false
	}
	cp := *es
	return &cp, true
}

// Endpoints는 기록된 모든 엔드포인트 이름을 반환합니다.
func (t *StatsTracker) Endpoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.endpoints))
	for name := range t.endpoints {
		names = append(names, name)
	}
	return names
}

// Reset은 모든 카운터를 0으로 초기화하고 리셋 시각을 기록합니다.
func (t *StatsTracker) Reset() {
	atomic.StoreUint64(&t.hits, 0)
	atomic.StoreUint64(&t.misses, 0)
	atomic.StoreUint64(&t.sets, 0)
	atomic.StoreUint64(&t.evictions, 0)
	atomic.StoreUint64(&t.expirations, 0)
	atomic.StoreInt64(&t.lastReset, time.Now().UnixNano())

	t.mu.Lock()
	t.endpoints = make(map[string]*EndpointStats)
	t.mu.Unlock()
}

// =============================================================================
// Prometheus 텍스트 포맷 노출
// =============================================================================

// PrometheusFormat은 통계를 Prometheus 텍스트 포맷으로 변환합니다.
func (t *StatsTracker) PrometheusFormat() string {
	s := t.Snapshot()

	return fmt.Sprintf(`# HELP rescache_hits_total Total number of cache hits
# TYPE rescache_hits_total counter
rescache_hits_total %d
# HELP rescache_misses_total Total number of cache misses
# TYPE rescache_misses_total counter
rescache_misses_total %d
# HELP rescache_sets_total Total number of cache writes
# TYPE rescache_sets_total counter
rescache_sets_total %d
# HELP rescache_evictions_total Entries evicted for capacity
# TYPE rescache_evictions_total counter
rescache_evictions_total %d
# HELP rescache_expirations_total Entries removed after TTL expiry
# TYPE rescache_expirations_total counter
rescache_expirations_total %d
# HELP rescache_hit_rate Cache hit rate since last reset
# TYPE rescache_hit_rate gauge
rescache_hit_rate %f
`, s.Hits, s.Misses, s.Sets, s.Evictions, s.Expirations, s.HitRate)
}

// ServeHTTP는 http.Handler를 구현합니다. /metrics 경로에 연결합니다.
func (t *StatsTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, t.PrometheusFormat())
}
