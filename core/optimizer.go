// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 엔드포인트별 캐시 전략 최적화기를 구현합니다.
package core

import (
	"sync"
	"time"
)

// =============================================================================
// StrategyOptimizer: 엔드포인트별 전략 튜닝
// =============================================================================
// 통계를 분석해 정책 힌트를 만듭니다. 힌트는 이후의 쓰기 경로에만
// 영향을 주며, 이미 저장된 엔트리는 절대 수정하지 않습니다.
//
// 규칙:
// - 적중률 < 0.5        → TTL을 +300초 보정 (너무 빨리 식는 캐시)
// - 요청 수 > 1000      → 프리페치 활성화 (고트래픽)
// - 누적 크기 > 1MB     → 압축 활성화 (대형 페이로드)
// =============================================================================

// EndpointAnalysis는 엔드포인트 사용 패턴의 분석 결과입니다.
type EndpointAnalysis struct {
	Endpoint         string  `json:"endpoint"`
	HitRate          float64 `json:"hit_rate"`
	AvgLatencyMillis float64 `json:"avg_latency_ms"`
	TotalRequests    uint64  `json:"total_requests"`
	CacheBytes       int64   `json:"cache_bytes"`
}

// Hints는 최적화기가 만든 엔드포인트별 정책 힌트입니다.
type Hints struct {
	// TTLAdjustment는 예측 TTL에 더해지는 보정입니다.
	TTLAdjustment time.Duration `json:"ttl_adjustment"`

	// PrefetchEnabled는 미스 시 프리페치를 트리거할지 여부입니다.
	PrefetchEnabled bool `json:"prefetch_enabled"`

	// CompressionEnabled는 쓰기 시 압축을 적용할지 여부입니다.
	CompressionEnabled bool `json:"compression_enabled"`
}

// StrategyOptimizer는 엔드포인트별 힌트를 계산하고 보관합니다.
type StrategyOptimizer struct {
	stats *StatsTracker
	cfg   *Config

	mu    sync.RWMutex
	hints map[string]Hints
}

// NewStrategyOptimizer는 새로운 최적화기를 생성합니다.
func NewStrategyOptimizer(stats *StatsTracker, cfg *Config) *StrategyOptimizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &StrategyOptimizer{
		stats: stats,
		cfg:   cfg,
		hints: make(map[string]Hints),
	}
}

// Analyze는 엔드포인트 통계를 분석합니다.
//
// Returns:
//   - *EndpointAnalysis: 분석 결과
//   - bool: 기록이 있으면 true
func (o *StrategyOptimizer) Analyze(endpoint string) (*EndpointAnalysis, bool) {
	es, ok := o.stats.GetEndpointStats(endpoint)
	if !ok {
		return nil, false
	}

	return &EndpointAnalysis{
		Endpoint:         endpoint,
		HitRate:          es.HitRate(),
		AvgLatencyMillis: es.AvgLatencyMillis,
		TotalRequests:    es.TotalRequests(),
		CacheBytes:       es.TotalBytes,
	}, true
}

// Optimize는 엔드포인트를 분석하고 힌트를 갱신합니다.
//
// Returns:
//   - *EndpointAnalysis: 분석 결과 (기록이 없으면 0값 분석)
//   - Hints: 갱신된 힌트
//   - []string: 적용된 개선 항목 설명
func (o *StrategyOptimizer) Optimize(endpoint string) (*EndpointAnalysis, Hints, []string) {
	analysis, ok := o.Analyze(endpoint)
	if !ok {
		analysis = &EndpointAnalysis{Endpoint: endpoint}
	}

	var hints Hints
	var improvements []string

	if analysis.TotalRequests > 0 && analysis.HitRate < 0.5 {
		hints.TTLAdjustment = o.cfg.LowHitRateAdjustment
		improvements = append(improvements, "increase_ttl")
	}

	if analysis.TotalRequests > uint64(o.cfg.HighTrafficThreshold) {
		hints.PrefetchEnabled = true
		improvements = append(improvements, "enable_prefetching")
	}

	if analysis.CacheBytes > o.cfg.LargeSizeThreshold {
		hints.CompressionEnabled = true
		improvements = append(improvements, "enable_compression")
	}

	o.mu.Lock()
	o.hints[endpoint] = hints
	o.mu.Unlock()

	return analysis, hints, improvements
}

// HintsFor는 엔드포인트의 현재 힌트를 반환합니다.
// 최적화 이력이 없으면 0값 힌트입니다.
func (o *StrategyOptimizer) HintsFor(endpoint string) Hints {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hints[endpoint]
}
