// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 TTL/적중 확률/연관 키 예측기를 정의합니다.
package core

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// 예측기 계약
// =============================================================================
// 예측기는 교체 가능한 인터페이스입니다. 예측 실패는 절대 호출자에게
// 전파되지 않습니다: TTL은 DefaultTTL로, 적중 확률은 0.5로 대체됩니다.
// 기본 구현은 통계 기반 휴리스틱이며 외부 의존성이 없습니다.
// =============================================================================

// TTLFeatures는 TTL 예측의 입력 특징 벡터입니다.
type TTLFeatures struct {
	// AvgHitRate는 엔드포인트의 평균 적중률입니다. 기록이 없으면 0.5입니다.
	AvgHitRate float64

	// AvgTTLSeconds는 과거 쓰기 TTL의 평균입니다. 기록이 없으면 300입니다.
	AvgTTLSeconds float64

	// AvgSizeBytes는 평균 페이로드 크기입니다. 기록이 없으면 1000입니다.
	AvgSizeBytes float64

	// RequestFrequency는 윈도우당 요청 빈도입니다. 기록이 없으면 1입니다.
	RequestFrequency float64

	// PayloadBytes는 이번 요청 페이로드의 크기입니다.
	PayloadBytes int
}

// DefaultTTLFeatures는 기록이 없는 엔드포인트의 기본 특징 벡터입니다.
func DefaultTTLFeatures(payloadBytes int) TTLFeatures {
	return TTLFeatures{
		AvgHitRate:       0.5,
		AvgTTLSeconds:    300,
		AvgSizeBytes:     1000,
		RequestFrequency: 1,
		PayloadBytes:     payloadBytes,
	}
}

// TTLPredictor는 엔트리의 적절한 만료 시간을 예측합니다.
type TTLPredictor interface {
	// PredictTTL은 특징 벡터로부터 TTL을 예측합니다.
	// 반환값은 호출측에서 [MinTTL, MaxTTL]로 클램프됩니다.
	PredictTTL(ctx context.Context, endpoint string, features TTLFeatures) (time.Duration, error)
}

// HitProbabilityPredictor는 키의 미래 적중 확률을 예측합니다.
type HitProbabilityPredictor interface {
	// PredictHitProbability는 [0, 1] 범위의 확률을 반환합니다.
	// 실패 시 호출측이 0.5를 사용합니다.
	PredictHitProbability(ctx context.Context, endpoint, key string) (float64, error)
}

// RelatedKey는 프리페치 후보입니다.
type RelatedKey struct {
	// Key는 프리페치할 캐시 키입니다.
	Key string

	// Context는 프리페치 해석에 필요한 불투명 정보입니다.
	Context map[string]string
}

// RelatedKeysPredictor는 함께 조회될 가능성이 높은 키를 예측합니다.
type RelatedKeysPredictor interface {
	PredictRelatedKeys(ctx context.Context, key string, limit int) ([]RelatedKey, error)
}

// ClampTTL은 TTL을 [MinTTL, MaxTTL] 범위로 제한합니다.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

// =============================================================================
// HeuristicTTLPredictor: 통계 기반 기본 TTL 예측기
// =============================================================================

// HeuristicTTLPredictor는 엔드포인트 집계에서 TTL을 유도합니다.
// 적중률이 높고 요청이 잦은 엔드포인트는 더 긴 TTL을 받습니다.
type HeuristicTTLPredictor struct{}

// NewHeuristicTTLPredictor는 기본 TTL 예측기를 생성합니다.
func NewHeuristicTTLPredictor() *HeuristicTTLPredictor {
	return &HeuristicTTLPredictor{}
}

// PredictTTL은 과거 평균 TTL을 적중률과 빈도로 보정합니다.
func (p *HeuristicTTLPredictor) PredictTTL(ctx context.Context, endpoint string, f TTLFeatures) (time.Duration, error) {
	base := f.AvgTTLSeconds
	if base <= 0 {
		base = 300
	}

	// 적중률 0.5를 기준으로 ±50% 보정
	factor := 0.5 + f.AvgHitRate

	// 큰 페이로드는 재계산 비용이 크므로 약간 더 오래 유지
	if f.PayloadBytes > int(f.AvgSizeBytes)*2 && f.AvgSizeBytes > 0 {
		factor += 0.1
	}

	// 요청 빈도가 높으면 상향
	if f.RequestFrequency > 10 {
		factor += 0.2
	}

	predicted := time.Duration(base*factor) * time.Second
	return ClampTTL(predicted), nil
}

// =============================================================================
// FrequencyHitPredictor: 접근 빈도 기반 적중 확률 예측기
// =============================================================================

// FrequencyHitPredictor는 엔드포인트 적중률과 키별 최근 접근을
// 결합해 적중 확률을 추정합니다.
type FrequencyHitPredictor struct {
	stats *StatsTracker
}

// NewFrequencyHitPredictor는 기본 적중 확률 예측기를 생성합니다.
func NewFrequencyHitPredictor(stats *StatsTracker) *FrequencyHitPredictor {
	return &FrequencyHitPredictor{stats: stats}
}

// PredictHitProbability는 엔드포인트 적중률을 기본값으로 사용합니다.
// 기록이 없으면 0.5를 반환합니다.
func (p *FrequencyHitPredictor) PredictHitProbability(ctx context.Context, endpoint, key string) (float64, error) {
	es, ok := p.stats.GetEndpointStats(endpoint)
	if !ok || es.TotalRequests() == 0 {
		return 0.5, nil
	}

	prob := es.HitRate()

	// 최근 1분 내 접근이 있으면 상향
	if time.Since(es.LastAccess) < time.Minute {
		prob = prob*0.8 + 0.2
	}

	if prob > 1 {
		prob = 1
	}
	return prob, nil
}

// =============================================================================
// PatternTracker: 접근 순서 기반 연관 키 예측기
// =============================================================================
// 키 A 직후에 키 B가 자주 조회되면 A 미스 시 B를 프리페치 후보로
// 제안합니다. 순서 인접성만 보는 단순한 모델입니다.
// =============================================================================

// patternHistoryLimit는 추적하는 최근 접근 수입니다.
const patternHistoryLimit = 1000

// maxFollowKeys는 인접성 테이블이 추적하는 선행 키 수 상한입니다.
// 저장소에서 만료/퇴거로 빠진 키를 여기서는 알 수 없으므로
// 상한으로 묶어 무한히 자라지 않게 합니다.
const maxFollowKeys = 4096

// maxFollowersPerKey는 선행 키 하나가 추적하는 후속 키 수 상한입니다.
const maxFollowersPerKey = 32

// PatternTracker는 접근 순서를 기록하고 인접 키를 예측합니다.
type PatternTracker struct {
	mu sync.Mutex

	// recent는 최근 접근 키의 순서 기록입니다.
	recent []string

	// follows[a][b] = a 직후에 b가 접근된 횟수
	follows map[string]map[string]int
}

// NewPatternTracker는 새로운 패턴 추적기를 생성합니다.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{
		follows: make(map[string]map[string]int),
	}
}

// RecordAccess는 키 접근을 기록합니다.
func (t *PatternTracker) RecordAccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.recent); n > 0 {
		prev := t.recent[n-1]
		if prev != key {
			m, ok := t.follows[prev]
			if !ok {
				if len(t.follows) >= maxFollowKeys {
					t.evictFollowKey()
				}
				m = make(map[string]int)
				t.follows[prev] = m
			}
			if _, tracked := m[key]; tracked || len(m) < maxFollowersPerKey {
				m[key]++
			}
		}
	}

	t.recent = append(t.recent, key)
	if len(t.recent) > patternHistoryLimit {
		// 가장 오래된 절반을 버립니다.
		t.recent = append(t.recent[:0], t.recent[patternHistoryLimit/2:]...)
	}
}

// evictFollowKey는 테이블이 가득 차면 선행 키 하나를 버립니다.
// 맵 순회 순서를 이용한 무작위 퇴거입니다. 호출자가 락을 잡습니다.
func (t *PatternTracker) evictFollowKey() {
	for k := range t.follows {
		delete(t.follows, k)
		return
	}
}

// PredictRelatedKeys는 key 다음에 올 가능성이 높은 키를 반환합니다.
// 2회 이상 관측된 인접 키만 후보가 됩니다.
func (t *PatternTracker) PredictRelatedKeys(ctx context.Context, key string, limit int) ([]RelatedKey, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.follows[key]
	if !ok {
		return nil, nil
	}

	related := make([]RelatedKey, 0, limit)
	for next, count := range m {
		if count < 2 {
			continue
		}
		related = append(related, RelatedKey{Key: next})
		if len(related) >= limit {
			break
		}
	}
	return related, nil
}
