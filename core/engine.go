// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 공개 연산(Lookup/Store/OptimizeStrategy/PredictRequirements/
// ManageInvalidation)을 제공하는 엔진을 구현합니다.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// Engine: 적응형 응답 캐시 엔진
// =============================================================================
// 모든 구성 요소(지문 생성, 저장, 예측, 프리페치, 무효화, 최적화)를
// 묶는 최상위 타입입니다.
//
// 에러 정책:
// - 없는 키는 정상적인 빈 결과입니다.
// - 예측 실패는 기본값으로 대체되고 로그만 남습니다.
// - 백엔드 장애는 Degraded 플래그로 표시될 뿐 호출자를 실패시키지
//   않습니다. 호출자는 캐시를 건너뛰고 원본을 계산하면 됩니다.
// =============================================================================

// Serializer는 페이로드 직렬화 계약입니다.
// 구현체: serializer 패키지 (msgpack, json, raw)
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Compressor는 페이로드 압축 계약입니다.
// 구현체: compression 패키지 (gzip, s2, zstd)
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// ComputeFunc는 프리페치 작업을 해석할 때 원본 값을 계산하는 함수입니다.
// 등록되지 않으면 프리페치는 비활성화됩니다.
type ComputeFunc func(ctx context.Context, key string, taskCtx map[string]string) (any, error)

// =============================================================================
// 결과 타입
// =============================================================================

// LookupResult는 Lookup의 결과입니다.
type LookupResult struct {
	// Found는 살아있는 엔트리를 찾았는지 여부입니다.
	Found bool

	// Degraded는 백엔드 장애로 캐시가 우회되었는지 여부입니다.
	// true이면 호출자는 원본을 직접 계산해야 합니다.
	Degraded bool

	// Key는 계산된 캐시 키입니다.
	Key string
}

// StoreReceipt는 Store의 결과입니다.
type StoreReceipt struct {
	Key       string        `json:"key"`
	TTL       time.Duration `json:"ttl"`
	Timestamp time.Time     `json:"timestamp"`

	// Degraded는 백엔드 장애로 쓰기가 무시되었는지 여부입니다.
	Degraded bool `json:"degraded,omitempty"`
}

// OptimizationReport는 OptimizeStrategy의 결과입니다.
type OptimizationReport struct {
	Endpoint     string            `json:"endpoint"`
	Strategy     string            `json:"strategy"`
	Analysis     *EndpointAnalysis `json:"analysis"`
	Hints        Hints             `json:"hints"`
	Improvements []string          `json:"improvements"`
	Timestamp    time.Time         `json:"timestamp"`
}

// RequirementsForecast는 PredictRequirements의 결과입니다.
type RequirementsForecast struct {
	Timeframe         time.Duration `json:"timeframe"`
	PredictedRequests uint64        `json:"predicted_requests"`
	PredictedBytes    int64         `json:"predicted_bytes"`
	Recommendations   []string      `json:"recommendations"`
	Timestamp         time.Time     `json:"timestamp"`
}

// InvalidationReport는 ManageInvalidation의 결과입니다.
type InvalidationReport struct {
	Effects     *InvalidationEffects     `json:"effects"`
	Observation *InvalidationObservation `json:"observation"`
	Timestamp   time.Time                `json:"timestamp"`
}

// =============================================================================
// Engine
// =============================================================================

// Engine은 적응형 응답 캐시 엔진입니다.
type Engine struct {
	cfg   *Config
	store *Store
	stats *StatsTracker

	serializer Serializer
	compressor Compressor

	ttlPred TTLPredictor
	hitPred HitProbabilityPredictor
	relPred RelatedKeysPredictor
	tracker *PatternTracker

	prefetch  *PrefetchScheduler
	inval     *InvalidationManager
	optimizer *StrategyOptimizer

	compute ComputeFunc
	logger  *slog.Logger
	nowFunc func() time.Time
}

// EngineOption은 Engine 의존성을 교체하는 함수형 옵션입니다.
type EngineOption func(*Engine)

// WithSerializer는 직렬화기를 교체합니다.
func WithSerializer(s Serializer) EngineOption {
	return func(e *Engine) { e.serializer = s }
}

// WithCompressor는 압축기를 교체합니다.
func WithCompressor(c Compressor) EngineOption {
	return func(e *Engine) { e.compressor = c }
}

// WithTTLPredictor는 TTL 예측기를 교체합니다.
func WithTTLPredictor(p TTLPredictor) EngineOption {
	return func(e *Engine) { e.ttlPred = p }
}

// WithHitPredictor는 적중 확률 예측기를 교체합니다.
func WithHitPredictor(p HitProbabilityPredictor) EngineOption {
	return func(e *Engine) { e.hitPred = p }
}

// WithRelatedKeysPredictor는 연관 키 예측기를 교체합니다.
func WithRelatedKeysPredictor(p RelatedKeysPredictor) EngineOption {
	return func(e *Engine) { e.relPred = p }
}

// WithComputeFunc는 프리페치 해석 함수를 등록합니다.
func WithComputeFunc(fn ComputeFunc) EngineOption {
	return func(e *Engine) { e.compute = fn }
}

// WithLogger는 로거를 교체합니다.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// jsonSerializer는 별도 주입이 없을 때 사용하는 기본 직렬화기입니다.
type jsonSerializer struct{}

func (jsonSerializer) Name() string                       { return "json" }
func (jsonSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// NewEngine은 새로운 캐시 엔진을 생성합니다.
//
// Parameters:
//   - adapter: 백엔드 저장소 어댑터
//   - cfg: 엔진 설정 (nil이면 DefaultConfig)
//   - opts: 의존성 교체 옵션
func NewEngine(adapter Adapter, cfg *Config, opts ...EngineOption) (*Engine, error) {
	if adapter == nil {
		return nil, fmt.Errorf("engine: adapter is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	stats := NewStatsTracker()
	store := NewStore(adapter, cfg, stats)
	tracker := NewPatternTracker()

	e := &Engine{
		cfg:        cfg,
		store:      store,
		stats:      stats,
		serializer: jsonSerializer{},
		ttlPred:    NewHeuristicTTLPredictor(),
		hitPred:    NewFrequencyHitPredictor(stats),
		tracker:    tracker,
		relPred:    tracker,
		inval:      NewInvalidationManager(store, nil),
		optimizer:  NewStrategyOptimizer(stats, cfg),
		logger:     slog.Default(),
		nowFunc:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.prefetch = NewPrefetchScheduler(cfg.PrefetchQueueSize, e.resolvePrefetch)
	e.prefetch.SetLogger(e.logger)
	e.prefetch.Start(cfg.PrefetchWorkers)

	return e, nil
}

// SetNowFunc는 시간 소스를 교체합니다. 테스트 전용입니다.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	e.nowFunc = fn
	e.store.SetNowFunc(fn)
}

// StoreLayer는 저장 계층을 반환합니다.
func (e *Engine) StoreLayer() *Store {
	return e.store
}

// Stats는 통계 수집기를 반환합니다.
func (e *Engine) Stats() *StatsTracker {
	return e.stats
}

// Prefetch는 프리페치 스케줄러를 반환합니다.
func (e *Engine) Prefetch() *PrefetchScheduler {
	return e.prefetch
}

// Close는 프리페치 소비자를 중지하고 어댑터 연결을 종료합니다.
func (e *Engine) Close(ctx context.Context) error {
	e.prefetch.Stop()
	return e.store.Adapter().Disconnect(ctx)
}

// =============================================================================
// Lookup
// =============================================================================

// Lookup은 엔드포인트+페이로드로 캐시를 조회합니다.
//
// Parameters:
//   - endpoint: 엔드포인트 식별자
//   - payload: 요청 파라미터 (키 지문의 입력)
//   - dest: 적중 시 역직렬화 대상 포인터 (nil이면 존재 확인만)
//
// Returns:
//   - LookupResult: Found/Degraded/Key
//   - error: 키를 만들 수 없거나 역직렬화에 실패한 경우만
//
// 백엔드 장애는 에러가 아니라 Degraded=true로 보고됩니다.
func (e *Engine) Lookup(ctx context.Context, endpoint string, payload any, dest any) (LookupResult, error) {
	key, err := FingerprintKey(endpoint, payload)
	if err != nil {
		return LookupResult{}, err
	}

	result := LookupResult{Key: key}
	e.tracker.RecordAccess(key)

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	entry, err := e.store.Get(opCtx, key)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			e.logger.Warn("cache lookup degraded",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		result.Degraded = true
		return result, nil
	}

	if entry == nil {
		e.maybePrefetch(ctx, endpoint, key)
		return result, nil
	}

	if dest != nil {
		data := entry.Payload
		if entry.Compressed && e.compressor != nil {
			data, err = e.compressor.Decompress(data)
			if err != nil {
				// 손상된 엔트리는 제거하고 미스로 처리합니다.
				// 저장 계층이 이미 히트로 집계했으므로 되돌립니다.
				e.store.Delete(opCtx, key)
				e.stats.ReclassifyHitAsMiss(endpoint)
				e.logger.Warn("corrupted cache entry dropped",
					slog.String("key", key),
					slog.String("error", err.Error()))
				return result, nil
			}
		}
		if err := e.serializer.Unmarshal(data, dest); err != nil {
			return result, fmt.Errorf("lookup decode %q: %w", key, err)
		}
	}

	result.Found = true
	return result, nil
}

// maybePrefetch는 미스 직후 연관 키 프리페치를 검토합니다.
// 요청 경로를 지연시키지 않도록 등록만 하고 돌아옵니다.
func (e *Engine) maybePrefetch(ctx context.Context, endpoint, key string) {
	if e.compute == nil {
		return
	}

	prob, err := e.hitPred.PredictHitProbability(ctx, endpoint, key)
	if err != nil {
		e.logger.Debug("hit predictor fallback",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		prob = 0.5
	}

	hints := e.optimizer.HintsFor(endpoint)
	if prob < e.cfg.PrefetchThreshold && !hints.PrefetchEnabled {
		return
	}

	related, err := e.relPred.PredictRelatedKeys(ctx, key, 5)
	if err != nil {
		e.logger.Debug("related keys predictor fallback",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}

	for _, rk := range related {
		e.prefetch.Enqueue(rk.Key, prob, rk.Context)
	}
}

// resolvePrefetch는 프리페치 작업을 계산해 캐시에 저장합니다.
func (e *Engine) resolvePrefetch(ctx context.Context, task *PrefetchTask) error {
	value, err := e.compute(ctx, task.Key, task.Context)
	if err != nil {
		return err
	}

	endpoint, ok := EndpointFromKey(task.Key)
	if !ok {
		return fmt.Errorf("prefetch: malformed key %q", task.Key)
	}

	data, err := e.serializer.Marshal(value)
	if err != nil {
		return err
	}

	entry := e.buildEntry(task.Key, endpoint, data, 0, nil)
	return e.store.Set(ctx, entry)
}

// =============================================================================
// Store
// =============================================================================

// StoreResponse는 응답을 캐시에 저장합니다.
//
// Parameters:
//   - endpoint: 엔드포인트 식별자
//   - payload: 요청 파라미터 (키 지문의 입력)
//   - data: 저장할 응답 값
//   - opts: TTL/태그/메타데이터 옵션
//
// Returns:
//   - *StoreReceipt: 키, 확정 TTL, 시각. 백엔드 장애 시 Degraded=true
//   - error: 직렬화 실패 등 호출자 측 문제만
func (e *Engine) StoreResponse(ctx context.Context, endpoint string, payload any, data any, opts ...StoreOption) (*StoreReceipt, error) {
	key, err := FingerprintKey(endpoint, payload)
	if err != nil {
		return nil, err
	}

	var so StoreOptions
	for _, opt := range opts {
		opt(&so)
	}

	raw, err := e.serializer.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store encode %q: %w", key, err)
	}

	ttl := so.TTL
	if ttl <= 0 {
		ttl = e.predictTTL(ctx, endpoint, len(raw))
	}

	entry := e.buildEntry(key, endpoint, raw, ttl, &so)

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	receipt := &StoreReceipt{
		Key:       key,
		TTL:       time.Duration(entry.TTLSeconds) * time.Second,
		Timestamp: e.nowFunc(),
	}

	if err := e.store.Set(opCtx, entry); err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			e.logger.Warn("cache store degraded",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		receipt.Degraded = true
		return receipt, nil
	}

	if len(so.Tags) > 0 {
		e.inval.Tags().Add(key, so.Tags)
	}
	return receipt, nil
}

// predictTTL은 예측기로 TTL을 결정합니다. 실패 시 DefaultTTL입니다.
func (e *Engine) predictTTL(ctx context.Context, endpoint string, payloadBytes int) time.Duration {
	features := DefaultTTLFeatures(payloadBytes)
	if es, ok := e.stats.GetEndpointStats(endpoint); ok && es.TotalRequests() > 0 {
		features.AvgHitRate = es.HitRate()
		if es.AvgTTLSeconds > 0 {
			features.AvgTTLSeconds = es.AvgTTLSeconds
		}
		if es.AvgSizeBytes > 0 {
			features.AvgSizeBytes = es.AvgSizeBytes
		}
		features.RequestFrequency = float64(es.TotalRequests())
	}

	ttl, err := e.ttlPred.PredictTTL(ctx, endpoint, features)
	if err != nil {
		e.logger.Debug("ttl predictor fallback",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		ttl = e.cfg.DefaultTTL
	}

	// 최적화 힌트의 TTL 보정을 반영합니다.
	if adj := e.optimizer.HintsFor(endpoint).TTLAdjustment; adj > 0 {
		ttl += adj
	}
	return ClampTTL(ttl)
}

// buildEntry는 압축 정책을 적용해 엔트리를 조립합니다.
func (e *Engine) buildEntry(key, endpoint string, raw []byte, ttl time.Duration, so *StoreOptions) *Entry {
	now := e.nowFunc()

	entry := &Entry{
		Key:         key,
		Endpoint:    endpoint,
		Payload:     raw,
		ContentType: e.serializer.Name(),
		CreatedAt:   now,
		AccessedAt:  now,
		TTLSeconds:  int(ttl / time.Second),
		SizeBytes:   len(raw),
	}
	if so != nil {
		entry.Tags = so.Tags
		entry.Metadata = so.Metadata
	}

	compress := e.cfg.CompressionEnabled || e.optimizer.HintsFor(endpoint).CompressionEnabled
	if compress && e.compressor != nil && len(raw) >= e.cfg.CompressionThreshold {
		if packed, err := e.compressor.Compress(raw); err == nil && len(packed) < len(raw) {
			entry.Payload = packed
			entry.Compressed = true
			entry.CompressionType = e.compressor.Name()
			entry.SizeBytes = len(packed)
		}
	}
	return entry
}

// =============================================================================
// OptimizeStrategy
// =============================================================================

// OptimizeStrategy는 엔드포인트 사용 패턴을 분석하고 정책 힌트를
// 갱신합니다. 이미 저장된 엔트리는 수정하지 않습니다.
func (e *Engine) OptimizeStrategy(ctx context.Context, endpoint string) (*OptimizationReport, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("optimize: endpoint is required")
	}

	analysis, hints, improvements := e.optimizer.Optimize(endpoint)

	return &OptimizationReport{
		Endpoint:     endpoint,
		Strategy:     e.cfg.Strategy.String(),
		Analysis:     analysis,
		Hints:        hints,
		Improvements: improvements,
		Timestamp:    e.nowFunc(),
	}, nil
}

// =============================================================================
// PredictRequirements
// =============================================================================

// PredictRequirements는 주어진 기간 동안의 캐시 요구량을 예측합니다.
// 리셋 이후의 관측 속도를 기간에 외삽하는 단순 모델입니다.
func (e *Engine) PredictRequirements(ctx context.Context, timeframe time.Duration) (*RequirementsForecast, error) {
	if timeframe <= 0 {
		return nil, fmt.Errorf("predict: timeframe must be positive")
	}

	snapshot := e.stats.Snapshot()
	now := e.nowFunc()

	elapsed := now.Sub(snapshot.LastReset)
	if elapsed < time.Second {
		elapsed = time.Second
	}

	totalRequests := snapshot.Hits + snapshot.Misses
	rate := float64(totalRequests) / elapsed.Seconds()
	predictedRequests := uint64(rate * timeframe.Seconds())

	var totalBytes int64
	for _, name := range e.stats.Endpoints() {
		if es, ok := e.stats.GetEndpointStats(name); ok {
			totalBytes += es.TotalBytes
		}
	}
	var predictedBytes int64
	if snapshot.Sets > 0 {
		avgBytes := float64(totalBytes) / float64(snapshot.Sets)
		setRate := float64(snapshot.Sets) / elapsed.Seconds()
		predictedBytes = int64(avgBytes * setRate * timeframe.Seconds())
	}

	var recommendations []string
	if totalRequests > 0 && snapshot.HitRate < 0.5 {
		recommendations = append(recommendations, "consider_longer_ttls")
	}
	if snapshot.Evictions > snapshot.Sets/10 && snapshot.Sets > 0 {
		recommendations = append(recommendations, "increase_capacity")
	}
	if predictedBytes > e.cfg.LargeSizeThreshold {
		recommendations = append(recommendations, "enable_compression")
	}

	return &RequirementsForecast{
		Timeframe:         timeframe,
		PredictedRequests: predictedRequests,
		PredictedBytes:    predictedBytes,
		Recommendations:   recommendations,
		Timestamp:         now,
	}, nil
}

// =============================================================================
// ManageInvalidation
// =============================================================================

// ManageInvalidation은 무효화 규칙을 검증하고 적용한 뒤 효과를
// 관측합니다. 규칙 중 하나라도 잘못되면 전체가 거부됩니다.
func (e *Engine) ManageInvalidation(ctx context.Context, rules []Rule) (*InvalidationReport, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	effects, err := e.inval.Apply(opCtx, rules)
	if err != nil {
		return nil, err
	}

	observation, err := e.inval.Observe(opCtx)
	if err != nil {
		return nil, err
	}

	return &InvalidationReport{
		Effects:     effects,
		Observation: observation,
		Timestamp:   e.nowFunc(),
	}, nil
}
