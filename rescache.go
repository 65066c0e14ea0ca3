// Package rescache는 API 백엔드를 위한 적응형 응답 캐시 엔진입니다.
//
// 요청을 결정적 키로 지문화하고, 예측된 TTL로 응답을 저장하며,
// 사용 패턴에 따라 프리페치/압축/TTL 정책을 스스로 조정합니다.
//
// 기본 사용:
//
//	cache, err := rescache.Quick()
//	if err != nil { ... }
//	defer cache.Close(ctx)
//
//	receipt, _ := cache.StoreResponse(ctx, "/licenses", params, response)
//	var out Response
//	result, _ := cache.Lookup(ctx, "/licenses", params, &out)
//	if result.Found { ... }
package rescache

import (
	"context"
	"fmt"

	"github.com/bridgify/rescache/adapters/memory"
	"github.com/bridgify/rescache/adapters/postgres"
	"github.com/bridgify/rescache/adapters/redis"
	"github.com/bridgify/rescache/adapters/sqlite"
	"github.com/bridgify/rescache/compression"
	"github.com/bridgify/rescache/core"
	"github.com/bridgify/rescache/serializer"
)

// =============================================================================
// 타입 재노출
// =============================================================================

type (
	Engine               = core.Engine
	Config               = core.Config
	Option               = core.Option
	EngineOption         = core.EngineOption
	StoreOption          = core.StoreOption
	Entry                = core.Entry
	Strategy             = core.Strategy
	Rule                 = core.Rule
	RuleKind             = core.RuleKind
	RuleAction           = core.RuleAction
	LookupResult         = core.LookupResult
	StoreReceipt         = core.StoreReceipt
	OptimizationReport   = core.OptimizationReport
	RequirementsForecast = core.RequirementsForecast
	InvalidationReport   = core.InvalidationReport
)

const (
	StrategyLRU = core.StrategyLRU
	StrategyLFU = core.StrategyLFU
	StrategyARC = core.StrategyARC

	MatchKeyPattern = core.MatchKeyPattern
	MatchEndpoint   = core.MatchEndpoint
	MatchTag        = core.MatchTag

	ActionDelete    = core.ActionDelete
	ActionMarkStale = core.ActionMarkStale
)

// 설정 옵션 재노출
var (
	WithStrategy          = core.WithStrategy
	WithMaxSize           = core.WithMaxSize
	WithDefaultTTL        = core.WithDefaultTTL
	WithPrefetchThreshold = core.WithPrefetchThreshold
	WithCompression       = core.WithCompression
	WithTTL               = core.WithTTL
	WithTags              = core.WithTags
	WithComputeFunc       = core.WithComputeFunc
)

// =============================================================================
// 빠른 생성자
// =============================================================================

// newEngine은 어댑터를 연결하고 기본 스택(msgpack + s2)으로 엔진을 조립합니다.
func newEngine(ctx context.Context, adapter core.Adapter, cfg *core.Config, opts []core.EngineOption) (*core.Engine, error) {
	if err := adapter.Connect(ctx); err != nil {
		return nil, fmt.Errorf("rescache: %w", err)
	}

	ser, err := serializer.New("msgpack")
	if err != nil {
		return nil, err
	}
	comp, err := compression.New("s2")
	if err != nil {
		return nil, err
	}

	engineOpts := append([]core.EngineOption{
		core.WithSerializer(ser),
		core.WithCompressor(comp),
	}, opts...)

	return core.NewEngine(adapter, cfg, engineOpts...)
}

// Quick은 기본 설정의 인메모리 캐시를 생성합니다.
func Quick(opts ...core.Option) (*core.Engine, error) {
	return WithMemory(context.Background(), nil, opts...)
}

// WithMemory는 인메모리 백엔드 캐시를 생성합니다.
//
// Parameters:
//   - memCfg: 메모리 어댑터 설정 (nil이면 기본값)
//   - opts: 엔진 설정 옵션
func WithMemory(ctx context.Context, memCfg *memory.Config, opts ...core.Option) (*core.Engine, error) {
	cfg := core.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if memCfg == nil {
		memCfg = memory.DefaultConfig()
	}
	memCfg.Strategy = cfg.Strategy

	return newEngine(ctx, memory.New(memCfg), cfg, nil)
}

// WithRedis는 Redis 백엔드 캐시를 생성합니다.
func WithRedis(ctx context.Context, redisCfg *redis.Config, opts ...core.Option) (*core.Engine, error) {
	cfg := core.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newEngine(ctx, redis.New(redisCfg), cfg, nil)
}

// WithSQLite는 SQLite 백엔드 캐시를 생성합니다.
func WithSQLite(ctx context.Context, sqliteCfg *sqlite.Config, opts ...core.Option) (*core.Engine, error) {
	cfg := core.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newEngine(ctx, sqlite.New(sqliteCfg), cfg, nil)
}

// WithPostgres는 PostgreSQL 백엔드 캐시를 생성합니다.
func WithPostgres(ctx context.Context, pgCfg *postgres.Config, opts ...core.Option) (*core.Engine, error) {
	cfg := core.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newEngine(ctx, postgres.New(pgCfg), cfg, nil)
}

// WithAdapter는 사용자 정의 어댑터로 캐시를 생성합니다.
func WithAdapter(ctx context.Context, adapter core.Adapter, cfg *core.Config, engineOpts ...core.EngineOption) (*core.Engine, error) {
	return newEngine(ctx, adapter, cfg, engineOpts)
}
