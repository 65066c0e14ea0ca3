// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 캐시 설정과 함수형 옵션을 정의합니다.
package core

import "time"

// =============================================================================
// Strategy: 퇴거 전략
// =============================================================================

// Strategy는 용량 초과 시 희생자 선택 전략입니다.
type Strategy int

const (
	// StrategyLRU는 가장 오래 접근되지 않은 엔트리를 퇴거합니다. (기본값)
	StrategyLRU Strategy = iota

	// StrategyLFU는 접근 빈도가 가장 낮은 엔트리를 퇴거합니다.
	StrategyLFU

	// StrategyARC는 적응형 교체 캐시입니다.
	// 현재 구현에서는 LRU로 동작합니다.
	StrategyARC
)

func (s Strategy) String() string {
	switch s {
	case StrategyLRU:
		return "lru"
	case StrategyLFU:
		return "lfu"
	case StrategyARC:
		return "arc"
	default:
		return "unknown"
	}
}

// ParseStrategy는 문자열을 Strategy로 변환합니다.
// 알 수 없는 값은 LRU로 처리합니다.
func ParseStrategy(s string) Strategy {
	switch s {
	case "lfu":
		return StrategyLFU
	case "arc":
		return StrategyARC
	default:
		return StrategyLRU
	}
}

// =============================================================================
// Config: 엔진 설정
// =============================================================================

const (
	// MinTTL은 예측 TTL의 하한입니다.
	MinTTL = 60 * time.Second

	// MaxTTL은 예측 TTL의 상한입니다.
	MaxTTL = 86400 * time.Second
)

// Config는 캐시 엔진 설정입니다.
type Config struct {
	// Strategy는 퇴거 전략입니다.
	Strategy Strategy

	// MaxSize는 최대 엔트리 수입니다. 0이면 무제한입니다.
	MaxSize int64

	// DefaultTTL은 예측 실패 시 사용하는 기본 만료 시간입니다.
	DefaultTTL time.Duration

	// PrefetchThreshold는 프리페치를 트리거하는 최소 적중 확률입니다.
	PrefetchThreshold float64

	// PrefetchQueueSize는 프리페치 큐 용량입니다.
	PrefetchQueueSize int

	// PrefetchWorkers는 프리페치 소비자 고루틴 수입니다.
	PrefetchWorkers int

	// CompressionEnabled는 압축 사용 여부입니다.
	// 전략 최적화 힌트에 의해 엔드포인트별로 켜질 수 있습니다.
	CompressionEnabled bool

	// CompressionThreshold는 압축을 적용하는 최소 페이로드 크기(바이트)입니다.
	CompressionThreshold int

	// EncryptionEnabled는 저장 시 암호화 여부입니다.
	// 현재는 설정 필드로만 존재하며 동작에 영향을 주지 않습니다.
	EncryptionEnabled bool

	// OpTimeout은 어댑터 호출의 기본 타임아웃입니다.
	OpTimeout time.Duration

	// HighTrafficThreshold는 프리페치 힌트를 켜는 윈도우당 요청 수입니다.
	HighTrafficThreshold int64

	// LargeSizeThreshold는 압축 힌트를 켜는 엔드포인트 누적 크기(바이트)입니다.
	LargeSizeThreshold int64

	// LowHitRateAdjustment는 적중률이 낮을 때 더해지는 TTL 보정입니다.
	LowHitRateAdjustment time.Duration
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Strategy:             StrategyLRU,
		MaxSize:              10000,
		DefaultTTL:           300 * time.Second,
		PrefetchThreshold:    0.7,
		PrefetchQueueSize:    100,
		PrefetchWorkers:      1,
		CompressionEnabled:   false,
		CompressionThreshold: 1024,
		EncryptionEnabled:    false,
		OpTimeout:            5 * time.Second,
		HighTrafficThreshold: 1000,
		LargeSizeThreshold:   1024 * 1024,
		LowHitRateAdjustment: 300 * time.Second,
	}
}

// =============================================================================
// 함수형 옵션
// =============================================================================

// Option은 Config를 수정하는 함수형 옵션입니다.
type Option func(*Config)

// WithStrategy는 퇴거 전략을 설정합니다.
func WithStrategy(s Strategy) Option {
	return func(c *Config) {
		c.Strategy = s
	}
}

// WithMaxSize는 최대 엔트리 수를 설정합니다.
func WithMaxSize(size int64) Option {
	return func(c *Config) {
		c.MaxSize = size
	}
}

// WithDefaultTTL은 기본 TTL을 설정합니다.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DefaultTTL = ttl
	}
}

// WithPrefetchThreshold는 프리페치 트리거 확률을 설정합니다.
func WithPrefetchThreshold(p float64) Option {
	return func(c *Config) {
		c.PrefetchThreshold = p
	}
}

// WithPrefetchQueueSize는 프리페치 큐 용량을 설정합니다.
func WithPrefetchQueueSize(n int) Option {
	return func(c *Config) {
		c.PrefetchQueueSize = n
	}
}

// WithPrefetchWorkers는 프리페치 소비자 수를 설정합니다.
func WithPrefetchWorkers(n int) Option {
	return func(c *Config) {
		c.PrefetchWorkers = n
	}
}

// WithCompression은 압축 사용 여부와 최소 크기를 설정합니다.
func WithCompression(enabled bool, threshold int) Option {
	return func(c *Config) {
		c.CompressionEnabled = enabled
		if threshold > 0 {
			c.CompressionThreshold = threshold
		}
	}
}

// WithEncryption은 암호화 플래그를 설정합니다.
func WithEncryption(enabled bool) Option {
	return func(c *Config) {
		c.EncryptionEnabled = enabled
	}
}

// WithOpTimeout은 어댑터 호출 타임아웃을 설정합니다.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.OpTimeout = d
	}
}

// =============================================================================
// StoreOptions: 쓰기 단위 옵션
// =============================================================================

// StoreOptions는 개별 Store 호출의 옵션입니다.
type StoreOptions struct {
	// TTL은 명시적 만료 시간입니다. 0이면 예측기가 결정합니다.
	TTL time.Duration

	// Tags는 태그 기반 무효화를 위한 태그입니다.
	Tags []string

	// Metadata는 엔트리에 첨부할 메타데이터입니다.
	Metadata map[string]string
}

// StoreOption은 StoreOptions를 수정하는 함수형 옵션입니다.
type StoreOption func(*StoreOptions)

// WithTTL은 명시적 TTL을 지정합니다. 예측기를 우회합니다.
func WithTTL(ttl time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.TTL = ttl
	}
}

// WithTags는 엔트리에 태그를 붙입니다.
func WithTags(tags ...string) StoreOption {
	return func(o *StoreOptions) {
		o.Tags = append(o.Tags, tags...)
	}
}

// WithMetadata는 엔트리에 메타데이터를 첨부합니다.
func WithMetadata(meta map[string]string) StoreOption {
	return func(o *StoreOptions) {
		o.Metadata = meta
	}
}
