// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 캐시 엔트리(저장 단위)를 정의합니다.
package core

import (
	"sync"
	"time"
)

// =============================================================================
// Entry: 캐시에 저장되는 단위 데이터
// =============================================================================
// Entry는 직렬화된 응답 페이로드와 메타데이터를 함께 저장합니다.
// 페이로드는 불투명한 바이트 슬라이스이며, ContentType이 직렬화 방식을
// 선언합니다. 코어는 페이로드 내부를 해석하지 않습니다.
// 만료는 lazy 방식입니다: 죽은 엔트리는 접근 시점에만 제거됩니다.
// =============================================================================

// Entry는 캐시에 저장되는 개별 항목을 나타냅니다.
type Entry struct {
	// Key는 캐시 키입니다. (형식: "cache:<endpoint>:<hex>")
	Key string `json:"key" msgpack:"key"`

	// Endpoint는 이 엔트리를 생성한 엔드포인트 식별자입니다.
	Endpoint string `json:"endpoint" msgpack:"endpoint"`

	// Payload는 직렬화된 응답 데이터입니다.
	// 원본 타입 정보는 보존되지 않으므로 역직렬화 시 대상 타입을 지정해야 합니다.
	Payload []byte `json:"payload" msgpack:"payload"`

	// ContentType은 Payload의 직렬화 방식입니다. ("msgpack", "json", "raw")
	ContentType string `json:"content_type" msgpack:"content_type"`

	// CreatedAt은 엔트리가 생성된 시간입니다.
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`

	// AccessedAt은 마지막으로 조회된 시간입니다. 항상 CreatedAt 이후입니다.
	AccessedAt time.Time `json:"accessed_at" msgpack:"accessed_at"`

	// AccessCount는 조회 횟수입니다. 엔트리가 살아있는 동안 단조 증가합니다.
	AccessCount uint64 `json:"access_count" msgpack:"access_count"`

	// TTLSeconds는 쓰기 시점에 확정된 만료 시간(초)입니다.
	// now < CreatedAt + TTLSeconds 인 동안만 살아있습니다.
	TTLSeconds int `json:"ttl_seconds" msgpack:"ttl_seconds"`

	// SizeBytes는 Payload의 바이트 크기입니다.
	SizeBytes int `json:"size_bytes" msgpack:"size_bytes"`

	// Compressed는 Payload가 압축되었는지 여부입니다.
	Compressed bool `json:"compressed" msgpack:"compressed"`

	// CompressionType은 사용된 압축 알고리즘입니다. ("gzip", "s2", "zstd")
	CompressionType string `json:"compression_type,omitempty" msgpack:"compression_type,omitempty"`

	// Stale은 무효화 규칙(mark-stale)에 의해 표시된 상태입니다.
	// Stale 엔트리는 TTL과 무관하게 죽은 것으로 취급됩니다.
	Stale bool `json:"stale,omitempty" msgpack:"stale,omitempty"`

	// Tags는 태그 기반 무효화에 사용되는 태그 목록입니다.
	Tags []string `json:"tags,omitempty" msgpack:"tags,omitempty"`

	// Metadata는 불투명한 키/값 메타데이터입니다.
	Metadata map[string]string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`

	mu sync.RWMutex `json:"-" msgpack:"-"`
}

// =============================================================================
// Entry 생성자
// =============================================================================

// NewEntry는 새로운 캐시 엔트리를 생성합니다.
//
// Parameters:
//   - key: 캐시 키
//   - endpoint: 엔드포인트 식별자
//   - payload: 직렬화된 데이터
//   - ttl: 만료 시간 (초 단위로 내림)
//
// Returns:
//   - *Entry: 생성된 엔트리
func NewEntry(key, endpoint string, payload []byte, ttl time.Duration) *Entry {
	now := time.Now()

	return &Entry{
		Key:        key,
		Endpoint:   endpoint,
		Payload:    payload,
		CreatedAt:  now,
		AccessedAt: now,
		TTLSeconds: int(ttl / time.Second),
		SizeBytes:  len(payload),
	}
}

// =============================================================================
// Entry 메서드
// =============================================================================

// ExpiresAt은 엔트리가 만료되는 시간을 반환합니다.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// IsLiveAt은 주어진 시간 기준으로 엔트리가 살아있는지 확인합니다.
// time.Now() 호출을 줄이기 위해 시간을 인자로 받습니다.
//
// Returns:
//   - bool: Stale이 아니고 now < CreatedAt + TTLSeconds 이면 true
func (e *Entry) IsLiveAt(now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.Stale {
		return false
	}
	return now.Before(e.ExpiresAt())
}

// IsLive는 현재 시간 기준으로 엔트리가 살아있는지 확인합니다.
func (e *Entry) IsLive() bool {
	return e.IsLiveAt(time.Now())
}

// Touch는 엔트리에 접근했음을 기록합니다.
// AccessCount를 증가시키고 AccessedAt을 갱신합니다.
func (e *Entry) Touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.AccessCount++
	if now.After(e.AccessedAt) {
		e.AccessedAt = now
	}
}

// AccessInfo는 접근 메타데이터를 잠금 하에 읽습니다.
// Touch와 경쟁하는 퇴거 스캔에서 사용합니다.
func (e *Entry) AccessInfo() (accessedAt time.Time, accessCount uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.AccessedAt, e.AccessCount
}

// MarkStale은 엔트리를 stale로 표시합니다.
// 다음 접근 시 만료된 것으로 취급되어 제거됩니다.
func (e *Entry) MarkStale() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stale = true
}

// HasTag는 엔트리가 해당 태그를 가지고 있는지 확인합니다.
func (e *Entry) HasTag(tag string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RemainingTTL은 남은 만료 시간을 반환합니다.
//
// Returns:
//   - time.Duration: 남은 시간 (이미 만료되었으면 0)
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	remaining := e.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone은 엔트리의 깊은 복사본을 생성합니다.
func (e *Entry) Clone() *Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	payloadCopy := make([]byte, len(e.Payload))
	copy(payloadCopy, e.Payload)

	var tagsCopy []string
	if len(e.Tags) > 0 {
		tagsCopy = make([]string, len(e.Tags))
		copy(tagsCopy, e.Tags)
	}

	var metaCopy map[string]string
	if len(e.Metadata) > 0 {
		metaCopy = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			metaCopy[k] = v
		}
	}

	return &Entry{
		Key:             e.Key,
		Endpoint:        e.Endpoint,
		Payload:         payloadCopy,
		ContentType:     e.ContentType,
		CreatedAt:       e.CreatedAt,
		AccessedAt:      e.AccessedAt,
		AccessCount:     e.AccessCount,
		TTLSeconds:      e.TTLSeconds,
		SizeBytes:       e.SizeBytes,
		Compressed:      e.Compressed,
		CompressionType: e.CompressionType,
		Stale:           e.Stale,
		Tags:            tagsCopy,
		Metadata:        metaCopy,
	}
}
