// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 백엔드 저장소 어댑터 인터페이스를 정의합니다.
package core

import (
	"context"
	"time"
)

// =============================================================================
// Adapter: 백엔드 저장소 추상화
// =============================================================================
// 코어 엔진은 이 인터페이스를 통해서만 저장소에 접근합니다.
// 구현체: adapters/memory, adapters/redis, adapters/sqlite, adapters/postgres
//
// 규약:
// - Get: 키가 없으면 (nil, nil)을 반환합니다. 없는 키는 에러가 아닙니다.
// - Set: 동일 키 재설정은 덮어쓰기입니다.
// - Delete: 없는 키 삭제는 (false, nil)입니다. 멱등합니다.
// - 만료 판정은 코어의 책임입니다. 어댑터는 네이티브 TTL을 추가로
//   적용할 수 있지만(예: Redis SETEX) 필수는 아닙니다.
// =============================================================================

// AdapterType은 어댑터의 종류입니다.
type AdapterType string

const (
	AdapterTypeMemory   AdapterType = "memory"
	AdapterTypeRedis    AdapterType = "redis"
	AdapterTypeSQLite   AdapterType = "sqlite"
	AdapterTypePostgres AdapterType = "postgres"
)

// Adapter는 백엔드 저장소가 구현해야 하는 인터페이스입니다.
type Adapter interface {
	// Name은 어댑터 인스턴스 이름을 반환합니다.
	Name() string

	// Type은 어댑터 종류를 반환합니다.
	Type() AdapterType

	// Connect는 저장소에 연결합니다.
	Connect(ctx context.Context) error

	// Disconnect는 연결을 종료합니다.
	Disconnect(ctx context.Context) error

	// Ping은 저장소 상태를 확인합니다.
	Ping(ctx context.Context) error

	// Get은 키로 엔트리를 조회합니다. 없으면 (nil, nil)입니다.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set은 엔트리를 저장합니다.
	Set(ctx context.Context, entry *Entry) error

	// Delete는 키를 삭제합니다. 삭제 여부를 반환하며 멱등합니다.
	Delete(ctx context.Context, key string) (bool, error)

	// Has는 키 존재 여부를 확인합니다.
	Has(ctx context.Context, key string) (bool, error)

	// Keys는 패턴과 일치하는 키 목록을 반환합니다.
	// 패턴: "prefix*", "*suffix", 정확한 키. "*"는 전체입니다.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Clear는 모든 엔트리를 삭제합니다.
	Clear(ctx context.Context) error

	// Size는 저장된 엔트리 수를 반환합니다.
	Size(ctx context.Context) (int64, error)
}

// =============================================================================
// 선택적 확장 인터페이스
// =============================================================================

// VictimSelector는 용량 초과 시 퇴거 대상을 고를 수 있는 어댑터가
// 구현하는 선택적 인터페이스입니다. 전략(LRU/LFU)은 어댑터 설정을 따릅니다.
type VictimSelector interface {
	// EvictVictim은 전략에 따라 희생자 하나를 제거하고 그 키를 반환합니다.
	//
	// Returns:
	//   - string: 제거된 키
	//   - bool: 제거할 엔트리가 있었는지 여부
	EvictVictim(ctx context.Context) (string, bool, error)
}

// StaleMarker는 삭제 대신 stale 표시를 지원하는 어댑터의
// 선택적 인터페이스입니다. 미구현 시 코어가 Get+Set으로 대체합니다.
type StaleMarker interface {
	MarkStale(ctx context.Context, key string) (bool, error)
}

// Toucher는 조회 시 접근 메타데이터(AccessedAt/AccessCount)를 저장소에
// 반영할 수 있는 어댑터의 선택적 인터페이스입니다. Get이 복사본을
// 반환하는 어댑터(redis/sqlite/postgres)는 이 반영이 없으면 저장된
// 접근 기록이 쓰기 시점에 멈춰 희생자 선택이 뒤틀립니다.
// 미구현 시 코어가 갱신된 엔트리를 다시 써서 반영합니다.
type Toucher interface {
	// Touch는 accessed_at을 갱신하고 access_count를 1 증가시킵니다.
	// 없는 키는 무시합니다.
	Touch(ctx context.Context, key string, accessedAt time.Time) error
}

// =============================================================================
// MatchSimplePattern: 어댑터 공용 키 패턴 매칭
// =============================================================================

// MatchSimplePattern은 단순 글롭 패턴과 키를 비교합니다.
// 지원: "*" (전체), "prefix*", "*suffix", 정확한 일치.
func MatchSimplePattern(key, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	n := len(pattern)
	if pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix
	}
	return key == pattern
}

// =============================================================================
// AdapterStats
// =============================================================================

// AdapterStats는 어댑터 수준 통계입니다.
type AdapterStats struct {
	Name         string        `json:"name"`
	Type         AdapterType   `json:"type"`
	Connected    bool          `json:"connected"`
	EntryCount   int64         `json:"entry_count"`
	BytesStored  int64         `json:"bytes_stored"`
	Uptime       time.Duration `json:"uptime"`
	CircuitState string        `json:"circuit_state,omitempty"`
}
