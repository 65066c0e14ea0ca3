// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 키 단위 상호 배제를 위한 샤드 락 테이블을 구현합니다.
package core

// =============================================================================
// KeyLockTable: 고정 샤드 키 락
// =============================================================================
// 키마다 뮤텍스를 무한정 만드는 대신 고정 크기(256) 뮤텍스 배열을 두고
// 키의 FNV-1a 해시로 샤드를 고릅니다. 서로 다른 키가 같은 샤드에
// 걸리면 잠깐 직렬화될 뿐 정합성에는 영향이 없습니다.
// 메모리 사용량은 키 개수와 무관하게 상수입니다.
// =============================================================================

import "sync"

// lockShardCount는 락 샤드 수입니다. 2의 거듭제곱이어야 합니다.
const lockShardCount = 256

// KeyLockTable은 키 단위 쓰기 배제를 제공하는 고정 샤드 락 테이블입니다.
type KeyLockTable struct {
	shards [lockShardCount]sync.Mutex
}

// NewKeyLockTable은 새로운 락 테이블을 생성합니다.
func NewKeyLockTable() *KeyLockTable {
	return &KeyLockTable{}
}

// Lock은 키에 해당하는 샤드를 잠그고 해제 함수를 반환합니다.
//
// 사용 예:
//
//	unlock := locks.Lock(key)
//	defer unlock()
func (t *KeyLockTable) Lock(key string) func() {
	shard := &t.shards[lockShardIndex(key)]
	shard.Lock()
	return shard.Unlock
}

// lockShardIndex는 FNV-1a 해시로 샤드 인덱스를 계산합니다.
func lockShardIndex(key string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= 16777619
	}
	return hash & (lockShardCount - 1)
}
