// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 규칙 기반 무효화 관리자를 구현합니다.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// InvalidationManager: 규칙 기반 무효화
// =============================================================================
// 세 가지 매처(키 패턴 / 엔드포인트 / 태그)와 두 가지 액션
// (삭제 / stale 표시)을 지원합니다.
//
// - 검증은 전부 아니면 전무입니다: 규칙 목록에 하나라도 잘못된 규칙이
//   있으면 아무것도 적용하지 않고 거부합니다.
// - 적용은 멱등합니다: 같은 규칙을 두 번 적용해도 두 번째는
//   영향받는 키가 없을 뿐입니다.
// =============================================================================

// RuleKind는 무효화 규칙의 매처 종류입니다.
type RuleKind string

const (
	// MatchKeyPattern은 키 글롭 패턴으로 매칭합니다.
	MatchKeyPattern RuleKind = "key_pattern"

	// MatchEndpoint는 엔드포인트의 모든 키를 매칭합니다.
	MatchEndpoint RuleKind = "endpoint"

	// MatchTag는 태그가 붙은 키를 매칭합니다.
	MatchTag RuleKind = "tag"
)

// RuleAction은 매칭된 키에 적용할 동작입니다.
type RuleAction string

const (
	// ActionDelete는 키를 즉시 삭제합니다.
	ActionDelete RuleAction = "delete"

	// ActionMarkStale은 키를 stale로 표시합니다.
	// 다음 조회에서 만료로 처리됩니다.
	ActionMarkStale RuleAction = "mark_stale"
)

// Rule은 무효화 규칙 하나입니다.
type Rule struct {
	Kind   RuleKind   `json:"kind"`
	Target string     `json:"target"`
	Action RuleAction `json:"action"`
}

// RuleEffect는 규칙 하나의 적용 결과입니다.
type RuleEffect struct {
	Rule         Rule `json:"rule"`
	KeysAffected int  `json:"keys_affected"`
}

// InvalidationEffects는 규칙 목록의 적용 결과입니다.
type InvalidationEffects struct {
	TotalAffected int          `json:"total_affected"`
	PerRule       []RuleEffect `json:"per_rule"`
	AppliedAt     time.Time    `json:"applied_at"`
}

// InvalidationObservation은 무효화 이후의 캐시 상태 관측입니다.
type InvalidationObservation struct {
	HitRate     float64   `json:"hit_rate"`
	EntryCount  int64     `json:"entry_count"`
	Evictions   uint64    `json:"evictions"`
	Expirations uint64    `json:"expirations"`
	ObservedAt  time.Time `json:"observed_at"`
}

// =============================================================================
// TagIndex: 태그 → 키 역색인
// =============================================================================

// maxIndexedKeys는 색인이 추적하는 키 수 상한입니다. 저장소에서
// 만료/퇴거로 빠진 키를 색인이 알 수 없으므로 상한으로 묶습니다.
const maxIndexedKeys = 16384

// TagIndex는 태그 기반 무효화를 위한 역색인입니다.
type TagIndex struct {
	mu        sync.RWMutex
	tagToKeys map[string]map[string]struct{}
	keyToTags map[string][]string
}

// NewTagIndex는 새로운 태그 색인을 생성합니다.
func NewTagIndex() *TagIndex {
	return &TagIndex{
		tagToKeys: make(map[string]map[string]struct{}),
		keyToTags: make(map[string][]string),
	}
}

// Add는 키에 태그를 연결합니다.
func (ti *TagIndex) Add(key string, tags []string) {
	if len(tags) == 0 {
		return
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	if _, tracked := ti.keyToTags[key]; !tracked && len(ti.keyToTags) >= maxIndexedKeys {
		ti.evictOne()
	}

	for _, tag := range tags {
		keys, ok := ti.tagToKeys[tag]
		if !ok {
			keys = make(map[string]struct{})
			ti.tagToKeys[tag] = keys
		}
		keys[key] = struct{}{}
	}
	ti.keyToTags[key] = append(ti.keyToTags[key][:0], tags...)
}

// Remove는 키의 모든 태그 연결을 제거합니다.
func (ti *TagIndex) Remove(key string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.removeLocked(key)
}

func (ti *TagIndex) removeLocked(key string) {
	for _, tag := range ti.keyToTags[key] {
		if keys, ok := ti.tagToKeys[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(ti.tagToKeys, tag)
			}
		}
	}
	delete(ti.keyToTags, key)
}

// evictOne은 색인이 가득 차면 키 하나를 버립니다.
// 맵 순회 순서를 이용한 무작위 퇴거입니다. 호출자가 락을 잡습니다.
func (ti *TagIndex) evictOne() {
	for key := range ti.keyToTags {
		ti.removeLocked(key)
		return
	}
}

// KeysForTag는 태그가 붙은 키 목록을 반환합니다.
func (ti *TagIndex) KeysForTag(tag string) []string {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	keys := make([]string, 0, len(ti.tagToKeys[tag]))
	for key := range ti.tagToKeys[tag] {
		keys = append(keys, key)
	}
	return keys
}

// =============================================================================
// InvalidationManager
// =============================================================================

// InvalidationManager는 무효화 규칙의 검증/적용/관측을 담당합니다.
type InvalidationManager struct {
	store *Store
	tags  *TagIndex

	nowFunc func() time.Time
}

// NewInvalidationManager는 새로운 무효화 관리자를 생성합니다.
func NewInvalidationManager(store *Store, tags *TagIndex) *InvalidationManager {
	if tags == nil {
		tags = NewTagIndex()
	}
	return &InvalidationManager{
		store:   store,
		tags:    tags,
		nowFunc: time.Now,
	}
}

// Tags는 태그 색인을 반환합니다.
func (m *InvalidationManager) Tags() *TagIndex {
	return m.tags
}

// ValidateRules는 규칙 목록 전체를 검증합니다.
// 하나라도 잘못되면 에러를 반환하며, 이 경우 아무 규칙도 적용되지 않습니다.
func (m *InvalidationManager) ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("invalidation: no rules provided")
	}

	seen := make(map[string]RuleAction, len(rules))

	for i, rule := range rules {
		if rule.Target == "" {
			return fmt.Errorf("invalidation: rule %d has empty target", i)
		}

		switch rule.Kind {
		case MatchKeyPattern:
			if err := validatePattern(rule.Target); err != nil {
				return fmt.Errorf("invalidation: rule %d: %w", i, err)
			}
		case MatchEndpoint, MatchTag:
			if strings.Contains(rule.Target, "*") {
				return fmt.Errorf("invalidation: rule %d: %s target must not contain wildcards", i, rule.Kind)
			}
		default:
			return fmt.Errorf("invalidation: rule %d has unknown kind %q", i, rule.Kind)
		}

		switch rule.Action {
		case ActionDelete, ActionMarkStale:
		default:
			return fmt.Errorf("invalidation: rule %d has unknown action %q", i, rule.Action)
		}

		// 같은 대상에 상충하는 액션은 거부합니다.
		target := string(rule.Kind) + ":" + rule.Target
		if prev, ok := seen[target]; ok && prev != rule.Action {
			return fmt.Errorf("invalidation: conflicting actions for target %q", rule.Target)
		}
		seen[target] = rule.Action
	}
	return nil
}

// validatePattern은 키 글롭 패턴을 검증합니다.
// 와일드카드는 맨 앞 또는 맨 뒤 하나만 허용합니다.
func validatePattern(pattern string) error {
	count := strings.Count(pattern, "*")
	if count > 1 {
		return fmt.Errorf("pattern %q has multiple wildcards", pattern)
	}
	if count == 1 && pattern[0] != '*' && pattern[len(pattern)-1] != '*' {
		return fmt.Errorf("pattern %q has wildcard in the middle", pattern)
	}
	if pattern == "*" {
		// 전체 삭제는 명시적 Clear를 쓰도록 거부합니다.
		return fmt.Errorf("pattern %q matches everything", pattern)
	}
	return nil
}

// Apply는 검증을 통과한 규칙 목록을 적용합니다.
//
// Returns:
//   - *InvalidationEffects: 규칙별/전체 영향 키 수
//   - error: 검증 실패 또는 백엔드 장애
func (m *InvalidationManager) Apply(ctx context.Context, rules []Rule) (*InvalidationEffects, error) {
	if err := m.ValidateRules(rules); err != nil {
		return nil, err
	}

	effects := &InvalidationEffects{
		PerRule:   make([]RuleEffect, 0, len(rules)),
		AppliedAt: m.nowFunc(),
	}

	for _, rule := range rules {
		keys, err := m.matchKeys(ctx, rule)
		if err != nil {
			return nil, err
		}

		affected := 0
		for _, key := range keys {
			ok, err := m.applyAction(ctx, rule.Action, key)
			if err != nil {
				return nil, err
			}
			if ok {
				affected++
			}
		}

		effects.PerRule = append(effects.PerRule, RuleEffect{Rule: rule, KeysAffected: affected})
		effects.TotalAffected += affected
	}
	return effects, nil
}

// matchKeys는 규칙과 일치하는 키 목록을 수집합니다.
func (m *InvalidationManager) matchKeys(ctx context.Context, rule Rule) ([]string, error) {
	switch rule.Kind {
	case MatchKeyPattern:
		return m.store.Keys(ctx, rule.Target)
	case MatchEndpoint:
		return m.store.Keys(ctx, KeyPrefix+rule.Target+":*")
	case MatchTag:
		return m.tags.KeysForTag(rule.Target), nil
	default:
		return nil, fmt.Errorf("invalidation: unknown kind %q", rule.Kind)
	}
}

// applyAction은 키 하나에 액션을 적용합니다.
func (m *InvalidationManager) applyAction(ctx context.Context, action RuleAction, key string) (bool, error) {
	switch action {
	case ActionDelete:
		deleted, err := m.store.Delete(ctx, key)
		if err != nil {
			return false, err
		}
		if deleted {
			m.tags.Remove(key)
		}
		return deleted, nil

	case ActionMarkStale:
		return m.store.MarkStale(ctx, key)

	default:
		return false, fmt.Errorf("invalidation: unknown action %q", action)
	}
}

// Observe는 무효화 이후의 캐시 상태를 관측합니다.
// 적중률과 엔트리 수를 재표집해 무효화의 효과를 확인하는 용도입니다.
func (m *InvalidationManager) Observe(ctx context.Context) (*InvalidationObservation, error) {
	snapshot := m.store.Stats().Snapshot()

	count, err := m.store.Size(ctx)
	if err != nil {
		// 백엔드가 죽었어도 카운터 관측은 가능합니다.
		count = -1
	}

	return &InvalidationObservation{
		HitRate:     snapshot.HitRate,
		EntryCount:  count,
		Evictions:   snapshot.Evictions,
		Expirations: snapshot.Expirations,
		ObservedAt:  m.nowFunc(),
	}, nil
}
