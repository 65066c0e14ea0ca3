// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 캐시 키 지문(fingerprint) 생성을 구현합니다.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Fingerprinter: 요청 → 결정적 캐시 키
// =============================================================================
// 동일한 의미의 요청은 항상 동일한 키를 생성해야 합니다.
// 페이로드를 정규 직렬화(맵 키를 재귀적으로 사전순 정렬)한 뒤
// "endpoint:canonical"을 SHA-256으로 해시합니다.
//
// 키 형식: "cache:<endpoint>:<hex digest>"
// =============================================================================

// KeyPrefix는 모든 캐시 키의 접두사입니다.
const KeyPrefix = "cache:"

// FingerprintKey는 엔드포인트와 요청 페이로드로부터 캐시 키를 생성합니다.
// 페이로드의 맵 키 순서는 결과에 영향을 주지 않습니다.
//
// Parameters:
//   - endpoint: 엔드포인트 식별자 (예: "/licenses")
//   - payload: 요청 파라미터 (JSON 직렬화 가능해야 함)
//
// Returns:
//   - string: "cache:<endpoint>:<hex>" 형식의 키
//   - error: 페이로드를 직렬화할 수 없는 경우
func FingerprintKey(endpoint string, payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	sum := sha256.Sum256([]byte(endpoint + ":" + canonical))
	return KeyPrefix + endpoint + ":" + hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON은 값을 정규 JSON 문자열로 직렬화합니다.
// 한 번 JSON으로 인코딩한 뒤 다시 디코딩해 재인코딩합니다.
// encoding/json은 맵 키를 사전순으로 출력하므로 이 라운드트립이
// 구조체/맵 구분 없이 결정적인 표현을 만듭니다.
func CanonicalJSON(payload any) (string, error) {
	if payload == nil {
		return "null", nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var normalized any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber() // 숫자 표현을 원본 그대로 유지
	if err := dec.Decode(&normalized); err != nil {
		return "", err
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EndpointFromKey는 캐시 키에서 엔드포인트를 추출합니다.
//
// Returns:
//   - string: 엔드포인트
//   - bool: 키 형식이 올바르면 true
func EndpointFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}

	rest := key[len(KeyPrefix):]
	// 해시는 ':'를 포함하지 않으므로 마지막 구분자를 기준으로 자릅니다.
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}
