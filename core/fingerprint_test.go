package core

import (
	"strings"
	"testing"
)

func TestFingerprintKey_결정성(t *testing.T) {
	key1, err := FingerprintKey("/licenses", map[string]any{"user": "42", "page": 1})
	if err != nil {
		t.Fatalf("키 생성 실패: %v", err)
	}
	key2, err := FingerprintKey("/licenses", map[string]any{"page": 1, "user": "42"})
	if err != nil {
		t.Fatalf("키 생성 실패: %v", err)
	}

	if key1 != key2 {
		t.Errorf("맵 키 순서가 결과에 영향을 줌: %s != %s", key1, key2)
	}
}

func TestFingerprintKey_형식(t *testing.T) {
	key, err := FingerprintKey("/licenses", map[string]string{"user": "42"})
	if err != nil {
		t.Fatalf("키 생성 실패: %v", err)
	}

	if !strings.HasPrefix(key, "cache:/licenses:") {
		t.Errorf("키 접두사가 올바르지 않음: %s", key)
	}

	// SHA-256 hex = 64자
	hash := key[len("cache:/licenses:"):]
	if len(hash) != 64 {
		t.Errorf("해시 길이가 64가 아님: %d", len(hash))
	}
}

func TestFingerprintKey_구분(t *testing.T) {
	key1, _ := FingerprintKey("/licenses", map[string]string{"user": "42"})
	key2, _ := FingerprintKey("/licenses", map[string]string{"user": "43"})
	key3, _ := FingerprintKey("/products", map[string]string{"user": "42"})

	if key1 == key2 {
		t.Error("다른 페이로드가 같은 키를 생성함")
	}
	if key1 == key3 {
		t.Error("다른 엔드포인트가 같은 키를 생성함")
	}
}

func TestFingerprintKey_nil페이로드(t *testing.T) {
	key1, err := FingerprintKey("/health", nil)
	if err != nil {
		t.Fatalf("nil 페이로드 처리 실패: %v", err)
	}
	key2, _ := FingerprintKey("/health", nil)

	if key1 != key2 {
		t.Error("nil 페이로드의 키가 결정적이지 않음")
	}
}

func TestFingerprintKey_직렬화불가(t *testing.T) {
	_, err := FingerprintKey("/bad", map[string]any{"fn": func() {}})
	if err == nil {
		t.Error("직렬화 불가능한 페이로드에 에러가 없음")
	}
}

func TestCanonicalJSON_중첩맵(t *testing.T) {
	a, _ := CanonicalJSON(map[string]any{
		"outer": map[string]any{"b": 2, "a": 1},
		"list":  []int{1, 2, 3},
	})
	b, _ := CanonicalJSON(map[string]any{
		"list":  []int{1, 2, 3},
		"outer": map[string]any{"a": 1, "b": 2},
	})

	if a != b {
		t.Errorf("중첩 맵 정규화 실패: %s != %s", a, b)
	}
}

func TestEndpointFromKey(t *testing.T) {
	key, _ := FingerprintKey("/licenses", map[string]string{"user": "42"})

	endpoint, ok := EndpointFromKey(key)
	if !ok {
		t.Fatal("키에서 엔드포인트를 추출하지 못함")
	}
	if endpoint != "/licenses" {
		t.Errorf("엔드포인트가 다름: got %s, want /licenses", endpoint)
	}

	if _, ok := EndpointFromKey("not-a-cache-key"); ok {
		t.Error("잘못된 키 형식이 통과됨")
	}
}

func BenchmarkFingerprintKey(b *testing.B) {
	payload := map[string]any{"user": "42", "page": 3, "filter": "active"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FingerprintKey("/licenses", payload)
	}
}
