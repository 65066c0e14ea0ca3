// Package test는 메모리 백엔드 위에서 엔진 전체 흐름을 검증합니다.
package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bridgify/rescache"
	"github.com/bridgify/rescache/adapters/redis"
)

type apiResponse struct {
	Status  string   `json:"status" msgpack:"status"`
	Items   []string `json:"items" msgpack:"items"`
	Version int      `json:"version" msgpack:"version"`
}

func TestE2E_전체흐름(t *testing.T) {
	ctx := context.Background()

	cache, err := rescache.Quick(
		rescache.WithMaxSize(100),
		rescache.WithDefaultTTL(300*time.Second),
	)
	if err != nil {
		t.Fatalf("캐시 생성 실패: %v", err)
	}
	defer cache.Close(ctx)

	payload := map[string]string{"user": "42"}
	response := apiResponse{Status: "ok", Items: []string{"lic-1", "lic-2"}, Version: 7}

	// 1. 저장
	receipt, err := cache.StoreResponse(ctx, "/licenses", payload, response,
		rescache.WithTTL(120*time.Second), rescache.WithTags("license"))
	if err != nil {
		t.Fatalf("저장 실패: %v", err)
	}
	if receipt.TTL != 120*time.Second {
		t.Errorf("TTL이 다름: %v", receipt.TTL)
	}

	// 2. 조회 (msgpack 봉투 왕복)
	var out apiResponse
	result, err := cache.Lookup(ctx, "/licenses", payload, &out)
	if err != nil {
		t.Fatalf("조회 실패: %v", err)
	}
	if !result.Found {
		t.Fatal("저장한 응답을 찾지 못함")
	}
	if out.Status != "ok" || len(out.Items) != 2 || out.Version != 7 {
		t.Errorf("역직렬화 결과가 다름: %+v", out)
	}

	// 3. 같은 의미의 페이로드는 같은 키입니다.
	result2, _ := cache.Lookup(ctx, "/licenses", map[string]string{"user": "42"}, nil)
	if result2.Key != result.Key {
		t.Error("같은 페이로드의 키가 다름")
	}

	// 4. 전략 최적화 보고서
	report, err := cache.OptimizeStrategy(ctx, "/licenses")
	if err != nil {
		t.Fatalf("최적화 실패: %v", err)
	}
	if report.Strategy != "lru" {
		t.Errorf("기본 전략이 다름: %s", report.Strategy)
	}

	// 5. 요구량 예측
	forecast, err := cache.PredictRequirements(ctx, time.Hour)
	if err != nil {
		t.Fatalf("예측 실패: %v", err)
	}
	if forecast.Timestamp.IsZero() {
		t.Error("예측 타임스탬프가 비어있음")
	}

	// 6. 태그 무효화 후 미스
	invReport, err := cache.ManageInvalidation(ctx, []rescache.Rule{
		{Kind: rescache.MatchTag, Target: "license", Action: rescache.ActionDelete},
	})
	if err != nil {
		t.Fatalf("무효화 실패: %v", err)
	}
	if invReport.Effects.TotalAffected != 1 {
		t.Errorf("무효화 영향이 다름: %d", invReport.Effects.TotalAffected)
	}

	result3, err := cache.Lookup(ctx, "/licenses", payload, nil)
	if err != nil {
		t.Fatalf("무효화 후 조회 실패: %v", err)
	}
	if result3.Found {
		t.Error("무효화된 응답이 조회됨")
	}
}

func TestE2E_엔드포인트무효화(t *testing.T) {
	ctx := context.Background()

	cache, err := rescache.Quick()
	if err != nil {
		t.Fatalf("캐시 생성 실패: %v", err)
	}
	defer cache.Close(ctx)

	for _, user := range []string{"1", "2", "3"} {
		cache.StoreResponse(ctx, "/licenses", map[string]string{"user": user}, "data")
	}
	cache.StoreResponse(ctx, "/products", map[string]string{"user": "1"}, "data")

	report, err := cache.ManageInvalidation(ctx, []rescache.Rule{
		{Kind: rescache.MatchEndpoint, Target: "/licenses", Action: rescache.ActionMarkStale},
	})
	if err != nil {
		t.Fatalf("무효화 실패: %v", err)
	}
	if report.Effects.TotalAffected != 3 {
		t.Errorf("영향 키 수가 다름: %d", report.Effects.TotalAffected)
	}

	// stale 표시된 엔드포인트는 전부 미스입니다.
	result, _ := cache.Lookup(ctx, "/licenses", map[string]string{"user": "1"}, nil)
	if result.Found {
		t.Error("stale 응답이 조회됨")
	}

	// 다른 엔드포인트는 영향이 없습니다.
	result, _ = cache.Lookup(ctx, "/products", map[string]string{"user": "1"}, nil)
	if !result.Found {
		t.Error("무관한 엔드포인트가 무효화됨")
	}
}

func TestE2E_용량퇴거와통계(t *testing.T) {
	ctx := context.Background()

	cache, err := rescache.Quick(rescache.WithMaxSize(5))
	if err != nil {
		t.Fatalf("캐시 생성 실패: %v", err)
	}
	defer cache.Close(ctx)

	for i := 0; i < 10; i++ {
		cache.StoreResponse(ctx, "/licenses", map[string]int{"page": i}, "data")
	}

	size, err := cache.StoreLayer().Size(ctx)
	if err != nil {
		t.Fatalf("크기 조회 실패: %v", err)
	}
	if size > 5 {
		t.Errorf("용량 제한이 지켜지지 않음: %d", size)
	}

	snap := cache.Stats().Snapshot()
	if snap.Evictions != 5 {
		t.Errorf("퇴거 카운터가 다름: got %d, want 5", snap.Evictions)
	}
	if snap.Expirations != 0 {
		t.Error("퇴거가 만료로 집계됨")
	}
}

// TestE2E_Redis는 REDIS_ADDR 환경 변수가 있을 때만 실행됩니다.
func TestE2E_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR이 설정되지 않아 건너뜀")
	}

	ctx := context.Background()
	redisCfg := redis.DefaultConfig()
	redisCfg.Addr = addr
	redisCfg.KeyPrefix = "rescache-test:"

	cache, err := rescache.WithRedis(ctx, redisCfg)
	if err != nil {
		t.Fatalf("Redis 캐시 생성 실패: %v", err)
	}
	defer cache.Close(ctx)
	defer cache.StoreLayer().Adapter().Clear(ctx)

	payload := map[string]string{"user": "42"}
	if _, err := cache.StoreResponse(ctx, "/licenses", payload, apiResponse{Status: "ok"}); err != nil {
		t.Fatalf("저장 실패: %v", err)
	}

	var out apiResponse
	result, err := cache.Lookup(ctx, "/licenses", payload, &out)
	if err != nil {
		t.Fatalf("조회 실패: %v", err)
	}
	if !result.Found || out.Status != "ok" {
		t.Errorf("Redis 왕복 실패: result=%+v out=%+v", result, out)
	}
}
