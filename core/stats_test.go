package core

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStatsTracker_카운터(t *testing.T) {
	tracker := NewStatsTracker()

	tracker.RecordHit("/a", 2*time.Millisecond)
	tracker.RecordHit("/a", 4*time.Millisecond)
	tracker.RecordMiss("/a")
	tracker.RecordSet("/a", 100, 300*time.Second)
	tracker.RecordEviction()
	tracker.RecordExpiration()

	snap := tracker.Snapshot()
	if snap.Hits != 2 || snap.Misses != 1 || snap.Sets != 1 {
		t.Errorf("카운터가 다름: %+v", snap)
	}
	if snap.Evictions != 1 || snap.Expirations != 1 {
		t.Errorf("퇴거/만료 카운터가 다름: %+v", snap)
	}

	want := 2.0 / 3.0
	if snap.HitRate < want-0.001 || snap.HitRate > want+0.001 {
		t.Errorf("적중률이 다름: got %f, want %f", snap.HitRate, want)
	}
}

func TestStatsTracker_엔드포인트집계(t *testing.T) {
	tracker := NewStatsTracker()

	tracker.RecordHit("/a", time.Millisecond)
	tracker.RecordMiss("/a")
	tracker.RecordSet("/a", 200, 600*time.Second)
	tracker.RecordMiss("/b")

	es, ok := tracker.GetEndpointStats("/a")
	if !ok {
		t.Fatal("엔드포인트 집계가 없음")
	}
	if es.TotalRequests() != 2 {
		t.Errorf("요청 수가 다름: %d", es.TotalRequests())
	}
	if es.HitRate() != 0.5 {
		t.Errorf("엔드포인트 적중률이 다름: %f", es.HitRate())
	}
	if es.AvgTTLSeconds != 600 {
		t.Errorf("평균 TTL이 다름: %f", es.AvgTTLSeconds)
	}
	if es.TotalBytes != 200 {
		t.Errorf("누적 크기가 다름: %d", es.TotalBytes)
	}

	if _, ok := tracker.GetEndpointStats("/none"); ok {
		t.Error("없는 엔드포인트가 집계를 반환함")
	}

	if len(tracker.Endpoints()) != 2 {
		t.Errorf("엔드포인트 수가 다름: %v", tracker.Endpoints())
	}
}

func TestStatsTracker_Reset(t *testing.T) {
	tracker := NewStatsTracker()

	tracker.RecordHit("/a", time.Millisecond)
	tracker.RecordSet("/a", 100, time.Minute)

	before := tracker.Snapshot().LastReset
	time.Sleep(time.Millisecond)
	tracker.Reset()

	snap := tracker.Snapshot()
	if snap.Hits != 0 || snap.Sets != 0 {
		t.Errorf("리셋 후 카운터가 남아있음: %+v", snap)
	}
	if !snap.LastReset.After(before) {
		t.Error("LastReset이 갱신되지 않음")
	}
	if _, ok := tracker.GetEndpointStats("/a"); ok {
		t.Error("리셋 후 엔드포인트 집계가 남아있음")
	}
}

func TestStatsTracker_Prometheus(t *testing.T) {
	tracker := NewStatsTracker()
	tracker.RecordHit("/a", time.Millisecond)
	tracker.RecordMiss("/a")

	rec := httptest.NewRecorder()
	tracker.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, metric := range []string{
		"rescache_hits_total 1",
		"rescache_misses_total 1",
		"rescache_evictions_total 0",
		"rescache_expirations_total 0",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("메트릭 누락: %s", metric)
		}
	}
}
