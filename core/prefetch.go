// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 프리페치 스케줄러(우선순위 큐 + 백그라운드 소비자)를 구현합니다.
package core

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// PrefetchScheduler: 투기적 프리페치
// =============================================================================
// 적중 확률이 높은 키를 미리 계산해 캐시에 채워 넣습니다.
//
// - 큐는 용량이 고정된 최대 힙입니다. 가득 찬 상태에서 더 높은
//   우선순위의 작업이 오면 가장 낮은 작업을 버립니다. 낮으면 새 작업을
//   버립니다. 어느 쪽도 에러가 아닙니다(통계로만 집계).
// - 등록은 fire-and-forget: 요청 경로는 프리페치를 기다리지 않습니다.
// - 같은 키의 중복 등록과 처리 중(in-flight) 재등록은 무시됩니다.
// - 해석 실패는 로그만 남기고 버립니다. 재시도 없음: 가치가 있으면
//   나중에 다시 등록됩니다.
// =============================================================================

// TaskState는 프리페치 작업의 수명 주기 상태입니다.
type TaskState int32

const (
	TaskEnqueued TaskState = iota
	TaskResolving
	TaskCompleted
	TaskFailed
)

// PrefetchTask는 큐에 등록된 프리페치 작업입니다.
type PrefetchTask struct {
	// Key는 프리페치할 캐시 키입니다.
	Key string

	// Priority는 예측 적중 확률 기반 우선순위입니다. 높을수록 먼저 처리됩니다.
	Priority float64

	// Context는 해석에 필요한 불투명 정보입니다.
	Context map[string]string

	// EnqueuedAt은 등록 시간입니다.
	EnqueuedAt time.Time

	index int // heap 내부 인덱스
}

// ResolveFunc는 프리페치 작업을 실제로 해석(계산+캐시)하는 함수입니다.
type ResolveFunc func(ctx context.Context, task *PrefetchTask) error

// =============================================================================
// taskHeap: 우선순위 최대 힙
// =============================================================================

type taskHeap []*PrefetchTask

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].Priority > h[j].Priority }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *taskHeap) Push(x any) {
	t := x.(*PrefetchTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// =============================================================================
// PrefetchScheduler
// =============================================================================

// PrefetchStats는 프리페치 스케줄러 통계입니다.
type PrefetchStats struct {
	Enqueued   uint64 `json:"enqueued"`
	Dropped    uint64 `json:"dropped"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	QueueDepth int    `json:"queue_depth"`
}

// PrefetchScheduler는 용량 제한 우선순위 큐와 소비자를 관리합니다.
type PrefetchScheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskHeap
	queued   map[string]*PrefetchTask // 키 → 대기 중 작업
	inflight map[string]struct{}      // 처리 중인 키
	capacity int

	resolve ResolveFunc
	logger  *slog.Logger

	enqueued  uint64 // atomic
	dropped   uint64 // atomic
	completed uint64 // atomic
	failed    uint64 // atomic

	stopped bool
	wg      sync.WaitGroup
}

// NewPrefetchScheduler는 새로운 스케줄러를 생성합니다.
//
// Parameters:
//   - capacity: 큐 최대 크기 (0 이하이면 100)
//   - resolve: 작업 해석 함수
func NewPrefetchScheduler(capacity int, resolve ResolveFunc) *PrefetchScheduler {
	if capacity <= 0 {
		capacity = 100
	}

	s := &PrefetchScheduler{
		queue:    make(taskHeap, 0, capacity),
		queued:   make(map[string]*PrefetchTask),
		inflight: make(map[string]struct{}),
		capacity: capacity,
		resolve:  resolve,
		logger:   slog.Default(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetLogger는 로거를 교체합니다.
func (s *PrefetchScheduler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Enqueue는 작업을 큐에 등록합니다. 절대 블록하지 않습니다.
//
// Returns:
//   - bool: 큐에 들어갔으면 true (중복/용량 탈락이면 false)
func (s *PrefetchScheduler) Enqueue(key string, priority float64, taskCtx map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	// 중복 억제: 이미 대기 중이거나 처리 중인 키는 무시
	if _, ok := s.inflight[key]; ok {
		return false
	}
	if existing, ok := s.queued[key]; ok {
		// 더 높은 우선순위로 갱신만 합니다.
		if priority > existing.Priority {
			existing.Priority = priority
			heap.Fix(&s.queue, existing.index)
		}
		return false
	}

	task := &PrefetchTask{
		Key:        key,
		Priority:   priority,
		Context:    taskCtx,
		EnqueuedAt: time.Now(),
	}

	if len(s.queue) >= s.capacity {
		lowest := s.lowestTask()
		if lowest == nil || priority <= lowest.Priority {
			// 새 작업이 더 낮으면 조용히 버립니다.
			atomic.AddUint64(&s.dropped, 1)
			return false
		}
		heap.Remove(&s.queue, lowest.index)
		delete(s.queued, lowest.Key)
		atomic.AddUint64(&s.dropped, 1)
	}

	heap.Push(&s.queue, task)
	s.queued[key] = task
	atomic.AddUint64(&s.enqueued, 1)
	s.cond.Signal()
	return true
}

// lowestTask는 힙에서 우선순위가 가장 낮은 작업을 찾습니다.
// 최대 힙의 최소 원소는 리프에 있으므로 선형 탐색합니다.
// 큐 용량이 작아 비용은 무시할 수준입니다.
func (s *PrefetchScheduler) lowestTask() *PrefetchTask {
	var lowest *PrefetchTask
	for _, t := range s.queue {
		if lowest == nil || t.Priority < lowest.Priority {
			lowest = t
		}
	}
	return lowest
}

// Start는 소비자 고루틴을 시작합니다.
func (s *PrefetchScheduler) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.consumeLoop()
	}
}

// Stop은 소비자를 중지하고 종료를 기다립니다.
// 대기 중인 작업은 버려집니다.
func (s *PrefetchScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// consumeLoop는 큐에서 작업을 꺼내 해석하는 소비자 루프입니다.
func (s *PrefetchScheduler) consumeLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}

		task := heap.Pop(&s.queue).(*PrefetchTask)
		delete(s.queued, task.Key)
		s.inflight[task.Key] = struct{}{}
		s.mu.Unlock()

		s.resolveTask(task)

		s.mu.Lock()
		delete(s.inflight, task.Key)
		s.mu.Unlock()
	}
}

// resolveTask는 작업 하나를 해석합니다. 실패는 로그만 남깁니다.
func (s *PrefetchScheduler) resolveTask(task *PrefetchTask) {
	if s.resolve == nil {
		atomic.AddUint64(&s.failed, 1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.resolve(ctx, task); err != nil {
		atomic.AddUint64(&s.failed, 1)
		s.logger.Warn("prefetch resolve failed",
			slog.String("key", task.Key),
			slog.Float64("priority", task.Priority),
			slog.String("error", err.Error()))
		return
	}
	atomic.AddUint64(&s.completed, 1)
}

// Stats는 스케줄러 통계를 반환합니다.
func (s *PrefetchScheduler) Stats() PrefetchStats {
	s.mu.Lock()
	depth := len(s.queue)
	s.mu.Unlock()

	return PrefetchStats{
		Enqueued:   atomic.LoadUint64(&s.enqueued),
		Dropped:    atomic.LoadUint64(&s.dropped),
		Completed:  atomic.LoadUint64(&s.completed),
		Failed:     atomic.LoadUint64(&s.failed),
		QueueDepth: depth,
	}
}

// QueueDepth는 현재 대기 중인 작업 수를 반환합니다.
func (s *PrefetchScheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
