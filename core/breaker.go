// Package core는 ResCache의 핵심 엔진을 구현합니다.
// 이 파일은 백엔드 장애 우회를 위한 서킷 브레이커를 구현합니다.
package core

import (
	"errors"
	"sync/atomic"
	"time"
)

// =============================================================================
// CircuitBreaker: 백엔드 장애 자동 우회
// =============================================================================
// 백엔드(Redis, PostgreSQL 등) 장애 시 요청을 즉시 차단해
// 타임아웃 누적으로 전체가 느려지는 것을 방지합니다.
// 차단 중에는 엔진이 degraded 모드로 응답합니다: 조회는 미스로,
// 쓰기는 무시로 처리되며 호출자는 에러를 받지 않습니다.
//
// 상태:
// - Closed: 정상 동작, 요청 통과
// - Open: 장애 상태, 요청 즉시 실패
// - HalfOpen: 복구 테스트 중, 일부 요청만 통과
// =============================================================================

// ErrStoreUnavailable은 백엔드가 차단 상태일 때 내부적으로 사용되는
// 에러입니다. 공개 연산은 이 에러를 호출자에게 전파하지 않고
// degraded 플래그로 변환합니다.
var ErrStoreUnavailable = errors.New("backing store unavailable")

// CircuitState는 서킷 브레이커 상태입니다.
type CircuitState int32

const (
	StateClosed   CircuitState = iota // 정상
	StateOpen                         // 차단
	StateHalfOpen                     // 복구 테스트 중
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig는 서킷 브레이커 설정입니다.
type BreakerConfig struct {
	// FailureThreshold는 Open 상태로 전환하기 위한 연속 실패 횟수입니다.
	FailureThreshold int

	// SuccessThreshold는 Closed 상태로 복구하기 위한 연속 성공 횟수입니다.
	SuccessThreshold int

	// Timeout은 Open 상태에서 HalfOpen으로 전환되기까지의 시간입니다.
	Timeout time.Duration

	// MaxHalfOpenRequests는 HalfOpen 상태에서 허용되는 최대 동시 요청 수입니다.
	MaxHalfOpenRequests int

	// OnStateChange는 상태 변경 시 호출되는 콜백입니다.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig는 기본 설정을 반환합니다.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker는 서킷 브레이커입니다.
type CircuitBreaker struct {
	config *BreakerConfig

	state            int32 // atomic
	failures         int32 // atomic
	successes        int32 // atomic
	lastFailureTime  int64 // atomic, unix nano
	halfOpenRequests int32 // atomic
}

// NewCircuitBreaker는 새로운 서킷 브레이커를 생성합니다.
func NewCircuitBreaker(config *BreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}

	return &CircuitBreaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// State는 현재 상태를 반환합니다.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt32(&cb.state))
}

// Allow는 요청을 허용할지 결정합니다.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed:
		return true

	case StateOpen:
		// Timeout이 지났으면 HalfOpen으로 전환
		lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
		if time.Since(time.Unix(0, lastFailure)) > cb.config.Timeout {
			cb.transitionTo(StateHalfOpen)
			return cb.tryHalfOpenRequest()
		}
		return false

	case StateHalfOpen:
		return cb.tryHalfOpenRequest()

	default:
		return true
	}
}

// tryHalfOpenRequest는 HalfOpen 상태에서 요청을 시도합니다.
func (cb *CircuitBreaker) tryHalfOpenRequest() bool {
	current := atomic.AddInt32(&cb.halfOpenRequests, 1)
	if int(current) <= cb.config.MaxHalfOpenRequests {
		return true
	}
	atomic.AddInt32(&cb.halfOpenRequests, -1)
	return false
}

// RecordSuccess는 성공을 기록합니다.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		atomic.StoreInt32(&cb.failures, 0)

	case StateHalfOpen:
		atomic.AddInt32(&cb.halfOpenRequests, -1)
		successes := atomic.AddInt32(&cb.successes, 1)

		if int(successes) >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure는 실패를 기록합니다.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch cb.State() {
	case StateClosed:
		failures := atomic.AddInt32(&cb.failures, 1)

		if int(failures) >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		atomic.AddInt32(&cb.halfOpenRequests, -1)
		cb.transitionTo(StateOpen)
	}
}

// transitionTo는 상태를 전환합니다.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := CircuitState(atomic.SwapInt32(&cb.state, int32(newState)))

	if oldState == newState {
		return
	}

	// 상태별 초기화
	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.failures, 0)
		atomic.StoreInt32(&cb.successes, 0)

	case StateOpen:
		atomic.StoreInt32(&cb.successes, 0)

	case StateHalfOpen:
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
		atomic.StoreInt32(&cb.successes, 0)
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// Reset은 서킷 브레이커를 초기 상태로 리셋합니다.
func (cb *CircuitBreaker) Reset() {
	cb.transitionTo(StateClosed)
}
