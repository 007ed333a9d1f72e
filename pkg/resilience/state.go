package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State - состояние Circuit Breaker
type State int

const (
	// StateClosed - нормальная работа, запросы проходят
	StateClosed State = iota

	// StateHalfOpen - тестирование восстановления
	StateHalfOpen

	// StateOpen - circuit открыт, запросы отклоняются
	StateOpen
)

// String - строковое представление состояния
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// stateManager - управление состоянием Circuit Breaker
type stateManager struct {
	mu         sync.Mutex
	state      State
	generation uint64 // Счетчик смены поколений состояний
	counts     Counts
	expiry     time.Time // Когда истекает Open состояние
	config     Config
}

func newStateManager(config Config) *stateManager {
	return &stateManager{config: config}
}

func (sm *stateManager) getState() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

func (sm *stateManager) getCounts() Counts {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.counts
}

// beforeRequest admits a call and returns the generation it belongs to.
// An expired Open state moves to Half-Open here.
func (sm *stateManager) beforeRequest() (uint64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateOpen && time.Now().After(sm.expiry) {
		sm.transition(StateHalfOpen)
	}
	if sm.state == StateOpen {
		return sm.generation, ErrCircuitOpen
	}
	return sm.generation, nil
}

// afterRequest records a result. Results from an earlier generation are
// ignored.
func (sm *stateManager) afterRequest(generation uint64, success bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if generation != sm.generation {
		return
	}

	sm.counts.Requests++
	if success {
		sm.counts.TotalSuccesses++
		sm.counts.ConsecutiveSuccesses++
		sm.counts.ConsecutiveFailures = 0

		if sm.state == StateHalfOpen && sm.counts.ConsecutiveSuccesses >= sm.config.SuccessThreshold {
			sm.transition(StateClosed)
		}
		return
	}

	sm.counts.TotalFailures++
	sm.counts.ConsecutiveFailures++
	sm.counts.ConsecutiveSuccesses = 0

	switch sm.state {
	case StateClosed:
		if sm.counts.ConsecutiveFailures >= sm.config.MaxFailures {
			sm.transition(StateOpen)
		}
	case StateHalfOpen:
		// При любой ошибке в Half-Open возвращаемся в Open
		sm.transition(StateOpen)
	}
}

// transition switches state with sm.mu held.
func (sm *stateManager) transition(to State) {
	from := sm.state
	sm.state = to
	sm.generation++
	sm.counts = Counts{}
	if to == StateOpen {
		sm.expiry = time.Now().Add(sm.config.Timeout)
	}

	// Callback без удержания lock
	if sm.config.OnStateChange != nil {
		go sm.config.OnStateChange(sm.config.Name, from, to)
	}
}

func (sm *stateManager) reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state = StateClosed
	sm.generation++
	sm.counts = Counts{}
	sm.expiry = time.Time{}
}
