// Package resilience provides the circuit breaker that keeps optional
// dependencies, such as the Redis result cache, from slowing every query
// down while they are unavailable.
package resilience

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen - circuit breaker открыт
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ExecuteFunc - функция для выполнения с circuit breaker
type ExecuteFunc func(ctx context.Context) error

// CircuitBreaker - защита от каскадных сбоев
type CircuitBreaker struct {
	config       Config
	stateManager *stateManager
}

// New - создать новый Circuit Breaker
func New(config Config) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	return &CircuitBreaker{
		config:       config,
		stateManager: newStateManager(config),
	}, nil
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn. fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn ExecuteFunc) error {
	generation, err := cb.stateManager.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			// При panic считаем как ошибку
			cb.stateManager.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	cb.stateManager.afterRequest(generation, !cb.isFailure(err))
	return err
}

func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.config.IsFailure != nil {
		return cb.config.IsFailure(err)
	}
	return true
}

// State - получить текущее состояние
func (cb *CircuitBreaker) State() State {
	return cb.stateManager.getState()
}

// Counts - получить счетчики текущего состояния
func (cb *CircuitBreaker) Counts() Counts {
	return cb.stateManager.getCounts()
}

// Reset - сбросить состояние в Closed
func (cb *CircuitBreaker) Reset() {
	cb.stateManager.reset()
}

// Name - имя Circuit Breaker
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// String - строковое представление
func (cb *CircuitBreaker) String() string {
	counts := cb.Counts()
	return fmt.Sprintf("CircuitBreaker(%s state=%s failures=%d/%d)",
		cb.config.Name, cb.State(), counts.ConsecutiveFailures, cb.config.MaxFailures)
}
