package resilience

import (
	"fmt"
	"time"
)

// Config - конфигурация Circuit Breaker
type Config struct {
	// Name - имя Circuit Breaker для логирования
	Name string

	// MaxFailures - количество последовательных ошибок для открытия
	MaxFailures uint32

	// Timeout - время в Open состоянии перед переходом в Half-Open
	Timeout time.Duration

	// SuccessThreshold - количество успешных вызовов в Half-Open для закрытия
	SuccessThreshold uint32

	// IsFailure decides which errors count against the breaker. Nil counts
	// every non-nil error.
	IsFailure func(err error) bool

	// OnStateChange - callback при изменении состояния. It runs in its own
	// goroutine.
	OnStateChange func(name string, from State, to State)
}

// Counts - счетчики запросов
type Counts struct {
	Requests             uint32 // Всего запросов
	TotalSuccesses       uint32 // Всего успешных
	TotalFailures        uint32 // Всего неудачных
	ConsecutiveSuccesses uint32 // Последовательных успешных
	ConsecutiveFailures  uint32 // Последовательных неудачных
}

// Validate - валидация конфигурации
func (c *Config) Validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("MaxFailures must be greater than 0")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be greater than 0")
	}

	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1 // По умолчанию 1 успешный вызов
	}

	if c.Name == "" {
		c.Name = "circuit-breaker"
	}

	return nil
}

// DefaultConfig opens after 5 consecutive failures and probes again after
// 30 seconds.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 1,
	}
}
