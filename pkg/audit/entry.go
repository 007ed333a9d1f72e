package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// Level - уровень детализации логирования
type Level int

const (
	// LevelMinimal - только операция, статус, счетчики
	LevelMinimal Level = iota

	// LevelStandard - плюс текст шаблона
	LevelStandard

	// LevelFull - плюс значения параметров
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel parses minimal, standard or full. Empty means standard.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return LevelMinimal, nil
	case "", "standard":
		return LevelStandard, nil
	case "full":
		return LevelFull, nil
	}
	return 0, fmt.Errorf("unknown audit level %q (want minimal, standard or full)", s)
}

// Operation - тип операции
type Operation string

const (
	OpQuery   Operation = "query"   // translated template
	OpNative  Operation = "native"  // query sent as written
	OpExecute Operation = "execute" // stored procedure
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry - запись в audit логе
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`

	// User - пользователь ОС или сервиса
	User    string       `json:"user,omitempty"`
	Dialect tsql.Dialect `json:"dialect,omitempty"`

	// Template - шаблон запроса или имя процедуры
	Template string `json:"template,omitempty"`

	// Params - значения параметров (только для LevelFull)
	Params tsql.Params `json:"params,omitempty"`

	RowCount int64         `json:"row_count"`
	Duration time.Duration `json:"duration"`

	ErrorCode    sqlerr.Code `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// NewEntry - создать новую audit запись
func NewEntry(operation Operation) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    StatusSuccess,
	}
}

// WithUser - установить пользователя
func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

// WithQuery records what was sent and to which dialect.
func (e *Entry) WithQuery(d tsql.Dialect, template string, params tsql.Params) *Entry {
	e.Dialect = d
	e.Template = template
	e.Params = params
	return e
}

// WithRowCount - установить количество записей
func (e *Entry) WithRowCount(count int64) *Entry {
	e.RowCount = count
	return e
}

// WithDuration - установить длительность
func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError marks the entry failed. The sqlerr code is kept when present.
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.Status = StatusFailure
		e.ErrorMessage = err.Error()
		e.ErrorCode = sqlerr.CodeOf(err)
	}
	return e
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление
func (e *Entry) String() string {
	s := fmt.Sprintf("[%s] %s %s %s (dialect=%s, rows=%d, duration=%v)",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.User,
		e.Dialect,
		e.RowCount,
		e.Duration,
	)
	if e.ErrorMessage != "" {
		s += ": " + e.ErrorMessage
	}
	return s
}

// Clone - создать копию записи
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.Params != nil {
		clone.Params = make(tsql.Params, len(e.Params))
		for k, v := range e.Params {
			clone.Params[k] = v
		}
	}
	return &clone
}

// FilterByLevel - фильтрация данных по уровню
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Template = ""
		filtered.Params = nil
	case LevelStandard:
		// Значения параметров могут содержать персональные данные
		filtered.Params = nil
	case LevelFull:
	}

	return filtered
}
