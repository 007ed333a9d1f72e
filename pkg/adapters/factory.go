package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

// AdapterConstructor - функция-конструктор адаптера.
// Returns a new adapter that is not connected yet.
type AdapterConstructor func() Adapter

// Factory maps dialects to adapter constructors.
type Factory struct {
	registry map[tsql.Dialect]AdapterConstructor
	mu       sync.RWMutex
}

// NewFactory создает новую фабрику адаптеров
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[tsql.Dialect]AdapterConstructor),
	}
}

// Register registers the constructor for a dialect, replacing any previous
// one.
//
//	factory.Register(tsql.Postgres, func() adapters.Adapter {
//	    return &postgres.Adapter{}
//	})
func (f *Factory) Register(d tsql.Dialect, constructor AdapterConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[d] = constructor
}

// Unregister удаляет конструктор адаптера
func (f *Factory) Unregister(d tsql.Dialect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registry, d)
}

// IsRegistered reports whether a constructor exists for d.
func (f *Factory) IsRegistered(d tsql.Dialect) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[d]
	return ok
}

// GetRegisteredTypes returns the registered dialects, sorted.
func (f *Factory) GetRegisteredTypes() []tsql.Dialect {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]tsql.Dialect, 0, len(f.registry))
	for d := range f.registry {
		types = append(types, d)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Create builds the adapter for cfg.Type and connects it. cfg is completed
// with dialect defaults and validated first.
//
// Connect errors are returned unwrapped so that their sqlerr code survives.
func (f *Factory) Create(ctx context.Context, cfg Config) (Adapter, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	adapter, err := f.CreateWithoutConnect(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := adapter.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return adapter, nil
}

// CreateWithoutConnect создает адаптер БЕЗ подключения к БД
func (f *Factory) CreateWithoutConnect(d tsql.Dialect) (Adapter, error) {
	f.mu.RLock()
	constructor, ok := f.registry[d]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown database type: %s (available types: %v)",
			d, f.GetRegisteredTypes())
	}
	return constructor(), nil
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register registers an adapter in the global factory. Dialect packages
// call it from init():
//
//	func init() {
//	    adapters.Register(tsql.Postgres, func() adapters.Adapter {
//	        return &Adapter{}
//	    })
//	}
func Register(d tsql.Dialect, constructor AdapterConstructor) {
	globalFactory.Register(d, constructor)
}

// Unregister удаляет адаптер из глобальной фабрики
func Unregister(d tsql.Dialect) {
	globalFactory.Unregister(d)
}

// IsRegistered проверяет регистрацию в глобальной фабрике
func IsRegistered(d tsql.Dialect) bool {
	return globalFactory.IsRegistered(d)
}

// GetRegisteredTypes возвращает типы из глобальной фабрики
func GetRegisteredTypes() []tsql.Dialect {
	return globalFactory.GetRegisteredTypes()
}

// New creates and connects an adapter through the global factory.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	return globalFactory.Create(ctx, cfg)
}

// NewWithoutConnect создает адаптер БЕЗ подключения через глобальную фабрику
func NewWithoutConnect(d tsql.Dialect) (Adapter, error) {
	return globalFactory.CreateWithoutConnect(d)
}
