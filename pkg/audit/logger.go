// Package audit records every statement sqlbridge sends to a database:
// who ran it, against which dialect, how long it took and how it ended.
//
// Entries go through an AuditLogger to one or more Appenders. In async mode
// the logger buffers entries in a channel and a single goroutine writes
// them; Close drains the buffer before closing the appenders.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("audit logger is closed")

// AuditLogger - основной логгер аудита
type AuditLogger struct {
	appenders    []Appender
	entryChannel chan *Entry
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	config       LoggerConfig
	closeOnce    sync.Once
	closeErr     error
}

// LoggerConfig - конфигурация логгера
type LoggerConfig struct {
	// AsyncMode - асинхронная запись в appenders
	AsyncMode bool

	// BufferSize - размер буфера для асинхронного режима, 0 = 1000
	BufferSize int

	// DefaultUser - пользователь по умолчанию (если не указан в entry)
	DefaultUser string

	// FlushInterval - интервал автоматического flush (0 = отключен)
	FlushInterval time.Duration

	// OnError - callback при ошибке записи
	OnError func(error)
}

// NewLogger - создать новый audit logger
func NewLogger(config LoggerConfig, appenders ...Appender) *AuditLogger {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}

	l := &AuditLogger{
		appenders: appenders,
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
	}

	if config.AsyncMode {
		l.entryChannel = make(chan *Entry, config.BufferSize)
		l.wg.Add(1)
		go l.processEntries()
	}

	if config.FlushInterval > 0 {
		l.wg.Add(1)
		go l.autoFlush()
	}

	return l
}

// Log - записать audit entry
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if l.ctx.Err() != nil {
		return ErrClosed
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.User == "" {
		entry.User = l.config.DefaultUser
	}

	if l.config.AsyncMode {
		select {
		case l.entryChannel <- entry:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Буфер переполнен, записываем синхронно
			return l.writeEntry(ctx, entry)
		}
	}

	return l.writeEntry(ctx, entry)
}

// writeEntry - записать entry во все appenders
func (l *AuditLogger) writeEntry(ctx context.Context, entry *Entry) error {
	var firstError error
	for _, appender := range l.appenders {
		if err := appender.Append(ctx, entry); err != nil {
			if firstError == nil {
				firstError = err
			}
			l.handleError(fmt.Errorf("appender failed: %w", err))
		}
	}
	return firstError
}

// processEntries - обработка entries в асинхронном режиме
func (l *AuditLogger) processEntries() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.entryChannel:
			l.writeEntry(context.Background(), entry)
		case <-l.ctx.Done():
			l.drainChannel()
			return
		}
	}
}

// drainChannel - обработать оставшиеся entries в канале
func (l *AuditLogger) drainChannel() {
	for {
		select {
		case entry := <-l.entryChannel:
			l.writeEntry(context.Background(), entry)
		default:
			return
		}
	}
}

// autoFlush - автоматический flush appenders
func (l *AuditLogger) autoFlush() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.ctx.Done():
			return
		}
	}
}

// Flush - сбросить буферы всех appenders
func (l *AuditLogger) Flush() error {
	var firstError error
	for _, appender := range l.appenders {
		if flusher, ok := appender.(interface{ Flush() error }); ok {
			if err := flusher.Flush(); err != nil {
				if firstError == nil {
					firstError = err
				}
				l.handleError(fmt.Errorf("flush failed: %w", err))
			}
		}
	}
	return firstError
}

// Close stops accepting entries, writes what is buffered and closes the
// appenders. It is safe to call more than once.
func (l *AuditLogger) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.wg.Wait()
		l.Flush()

		for _, appender := range l.appenders {
			if err := appender.Close(); err != nil {
				if l.closeErr == nil {
					l.closeErr = err
				}
				l.handleError(fmt.Errorf("close failed: %w", err))
			}
		}
	})
	return l.closeErr
}

// handleError - обработка ошибки
func (l *AuditLogger) handleError(err error) {
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
}

// DefaultConfig - асинхронный режим с буфером на 1000 записей
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		AsyncMode:  true,
		BufferSize: 1000,
	}
}

// SyncConfig - конфигурация для синхронного режима
func SyncConfig() LoggerConfig {
	return LoggerConfig{}
}
