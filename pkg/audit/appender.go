package audit

import (
	"context"
	"errors"
	"io"
	"strings"
)

// StderrTarget in a target list selects a WriterAppender on stderr.
const StderrTarget = "-"

// Appender - интерфейс для записи audit логов
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
	Close() error
}

// MultiAppender fans every entry out to several appenders.
type MultiAppender []Appender

// NewMultiAppender - создать multi appender
func NewMultiAppender(appenders ...Appender) MultiAppender {
	return MultiAppender(appenders)
}

// Append writes to every appender, even after one fails, and joins the
// errors.
func (m MultiAppender) Append(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, a := range m {
		if err := a.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every appender.
func (m MultiAppender) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenTargets builds the appender for a comma separated target list such as
// "/var/log/sqlbridge/audit.log,-". Paths get a FileAppender configured from
// file, StderrTarget a WriterAppender on stderr. Several targets are combined
// into a MultiAppender.
func OpenTargets(targets string, file FileAppenderConfig, stderr io.Writer) (Appender, error) {
	var opened MultiAppender
	for _, target := range strings.Split(targets, ",") {
		target = strings.TrimSpace(target)
		switch target {
		case "":
			continue
		case StderrTarget:
			opened = append(opened, NewWriterAppender(stderr, file.Level))
		default:
			cfg := file
			cfg.FilePath = target
			fa, err := NewFileAppender(cfg)
			if err != nil {
				opened.Close()
				return nil, err
			}
			opened = append(opened, fa)
		}
	}

	switch len(opened) {
	case 0:
		return nil, errors.New("no audit target configured")
	case 1:
		return opened[0], nil
	}
	return opened, nil
}
