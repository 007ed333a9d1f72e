// Package sqlerr defines the typed failures surfaced by sqlbridge.
//
// Codes are grouped by category:
//   - 1xxx: translation errors (never transient)
//   - 2xxx: connectivity errors (transient, caller decides on retry)
//   - 3xxx: errors reported by the native engine
package sqlerr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code is a numeric error code for programmatic handling.
type Code int

const (
	CodeMissingParameter          Code = 1001
	CodeMalformedPaginationSyntax Code = 1002
	CodeUnsupportedConstruct      Code = 1003

	CodeConnectionFailure Code = 2001
	CodeConnectionTimeout Code = 2002

	CodeNativeQuery Code = 3001
)

// MaxQueryText bounds the query text attached to native errors.
const MaxQueryText = 200

var codeNames = map[Code]string{
	CodeMissingParameter:          "missing_parameter",
	CodeMalformedPaginationSyntax: "malformed_pagination_syntax",
	CodeUnsupportedConstruct:      "unsupported_construct",
	CodeConnectionFailure:         "connection_failure",
	CodeConnectionTimeout:         "connection_timeout",
	CodeNativeQuery:               "native_query_error",
}

// String returns the code in E0000 form.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", int(c))
}

// Name returns a snake_case label suitable for metrics and logs.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// Error is the single error type returned across package boundaries.
type Error struct {
	Code    Code
	Message string
	// Fragment is the offending parameter name or SQL fragment.
	Fragment string
	// Query and Rewritten carry the caller's template and the text sent to
	// the engine, truncated to MaxQueryText.
	Query     string
	Rewritten string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Query != "" {
		fmt.Fprintf(&b, " (query: %q", e.Query)
		if e.Rewritten != "" && e.Rewritten != e.Query {
			fmt.Fprintf(&b, ", rewritten: %q", e.Rewritten)
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrMissingParameter          = &Error{Code: CodeMissingParameter}
	ErrMalformedPaginationSyntax = &Error{Code: CodeMalformedPaginationSyntax}
	ErrUnsupportedConstruct      = &Error{Code: CodeUnsupportedConstruct}
	ErrConnectionFailure         = &Error{Code: CodeConnectionFailure}
	ErrConnectionTimeout         = &Error{Code: CodeConnectionTimeout}
	ErrNativeQuery               = &Error{Code: CodeNativeQuery}
)

// MissingParameter reports a placeholder with no entry in the parameter map.
func MissingParameter(name string) *Error {
	return &Error{
		Code:     CodeMissingParameter,
		Message:  fmt.Sprintf("missing parameter @%s", name),
		Fragment: name,
	}
}

// MalformedPagination reports a recognized pagination keyword without a
// usable argument.
func MalformedPagination(fragment string) *Error {
	return &Error{
		Code:     CodeMalformedPaginationSyntax,
		Message:  fmt.Sprintf("malformed pagination syntax near %q", fragment),
		Fragment: fragment,
	}
}

// Unsupported reports a construct the target dialect cannot express.
func Unsupported(fragment string) *Error {
	return &Error{
		Code:     CodeUnsupportedConstruct,
		Message:  fmt.Sprintf("unsupported construct %q", fragment),
		Fragment: fragment,
	}
}

// ConnectionFailure wraps a driver connectivity error.
func ConnectionFailure(err error) *Error {
	return &Error{Code: CodeConnectionFailure, Message: "connection failure", Err: err}
}

// ConnectionTimeout wraps a connect or acquire attempt that ran out of time.
func ConnectionTimeout(err error) *Error {
	return &Error{Code: CodeConnectionTimeout, Message: "connection timeout", Err: err}
}

// StatementTimeout wraps a statement that ran out of time after it was sent.
// The server may have applied it, so it is a native error and never transient.
func StatementTimeout(err error) *Error {
	return &Error{Code: CodeNativeQuery, Message: "statement timed out: " + err.Error(), Err: err}
}

// NativeQuery wraps an error raised by the engine for an accepted statement.
func NativeQuery(err error) *Error {
	msg := "query rejected by engine"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: CodeNativeQuery, Message: msg, Err: err}
}

// Connectivity classifies a connect/ping error as a timeout or a failure.
// Errors that are already *Error pass through unchanged.
func Connectivity(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if IsTimeout(err) {
		return ConnectionTimeout(err)
	}
	return ConnectionFailure(err)
}

// Classify maps an error returned while running an accepted statement.
// Lost connections become connectivity errors, timeouts become
// StatementTimeout and anything else is a native engine error. Errors that
// are already *Error pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if IsTimeout(err) {
		return StatementTimeout(err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || IsNetwork(err) {
		return ConnectionFailure(err)
	}
	return NativeQuery(err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNetwork reports whether err originates in the network layer.
func IsNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// WithQuery attaches truncated query text to a native error. Other errors are
// returned unchanged.
func WithQuery(err error, query, rewritten string) error {
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeNativeQuery {
		return err
	}
	cp := *e
	cp.Query = Truncate(query, MaxQueryText)
	cp.Rewritten = Truncate(rewritten, MaxQueryText)
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return code != 0 && CodeOf(err) == code
}

// IsTransient reports whether a caller may retry err as-is. Only
// connectivity errors qualify.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeConnectionFailure, CodeConnectionTimeout:
		return true
	}
	return false
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
