package sqlerr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeString(t *testing.T) {
	assert.Equal(t, "E1001", CodeMissingParameter.String())
	assert.Equal(t, "E3001", CodeNativeQuery.String())
	assert.Equal(t, "connection_timeout", CodeConnectionTimeout.Name())
	assert.Equal(t, "unknown", Code(42).Name())
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("userId")

	assert.Equal(t, "userId", err.Fragment)
	assert.Contains(t, err.Error(), "@userId")
	assert.True(t, errors.Is(err, ErrMissingParameter))
	assert.False(t, errors.Is(err, ErrUnsupportedConstruct))
	assert.False(t, IsTransient(err))
}

func TestIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load chats: %w", MalformedPagination("TOP ()"))

	assert.True(t, Is(wrapped, CodeMalformedPaginationSyntax))
	assert.Equal(t, CodeMalformedPaginationSyntax, CodeOf(wrapped))
	assert.Equal(t, Code(0), CodeOf(errors.New("plain")))
	assert.False(t, Is(errors.New("plain"), 0))
}

func TestConnectivity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), CodeConnectionTimeout},
		{"refused", errors.New("connection refused"), CodeConnectionFailure},
		{"already typed", NativeQuery(errors.New("boom")), CodeNativeQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Connectivity(tt.err)
			assert.Equal(t, tt.want, CodeOf(got))
		})
	}
	assert.Nil(t, Connectivity(nil))
	assert.True(t, IsTransient(Connectivity(context.DeadlineExceeded)))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, CodeConnectionFailure, CodeOf(Classify(fmt.Errorf("exec: %w", driver.ErrBadConn))))
	assert.Equal(t, CodeConnectionFailure, CodeOf(Classify(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")})))
	assert.Equal(t, CodeNativeQuery, CodeOf(Classify(context.DeadlineExceeded)))
	assert.Equal(t, CodeNativeQuery, CodeOf(Classify(errors.New(`relation "users" does not exist`))))
	assert.Equal(t, CodeMissingParameter, CodeOf(Classify(MissingParameter("id"))))
}

func TestClassify_StatementTimeoutIsNotTransient(t *testing.T) {
	err := Classify(fmt.Errorf("read rows: %w", context.DeadlineExceeded))

	assert.Equal(t, CodeNativeQuery, CodeOf(err))
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "statement timed out")

	// the same deadline on a connect attempt stays retryable
	assert.True(t, IsTransient(Connectivity(fmt.Errorf("dial: %w", context.DeadlineExceeded))))
}

func TestWithQueryTruncates(t *testing.T) {
	long := "SELECT " + strings.Repeat("x, ", 200) + "y FROM t"
	err := WithQuery(NativeQuery(errors.New(`relation "t" does not exist`)), long, long+" LIMIT 1")

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Len(t, []rune(e.Query), MaxQueryText)
	assert.True(t, strings.HasSuffix(e.Query, "..."))
	assert.Contains(t, e.Error(), `relation "t" does not exist`)

	// non-native errors are left alone
	missing := MissingParameter("id")
	assert.Same(t, missing, WithQuery(missing, "q", "r"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdefgh", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "при...", Truncate("привет мир", 6))
}
