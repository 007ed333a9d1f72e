package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// memAppender собирает записи в памяти
type memAppender struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
	closed  int
}

func (m *memAppender) Append(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *memAppender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *memAppender) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func queryEntry() *Entry {
	return NewEntry(OpQuery).
		WithUser("svc_chat").
		WithQuery(tsql.Postgres, "SELECT * FROM Users WHERE id = @id", tsql.Params{"id": 7}).
		WithRowCount(1).
		WithDuration(15 * time.Millisecond)
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestEntry_Builder(t *testing.T) {
	e := queryEntry()

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, tsql.Postgres, e.Dialect)
	assert.Equal(t, int64(1), e.RowCount)
	assert.NotEqual(t, e.ID, NewEntry(OpQuery).ID)

	e.WithError(sqlerr.MissingParameter("id"))
	assert.Equal(t, StatusFailure, e.Status)
	assert.Equal(t, sqlerr.CodeMissingParameter, e.ErrorCode)
	assert.Contains(t, e.String(), "failure")

	plain := NewEntry(OpNative).WithError(errors.New("boom"))
	assert.Equal(t, sqlerr.Code(0), plain.ErrorCode)
	assert.Equal(t, "boom", plain.ErrorMessage)

	assert.Equal(t, StatusSuccess, NewEntry(OpExecute).WithError(nil).Status)
}

func TestEntry_FilterByLevel(t *testing.T) {
	e := queryEntry()

	minimal := e.FilterByLevel(LevelMinimal)
	assert.Empty(t, minimal.Template)
	assert.Nil(t, minimal.Params)
	assert.Equal(t, int64(1), minimal.RowCount)

	standard := e.FilterByLevel(LevelStandard)
	assert.NotEmpty(t, standard.Template)
	assert.Nil(t, standard.Params)

	full := e.FilterByLevel(LevelFull)
	assert.Equal(t, tsql.Params{"id": 7}, full.Params)

	// Фильтрация не меняет оригинал
	full.Params["id"] = 8
	assert.Equal(t, 7, e.Params["id"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelStandard, "minimal": LevelMinimal, "FULL": LevelFull, " standard ": LevelStandard} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.ErrorContains(t, err, "unknown audit level")
	assert.Equal(t, "full", LevelFull.String())
}

func TestFileAppender_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	appender, err := NewFileAppender(FileAppenderConfig{FilePath: path, Level: LevelStandard})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, appender.Append(ctx, queryEntry()))
	require.NoError(t, appender.Append(ctx, NewEntry(OpExecute).WithError(sqlerr.ConnectionFailure(errors.New("refused")))))
	require.NoError(t, appender.Flush())
	assert.Positive(t, appender.CurrentSize())
	require.NoError(t, appender.Close())
	require.NoError(t, appender.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "query", lines[0]["operation"])
	assert.Equal(t, "postgres", lines[0]["dialect"])
	assert.Equal(t, "SELECT * FROM Users WHERE id = @id", lines[0]["template"])
	assert.NotContains(t, lines[0], "params")
	assert.Equal(t, "failure", lines[1]["status"])
	assert.EqualValues(t, sqlerr.CodeConnectionFailure, lines[1]["error_code"])
}

func TestFileAppender_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	appender, err := NewFileAppender(FileAppenderConfig{FilePath: path, MaxBackups: 2, Level: LevelFull})
	require.NoError(t, err)
	defer appender.Close()
	appender.maxSize = 300 // байт, чтобы ротация случилась на нескольких записях

	for i := 0; i < 10; i++ {
		require.NoError(t, appender.Append(context.Background(), queryEntry().WithRowCount(int64(i))))
	}
	require.NoError(t, appender.Flush())

	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	// последняя запись всегда в текущем файле
	lines := readLines(t, path)
	require.NotEmpty(t, lines)
	assert.EqualValues(t, 9, lines[len(lines)-1]["row_count"])
}

func TestWriterAppender(t *testing.T) {
	var buf bytes.Buffer
	appender := NewWriterAppender(&buf, LevelStandard)

	require.NoError(t, appender.Append(context.Background(), queryEntry()))
	assert.Contains(t, buf.String(), "query success svc_chat (dialect=postgres, rows=1")
	assert.Contains(t, buf.String(), "\tSELECT * FROM Users WHERE id = @id")

	buf.Reset()
	require.NoError(t, NewWriterAppender(&buf, LevelMinimal).Append(context.Background(), queryEntry()))
	assert.NotContains(t, buf.String(), "SELECT")
	assert.NoError(t, appender.Close())
}

func TestMultiAppender(t *testing.T) {
	failing := &memAppender{err: errors.New("disk full")}
	ok := &memAppender{}
	multi := NewMultiAppender(failing, ok)

	err := multi.Append(context.Background(), queryEntry())
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, ok.len(), "other appenders still receive the entry")

	require.NoError(t, multi.Close())
	assert.Equal(t, 1, failing.closed)
	assert.Equal(t, 1, ok.closed)
}

func TestOpenTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	var stderr bytes.Buffer

	appender, err := OpenTargets(path+", -", FileAppenderConfig{Level: LevelStandard}, &stderr)
	require.NoError(t, err)
	require.IsType(t, MultiAppender{}, appender)

	require.NoError(t, appender.Append(context.Background(), queryEntry()))
	require.NoError(t, appender.Close())

	assert.Contains(t, stderr.String(), "query success svc_chat")
	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "SELECT * FROM Users WHERE id = @id", lines[0]["template"])
}

func TestOpenTargets_Single(t *testing.T) {
	var stderr bytes.Buffer
	appender, err := OpenTargets("-", FileAppenderConfig{}, &stderr)
	require.NoError(t, err)
	assert.IsType(t, &WriterAppender{}, appender)

	_, err = OpenTargets(" , ", FileAppenderConfig{}, &stderr)
	assert.Error(t, err)
}

func TestAuditLogger_Sync(t *testing.T) {
	mem := &memAppender{}
	cfg := SyncConfig()
	cfg.DefaultUser = "ops"
	logger := NewLogger(cfg, mem)

	entry := NewEntry(OpQuery)
	entry.Timestamp = time.Time{}
	require.NoError(t, logger.Log(context.Background(), entry))
	require.Equal(t, 1, mem.len())
	assert.Equal(t, "ops", mem.entries[0].User)
	assert.False(t, mem.entries[0].Timestamp.IsZero())

	require.NoError(t, logger.Log(context.Background(), queryEntry()))
	assert.Equal(t, "svc_chat", mem.entries[1].User, "explicit user wins")

	assert.Error(t, logger.Log(context.Background(), nil))
}

func TestAuditLogger_AsyncDrainsOnClose(t *testing.T) {
	mem := &memAppender{}
	cfg := DefaultConfig()
	cfg.BufferSize = 100
	logger := NewLogger(cfg, mem)

	for i := 0; i < 50; i++ {
		require.NoError(t, logger.Log(context.Background(), queryEntry()))
	}
	require.NoError(t, logger.Close())
	assert.Equal(t, 50, mem.len())
	assert.Equal(t, 1, mem.closed)

	assert.ErrorIs(t, logger.Log(context.Background(), queryEntry()), ErrClosed)
	require.NoError(t, logger.Close())
	assert.Equal(t, 1, mem.closed, "Close is idempotent")
}

func TestAuditLogger_OnError(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	cfg := SyncConfig()
	cfg.OnError = func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}
	logger := NewLogger(cfg, &memAppender{err: errors.New("disk full")})
	defer logger.Close()

	err := logger.Log(context.Background(), queryEntry())
	assert.EqualError(t, err, "disk full")
	require.Len(t, reported, 1)
	assert.ErrorContains(t, reported[0], "appender failed")
}

func TestAuditLogger_FlushInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	appender, err := NewFileAppender(FileAppenderConfig{FilePath: path})
	require.NoError(t, err)

	cfg := SyncConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	logger := NewLogger(cfg, appender)

	require.NoError(t, logger.Log(context.Background(), queryEntry()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, logger.Close())

	assert.Len(t, readLines(t, path), 1)
}
