package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Env: "production"}, &buf)

	log.Debug().Str("dialect", "postgres").Msg("translated")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "postgres", line["dialect"])
	assert.Equal(t, "sqlbridge", line["component"])
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "WARN", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "bogus"}, &buf).GetLevel())
}

func TestNew_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Env: "development"}, &buf)
	log.Info().Msg("pool opened")

	assert.Contains(t, buf.String(), "pool opened")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestIsProduction(t *testing.T) {
	assert.True(t, IsProduction(" Production "))
	assert.True(t, IsProduction("prod"))
	assert.False(t, IsProduction("development"))
	assert.False(t, IsProduction(""))
}
