package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("model", "gemini").Msg("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), `"model":"gemini"`)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{"json info", "info", "json", zerolog.InfoLevel, false},
		{"console debug", "DEBUG", "console", zerolog.DebugLevel, false},
		{"empty values", "", "", zerolog.InfoLevel, false},
		{"bad level", "loud", "json", zerolog.NoLevel, true},
		{"bad format", "info", "xml", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := newFromConfig(&bytes.Buffer{}, tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
		})
	}
}

func TestNewFromConfig_FiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := newFromConfig(buf, "warn", "json")
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	assert.NotNil(t, ctx.Value(LoggerKey))
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	l := FromContext(ctx)
	l.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"account_id": "123",
		"action":     "submit",
	})

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), `"account_id":"123"`)
	assert.Contains(t, buf.String(), `"action":"submit"`)
}
