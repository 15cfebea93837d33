package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/doc-history/internal/config"
)

func TestNewLoggerLevels(t *testing.T) {
	tts := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"nonsense", zapcore.InfoLevel},
	}

	for _, tt := range tts {
		logger, err := NewLogger(config.LoggerConfig{Level: tt.level, Encoding: "console", Service: "doc-history", Env: "test"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.want), tt.level)
		assert.False(t, logger.Core().Enabled(tt.want-1), tt.level)
	}
}
