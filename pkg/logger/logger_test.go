package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		t.Run("level "+tc.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.value)
			log := New()
			require.True(t, log.Enabled(context.Background(), tc.want))
			require.False(t, log.Enabled(context.Background(), tc.want-1))
		})
	}
}
