package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaultScope_Logger_LevelGating(t *testing.T) {
	t.Parallel()

	require.True(t, New(true).Enabled(context.Background(), slog.LevelDebug))
	require.False(t, New(false).Enabled(context.Background(), slog.LevelDebug))
	require.True(t, New(false).Enabled(context.Background(), slog.LevelInfo))
}
