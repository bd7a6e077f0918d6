package logger

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.False(t, cfg.JSON)
	assert.Equal(t, slog.LevelInfo, cfg.Level)

	out, err := cfg.Writer()
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, out)

	cfg, err = loadConfig(env.Options{Environment: map[string]string{
		"LOG_JSON":   "true",
		"LOG_LEVEL":  "debug",
		"LOG_OUTPUT": "stderr",
	}})
	require.NoError(t, err)

	opts, err := cfg.Options("fsm")
	require.NoError(t, err)
	assert.True(t, opts.JSON)
	assert.Equal(t, slog.LevelDebug, opts.MinLevel)
	assert.Equal(t, os.Stderr, opts.Output)
	assert.Equal(t, "fsm", opts.Subsystem)

	cfg, err = loadConfig(env.Options{Environment: map[string]string{"LOG_OUTPUT": "syslog"}})
	require.NoError(t, err)

	_, err = cfg.Options("fsm")
	require.ErrorIs(t, err, ErrInvalidLogOutput)

	_, err = loadConfig(env.Options{Environment: map[string]string{"LOG_LEVEL": "loud"}})
	require.Error(t, err)
}

// The tests below replace the process wide default logger.

func TestGet(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{Subsystem: "fsm", JSON: true, Output: &buf})

	ctx := With(context.Background(), "fsm.table", "connection")
	ctx = WithSubsystem(ctx, "fleet")

	Get(ctx).Info("hello", "error", AnnotateError(errBase, "fsm.state", "Idle"))

	out := decode(t, &buf)
	assert.Equal(t, "fleet", out["subsystem"])
	assert.Equal(t, "connection", out["fsm.table"])
	assert.Equal(t, "Idle", out["fsm.state"])

	buf.Reset()
	Get().Info("default")
	assert.Equal(t, "fsm", decode(t, &buf)["subsystem"])

	buf.Reset()
	Get(WithMuted(ctx, true)).Error("silenced")
	assert.Empty(t, buf.String())
}

func TestWith(t *testing.T) {
	t.Parallel()

	ctx := With(context.Background(), "a", 1)
	assert.Equal(t, ctx, With(ctx))

	child := With(ctx, "b", 2)
	assert.Equal(t, []any{"a", 1, "b", 2}, getValues(child))
	assert.Equal(t, []any{"a", 1}, getValues(ctx))

	//nolint:staticcheck
	assert.NotNil(t, With(nil, "c", 3))
}

func TestLegacy(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem:   "test",
		JSON:        true,
		MinLevel:    slog.LevelDebug,
		LegacyLevel: slog.LevelWarn,
		Output:      &buf,
	})

	log.Println("legacy")

	out := decode(t, &buf)
	assert.Equal(t, "WARN", out["level"])
	assert.Equal(t, "legacy", out["msg"])
}

func TestConfigureLogging(t *testing.T) { //nolint:paralleltest
	t.Setenv("LOG_JSON", "true")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer

	logger, err := ConfigureLogging(context.Background(), "fsm-test", WithOutput(&buf))
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
	assert.Equal(t, "fsm-test", GetSubsystem(context.Background()))

	t.Setenv("LOG_OUTPUT", "nowhere")

	_, err = ConfigureLogging(context.Background(), "fsm-test")
	require.ErrorIs(t, err, ErrInvalidLogOutput)
}
