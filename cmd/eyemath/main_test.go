package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/eyemath/internal/profile"
	"github.com/hrygo/eyemath/solver/metrics"
	"github.com/hrygo/eyemath/solver/orchestrator"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSolveCommand_YAML(t *testing.T) {
	out, err := runCLI(t, "solve", "2x = 10", "--output", "yaml", "--steps=true", "--operation", "", "--log-level", "error")
	require.NoError(t, err)

	var res orchestrator.SolveResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "solve", res.Operation)
	assert.Equal(t, []string{"x = 5"}, res.Results)
	assert.NotEqual(t, []string{orchestrator.None}, res.SolvingSteps)
}

func TestSolveCommand_JSONAndOperation(t *testing.T) {
	out, err := runCLI(t, "solve", "x^{3}", "--output", "json", "--steps=false", "--operation", "differentiate", "--log-level", "error")
	require.NoError(t, err)

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "differentiate", res.Operation)
	assert.Equal(t, []string{"3x^{2}"}, res.Results)
	assert.Equal(t, []string{orchestrator.None}, res.SolvingSteps)
}

func TestSolveCommand_UnknownOperation(t *testing.T) {
	_, err := runCLI(t, "solve", "x", "--output", "text", "--operation", "transmogrify", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestLoadProfile_RemoteNeedsURL(t *testing.T) {
	t.Setenv("EYEMATH_BACKEND", "remote")
	t.Setenv("EYEMATH_BACKEND_URL", "")

	_, err := loadProfile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend url is required")
}

func TestLoadProfile_EnvLayer(t *testing.T) {
	t.Setenv("EYEMATH_BACKEND", "remote")
	t.Setenv("EYEMATH_BACKEND_URL", "http://cas.internal:8000")
	t.Setenv("EYEMATH_BACKEND_API_KEY", "k")
	t.Setenv("EYEMATH_RENDER_CACHE_SIZE", "16")

	p, err := loadProfile()
	require.NoError(t, err)
	assert.Equal(t, profile.BackendRemote, p.Backend)
	assert.Equal(t, "http://cas.internal:8000", p.BackendURL)
	assert.Equal(t, "k", p.BackendAPIKey)
	assert.Equal(t, 16, p.RenderCacheSize)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod", "warn").Info("hidden")
	newLogger(&buf, "prod", "warn").Warn("shown", "operation", "solve")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger(&buf, "dev", "nonsense").Info("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
	assert.False(t, newLogger(&buf, "dev", "info").Enabled(context.Background(), slog.LevelDebug))
}

func TestWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	err := writeResult(&buf, orchestrator.SolveResult{
		Results:      []string{"x = 5"},
		SolvingSteps: []string{"Solving equation: 2x = 10"},
		Success:      true,
		Operation:    "solve",
		ImageURLs:    []string{"https://img.example/1"},
	}, "text")
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Operation: solve\n"))
	assert.Contains(t, out, "Result: x = 5\n")
	assert.Contains(t, out, "  Solving equation: 2x = 10\n")
	assert.Contains(t, out, "Image: https://img.example/1\n")

	assert.Error(t, writeResult(&buf, orchestrator.SolveResult{}, "xml"))
}

func TestNewOrchestrator_Backends(t *testing.T) {
	p := profile.Default()
	require.NoError(t, p.Validate())
	o := newOrchestrator(p, metrics.Nop{}, slog.Default())
	require.NoError(t, o.Ping(context.Background()))
	assert.Equal(t, p.SolveTimeout, o.Config().Timeout)

	_, err := o.Render(context.Background(), "x", "")
	assert.Error(t, err)
}
