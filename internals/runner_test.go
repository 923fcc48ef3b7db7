package internals

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quix-labs/incremental-writer/publishers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	publishers.LogOutput = io.Discard
	os.Exit(m.Run())
}

var fixedTime = time.Date(2024, 5, 6, 13, 14, 15, 0, time.Local)

func newTestRunner(t *testing.T, config *Config) *Runner {
	t.Helper()
	if config.Output == "" {
		config.Output = filepath.Join(t.TempDir(), OutputFileName)
	}
	if config.Interval == 0 {
		config.Interval = time.Nanosecond
	}
	require.NoError(t, config.SetDefaults())

	runner := &Runner{Now: func() time.Time { return fixedTime }}
	require.NoError(t, runner.Init(config))
	t.Cleanup(runner.Terminate)
	return runner
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

func TestRunner_WritesTenLines(t *testing.T) {
	config := &Config{}
	runner := newTestRunner(t, config)

	var stdout bytes.Buffer
	err := runner.Run(context.Background(), strings.NewReader(`{"text": "hello"}`), &stdout)
	require.NoError(t, err)

	lines := readLines(t, config.Output)
	require.Len(t, lines, 10)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("[13:14:15] 进度 %d/10: hello", i+1), line)
	}

	assert.Equal(t,
		"后台文件写入任务已圆满完成。文件保存在 "+config.Output+"，共写入 10 行。\n",
		stdout.String(),
	)
	assert.Contains(t, stdout.String(), "共写入 10 行")
}

func TestRunner_FallbackText(t *testing.T) {
	for name, input := range map[string]string{
		"empty":     "",
		"malformed": "{not json",
		"no text":   `{"other": "value"}`,
	} {
		t.Run(name, func(t *testing.T) {
			config := &Config{}
			runner := newTestRunner(t, config)

			var stdout bytes.Buffer
			require.NoError(t, runner.Run(context.Background(), strings.NewReader(input), &stdout))

			lines := readLines(t, config.Output)
			require.Len(t, lines, 10)
			for _, line := range lines {
				assert.True(t, strings.HasSuffix(line, ": 这是后台任务写入的内容"), line)
			}
			assert.Contains(t, stdout.String(), "10")
		})
	}
}

func TestRunner_AppendsAcrossRuns(t *testing.T) {
	config := &Config{}
	runner := newTestRunner(t, config)

	for _, text := range []string{"first", "second"} {
		var stdout bytes.Buffer
		require.NoError(t, runner.Run(context.Background(), strings.NewReader(`{"text":"`+text+`"}`), &stdout))
	}

	lines := readLines(t, config.Output)
	require.Len(t, lines, 20)
	assert.True(t, strings.HasSuffix(lines[0], "进度 1/10: first"))
	assert.True(t, strings.HasSuffix(lines[9], "进度 10/10: first"))
	assert.True(t, strings.HasSuffix(lines[10], "进度 1/10: second"))
	assert.True(t, strings.HasSuffix(lines[19], "进度 10/10: second"))
}

func TestRunner_UnwritableOutput(t *testing.T) {
	config := &Config{Output: filepath.Join(t.TempDir(), "missing", OutputFileName)}
	runner := newTestRunner(t, config)

	var stdout bytes.Buffer
	err := runner.Run(context.Background(), strings.NewReader(`{"text": "hello"}`), &stdout)
	assert.Error(t, err)
	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, config.Output)
}

func TestRunner_CancelStopsBetweenLines(t *testing.T) {
	config := &Config{Interval: time.Hour}
	runner := newTestRunner(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	err := runner.Run(ctx, strings.NewReader(`{"text": "hello"}`), &stdout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, stdout.String())
	assert.Equal(t, []string{"[13:14:15] 进度 1/10: hello"}, readLines(t, config.Output))
}

func TestRunner_PausesAfterEveryLine(t *testing.T) {
	config := &Config{Iterations: 3, Interval: 20 * time.Millisecond}
	runner := newTestRunner(t, config)

	started := time.Now()
	var stdout bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(""), &stdout))
	assert.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)
	assert.Len(t, readLines(t, config.Output), 3)
	assert.Contains(t, stdout.String(), "共写入 3 行")
}

func TestRunner_ExtraFilePublisher(t *testing.T) {
	mirror := filepath.Join(t.TempDir(), "mirror.log")
	config := &Config{
		DefaultOut: []string{"file", "mirror", "file"},
		Out: map[string]map[string]any{
			"mirror": {"driver": "file", "path": mirror},
		},
	}
	runner := newTestRunner(t, config)

	var stdout bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(`{"text": "twice"}`), &stdout))
	assert.Len(t, readLines(t, config.Output), 10)
	assert.Equal(t, readLines(t, config.Output), readLines(t, mirror))
}

func TestRunner_InitErrors(t *testing.T) {
	tests := map[string]*Config{
		"unknown driver": {Out: map[string]map[string]any{"kafka": {"driver": "kafka"}}},
		"unknown target": {DefaultOut: []string{"nowhere"}},
		"bad log level":  {LogLevel: "loud"},
		"bad plugin":     {Plugins: []any{42}},
		"missing plugin": {Plugins: []any{"absent"}},
	}
	for name, config := range tests {
		t.Run(name, func(t *testing.T) {
			config.Output = filepath.Join(t.TempDir(), OutputFileName)
			config.PluginDir = t.TempDir()
			t.Setenv("LOG_LEVEL", "")
			require.NoError(t, config.SetDefaults())

			runner := &Runner{}
			assert.Error(t, runner.Init(config))
		})
	}
}

func TestRunner_Plugin(t *testing.T) {
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("cat not available")
	}
	config := &Config{PluginDir: "/bin", Plugins: []any{"cat"}}
	runner := newTestRunner(t, config)

	var stdout bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(`{"text": "piped"}`), &stdout))
	lines := readLines(t, config.Output)
	require.Len(t, lines, 10)
	assert.Equal(t, "[13:14:15] 进度 10/10: piped", lines[9])
}

func TestNewRunner_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "from-config.log")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: "+output+"\niterations: 2\ninterval: 1ns\n"), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "")

	runner, err := NewRunner()
	require.NoError(t, err)
	defer runner.Terminate()

	var stdout bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(`{"text": "cfg"}`), &stdout))
	assert.Len(t, readLines(t, output), 2)
	assert.Contains(t, stdout.String(), output)
}

func TestNewRunner_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := NewRunner()
	assert.Error(t, err)
}

func TestRunner_ReportsTargetedFilePath(t *testing.T) {
	mirror := filepath.Join(t.TempDir(), "mirror.log")
	config := &Config{
		DefaultOut: []string{"mirror"},
		Out: map[string]map[string]any{
			"mirror": {"driver": "file", "path": mirror},
		},
	}
	runner := newTestRunner(t, config)

	var stdout bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), strings.NewReader(`{"text": "elsewhere"}`), &stdout))
	assert.Equal(t, "后台文件写入任务已圆满完成。文件保存在 "+mirror+"，共写入 10 行。\n", stdout.String())
	assert.Len(t, readLines(t, mirror), 10)
	assert.NoFileExists(t, config.Output)
}

func TestRunner_InitRequiresFileTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"version":{"number":"8.14.0"}}`)
	}))
	defer server.Close()

	t.Setenv("LOG_LEVEL", "")
	config := &Config{
		Output:     filepath.Join(t.TempDir(), OutputFileName),
		Interval:   time.Nanosecond,
		DefaultOut: []string{"search"},
		Out: map[string]map[string]any{
			"search": {"driver": "elastic", "endpoints": []any{server.URL}},
		},
	}
	require.NoError(t, config.SetDefaults())

	runner := &Runner{}
	assert.ErrorContains(t, runner.Init(config), "no file publisher")
}

func TestRunner_CancelWhilePluginSilent(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	config := &Config{
		PluginDir: "/bin",
		Plugins:   []any{map[string]any{"name": "sh", "args": []any{"-c", "cat >/dev/null"}}},
	}
	runner := newTestRunner(t, config)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	var stdout bytes.Buffer
	err := runner.Run(ctx, strings.NewReader(`{"text": "hello"}`), &stdout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, config.Output)
}
