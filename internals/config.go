package internals

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	OutputFileName    = "task_output.log"
	PluginDirName     = "plugins"
	DefaultText       = "这是后台任务写入的内容"
	DefaultIterations = 10
	DefaultInterval   = time.Second
	DefaultPublisher  = "file"
)

type Config struct {
	Output     string                    `yaml:"output"`
	Text       string                    `yaml:"text"`
	Iterations int                       `yaml:"iterations"`
	Interval   time.Duration             `yaml:"interval"`
	LogLevel   string                    `yaml:"log_level"`
	DefaultOut []string                  `yaml:"default_out"`
	Out        map[string]map[string]any `yaml:"out"`
	PluginDir  string                    `yaml:"plugin_dir"`
	Plugins    []any                     `yaml:"plugins"`
}

func (config *Config) LoadFromYaml(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file %s - UID %d: %w", path, os.Getuid(), err)
	}
	err = yaml.Unmarshal(content, config)
	if err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return nil
}

// SetDefaults fills every unset field so that an empty Config behaves like
// the bare task: ten lines, one second apart, into the colocated log file.
func (config *Config) SetDefaults() error {
	if config.Output == "" {
		output, err := DefaultOutputPath()
		if err != nil {
			return err
		}
		config.Output = output
	}
	if config.PluginDir == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return err
		}
		config.PluginDir = filepath.Join(dir, PluginDirName)
	}
	output, err := filepath.Abs(config.Output)
	if err != nil {
		return fmt.Errorf("cannot resolve output path %s: %w", config.Output, err)
	}
	config.Output = output

	if config.Text == "" {
		config.Text = DefaultText
	}
	if config.Iterations <= 0 {
		config.Iterations = DefaultIterations
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		config.LogLevel = envLevel
	}
	if config.LogLevel == "" {
		config.LogLevel = zerolog.InfoLevel.String()
	}
	if config.Out == nil {
		config.Out = map[string]map[string]any{}
	}
	if _, ok := config.Out[DefaultPublisher]; !ok {
		config.Out[DefaultPublisher] = map[string]any{"driver": DefaultPublisher}
	}
	if len(config.DefaultOut) == 0 {
		config.DefaultOut = []string{DefaultPublisher}
	}
	return nil
}

func (config *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", config.LogLevel, err)
	}
	return level, nil
}

// DefaultOutputPath is task_output.log next to the running executable.
func DefaultOutputPath() (string, error) {
	dir, err := ExecutableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, OutputFileName), nil
}

func ExecutableDir() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("cannot locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}
	return filepath.Dir(executable), nil
}
