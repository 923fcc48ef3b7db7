package internals

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quix-labs/incremental-writer/internals/types"
	"github.com/quix-labs/incremental-writer/internals/utils"
	"github.com/quix-labs/incremental-writer/publishers"
	"github.com/quix-labs/incremental-writer/publishers/elastic"
	"github.com/quix-labs/incremental-writer/publishers/file"
	"github.com/quix-labs/incremental-writer/publishers/postgresql"
	"github.com/rs/zerolog"
)

const ReportFormat = "后台文件写入任务已圆满完成。文件保存在 %s，共写入 %d 行。\n"

type Runner struct {
	config     *Config
	publishers map[string]types.AbstractPublisher
	targets    []types.AbstractPublisher
	plugins    types.Plugins
	reportPath string
	Logger     zerolog.Logger

	// Now is the clock used to stamp lines.
	Now func() time.Time
}

func (runner *Runner) Init(config *Config) error {
	runner.config = config
	if runner.Now == nil {
		runner.Now = time.Now
	}
	level, err := config.Level()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	runner.Logger = zerolog.New(publishers.LogOutput).
		With().Caller().Stack().Timestamp().
		Str("service", "runner").
		Logger()

	err = runner.loadPublishers()
	if err != nil {
		return err
	}
	err = runner.initPublishers()
	if err != nil {
		runner.Terminate()
		return err
	}
	err = runner.resolveReportPath()
	if err != nil {
		runner.Terminate()
		return err
	}
	err = runner.loadPlugins()
	if err != nil {
		runner.Terminate()
		return err
	}
	return nil
}

// Run reads the payload from in, writes every progress line and finally
// reports to out. Nothing is written to out unless all lines were published.
func (runner *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	document, err := types.ParseDocument(in)
	if err != nil {
		runner.Logger.Warn().Err(err).Msg("Cannot read input, using empty document")
	}
	if document.Kind == types.MalformedDocument {
		runner.Logger.Debug().Err(document.Err).Msg("Malformed input ignored")
	}
	text := document.Text(runner.config.Text)
	runner.Logger.Info().
		Str("input", document.Kind.String()).
		Str("output", runner.reportPath).
		Int("iterations", runner.config.Iterations).
		Msg("Task started")

	written, err := runner.writeLines(ctx, text)
	if err != nil {
		runner.Logger.Error().Err(err).Int("written", written).Msg("Task aborted")
		return err
	}

	_, err = fmt.Fprintf(out, ReportFormat, runner.reportPath, written)
	return err
}

func (runner *Runner) Terminate() {
	runner.plugins.Terminate()
	for name, publisher := range runner.publishers {
		publisher.Terminate()
		publisher.InternalTerminate()
		runner.Logger.Debug().Str("publisher", name).Msg("Publisher terminated")
	}
}

func (runner *Runner) GetPublisher(name string) (types.AbstractPublisher, error) {
	publisher, ok := runner.publishers[name]
	if !ok {
		return nil, fmt.Errorf("invalid publisher name: %s", name)
	}
	return publisher, nil
}

// -----------------INTERNALS----------------------------------------------

func (runner *Runner) writeLines(ctx context.Context, text string) (int, error) {
	total := runner.config.Iterations
	for i := 1; i <= total; i++ {
		line := &types.Line{Time: runner.Now(), Index: i, Total: total, Text: text}
		if err := runner.plugins.Apply(ctx, line); err != nil {
			return i - 1, err
		}
		for _, publisher := range runner.targets {
			if err := publisher.Publish(ctx, line); err != nil {
				return i - 1, err
			}
		}
		runner.Logger.Debug().Int("index", i).Int("total", total).Msg("Line written")

		// The pause follows every line, the last one included.
		if err := sleep(ctx, runner.config.Interval); err != nil {
			return i, err
		}
	}
	return total, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (runner *Runner) loadPublishers() error {
	runner.publishers = make(map[string]types.AbstractPublisher)

	for name, config := range runner.config.Out {
		var publisher types.AbstractPublisher
		switch config["driver"] {
		case "file":
			publisher = &file.Publisher{}
		case "elastic":
			publisher = &elastic.Publisher{}
		case "postgresql":
			publisher = &postgresql.Publisher{}
		default:
			return fmt.Errorf("invalid Out Driver: %v", config["driver"])
		}
		runner.publishers[name] = publisher
	}

	runner.targets = nil
	for _, name := range utils.Unique(runner.config.DefaultOut) {
		publisher, err := runner.GetPublisher(name)
		if err != nil {
			return err
		}
		runner.targets = append(runner.targets, publisher)
	}
	return nil
}

func (runner *Runner) initPublishers() error {
	for name, publisher := range runner.publishers {
		publisherConfig := make(map[string]any, len(runner.config.Out[name]))
		for key, value := range runner.config.Out[name] {
			publisherConfig[key] = value
		}
		delete(publisherConfig, "driver")
		publisher.InternalInit(name)
		if err := publisher.Init(publisherConfig, runner.config.Output); err != nil {
			return fmt.Errorf("cannot init publisher %s: %w", name, err)
		}
	}
	return nil
}

// resolveReportPath picks the first targeted file publisher: the report must
// name a file that this run actually appends to.
func (runner *Runner) resolveReportPath() error {
	for _, publisher := range runner.targets {
		if filePublisher, ok := publisher.(*file.Publisher); ok {
			runner.reportPath = filePublisher.Path
			return nil
		}
	}
	return fmt.Errorf("default_out %v targets no file publisher", runner.config.DefaultOut)
}

func (runner *Runner) loadPlugins() error {
	if len(runner.config.Plugins) == 0 {
		return nil
	}
	if err := runner.plugins.Parse(runner.config.Plugins); err != nil {
		return err
	}
	logger := zerolog.New(publishers.LogOutput).
		With().Timestamp().
		Str("service", "plugin").
		Logger()
	return runner.plugins.Init(runner.config.PluginDir, logger)
}

// NewRunner loads CONFIG_FILE when set, applies defaults and initialises
// every publisher.
func NewRunner() (*Runner, error) {
	config := &Config{}
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := config.LoadFromYaml(configFile); err != nil {
			return nil, err
		}
	}
	if err := config.SetDefaults(); err != nil {
		return nil, err
	}
	runner := &Runner{}
	if err := runner.Init(config); err != nil {
		return nil, err
	}
	return runner, nil
}
