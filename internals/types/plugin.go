package types

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/quix-labs/incremental-writer/internals/utils"
	"github.com/rs/zerolog"
)

type Plugins []*Plugin

type Plugin struct {
	sync.Mutex
	Name   string
	Args   []string
	cmd    *Cmd
	logger zerolog.Logger
}

func (plugins *Plugins) Apply(ctx context.Context, line *Line) error {
	for _, plugin := range *plugins {
		if err := plugin.Apply(ctx, line); err != nil {
			return fmt.Errorf("plugin %s: %w", plugin.Name, err)
		}
	}
	return nil
}

// Parse accepts a list whose entries are either a plugin name or a
// {name, args} map. Plugins are not started.
func (plugins *Plugins) Parse(config any) error {
	var sliceFields []any
	err := utils.ParseMap(config, &sliceFields)
	if err != nil {
		return err
	}
	for _, entry := range sliceFields {
		plugin := &Plugin{}

		switch parsed := entry.(type) {
		case string:
			plugin.Name = parsed

		case map[string]interface{}:
			var definition struct {
				Name string   `json:"name"`
				Args []string `json:"args"`
			}
			err := utils.ParseMap(parsed, &definition)
			if err != nil {
				return errors.New("unable to parse plugin")
			}
			plugin.Name, plugin.Args = definition.Name, definition.Args

		default:
			return errors.New("invalid plugin")
		}

		if plugin.Name == "" {
			return errors.New("plugin without name")
		}
		*plugins = append(*plugins, plugin)
	}
	return nil
}

func (plugins *Plugins) Init(dir string, logger zerolog.Logger) error {
	for _, plugin := range *plugins {
		if err := plugin.Init(dir, logger); err != nil {
			return fmt.Errorf("cannot start plugin %s: %w", plugin.Name, err)
		}
	}
	return nil
}

func (plugins *Plugins) Terminate() {
	for _, plugin := range *plugins {
		if err := plugin.Terminate(); err != nil {
			plugin.logger.Warn().Err(err).Msg("Plugin exited with error")
		}
	}
}

// Init starts the plugin executable. Relative names are looked up in dir.
func (plugin *Plugin) Init(dir string, logger zerolog.Logger) error {
	plugin.logger = logger.With().Str("plugin", plugin.Name).Logger()

	path := plugin.Name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	plugin.cmd = Command(path, plugin.Args...)
	plugin.cmd.Logger = plugin.logger
	plugin.cmd.InputChan = make(chan string, 1024)
	plugin.cmd.OutputChan = make(chan string, 1024)
	if err := plugin.cmd.Start(); err != nil {
		close(plugin.cmd.InputChan)
		plugin.cmd = nil
		return err
	}
	return nil
}

func (plugin *Plugin) Terminate() error {
	if plugin.cmd == nil {
		return nil
	}
	close(plugin.cmd.InputChan)
	return plugin.cmd.Exit()
}

// Apply sends the line to the plugin as one JSON line and replaces it with
// the plugin's single-line JSON answer. A cancelled ctx leaves the plugin
// out of step with the runner; it must be terminated afterwards.
func (plugin *Plugin) Apply(ctx context.Context, line *Line) error {
	plugin.Lock()
	defer plugin.Unlock()

	jsonLine, err := json.Marshal(line)
	if err != nil {
		return err
	}

	select {
	case plugin.cmd.InputChan <- string(jsonLine) + "\n":
	case <-ctx.Done():
		return ctx.Err()
	}

	var response string
	select {
	case answer, ok := <-plugin.cmd.OutputChan:
		if !ok {
			return errors.New("cannot get plugin response")
		}
		response = answer
	case <-ctx.Done():
		return ctx.Err()
	}
	err = json.Unmarshal([]byte(response), line)
	if err != nil {
		return fmt.Errorf("invalid plugin response: %w", err)
	}
	plugin.logger.Debug().Int("index", line.Index).Msg("Line rewritten by plugin")

	return nil
}

// KillTimeout timeout for kill signal when exiting a Cmd
var KillTimeout = 1000 * time.Millisecond

// InterruptTimeout timeout for interrupt signal when exiting a Cmd
var InterruptTimeout = 200 * time.Millisecond

// Cmd wraps an exec/Cmd and provides a pipe based interface
type Cmd struct {
	*exec.Cmd

	// DropEmptyLines stops empty lines being received
	DropEmptyLines bool
	Logger         zerolog.Logger

	// InputChan is the channel attached to the command stdin
	InputChan chan string
	// OutputChan is the channel attached to the command stdout
	OutputChan chan string
}

// Command Creates a command
func Command(name string, arg ...string) *Cmd {
	c := new(Cmd)

	c.DropEmptyLines = true
	c.Logger = zerolog.Nop()

	c.Cmd = exec.Command(name, arg...)

	return c
}

// Start wraps Cmd.Start and hooks channels if provided
func (cmd *Cmd) Start() error {

	// Bind output routine if channel exists; stderr only goes to the log
	if cmd.OutputChan != nil {
		stdout, err := cmd.Cmd.StdoutPipe()
		if err != nil {
			return err
		}
		go cmd.readCloserToChannel(stdout, cmd.OutputChan)
		stderr, err := cmd.Cmd.StderrPipe()
		if err != nil {
			return err
		}
		go cmd.readCloserToChannel(stderr, nil)
	}

	// Bind input routine if channel exists
	if cmd.InputChan != nil {
		stdin, err := cmd.Cmd.StdinPipe()
		if err != nil {
			return err
		}
		go cmd.channelToWriteCloser(cmd.InputChan, stdin)
	}

	return cmd.Cmd.Start()
}

// Exit a running command
// This attempts a wait, with timeout based interrupt and kill signals
func (cmd *Cmd) Exit() error {

	// Create exit timers
	interruptTimer := time.AfterFunc(InterruptTimeout, func() {
		cmd.Cmd.Process.Signal(os.Interrupt)
	})
	killTimer := time.AfterFunc(KillTimeout, func() {
		cmd.Cmd.Process.Kill()
	})

	// Wait for exit
	err := cmd.Cmd.Wait()

	interruptTimer.Stop()
	killTimer.Stop()

	return err
}

var re = regexp.MustCompile(`^[\s]*$`)

// Handle output to channel and/or log
func (cmd *Cmd) output(text string, c chan string) {
	if cmd.DropEmptyLines && re.MatchString(text) {
		return
	}
	if c == nil {
		cmd.Logger.Warn().Msg(text)
		return
	}
	cmd.Logger.Trace().Msg(text)
	c <- text
}

// Bind a readable pipe to an output channel for IPC
func (cmd *Cmd) readCloserToChannel(r io.ReadCloser, c chan string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				cmd.Logger.Error().Err(err).Msg("Pipe read error")
			}
			break
		}
		cmd.output(line, c)
	}
	if c != nil {
		close(c)
	}
}

// Bind a writable pipe to an input channel for IPC
func (cmd *Cmd) channelToWriteCloser(c chan string, w io.WriteCloser) {
	defer w.Close()
	for line := range c {
		if _, err := io.WriteString(w, line); err != nil {
			cmd.Logger.Error().Err(err).Msg("Pipe write error")
			return
		}
	}
}
