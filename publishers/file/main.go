package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quix-labs/incremental-writer/internals/types"
	"github.com/quix-labs/incremental-writer/internals/utils"
	"github.com/quix-labs/incremental-writer/publishers"
)

const FileMode = 0644

type Publisher struct {
	publishers.Publisher
	Path string
}

// Init takes its path from the "path" option, falling back to the task output.
func (p *Publisher) Init(config map[string]any, output string) error {
	p.Path = output
	if err := utils.ParseOptionalKey(config, "path", &p.Path); err != nil {
		return err
	}
	if p.Path == "" {
		return fmt.Errorf("file publisher %s has no path", p.Name)
	}
	path, err := filepath.Abs(p.Path)
	if err != nil {
		return fmt.Errorf("cannot resolve path %s: %w", p.Path, err)
	}
	p.Path = path
	p.Logger.Debug().Str("path", p.Path).Msg("File publisher ready")
	return nil
}

// Publish opens, appends and closes for every line so that an interrupted
// run always leaves whole lines behind.
func (p *Publisher) Publish(_ context.Context, line *types.Line) error {
	f, err := os.OpenFile(p.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", p.Path, err)
	}
	if _, err = f.WriteString(line.Format()); err != nil {
		f.Close()
		return fmt.Errorf("cannot write %s: %w", p.Path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("cannot close %s: %w", p.Path, err)
	}
	return nil
}

func (p *Publisher) Terminate() {}
