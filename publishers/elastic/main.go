package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	elasticsearch8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/quix-labs/incremental-writer/internals/types"
	"github.com/quix-labs/incremental-writer/internals/utils"
	"github.com/quix-labs/incremental-writer/publishers"
)

const DefaultIndex = "task_output"

type Publisher struct {
	sync.Mutex
	publishers.Publisher
	client *elasticsearch8.Client
	Prefix string
	Index  string

	outputPath string
}

type document struct {
	*types.Line
	Message string `json:"message"`
	Output  string `json:"output"`
}

func (p *Publisher) Init(config map[string]any, output string) error {
	esConfig := elasticsearch8.Config{}
	p.Index = DefaultIndex
	for key, target := range map[string]*string{
		"username": &esConfig.Username,
		"password": &esConfig.Password,
		"prefix":   &p.Prefix,
		"index":    &p.Index,
	} {
		if err := utils.ParseOptionalKey(config, key, target); err != nil {
			return err
		}
	}
	if err := utils.ParseOptionalKey(config, "endpoints", &esConfig.Addresses); err != nil {
		return err
	}

	es8, err := elasticsearch8.NewClient(esConfig)
	if err != nil {
		return fmt.Errorf("unable to create elasticsearch client: %w", err)
	}
	res, err := es8.Info()
	if err != nil {
		return fmt.Errorf("unable to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("unable to ping elasticsearch: %s", res.String())
	}

	p.Logger.Print("Successfully connected to elasticsearch")
	p.client = es8
	p.outputPath = output
	return nil
}

func (p *Publisher) Publish(ctx context.Context, line *types.Line) error {
	p.Lock()
	defer p.Unlock()

	body, err := json.Marshal(document{
		Line:    line,
		Message: line.Format(),
		Output:  p.outputPath,
	})
	if err != nil {
		return err
	}

	res, err := p.client.Index(
		p.Prefix+p.Index,
		bytes.NewReader(body),
		p.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("cannot index line %d: %w", line.Index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("cannot index line %d: %s", line.Index, res.String())
	}
	return nil
}

func (p *Publisher) Terminate() {}
