package publishers

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogOutput is where every publisher logs. Stdout carries the task result.
var LogOutput io.Writer = os.Stderr

type Publisher struct {
	Name   string
	Logger zerolog.Logger
}

// Global method

func (p *Publisher) InternalInit(name string) {
	p.Name = name
	p.Logger = zerolog.New(LogOutput).
		With().Caller().Stack().Timestamp().
		Str("service", "publisher").Str("serviceName", name).
		Logger()
}
func (p *Publisher) InternalTerminate() {}
