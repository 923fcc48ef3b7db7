package types

import "context"

type AbstractPublisher interface {
	Init(config map[string]any, output string) error
	Terminate()

	InternalInit(name string)
	InternalTerminate()
	Publish(ctx context.Context, line *Line) error
}
