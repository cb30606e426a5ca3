package broker

import (
	"context"

	"github.com/zllovesuki/studio/spec"
)

// Producer defines a producer sending subscription events via message broker
type Producer interface {
	Close()
	PublishEvent(ctx context.Context, e *spec.Event) error
}

// NopProducer drops every event. Used when no broker is configured.
type NopProducer struct{}

var _ Producer = NopProducer{}

func (NopProducer) Close() {}

func (NopProducer) PublishEvent(ctx context.Context, e *spec.Event) error {
	return nil
}
