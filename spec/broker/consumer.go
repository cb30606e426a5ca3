package broker

import (
	"context"

	"github.com/zllovesuki/studio/spec"
)

// Consumer defines a consumer receiving subscription events via message broker
type Consumer interface {
	Close()
	ReceiveEvents(ctx context.Context) (<-chan *spec.Event, error)
}
