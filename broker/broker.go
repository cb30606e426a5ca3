package broker

import (
	"github.com/zllovesuki/studio/spec/broker"
)

// Broker is a message broker that can both publish and receive subscription events
type Broker interface {
	broker.Producer
	broker.Consumer
}
