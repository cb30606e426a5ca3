package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zllovesuki/studio/spec"
	"github.com/zllovesuki/studio/spec/broker"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ broker.Producer = &AMQPBroker{}
var _ broker.Consumer = &AMQPBroker{}

const (
	eventExchange      string = "studio_events"
	eventRoutingKey           = "subscription"
	notifierQueue             = "studio_events_notifier"
	eventContentType          = "application/json"
	defaultPrefetchCnt        = 16
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	logger     *zap.Logger
	connection *amqp.Connection
	channel    *amqp.Channel
	// amqp.Channel is not safe for concurrent publishing
	publishMu sync.Mutex
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(logger *zap.Logger, amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	b := &AMQPBroker{
		logger:     logger,
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := b.setupEventExchange(); err != nil {
		b.Close()
		return nil, extErrors.Wrap(err, "Cannot declare exchange for subscription events")
	}

	return b, nil
}

func (a *AMQPBroker) setupEventExchange() error {
	return a.channel.ExchangeDeclare(
		eventExchange, // name
		"direct",      // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishEvent will send the subscription event to the event exchange
func (a *AMQPBroker) PublishEvent(ctx context.Context, e *spec.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode event into bytes")
	}
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	if err := a.channel.Publish(
		eventExchange,
		eventRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  eventContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
			Body:         body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish subscription event")
	}
	return nil
}

func (a *AMQPBroker) bindAndGetMsgChan(qName string) (<-chan amqp.Delivery, error) {
	if _, err := a.channel.QueueDeclare(
		qName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, err
	}
	if err := a.channel.QueueBind(
		qName,
		eventRoutingKey,
		eventExchange,
		false,
		nil,
	); err != nil {
		return nil, err
	}
	if err := a.channel.Qos(defaultPrefetchCnt, 0, false); err != nil {
		return nil, err
	}
	return a.channel.Consume(
		qName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

// ReceiveEvents returns a channel of decoded subscription events. Undecodable messages are dropped.
func (a *AMQPBroker) ReceiveEvents(ctx context.Context) (<-chan *spec.Event, error) {
	msgChan, err := a.bindAndGetMsgChan(notifierQueue)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *spec.Event)
	go func() {
		defer close(rChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgChan:
				if !ok {
					return
				}
				var e spec.Event
				if err := json.Unmarshal(d.Body, &e); err != nil {
					a.logger.Error("Cannot decode subscription event",
						zap.Error(err),
					)
					d.Nack(false, false)
					continue
				}
				select {
				case rChan <- &e:
					d.Ack(false)
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()
	return rChan, nil
}
