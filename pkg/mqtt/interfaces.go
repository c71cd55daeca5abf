package mqtt

import (
	"context"

	"github.com/saaga0h/quito/pkg/broker"
)

// Client represents an MQTT client interface for testing and abstraction
type Client interface {
	// Connect establishes a connection to the MQTT broker
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the MQTT broker
	Disconnect()

	// Subscribe subscribes to a topic with the given QoS and handler
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Unsubscribe removes subscriptions for the given topic filters
	Unsubscribe(topics ...string) error

	// Publish publishes a message to a topic
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool

	// Options returns the connection options the client was created with
	Options() broker.Options
}

// MessageHandler is a callback function for handling incoming MQTT messages
type MessageHandler func(Message)

// Message represents an MQTT message
type Message interface {
	// Topic returns the topic the message was published to
	Topic() string

	// Payload returns the message payload
	Payload() []byte

	// QoS returns the delivery QoS of the message
	QoS() byte

	// Retained reports whether the broker delivered a retained message
	Retained() bool

	// Ack acknowledges the message (for QoS > 0)
	Ack()
}
